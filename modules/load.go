package modules

import (
	"github.com/iota-uz/caseflow/modules/cases"
	"github.com/iota-uz/caseflow/modules/core"
	"github.com/iota-uz/caseflow/modules/imports"
	"github.com/iota-uz/caseflow/pkg/application"
)

var BuiltInModules = []application.Module{
	core.NewModule(),
	cases.NewModule(),
	imports.NewModule(),
}

func Load(app application.Application, externalModules ...application.Module) error {
	for _, module := range externalModules {
		if err := module.Register(app); err != nil {
			return err
		}
	}
	return nil
}
