package core

import (
	"github.com/iota-uz/caseflow/modules/core/infrastructure/persistence"
	"github.com/iota-uz/caseflow/modules/core/presentation/controllers"
	"github.com/iota-uz/caseflow/modules/core/services"
	"github.com/iota-uz/caseflow/pkg/application"
	"github.com/iota-uz/caseflow/pkg/configuration"
)

func NewModule() application.Module {
	return &Module{}
}

type Module struct {
}

func (m *Module) Register(app application.Application) error {
	conf := configuration.Use()
	app.RegisterServices(
		services.NewAuthService(persistence.NewSessionRepository(), conf.SessionDuration),
	)
	app.RegisterControllers(
		controllers.NewHealthController(app),
	)
	return nil
}

func (m *Module) Name() string {
	return "core"
}
