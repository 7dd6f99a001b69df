package cases

import (
	"github.com/iota-uz/caseflow/modules/cases/infrastructure/persistence"
	"github.com/iota-uz/caseflow/modules/cases/presentation/controllers"
	"github.com/iota-uz/caseflow/modules/cases/services"
	"github.com/iota-uz/caseflow/pkg/application"
)

func NewModule() application.Module {
	return &Module{}
}

type Module struct {
}

func (m *Module) Register(app application.Application) error {
	app.RegisterServices(
		services.NewCaseService(persistence.NewCaseRepository()),
	)
	app.RegisterControllers(
		controllers.NewCaseAPIController(app),
	)
	return nil
}

func (m *Module) Name() string {
	return "cases"
}
