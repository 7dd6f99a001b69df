package imports

import (
	casespersistence "github.com/iota-uz/caseflow/modules/cases/infrastructure/persistence"
	"github.com/iota-uz/caseflow/modules/imports/handlers"
	"github.com/iota-uz/caseflow/modules/imports/infrastructure/persistence"
	"github.com/iota-uz/caseflow/modules/imports/presentation/controllers"
	"github.com/iota-uz/caseflow/modules/imports/services"
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
	importService := services.NewImportService(services.ImportServiceOptions{
		Imports:      persistence.NewImportRepository(),
		Cases:        casespersistence.NewCaseRepository(),
		Publisher:    app.EventPublisher(),
		MaxChunkRows: conf.Import.MaxChunkRows,
	})
	app.RegisterServices(
		importService,
		services.NewExportService(importService),
	)
	app.RegisterControllers(
		controllers.NewImportAPIController(app),
	)
	handlers.RegisterMetricsHandler(app)
	return nil
}

func (m *Module) Name() string {
	return "imports"
}
