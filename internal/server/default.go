package server

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/caseflow/modules/core/presentation/controllers"
	"github.com/iota-uz/caseflow/modules/core/services"
	"github.com/iota-uz/caseflow/pkg/application"
	"github.com/iota-uz/caseflow/pkg/configuration"
	"github.com/iota-uz/caseflow/pkg/constants"
	"github.com/iota-uz/caseflow/pkg/middleware"
	"github.com/iota-uz/caseflow/pkg/server"
)

type DefaultOptions struct {
	Logger        *logrus.Logger
	Configuration *configuration.Configuration
	Application   application.Application
	Pool          *pgxpool.Pool
}

func Default(options *DefaultOptions) (*server.HTTPServer, error) {
	app := options.Application
	authService := app.Service(services.AuthService{}).(*services.AuthService)

	app.RegisterMiddleware(
		middleware.WithLogger(options.Logger, middleware.DefaultLoggerOptions()),
		middleware.Provide(constants.PoolKey, options.Pool),
		middleware.Cors(options.Configuration.Origin),
		middleware.RequestParams(),
		middleware.Authorize(authService),
	)

	return server.NewHTTPServer(
		app,
		controllers.NotFound(),
		controllers.MethodNotAllowed(),
	), nil
}
