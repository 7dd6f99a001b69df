package controllers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iota-uz/caseflow/pkg/application"
	"github.com/iota-uz/caseflow/pkg/httpapi"
)

type HealthController struct {
	pool *pgxpool.Pool
}

func NewHealthController(app application.Application) *HealthController {
	return &HealthController{pool: app.DB()}
}

func (c *HealthController) Key() string {
	return "/health"
}

func (c *HealthController) Register(r *mux.Router) {
	r.HandleFunc("/health", c.health).Methods(http.MethodGet)
}

func (c *HealthController) health(w http.ResponseWriter, r *http.Request) {
	if err := c.pool.Ping(r.Context()); err != nil {
		_ = httpapi.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "down"})
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
