package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/iota-uz/caseflow/modules/cases/presentation/controllers/dtos"
	"github.com/iota-uz/caseflow/modules/cases/services"
	"github.com/iota-uz/caseflow/pkg/application"
	"github.com/iota-uz/caseflow/pkg/composables"
	"github.com/iota-uz/caseflow/pkg/configuration"
	"github.com/iota-uz/caseflow/pkg/httpapi"
	"github.com/iota-uz/caseflow/pkg/serrors"
)

type CaseAPIController struct {
	cases    *services.CaseService
	basePath string
}

func NewCaseAPIController(app application.Application) *CaseAPIController {
	return &CaseAPIController{
		cases:    app.Service(services.CaseService{}).(*services.CaseService),
		basePath: "/api/cases",
	}
}

func (c *CaseAPIController) Key() string {
	return c.basePath
}

func (c *CaseAPIController) Register(r *mux.Router) {
	router := r.PathPrefix(c.basePath).Subrouter()
	router.HandleFunc("/{caseKey}", c.get).Methods(http.MethodGet)
	router.HandleFunc("/{caseKey}/history", c.history).Methods(http.MethodGet)
}

func (c *CaseAPIController) get(w http.ResponseWriter, r *http.Request) {
	rec, err := c.cases.GetByCaseKey(r.Context(), mux.Vars(r)["caseKey"])
	if err != nil {
		writeCaseError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, dtos.NewCaseResponse(rec))
}

func (c *CaseAPIController) history(w http.ResponseWriter, r *http.Request) {
	conf := configuration.Use()
	limit := conf.PageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			limit = v
		}
	}
	if limit > conf.MaxPageSize {
		limit = conf.MaxPageSize
	}
	offset := 0
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v >= 0 {
			offset = v
		}
	}

	entries, err := c.cases.History(r.Context(), mux.Vars(r)["caseKey"], limit, offset)
	if err != nil {
		writeCaseError(w, r, err)
		return
	}
	out := make([]dtos.HistoryEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, dtos.NewHistoryEntryResponse(e))
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, out)
}

func writeCaseError(w http.ResponseWriter, r *http.Request, err error) {
	var base *serrors.Base
	if errors.As(err, &base) {
		status := http.StatusInternalServerError
		switch base.Code {
		case httpapi.CodeNotFound:
			status = http.StatusNotFound
		case httpapi.CodeValidationError:
			status = http.StatusBadRequest
		}
		_ = httpapi.WriteError(w, status, base.Code, base.Message, nil)
		return
	}
	logger, ok := composables.TryUseLogger(r.Context())
	if ok {
		logger.WithError(err).Error("case api request failed")
	}
	_ = httpapi.WriteError(w, http.StatusInternalServerError, httpapi.CodeInternal, "internal server error", nil)
}
