package controllers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/iota-uz/caseflow/modules/cases/domain/caserow"
	"github.com/iota-uz/caseflow/modules/imports/presentation/controllers/dtos"
	"github.com/iota-uz/caseflow/modules/imports/services"
	"github.com/iota-uz/caseflow/pkg/application"
	"github.com/iota-uz/caseflow/pkg/composables"
	"github.com/iota-uz/caseflow/pkg/configuration"
	"github.com/iota-uz/caseflow/pkg/constants"
	"github.com/iota-uz/caseflow/pkg/httpapi"
	"github.com/iota-uz/caseflow/pkg/serrors"
)

// errStatus maps stable service error codes to HTTP statuses.
var errStatus = map[string]int{
	httpapi.CodeValidationError: http.StatusBadRequest,
	httpapi.CodeNotFound:        http.StatusNotFound,
	httpapi.CodeForbidden:       http.StatusForbidden,
	httpapi.CodeUnauthorized:    http.StatusUnauthorized,
	httpapi.CodeImportComplete:  http.StatusConflict,
	httpapi.CodeChunkTooLarge:   http.StatusRequestEntityTooLarge,
}

type ImportAPIController struct {
	imports  *services.ImportService
	exports  *services.ExportService
	basePath string
}

func NewImportAPIController(app application.Application) *ImportAPIController {
	return &ImportAPIController{
		imports:  app.Service(services.ImportService{}).(*services.ImportService),
		exports:  app.Service(services.ExportService{}).(*services.ExportService),
		basePath: "/api/imports",
	}
}

func (c *ImportAPIController) Key() string {
	return c.basePath
}

func (c *ImportAPIController) Register(r *mux.Router) {
	router := r.PathPrefix(c.basePath).Subrouter()
	router.HandleFunc("", c.create).Methods(http.MethodPost)
	router.HandleFunc("", c.list).Methods(http.MethodGet)
	router.HandleFunc("/mapping", c.suggestMapping).Methods(http.MethodPost)
	router.HandleFunc("/{id}", c.status).Methods(http.MethodGet)
	router.HandleFunc("/{id}/chunks", c.submitChunk).Methods(http.MethodPost)
	router.HandleFunc("/{id}/errors", c.errorsJSON).Methods(http.MethodGet)
	router.HandleFunc("/{id}/errors.csv", c.errorsCSV).Methods(http.MethodGet)
	router.HandleFunc("/{id}/errors.xlsx", c.errorsXLSX).Methods(http.MethodGet)
	router.HandleFunc("/{id}/audits", c.audits).Methods(http.MethodGet)
}

func (c *ImportAPIController) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var base *serrors.Base
	if errors.As(err, &base) {
		status, known := errStatus[base.Code]
		if !known {
			status = http.StatusInternalServerError
		}
		var meta map[string]string
		if base.Details != "" {
			meta = map[string]string{"details": base.Details}
		}
		_ = httpapi.WriteError(w, status, base.Code, base.Message, meta)
		return
	}
	if errors.Is(err, composables.ErrNoActor) {
		_ = httpapi.WriteError(w, http.StatusUnauthorized, httpapi.CodeUnauthorized, "authentication required", nil)
		return
	}
	logger, ok := composables.TryUseLogger(r.Context())
	if ok {
		logger.WithError(err).Error("import api request failed")
	}
	_ = httpapi.WriteError(w, http.StatusInternalServerError, httpapi.CodeInternal, "internal server error", nil)
}

func (c *ImportAPIController) create(w http.ResponseWriter, r *http.Request) {
	var req dtos.CreateImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = httpapi.WriteDecodeError(w, err)
		return
	}
	if err := constants.Validate.Struct(req); err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, httpapi.CodeValidationError, "invalid import request", map[string]string{
			"error": err.Error(),
		})
		return
	}

	job, err := c.imports.Create(r.Context(), req.Filename, req.TotalRows)
	if err != nil {
		c.writeServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusCreated, dtos.NewImportResponse(job))
}

func (c *ImportAPIController) list(w http.ResponseWriter, r *http.Request) {
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
	cursor := uuid.Nil
	if raw := r.URL.Query().Get("cursor"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			_ = httpapi.WriteError(w, http.StatusBadRequest, httpapi.CodeValidationError, "invalid cursor", nil)
			return
		}
		cursor = id
	}

	jobs, err := c.imports.List(r.Context(), cursor, limit)
	if err != nil {
		c.writeServiceError(w, r, err)
		return
	}
	out := make([]dtos.ImportResponse, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, dtos.NewImportResponse(job))
	}
	next := ""
	if len(jobs) == limit && limit > 0 {
		next = jobs[len(jobs)-1].ID.String()
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, dtos.ImportListResponse{Imports: out, NextCursor: next})
}

func (c *ImportAPIController) suggestMapping(w http.ResponseWriter, r *http.Request) {
	var req dtos.SuggestMappingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = httpapi.WriteDecodeError(w, err)
		return
	}
	if err := constants.Validate.Struct(req); err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, httpapi.CodeValidationError, "headers are required", nil)
		return
	}

	mapping := caserow.SuggestMapping(req.Headers)
	_ = httpapi.WriteJSON(w, http.StatusOK, dtos.SuggestMappingResponse{
		Mapping:         mapping,
		MissingRequired: caserow.MissingRequired(mapping),
	})
}

func (c *ImportAPIController) status(w http.ResponseWriter, r *http.Request) {
	importID, ok := c.importID(w, r)
	if !ok {
		return
	}
	detail, err := c.imports.GetDetail(r.Context(), importID)
	if err != nil {
		c.writeServiceError(w, r, err)
		return
	}

	resp := dtos.ImportDetailResponse{
		ImportResponse: dtos.NewImportResponse(detail.Job),
		Chunks:         make([]dtos.ChunkSummaryResponse, 0, len(detail.Chunks)),
		Errors:         make([]dtos.RowErrorResponse, 0, len(detail.Errors)),
		Audits:         make([]dtos.AuditEntryResponse, 0, len(detail.Audits)),
	}
	for _, ch := range detail.Chunks {
		resp.Chunks = append(resp.Chunks, dtos.ChunkSummaryResponse{
			ChunkIndex:   ch.Index,
			RowCount:     ch.RowCount,
			SuccessCount: ch.SuccessCount,
			FailureCount: ch.FailureCount,
			CreatedCount: ch.CreatedCount,
			UpdatedCount: ch.UpdatedCount,
			ReceivedAt:   ch.ReceivedAt,
		})
	}
	for _, e := range detail.Errors {
		resp.Errors = append(resp.Errors, dtos.RowErrorResponse{RowNumber: e.RowNumber, Field: e.Field, Message: e.Message})
	}
	for _, a := range detail.Audits {
		resp.Audits = append(resp.Audits, dtos.AuditEntryResponse{
			Event:     a.Event,
			ActorID:   a.ActorID,
			Meta:      a.Meta,
			CreatedAt: a.CreatedAt,
		})
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, resp)
}

func (c *ImportAPIController) submitChunk(w http.ResponseWriter, r *http.Request) {
	importID, ok := c.importID(w, r)
	if !ok {
		return
	}
	var req dtos.ChunkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = httpapi.WriteDecodeError(w, err)
		return
	}
	if err := constants.Validate.Struct(req); err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, httpapi.CodeValidationError, "invalid chunk request", map[string]string{
			"error": err.Error(),
		})
		return
	}

	summary, err := c.imports.ProcessChunk(r.Context(), importID, *req.ChunkIndex, req.Rows)
	if err != nil {
		c.writeServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, dtos.ChunkResponse{
		ChunkIndex:   summary.Chunk.Index,
		RowCount:     summary.Chunk.RowCount,
		SuccessCount: summary.Chunk.SuccessCount,
		FailureCount: summary.Chunk.FailureCount,
		CreatedCount: summary.Chunk.CreatedCount,
		UpdatedCount: summary.Chunk.UpdatedCount,
		Replayed:     summary.Replayed,
		Import:       dtos.NewImportResponse(&summary.Job),
	})
}

func (c *ImportAPIController) errorsJSON(w http.ResponseWriter, r *http.Request) {
	importID, ok := c.importID(w, r)
	if !ok {
		return
	}
	limit, offset := pagination(r)
	errs, total, err := c.imports.Errors(r.Context(), importID, limit, offset)
	if err != nil {
		c.writeServiceError(w, r, err)
		return
	}
	out := make([]dtos.RowErrorResponse, 0, len(errs))
	for _, e := range errs {
		out = append(out, dtos.RowErrorResponse{RowNumber: e.RowNumber, Field: e.Field, Message: e.Message})
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, dtos.ErrorsPageResponse{
		Errors: out,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

func (c *ImportAPIController) errorsCSV(w http.ResponseWriter, r *http.Request) {
	importID, ok := c.importID(w, r)
	if !ok {
		return
	}
	// Ownership check before any byte of the attachment goes out.
	if _, err := c.imports.GetStatus(r.Context(), importID); err != nil {
		c.writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+services.ErrorsCSVFilename(importID)+`"`)
	if err := c.exports.WriteErrorsCSV(r.Context(), importID, w); err != nil {
		logger, ok := composables.TryUseLogger(r.Context())
		if ok {
			logger.WithError(err).Error("stream error report csv")
		}
	}
}

func (c *ImportAPIController) errorsXLSX(w http.ResponseWriter, r *http.Request) {
	importID, ok := c.importID(w, r)
	if !ok {
		return
	}
	if _, err := c.imports.GetStatus(r.Context(), importID); err != nil {
		c.writeServiceError(w, r, err)
		return
	}

	f, err := c.exports.BuildErrorsXLSX(r.Context(), importID)
	if err != nil {
		c.writeServiceError(w, r, err)
		return
	}
	defer func() { _ = f.Close() }()

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+services.ErrorsXLSXFilename(importID)+`"`)
	if err := f.Write(w); err != nil {
		logger, ok := composables.TryUseLogger(r.Context())
		if ok {
			logger.WithError(err).Error("stream error report xlsx")
		}
	}
}

func (c *ImportAPIController) audits(w http.ResponseWriter, r *http.Request) {
	importID, ok := c.importID(w, r)
	if !ok {
		return
	}
	entries, err := c.imports.Audits(r.Context(), importID)
	if err != nil {
		c.writeServiceError(w, r, err)
		return
	}
	out := make([]dtos.AuditEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, dtos.AuditEntryResponse{
			Event:     e.Event,
			ActorID:   e.ActorID,
			Meta:      e.Meta,
			CreatedAt: e.CreatedAt,
		})
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, out)
}

func (c *ImportAPIController) importID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, httpapi.CodeValidationError, "invalid import id", nil)
		return uuid.Nil, false
	}
	return id, true
}

func pagination(r *http.Request) (limit, offset int) {
	conf := configuration.Use()
	limit = conf.Import.ErrorPageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			limit = v
		}
	}
	if limit > conf.MaxPageSize {
		limit = conf.MaxPageSize
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v >= 0 {
			offset = v
		}
	}
	return limit, offset
}
