package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/caseflow/modules/cases/domain/caserow"
	"github.com/iota-uz/caseflow/pkg/configuration"
	"github.com/iota-uz/caseflow/pkg/httpapi"
	"github.com/iota-uz/caseflow/pkg/importer"
)

type importResult struct {
	ID           uuid.UUID  `json:"id"`
	Filename     string     `json:"filename"`
	TotalRows    int        `json:"totalRows"`
	SuccessCount int        `json:"successCount"`
	FailureCount int        `json:"failureCount"`
	Status       string     `json:"status"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
}

type chunkResult struct {
	ChunkIndex   int          `json:"chunkIndex"`
	RowCount     int          `json:"rowCount"`
	SuccessCount int          `json:"successCount"`
	FailureCount int          `json:"failureCount"`
	CreatedCount int          `json:"createdCount"`
	UpdatedCount int          `json:"updatedCount"`
	Replayed     bool         `json:"replayed"`
	Import       importResult `json:"import"`
}

type errorsPage struct {
	Errors []struct {
		RowNumber int    `json:"rowNumber"`
		Field     string `json:"field"`
		Message   string `json:"message"`
	} `json:"errors"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

type caseAPIClient struct {
	baseURL         *url.URL
	token           string
	httpClient      *http.Client
	requestIDHeader string
}

func newCaseAPIClient(baseURL, token string) (*caseAPIClient, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = configuration.Use().Origin
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, withCode(exitUsage, fmt.Errorf("invalid --base-url: %q", baseURL))
	}
	return &caseAPIClient{
		baseURL:         u,
		token:           strings.TrimSpace(token),
		httpClient:      &http.Client{Timeout: 60 * time.Second},
		requestIDHeader: configuration.Use().RequestIDHeader,
	}, nil
}

func (c *caseAPIClient) doJSON(ctx context.Context, method, path string, query url.Values, reqBody any, out any) error {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var body io.Reader
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return withCode(exitValidation, fmt.Errorf("json marshal request: %w", err))
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return withCode(exitNetwork, fmt.Errorf("http request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.requestIDHeader != "" {
		req.Header.Set(c.requestIDHeader, uuid.NewString())
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http do: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return withCode(exitNetwork, fmt.Errorf("http read: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var envelope httpapi.ErrorEnvelope
		if err := json.Unmarshal(respBody, &envelope); err == nil && strings.TrimSpace(envelope.Code) != "" {
			return &importer.APIError{Status: resp.StatusCode, Code: envelope.Code, Message: envelope.Message}
		}
		return &importer.APIError{Status: resp.StatusCode, Code: httpapi.CodeInternal, Message: strings.TrimSpace(string(respBody))}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return withCode(exitNetwork, fmt.Errorf("json unmarshal response: %w", err))
	}
	return nil
}

func (c *caseAPIClient) createImport(ctx context.Context, filename string, totalRows int) (*importResult, error) {
	req := struct {
		Filename  string `json:"filename"`
		TotalRows int    `json:"totalRows"`
	}{Filename: filename, TotalRows: totalRows}

	var out importResult
	if err := c.doJSON(ctx, http.MethodPost, "/api/imports", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SendChunk implements importer.ChunkSender.
func (c *caseAPIClient) SendChunk(ctx context.Context, importID uuid.UUID, chunkIndex int, rows []caserow.Row) (*importer.ChunkResult, error) {
	req := struct {
		ChunkIndex int           `json:"chunkIndex"`
		Rows       []caserow.Row `json:"rows"`
	}{ChunkIndex: chunkIndex, Rows: rows}

	var out chunkResult
	if err := c.doJSON(ctx, http.MethodPost, "/api/imports/"+importID.String()+"/chunks", nil, req, &out); err != nil {
		return nil, err
	}
	return &importer.ChunkResult{
		ChunkIndex:   out.ChunkIndex,
		SuccessCount: out.SuccessCount,
		FailureCount: out.FailureCount,
		Replayed:     out.Replayed,
		ImportStatus: out.Import.Status,
	}, nil
}

func (c *caseAPIClient) getStatus(ctx context.Context, importID uuid.UUID) (*importResult, error) {
	var out importResult
	if err := c.doJSON(ctx, http.MethodGet, "/api/imports/"+importID.String(), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *caseAPIClient) getErrors(ctx context.Context, importID uuid.UUID, limit, offset int) (*errorsPage, error) {
	q := url.Values{}
	q.Set("limit", fmt.Sprintf("%d", limit))
	q.Set("offset", fmt.Sprintf("%d", offset))

	var out errorsPage
	if err := c.doJSON(ctx, http.MethodGet, "/api/imports/"+importID.String()+"/errors", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// downloadErrorsCSV streams the server-rendered error report to w.
func (c *caseAPIClient) downloadErrorsCSV(ctx context.Context, importID uuid.UUID, w io.Writer) error {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/api/imports/" + importID.String() + "/errors.csv"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return withCode(exitNetwork, err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return withCode(exitNetwork, fmt.Errorf("http do: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return withCode(exitNetwork, fmt.Errorf("http status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body))))
	}
	_, err = io.Copy(w, resp.Body)
	return err
}
