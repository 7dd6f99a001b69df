package controllers

import (
	"net/http"
	"strings"

	"github.com/iota-uz/caseflow/pkg/httpapi"
)

func NotFound() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			_ = httpapi.WriteError(w, http.StatusNotFound, httpapi.CodeNotFound, "resource not found", map[string]string{
				"path": r.URL.Path,
			})
			return
		}
		http.Error(w, "Not Found", http.StatusNotFound)
	})
}

func MethodNotAllowed() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			_ = httpapi.WriteError(w, http.StatusMethodNotAllowed, httpapi.CodeValidationError, "method not allowed", map[string]string{
				"method": r.Method,
				"path":   r.URL.Path,
			})
			return
		}
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	})
}
