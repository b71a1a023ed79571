package httpadapter

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/facturo/ingesta/internal/core/domain"
	"github.com/facturo/ingesta/internal/core/ports"
)

// Router serves the operator surface: health, tenant map reload,
// dead-letter inspection and provider reassignment.
type Router struct {
	tenants    ports.TenantResolver
	releaser   func() int
	deadLetter ports.DeadLetterRepository
	reassigner ports.ProviderReassigner
	documents  ports.DocumentRepository
	storage    ports.ObjectStorage
	presignTTL time.Duration
}

func NewRouter(
	tenants ports.TenantResolver,
	releaser func() int,
	deadLetter ports.DeadLetterRepository,
	reassigner ports.ProviderReassigner,
	documents ports.DocumentRepository,
	storage ports.ObjectStorage,
	presignTTL time.Duration,
) *Router {
	return &Router{
		tenants:    tenants,
		releaser:   releaser,
		deadLetter: deadLetter,
		reassigner: reassigner,
		documents:  documents,
		storage:    storage,
		presignTTL: presignTTL,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/admin/tenants/reload", rt.reloadTenants)
	mux.HandleFunc("/admin/deadletters", rt.listDeadLetters)
	mux.HandleFunc("/admin/documents/reassign", rt.reassignProvider)
	mux.HandleFunc("/admin/documents/", rt.getDocumentByID)
	return requestIDMiddleware(accessLogMiddleware(mux))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// reloadTenants swaps in the tenant map from disk and releases files
// that were parked as unroutable, so they get re-observed against the
// new map.
func (rt *Router) reloadTenants(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	if err := rt.tenants.Reload(); err != nil {
		writeError(w, r, err)
		return
	}
	released := 0
	if rt.releaser != nil {
		released = rt.releaser()
	}

	slog.Info("tenant_map_reloaded",
		"request_id", requestIDFromContext(r.Context()),
		"released_files", released,
	)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "reloaded",
		"released_files": released,
	})
}

func (rt *Router) listDeadLetters(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	letters, err := rt.deadLetter.List(r.Context(), 100)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if letters == nil {
		letters = []domain.DeadLetter{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"dead_letters": letters})
}

func (rt *Router) reassignProvider(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		TenantID    string   `json:"tenant_id"`
		ProviderID  string   `json:"provider_id"`
		DocumentIDs []string `json:"document_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.TenantID) == "" || strings.TrimSpace(req.ProviderID) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "tenant_id and provider_id are required"})
		return
	}
	if len(req.DocumentIDs) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "document_ids is required"})
		return
	}

	updated, err := rt.reassigner.Reassign(r.Context(), req.TenantID, req.ProviderID, req.DocumentIDs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated": updated})
}

func (rt *Router) getDocumentByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/admin/documents/")
	if id == "" || strings.Contains(id, "/") {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "document id is required"})
		return
	}

	doc, err := rt.documents.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := map[string]any{"document": doc}
	if doc.StorageKey != "" && rt.storage != nil {
		url, err := rt.storage.Presign(r.Context(), doc.StorageKey, rt.presignTTL)
		if err != nil {
			slog.Warn("presign_failed",
				"request_id", requestIDFromContext(r.Context()),
				"document_id", doc.ID,
				"error", err,
			)
		} else {
			resp["download_url"] = url
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= 500 {
		slog.Error("admin_request_failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
