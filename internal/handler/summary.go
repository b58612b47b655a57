package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/sakif/recap/internal/apperror"
	"github.com/sakif/recap/internal/auth"
	"github.com/sakif/recap/internal/model"
	"github.com/sakif/recap/internal/service"
)

// SummaryHandler exposes the summary workflow over HTTP.
//
// ROUTES (all behind the auth gate):
//
//	POST   /summary/generate → generate (cache-aware, charges one credit)
//	GET    /summary          → paged listing for the caller
//	GET    /summary/{id}     → single summary, owner-scoped
//	POST   /summary/save     → persist a client-supplied summary, free
//	DELETE /summary/{id}     → delete, owner-scoped
type SummaryHandler struct {
	svc    *service.SummaryService
	logger *slog.Logger
}

// NewSummaryHandler creates a SummaryHandler.
func NewSummaryHandler(svc *service.SummaryService, logger *slog.Logger) *SummaryHandler {
	return &SummaryHandler{svc: svc, logger: logger}
}

// callerID extracts the authenticated user's ID. Behind RequireAuth this
// always succeeds; the fallback 401 is there so a future routing mistake
// fails closed instead of serving cross-tenant data.
func callerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("valid authentication required"))
		return "", false
	}
	return identity.UserID, true
}

// generateResponse is the JSON shape for POST /summary/generate.
type generateResponse struct {
	Summary          *model.Summary `json:"summary"`
	Cached           bool           `json:"cached"`
	RemainingCredits int            `json:"remainingCredits"`
}

// HandleGenerate produces (or serves from the global cache) a summary.
//
// HTTP: POST /summary/generate
// BODY: {"videoRef": "...", "title": "...", "content": "<transcript>"}
func (h *SummaryHandler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	var req struct {
		VideoRef string `json:"videoRef"`
		Title    string `json:"title"`
		Content  string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.ValidationFailed("body", "invalid JSON body"))
		return
	}

	result, err := h.svc.Generate(r.Context(), userID, req.VideoRef, req.Title, req.Content)
	if err != nil {
		writeError(w, err)
		return
	}

	status := http.StatusCreated
	if result.Cached {
		status = http.StatusOK
	}
	writeData(w, status, generateResponse{
		Summary:          result.Summary,
		Cached:           result.Cached,
		RemainingCredits: result.RemainingCredits,
	})
}

// listResponse is the JSON shape for GET /summary.
type listResponse struct {
	Summaries []model.Summary `json:"summaries"`
	Total     int             `json:"total"`
	Page      int             `json:"page"`
	PageSize  int             `json:"pageSize"`
}

// HandleList returns one page of the caller's summaries, newest first.
//
// HTTP: GET /summary?page=1&pageSize=10
func (h *SummaryHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	// Unparseable or absent query values fall back to the defaults — a
	// garbage ?page= is not worth a 400.
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("pageSize"))
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = service.DefaultPageSize
	}
	if pageSize > service.MaxPageSize {
		pageSize = service.MaxPageSize
	}

	summaries, total, err := h.svc.List(r.Context(), userID, page, pageSize)
	if err != nil {
		writeError(w, err)
		return
	}

	writeData(w, http.StatusOK, listResponse{
		Summaries: summaries,
		Total:     total,
		Page:      page,
		PageSize:  pageSize,
	})
}

// HandleGet fetches a single summary.
//
// HTTP: GET /summary/{id}
//
// URL PARAMETERS:
// chi.URLParam(r, "id") extracts the {id} segment registered in the route
// pattern.
func (h *SummaryHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	summary, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeData(w, http.StatusOK, summary)
}

// HandleSave persists a summary the client already has — for example one
// generated in a previous session before the user signed up. Free: no
// model call, no credit charge.
//
// HTTP: POST /summary/save
// BODY: {"videoRef": "...", "title": "...", "keyPoints": [...], "fullSummary": "...", "content": "..."}
func (h *SummaryHandler) HandleSave(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	var req struct {
		VideoRef    string   `json:"videoRef"`
		Title       string   `json:"title"`
		KeyPoints   []string `json:"keyPoints"`
		FullSummary string   `json:"fullSummary"`
		Content     string   `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.ValidationFailed("body", "invalid JSON body"))
		return
	}

	summary, err := h.svc.Save(r.Context(), userID, req.VideoRef, req.Title, req.KeyPoints, req.FullSummary, req.Content)
	if err != nil {
		writeError(w, err)
		return
	}

	writeData(w, http.StatusCreated, summary)
}

// HandleDelete removes one of the caller's summaries.
//
// HTTP: DELETE /summary/{id}
func (h *SummaryHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.svc.Delete(r.Context(), id, userID); err != nil {
		writeError(w, err)
		return
	}

	writeData(w, http.StatusOK, map[string]string{"deleted": id})
}
