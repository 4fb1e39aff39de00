package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"rewear/internal/comps"
	"rewear/internal/market"
	"rewear/internal/market/auth"
	"rewear/internal/pricing"
	"rewear/internal/queue"
)

const maxAnalyzeBodyBytes = 32 << 20 // 32 MiB across all uploaded photos

func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("failed to encode json response")
	}
}

func errorResponse(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}

// writeError maps core errors onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	var apiErr *market.APIError
	switch {
	case errors.Is(err, comps.ErrMalformedInput), errors.Is(err, pricing.ErrInvalidFilter):
		errorResponse(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrInvalidGrant):
		errorResponse(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrReauthorizationRequired):
		errorResponse(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, queue.ErrNotFound):
		errorResponse(w, http.StatusNotFound, err.Error())
	case errors.Is(err, queue.ErrInvalidStateTransition):
		errorResponse(w, http.StatusConflict, err.Error())
	case errors.As(err, &apiErr):
		errorResponse(w, http.StatusBadGateway, err.Error())
	default:
		errorResponse(w, http.StatusInternalServerError, err.Error())
	}
}

// handleAnalyze accepts multipart form photos under the "images" field and
// forwards them to the vision analyzer.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if s.analyzer == nil {
		errorResponse(w, http.StatusServiceUnavailable, "vision analyzer not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxAnalyzeBodyBytes)
	if err := r.ParseMultipartForm(maxAnalyzeBodyBytes); err != nil {
		errorResponse(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}

	files := r.MultipartForm.File["images"]
	if len(files) == 0 {
		errorResponse(w, http.StatusBadRequest, "no images provided")
		return
	}

	images := make([][]byte, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			errorResponse(w, http.StatusBadRequest, "failed to read image: "+err.Error())
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			errorResponse(w, http.StatusBadRequest, "failed to read image: "+err.Error())
			return
		}
		images = append(images, data)
	}

	result, err := s.analyzer.AnalyzeImages(r.Context(), images)
	if err != nil {
		writeError(w, err)
		return
	}

	jsonResponse(w, http.StatusOK, map[string]any{
		"garment": result.Garment,
		"usage": map[string]any{
			"totalTokens": result.Usage.TotalTokens,
			"costUsd":     result.Usage.CostUSD,
		},
	})
}

func (s *Server) handleComps(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		errorResponse(w, http.StatusBadRequest, "missing query parameter: q")
		return
	}

	sold, err := s.intel.Comps(r.Context(), query)
	if err != nil {
		writeError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]any{"comps": sold, "count": len(sold)})
}

func (s *Server) handleRecommendation(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		errorResponse(w, http.StatusBadRequest, "missing query parameter: q")
		return
	}

	rec, err := s.intel.Recommend(r.Context(), query, r.URL.Query().Get("condition"))
	if err != nil {
		writeError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, rec)
}

func (s *Server) handleSellThrough(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		errorResponse(w, http.StatusBadRequest, "missing query parameter: q")
		return
	}

	report, err := s.intel.SellThrough(r.Context(), query)
	if err != nil {
		writeError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, report)
}

func (s *Server) handleAuthURL(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]string{"url": s.auth.IssueAuthorizationURL()})
}

func (s *Server) handleAuthCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		errorResponse(w, http.StatusBadRequest, "missing query parameter: code")
		return
	}

	sess, err := s.auth.CompleteExchange(r.Context(), code)
	if err != nil {
		writeError(w, err)
		return
	}

	// Token material never leaves the auth manager; return only metadata.
	jsonResponse(w, http.StatusOK, map[string]any{
		"connected": true,
		"expiresAt": sess.ExpiresAt,
		"scopes":    sess.Scopes,
	})
}

func (s *Server) handleAuthStatus(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]string{"state": string(s.auth.State())})
}

func (s *Server) handleQueueAdd(w http.ResponseWriter, r *http.Request) {
	var draft queue.ListingDraft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		errorResponse(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if draft.Title == "" {
		errorResponse(w, http.StatusBadRequest, "title is required")
		return
	}

	id, err := s.queue.Add(draft)
	if err != nil {
		writeError(w, err)
		return
	}
	jsonResponse(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleQueueList(w http.ResponseWriter, r *http.Request) {
	items := s.queue.Items()
	jsonResponse(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

func (s *Server) handleQueueDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.queue.Delete(chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) handleQueueReprocess(w http.ResponseWriter, r *http.Request) {
	if err := s.queue.Reprocess(chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]bool{"reprocessed": true})
}

func (s *Server) handleQueueProcess(w http.ResponseWriter, r *http.Request) {
	results, err := s.queue.ProcessAll(r.Context())
	if err != nil && errors.Is(err, auth.ErrReauthorizationRequired) {
		// Partial results plus the reconnect signal; remaining items are
		// still pending.
		jsonResponse(w, http.StatusConflict, map[string]any{
			"results":                results,
			"reauthorizationNeeded":  true,
			"processedBeforeStopped": len(results),
		})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]any{"results": results})
}
