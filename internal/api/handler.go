// Package api exposes the identification service over HTTP: the predict and
// enroll endpoints, profile management, comparison history, the WebSocket
// capture stream, and the MCP tool surface.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"keyprint/internal/gallery"
	"keyprint/internal/identify"
	"keyprint/internal/keystroke"
	"keyprint/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// PredictRequest carries a raw key-event sample to score.
type PredictRequest struct {
	Events []keystroke.KeyEvent `json:"events"`
}

// MatchResult names the identified typist. Present only when the decision
// band is at least "possible".
type MatchResult struct {
	ProfileID string `json:"profile_id"`
	Name      string `json:"name"`
}

// PredictResponse is the scored outcome of one sample.
type PredictResponse struct {
	Match      *MatchResult `json:"match"`
	Confidence float64      `json:"confidence"`
	Band       string       `json:"band"`
	EventCount int          `json:"event_count"`
}

// EnrollRequest creates or refreshes a profile from a sample.
type EnrollRequest struct {
	Name   string               `json:"name"`
	Events []keystroke.KeyEvent `json:"events"`
}

// AppDeps holds dependencies for the HTTP handler.
type AppDeps struct {
	Gallery *gallery.Manager
	Token   string
	// BatchSize is the capture stream flush threshold; 0 uses the default.
	BatchSize int
}

// NewAppHandler returns the HTTP handler for the identification API. The
// health endpoint is open; everything else requires the bearer token.
func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/predict", handlePredict(deps))
		r.Post("/enroll", handleEnroll(deps))
		r.Get("/profiles", handleListProfiles(deps))
		r.Get("/profiles/{id}", handleGetProfile(deps))
		r.Delete("/profiles/{id}", handleDeleteProfile(deps))
		r.Get("/profiles/{id}/samples", handleListSamples(deps))
		r.Get("/comparisons", handleListComparisons(deps))
		r.Handle("/capture/stream", captureStream(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handlePredict(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req PredictRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		resp, err := predict(r.Context(), deps, req.Events)
		if err != nil {
			if errors.Is(err, identify.ErrInsufficientSample) {
				httpError(w, http.StatusBadRequest, "insufficient_sample",
					"sample too small: need at least %d events, got %d", deps.Gallery.MinEvents(), len(req.Events))
				return
			}
			httpError(w, http.StatusInternalServerError, "api_error", "prediction failed: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

// predict runs one identification attempt and shapes the wire response. An
// empty gallery is a valid no-match outcome, not an error.
func predict(ctx context.Context, deps AppDeps, events []keystroke.KeyEvent) (PredictResponse, error) {
	decision, err := deps.Gallery.Identify(ctx, events)
	if errors.Is(err, identify.ErrEmptyGallery) {
		return PredictResponse{Band: identify.BandNone, EventCount: len(events)}, nil
	}
	if err != nil {
		return PredictResponse{}, err
	}

	resp := PredictResponse{
		Confidence: decision.Confidence,
		Band:       decision.Band,
		EventCount: decision.EventCount,
	}
	if decision.Matched() {
		resp.Match = &MatchResult{ProfileID: decision.ProfileID, Name: decision.ProfileName}
	}
	return resp, nil
}

func handleEnroll(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req EnrollRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Name == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "name is required")
			return
		}

		p, err := deps.Gallery.Enroll(req.Name, req.Events)
		if errors.Is(err, identify.ErrInsufficientSample) {
			httpError(w, http.StatusBadRequest, "insufficient_sample",
				"sample too small: need at least %d events, got %d", deps.Gallery.MinEvents(), len(req.Events))
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "enrollment failed: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(p)
	}
}

func handleListProfiles(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		profiles, err := deps.Gallery.List()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list profiles: %v", err)
			return
		}
		if profiles == nil {
			profiles = []gallery.UserProfile{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(profiles)
	}
}

func handleGetProfile(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		p, err := deps.Gallery.Get(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "profile not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get profile: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(p)
	}
}

func handleDeleteProfile(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		err := deps.Gallery.Delete(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "profile not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete profile: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "deleted"})
	}
}

func handleListSamples(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		limit := parseIntParam(r, "limit", 5, 50)

		if _, err := deps.Gallery.Get(id); errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "profile not found")
			return
		} else if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get profile: %v", err)
			return
		}

		samples, err := deps.Gallery.Samples(id, limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list samples: %v", err)
			return
		}
		if samples == nil {
			samples = []storage.Sample{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(samples)
	}
}

func handleListComparisons(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)
		offset := parseIntParam(r, "offset", 0, 0)

		comparisons, err := deps.Gallery.History(limit, offset)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list comparisons: %v", err)
			return
		}
		if comparisons == nil {
			comparisons = []storage.Comparison{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(comparisons)
	}
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
