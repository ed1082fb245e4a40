package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"keyprint/internal/gallery"
	"keyprint/internal/identify"
	"keyprint/internal/keystroke"
	"keyprint/internal/storage"
)

const testToken = "test-token-12345"

func setupAppHandler(t *testing.T, token string) (http.Handler, *gallery.Manager) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	mgr := gallery.NewManager(store, identify.New(identify.DefaultThresholds()))

	handler := NewAppHandler(AppDeps{
		Gallery: mgr,
		Token:   token,
	})
	return handler, mgr
}

func authReq(method, url, body, token string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, url, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

// typedEvents builds a key-event sequence from text repeated until it holds
// at least n events, with a constant inter-key interval.
func typedEvents(text string, interval float64, n int) []keystroke.KeyEvent {
	var events []keystroke.KeyEvent
	ts := 0.0
	for len(events) < n {
		for _, r := range text {
			e := keystroke.KeyEvent{Key: string(r), Timestamp: ts}
			if len(events) > 0 {
				e.TimeSinceLast = interval
			}
			events = append(events, e)
			ts += interval
		}
	}
	return events
}

const pangram = "The quick brown fox jumps over the lazy dog. "

func predictBody(t *testing.T, events []keystroke.KeyEvent) string {
	t.Helper()
	b, err := json.Marshal(PredictRequest{Events: events})
	if err != nil {
		t.Fatalf("marshal predict request: %v", err)
	}
	return string(b)
}

func enrollBody(t *testing.T, name string, events []keystroke.KeyEvent) string {
	t.Helper()
	b, err := json.Marshal(EnrollRequest{Name: name, Events: events})
	if err != nil {
		t.Fatalf("marshal enroll request: %v", err)
	}
	return string(b)
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) (msg, errType string) {
	t.Helper()
	var envelope struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&envelope); err != nil {
		t.Fatalf("decoding error envelope: %v", err)
	}
	return envelope.Error.Message, envelope.Error.Type
}

func TestHealth_NoAuthRequired(t *testing.T) {
	h, _ := setupAppHandler(t, testToken)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
}

func TestAuth_MissingToken(t *testing.T) {
	h, _ := setupAppHandler(t, testToken)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/profiles", "", ""))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
	_, errType := decodeError(t, rr)
	if errType != "authentication_error" {
		t.Errorf("error type = %q, want %q", errType, "authentication_error")
	}
}

func TestAuth_WrongToken(t *testing.T) {
	h, _ := setupAppHandler(t, testToken)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/profiles", "", "wrong-token"))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestPredict_InsufficientSample(t *testing.T) {
	h, _ := setupAppHandler(t, testToken)

	body := predictBody(t, typedEvents(pangram, 100, 80)[:10])
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/predict", body, testToken))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d; body = %s", rr.Code, http.StatusBadRequest, rr.Body.String())
	}
	_, errType := decodeError(t, rr)
	if errType != "insufficient_sample" {
		t.Errorf("error type = %q, want %q", errType, "insufficient_sample")
	}
}

func TestPredict_EmptyGallery(t *testing.T) {
	h, _ := setupAppHandler(t, testToken)

	body := predictBody(t, typedEvents(pangram, 100, 80))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/predict", body, testToken))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body = %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	var resp PredictResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Match != nil {
		t.Errorf("Match = %+v, want nil on empty gallery", resp.Match)
	}
	if resp.Band != identify.BandNone {
		t.Errorf("Band = %q, want %q", resp.Band, identify.BandNone)
	}
}

func TestPredict_Match(t *testing.T) {
	h, mgr := setupAppHandler(t, testToken)

	events := typedEvents(pangram, 100, 80)
	p, err := mgr.Enroll("alice", events)
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/predict", predictBody(t, events), testToken))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body = %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	var resp PredictResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Match == nil {
		t.Fatalf("Match = nil, want profile (band %q, confidence %v)", resp.Band, resp.Confidence)
	}
	if resp.Match.ProfileID != p.ID || resp.Match.Name != "alice" {
		t.Errorf("Match = %+v, want alice/%s", resp.Match, p.ID)
	}
	if resp.Band != identify.BandMatch {
		t.Errorf("Band = %q, want %q", resp.Band, identify.BandMatch)
	}

	// The attempt lands in comparison history.
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/comparisons", "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("comparisons status = %d, want %d", rr.Code, http.StatusOK)
	}
	var comparisons []storage.Comparison
	if err := json.NewDecoder(rr.Body).Decode(&comparisons); err != nil {
		t.Fatalf("decode comparisons: %v", err)
	}
	if len(comparisons) != 1 || comparisons[0].ProfileID != p.ID {
		t.Errorf("comparisons = %+v, want one attempt for %s", comparisons, p.ID)
	}
}

func TestEnroll_CreatesProfile(t *testing.T) {
	h, _ := setupAppHandler(t, testToken)

	body := enrollBody(t, "bob", typedEvents(pangram, 100, 80))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/enroll", body, testToken))

	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d; body = %s", rr.Code, http.StatusCreated, rr.Body.String())
	}

	var p gallery.UserProfile
	if err := json.NewDecoder(rr.Body).Decode(&p); err != nil {
		t.Fatalf("decode profile: %v", err)
	}
	if p.Name != "bob" || p.ID == "" {
		t.Errorf("profile = %+v, want named bob with an ID", p)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/profiles", "", testToken))
	var profiles []gallery.UserProfile
	if err := json.NewDecoder(rr.Body).Decode(&profiles); err != nil {
		t.Fatalf("decode profiles: %v", err)
	}
	if len(profiles) != 1 {
		t.Errorf("listed %d profiles, want 1", len(profiles))
	}
}

func TestEnroll_MissingName(t *testing.T) {
	h, _ := setupAppHandler(t, testToken)

	body := enrollBody(t, "", typedEvents(pangram, 100, 80))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/enroll", body, testToken))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestEnroll_InsufficientSample(t *testing.T) {
	h, _ := setupAppHandler(t, testToken)

	body := enrollBody(t, "carol", typedEvents(pangram, 100, 80)[:5])
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/enroll", body, testToken))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
	_, errType := decodeError(t, rr)
	if errType != "insufficient_sample" {
		t.Errorf("error type = %q, want %q", errType, "insufficient_sample")
	}
}

func TestGetProfile_NotFound(t *testing.T) {
	h, _ := setupAppHandler(t, testToken)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/profiles/nope", "", testToken))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestDeleteProfile(t *testing.T) {
	h, mgr := setupAppHandler(t, testToken)

	p, err := mgr.Enroll("dave", typedEvents(pangram, 100, 80))
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodDelete, "/profiles/"+p.ID, "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body = %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/profiles/"+p.ID, "", testToken))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status after delete = %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestListSamples(t *testing.T) {
	h, mgr := setupAppHandler(t, testToken)

	p, err := mgr.Enroll("erin", typedEvents(pangram, 100, 80))
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/profiles/"+p.ID+"/samples", "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body = %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	var samples []storage.Sample
	if err := json.NewDecoder(rr.Body).Decode(&samples); err != nil {
		t.Fatalf("decode samples: %v", err)
	}
	if len(samples) != 1 {
		t.Errorf("listed %d samples, want 1", len(samples))
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/profiles/missing/samples", "", testToken))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status for unknown profile = %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestPredict_InvalidBody(t *testing.T) {
	h, _ := setupAppHandler(t, testToken)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/predict", "{not json", testToken))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}
