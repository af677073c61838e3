package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itish2003/prompt-relay/chatgpt"
	"github.com/itish2003/prompt-relay/models"
	"github.com/itish2003/prompt-relay/services"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubRelayService struct {
	mu    sync.Mutex
	calls []models.QueryRequest
	resp  *models.QueryResponse
	err   error
}

func (s *stubRelayService) Relay(_ context.Context, req models.QueryRequest) (*models.QueryResponse, error) {
	s.mu.Lock()
	s.calls = append(s.calls, req)
	s.mu.Unlock()
	return s.resp, s.err
}

func doRequest(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestQuery(t *testing.T) {
	svc := &stubRelayService{resp: &models.QueryResponse{Message: "Hi there"}}
	router := NewRouter(NewRelayController(svc))

	rec := doRequest(t, router, http.MethodPost, "/query", `{"prompt":"Hello","accessToken":"tok-abc"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Hi there"}`, rec.Body.String())
	assert.Equal(t, []models.QueryRequest{{Prompt: "Hello", AccessToken: "tok-abc"}}, svc.calls)
	_, err := uuid.Parse(rec.Header().Get(requestIDHeader))
	assert.NoError(t, err)
}

func TestQueryBadRequest(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{name: "missing prompt", body: `{"accessToken":"tok"}`, wantErr: "missing prompt"},
		{name: "empty prompt", body: `{"prompt":"","accessToken":"tok"}`, wantErr: "missing prompt"},
		{name: "missing token", body: `{"prompt":"Hello"}`, wantErr: "missing accessToken"},
		{name: "missing both", body: `{}`, wantErr: "missing prompt, accessToken"},
		{name: "malformed json", body: `{"prompt":`, wantErr: "Invalid request body"},
		{name: "empty body", body: ``, wantErr: "Invalid request body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubRelayService{}
			router := NewRouter(NewRelayController(svc))

			rec := doRequest(t, router, http.MethodPost, "/query", tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, decode[models.ErrorResponse](t, rec).Error, tt.wantErr)
			assert.Empty(t, svc.calls, "service must not be called")
		})
	}
}

func TestQueryErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "invalid request", err: fmt.Errorf("%w: prompt is required", services.ErrInvalidRequest), wantStatus: http.StatusBadRequest},
		{name: "invalid credential", err: fmt.Errorf("%w: boom", services.ErrInvalidCredential), wantStatus: http.StatusUnauthorized},
		{name: "upstream unavailable", err: fmt.Errorf("%w: boom", services.ErrUpstreamUnavailable), wantStatus: http.StatusBadGateway},
		{name: "unclassified", err: fmt.Errorf("boom"), wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := NewRouter(NewRelayController(&stubRelayService{err: tt.err}))

			rec := doRequest(t, router, http.MethodPost, "/query", `{"prompt":"Hello","accessToken":"tok"}`)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.NotEmpty(t, decode[models.ErrorResponse](t, rec).Error)
		})
	}
}

func TestQueryClientDisconnected(t *testing.T) {
	cause := fmt.Errorf("%w: request canceled: %w", services.ErrUpstreamUnavailable, context.Canceled)
	router := NewRouter(NewRelayController(&stubRelayService{err: cause}))

	rec := doRequest(t, router, http.MethodPost, "/query", `{"prompt":"Hello","accessToken":"tok"}`)

	assert.Equal(t, statusClientClosedRequest, rec.Code, "a disconnect must not be recorded as 200")
	assert.Empty(t, rec.Body.String())
}

func TestHealth(t *testing.T) {
	router := NewRouter(NewRelayController(&stubRelayService{}))

	rec := doRequest(t, router, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.HealthResponse{Status: "healthy", Service: serviceName, Version: serviceVersion}, decode[models.HealthResponse](t, rec))
}

func TestCORS(t *testing.T) {
	router := NewRouter(NewRelayController(&stubRelayService{resp: &models.QueryResponse{Message: "ok"}}))

	preflight := httptest.NewRequest(http.MethodOptions, "/query", nil)
	preflight.Header.Set("Origin", "https://example.com")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, preflight)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = doRequest(t, router, http.MethodPost, "/query", `{"prompt":"Hello","accessToken":"tok"}`)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

// upstreamEchoingToken answers every conversation with the bearer token it was sent.
func upstreamEchoingToken(t *testing.T, seenURL *sync.Map) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		seenURL.Store(r.URL.Path, true)
		switch token {
		case "expired":
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"detail":"token expired"}`)
			return
		case "crash":
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		frame, _ := json.Marshal(map[string]any{
			"message": map[string]any{
				"id":      uuid.NewString(),
				"content": map[string]any{"content_type": "text", "parts": []string{"reply for " + token}},
			},
			"conversation_id": uuid.NewString(),
		})
		fmt.Fprintf(w, "data: %s\n\ndata: [DONE]\n\n", frame)
	}))
}

func newEndToEndRouter(upstream *httptest.Server) *gin.Engine {
	factory := chatgpt.NewFactory(upstream.Client(), upstream.URL+"/api/conversation", "text-davinci-002-render-sha")
	return NewRouter(NewRelayController(services.NewRelayService(services.ChatGPTClients(factory))))
}

func TestQueryEndToEnd(t *testing.T) {
	var seen sync.Map
	upstream := upstreamEchoingToken(t, &seen)
	defer upstream.Close()
	router := newEndToEndRouter(upstream)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantBody   string
	}{
		{name: "success", body: `{"prompt":"Hello","accessToken":"tok-abc"}`, wantStatus: http.StatusOK, wantBody: `{"message":"reply for tok-abc"}`},
		{name: "token rejected", body: `{"prompt":"Hello","accessToken":"expired"}`, wantStatus: http.StatusUnauthorized},
		{name: "upstream failure", body: `{"prompt":"Hello","accessToken":"crash"}`, wantStatus: http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, router, http.MethodPost, "/query", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantBody != "" {
				assert.JSONEq(t, tt.wantBody, rec.Body.String())
			}
		})
	}

	paths := 0
	seen.Range(func(key, _ any) bool {
		paths++
		assert.Equal(t, "/api/conversation", key, "the upstream URL never comes from the request")
		return true
	})
	assert.Equal(t, 1, paths)
}

func TestQueryEndToEndConcurrent(t *testing.T) {
	var seen sync.Map
	upstream := upstreamEchoingToken(t, &seen)
	defer upstream.Close()
	router := newEndToEndRouter(upstream)

	const n = 20
	var wg sync.WaitGroup
	recs := make([]*httptest.ResponseRecorder, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodPost, "/query",
				strings.NewReader(fmt.Sprintf(`{"prompt":"Hello","accessToken":"tok-%d"}`, i)))
			req.Header.Set("Content-Type", "application/json")
			recs[i] = httptest.NewRecorder()
			router.ServeHTTP(recs[i], req)
		}(i)
	}
	wg.Wait()

	for i, rec := range recs {
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, fmt.Sprintf("reply for tok-%d", i), decode[models.QueryResponse](t, rec).Message)
	}
}
