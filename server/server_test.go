package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/ragchat/ai/mock"
	"github.com/poiesic/ragchat/chat"
	"github.com/poiesic/ragchat/core"
	"github.com/poiesic/ragchat/ingestion"
	"github.com/poiesic/ragchat/loader"
	"github.com/poiesic/ragchat/ratelimit"
	"github.com/poiesic/ragchat/storage/badger"
)

type testEnv struct {
	server    *Server
	generator *mock.MockGenerator
	uploadDir string
}

func newTestEnv(t *testing.T, limiter *ratelimit.Limiter) *testEnv {
	t.Helper()
	repos, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { repos.Close() })

	embedder := mock.NewMockEmbedder()
	generator := mock.NewMockGenerator("Hello", ", ", "world")
	provider := mock.NewMockProviderWithServices(embedder, generator)

	pipeline, err := ingestion.NewPipeline(loader.Default(), embedder, repos.Index, repos.Assets)
	require.NoError(t, err)
	t.Cleanup(pipeline.Release)

	chatService, err := chat.NewService(repos.Sessions, repos.Assets, repos.Index, provider)
	require.NoError(t, err)

	uploadDir := t.TempDir()
	srv, err := New(pipeline, chatService, limiter, WithUploadDir(uploadDir))
	require.NoError(t, err)

	return &testEnv{server: srv, generator: generator, uploadDir: uploadDir}
}

func (e *testEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	e.server.ServeHTTP(w, req)
	return w
}

func (e *testEnv) postJSON(t *testing.T, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return e.do(t, req)
}

func (e *testEnv) upload(t *testing.T, fileName, content string) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", fileName)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/documents/process", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return e.do(t, req)
}

func (e *testEnv) ingest(t *testing.T, content string) string {
	t.Helper()
	w := e.upload(t, "notes.txt", content)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp["assetId"])
	return resp["assetId"]
}

func (e *testEnv) startChat(t *testing.T, assetID string) string {
	t.Helper()
	w := e.postJSON(t, "/chat/start", `{"assetId":"`+assetID+`"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp["sessionId"])
	return resp["sessionId"]
}

// parseEvents decodes every data frame of an event stream body.
func parseEvents(t *testing.T, body string) []map[string]any {
	t.Helper()
	var events []map[string]any
	for _, frame := range strings.Split(body, "\n\n") {
		frame = strings.TrimSpace(frame)
		if frame == "" {
			continue
		}
		require.True(t, strings.HasPrefix(frame, "data: "), "frame %q", frame)
		var ev map[string]any
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(frame, "data: ")), &ev))
		events = append(events, ev)
	}
	return events
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Error
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, nil)
	w := env.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestProcessDocument(t *testing.T) {
	env := newTestEnv(t, nil)

	assetID := env.ingest(t, strings.Repeat("lorem ipsum ", 300))
	assert.NotEmpty(t, assetID)

	entries, err := os.ReadDir(env.uploadDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "staged upload should be removed")
}

func TestProcessDocument_Unsupported(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.upload(t, "slides.pptx", "binary")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decodeError(t, w), "unsupported file type")
}

func TestProcessDocument_MissingFile(t *testing.T) {
	env := newTestEnv(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/documents/process", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	w := env.do(t, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProcessDocument_UnreadableIsServerError(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.upload(t, "broken.docx", "not a zip archive")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Internal server error", decodeError(t, w))
}

func TestStartChat(t *testing.T) {
	env := newTestEnv(t, nil)
	assetID := env.ingest(t, "some document text")

	sessionID := env.startChat(t, assetID)
	assert.NotEmpty(t, sessionID)
}

func TestStartChat_InvalidAsset(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.postJSON(t, "/chat/start", `{"assetId":"never-ingested"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decodeError(t, w), "invalid asset")

	w = env.postJSON(t, "/chat/start", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSendMessage_Streams(t *testing.T) {
	env := newTestEnv(t, nil)
	sessionID := env.startChat(t, env.ingest(t, "The sky is blue."))

	w := env.postJSON(t, "/chat/message", `{"sessionId":"`+sessionID+`","query":"What color is the sky?"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", w.Header().Get("Cache-Control"))

	events := parseEvents(t, w.Body.String())
	require.Len(t, events, 4)
	assert.Equal(t, "Hello", events[0]["chunk"])
	assert.Equal(t, ", ", events[1]["chunk"])
	assert.Equal(t, "world", events[2]["chunk"])
	assert.Equal(t, true, events[3]["done"])

	prompts := env.generator.Prompts()
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "The sky is blue.")

	w = env.do(t, httptest.NewRequest(http.MethodGet, "/chat/history/"+sessionID, nil))
	require.Equal(t, http.StatusOK, w.Code)
	var hist struct {
		History []map[string]any `json:"history"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &hist))
	require.Len(t, hist.History, 1)
	assert.Equal(t, "What color is the sky?", hist.History[0]["userMessage"])
	assert.Equal(t, "Hello, world", hist.History[0]["agentResponse"])
	assert.NotEmpty(t, hist.History[0]["createdAt"])
}

func TestSendMessage_UnknownSession(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.postJSON(t, "/chat/message", `{"sessionId":"nope","query":"hello"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.NotEqual(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Zero(t, env.generator.CallCount())

	w = env.do(t, httptest.NewRequest(http.MethodGet, "/chat/history/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSendMessage_EmptySessionIsUnknown(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, body := range []string{`{"sessionId":"","query":"hello"}`, `{"query":"hello"}`} {
		w := env.postJSON(t, "/chat/message", body)
		assert.Equal(t, http.StatusNotFound, w.Code, body)
		assert.NotEqual(t, "text/event-stream", w.Header().Get("Content-Type"))
	}
	assert.Zero(t, env.generator.CallCount())
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: %q", core.ErrUnsupportedFileType, "png"), http.StatusBadRequest},
		{core.ErrInvalidAsset, http.StatusBadRequest},
		{core.ErrEmptyQuery, http.StatusBadRequest},
		{fmt.Errorf("%w: %w", core.ErrSessionNotFound, core.ErrEmptySessionID), http.StatusNotFound},
		{core.ErrEmptySessionID, http.StatusNotFound},
		{core.ErrRateLimited, http.StatusTooManyRequests},
		{core.ErrUnreadableFile, http.StatusInternalServerError},
		{core.ErrEmbeddingService, http.StatusInternalServerError},
		{assert.AnError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestWriteError_Bodies(t *testing.T) {
	s := &Server{logger: slog.Default()}
	req := httptest.NewRequest(http.MethodPost, "/chat/start", nil)

	w := httptest.NewRecorder()
	s.writeError(w, req, core.ErrRateLimited)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.JSONEq(t, `{"error":"Too many requests, please try again later."}`, w.Body.String())

	w = httptest.NewRecorder()
	s.writeError(w, req, fmt.Errorf("%w: dial tcp: refused", core.ErrIndexUnavailable))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"Internal server error"}`, w.Body.String())
}

func TestSendMessage_EmptyQuery(t *testing.T) {
	env := newTestEnv(t, nil)
	sessionID := env.startChat(t, env.ingest(t, "text"))

	w := env.postJSON(t, "/chat/message", `{"sessionId":"`+sessionID+`","query":"   "}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, env.generator.CallCount())
}

func TestSendMessage_GenerationFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	sessionID := env.startChat(t, env.ingest(t, "text"))
	env.generator.Fragments = []string{"a", "b", "c", "d"}
	env.generator.FailAt = 3

	w := env.postJSON(t, "/chat/message", `{"sessionId":"`+sessionID+`","query":"go"}`)
	require.Equal(t, http.StatusOK, w.Code)

	events := parseEvents(t, w.Body.String())
	require.Len(t, events, 3)
	assert.Equal(t, "a", events[0]["chunk"])
	assert.Equal(t, "b", events[1]["chunk"])
	assert.Equal(t, "Generation failed", events[2]["error"])
	assert.NotContains(t, events[2], "done")

	w = env.do(t, httptest.NewRequest(http.MethodGet, "/chat/history/"+sessionID, nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"history":[]}`, w.Body.String())
}

func TestRateLimit(t *testing.T) {
	limiter, err := ratelimit.New(ratelimit.WithLimit(2))
	require.NoError(t, err)
	env := newTestEnv(t, limiter)

	for range 2 {
		w := env.postJSON(t, "/chat/start", `{"assetId":"x"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	}
	w := env.postJSON(t, "/chat/start", `{"assetId":"x"}`)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.JSONEq(t, `{"error":"Too many requests, please try again later."}`, w.Body.String())

	// Health checks are never limited
	w = env.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	// Another client has its own budget
	req := httptest.NewRequest(http.MethodGet, "/chat/history/nope", nil)
	req.RemoteAddr = "203.0.113.9:4000"
	w = env.do(t, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestClientID(t *testing.T) {
	s := &Server{}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.7:5555"
	req.Header.Set("X-Forwarded-For", "203.0.113.1, 10.0.0.1")
	assert.Equal(t, "198.51.100.7", s.clientID(req))

	s.trustProxy = true
	assert.Equal(t, "203.0.113.1", s.clientID(req))
}

func TestRequestID(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w = env.do(t, req)
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, httptest.NewRequest(http.MethodOptions, "/chat/start", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, httptest.NewRequest(http.MethodGet, "/chat/start", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(nil, nil, nil)
	assert.Error(t, err)
}
