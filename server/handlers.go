package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/poiesic/ragchat/core"
	"github.com/poiesic/ragchat/ingestion"
)

// ─────────────────────────────────────────────
// DTOs (request/response)
// ─────────────────────────────────────────────

type errorResponse struct {
	Error string `json:"error"`
}

type processDocumentResponse struct {
	AssetID string `json:"assetId"`
}

type startChatRequest struct {
	AssetID string `json:"assetId"`
}

type startChatResponse struct {
	SessionID string `json:"sessionId"`
}

type sendMessageRequest struct {
	SessionID string `json:"sessionId"`
	Query     string `json:"query"`
}

type exchangeResponse struct {
	UserMessage   string    `json:"userMessage"`
	AgentResponse string    `json:"agentResponse"`
	CreatedAt     time.Time `json:"createdAt"`
}

type historyResponse struct {
	History []exchangeResponse `json:"history"`
}

// ─────────────────────────────────────────────
// Handlers
// ─────────────────────────────────────────────

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleProcessDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "file too large"})
			return
		}
		badRequest(w, "file is required")
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	ft := core.ParseFileType(name)
	if !s.ingester.Supports(ft) {
		s.writeError(w, r, fmt.Errorf("%w: %q", core.ErrUnsupportedFileType, ft))
		return
	}

	path, err := s.stageUpload(file, name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.loggerFrom(r.Context()).Warn("error removing upload", "path", path, "err", err)
		}
	}()

	assetID, err := s.ingester.Ingest(r.Context(), ingestion.Source{Path: path, FileName: name, Type: ft})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, processDocumentResponse{AssetID: string(assetID)})
}

// stageUpload copies the upload to <uploadDir>/<uuid>-<name>.
func (s *Server) stageUpload(src io.Reader, name string) (string, error) {
	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return "", fmt.Errorf("creating upload dir: %w", err)
	}
	path := filepath.Join(s.uploadDir, uuid.NewString()+"-"+name)
	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating upload file: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(path)
		return "", fmt.Errorf("writing upload file: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("closing upload file: %w", err)
	}
	return path, nil
}

func (s *Server) handleStartChat(w http.ResponseWriter, r *http.Request) {
	var req startChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}

	sessionID, err := s.chat.StartSession(r.Context(), core.AssetID(req.AssetID))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, startChatResponse{SessionID: string(sessionID)})
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}

	ctx := r.Context()
	turn, err := s.chat.Prepare(ctx, core.SessionID(req.SessionID), req.Query)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	stream := newEventStream(w)
	_, err = turn.Stream(ctx, func(_ context.Context, fragment string) error {
		return stream.send(chunkEvent{Chunk: fragment})
	})
	if err != nil {
		if ctx.Err() != nil {
			s.loggerFrom(ctx).Info("client disconnected mid-stream", "session", req.SessionID)
			return
		}
		s.loggerFrom(ctx).Error("error streaming response", "session", req.SessionID, "err", err)
		_ = stream.send(errorEvent{Error: streamErrorMessage(err)})
		return
	}
	_ = stream.send(doneEvent{Done: true})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.chat.History(r.Context(), core.SessionID(r.PathValue("sessionId")))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := historyResponse{History: make([]exchangeResponse, 0, len(history))}
	for _, ex := range history {
		resp.History = append(resp.History, exchangeResponse{
			UserMessage:   ex.UserMessage,
			AgentResponse: ex.AgentResponse,
			CreatedAt:     ex.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// ─────────────────────────────────────────────
// HTTP Helpers
// ─────────────────────────────────────────────

// rateLimitedMessage is the body text of every 429 response.
const rateLimitedMessage = "Too many requests, please try again later."

// statusFor maps the error taxonomy onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrUnsupportedFileType),
		errors.Is(err, core.ErrInvalidAsset),
		errors.Is(err, core.ErrEmptyQuery),
		errors.Is(err, core.ErrInvalidExchange):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrSessionNotFound),
		errors.Is(err, core.ErrEmptySessionID):
		return http.StatusNotFound
	case errors.Is(err, core.ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes the error as JSON. Server-side failures are logged and
// hidden behind a generic message.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.loggerFrom(r.Context()).Error("request failed", "path", r.URL.Path, "err", err)
		writeJSON(w, status, errorResponse{Error: "Internal server error"})
		return
	}
	s.loggerFrom(r.Context()).Debug("request rejected", "path", r.URL.Path, "status", status, "err", err)
	msg := err.Error()
	if status == http.StatusTooManyRequests {
		msg = rateLimitedMessage
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

// streamErrorMessage is the client-facing text of a terminal error frame.
func streamErrorMessage(err error) string {
	if errors.Is(err, core.ErrGeneration) {
		return "Generation failed"
	}
	return "Internal server error"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}
