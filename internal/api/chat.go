package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kalambet/resumechat/internal/chat"
	"github.com/kalambet/resumechat/internal/metrics"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Fixed error bodies. Upstream detail never reaches the caller.
const (
	msgMethodNotAllowed = "Method Not Allowed"
	msgBodyTooLarge     = "Request body too large."
	msgMissingAPIKey    = "GEMINI_API_KEY is not set in environment variables."
	msgProfileNotLoaded = "Resume data not loaded."
	msgUpstreamFailure  = "Failed to get response from Gemini API."
)

// Deps holds what the HTTP surface needs.
type Deps struct {
	Chat            *chat.Service
	Metrics         *metrics.Collector // nil disables /metrics
	HandlePreflight bool
	AllowMethods    string
	Logger          *slog.Logger
}

// NewHandler returns the chat proxy's router: /chat and /api/chat accept any
// method and dispatch on it themselves, /health reports liveness.
func NewHandler(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(requestID)

	r.Get("/health", handleHealth(deps))
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	chatHandler := corsHeaders(deps.AllowMethods)(handleChat(deps))
	r.Handle("/chat", chatHandler)
	r.Handle("/api/chat", chatHandler)

	// chi rejects methods it has no route table for (PROPFIND, FOO) before
	// any route runs, so the chat paths are dispatched again from here.
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		switch req.URL.Path {
		case "/chat", "/api/chat":
			chatHandler.ServeHTTP(w, req)
		default:
			httpError(w, http.StatusMethodNotAllowed, msgMethodNotAllowed)
		}
	})

	return r
}

// requestID tags each request with a fresh id, echoed in X-Request-Id.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r.WithContext(chat.WithRequestID(r.Context(), id)))
	})
}

func corsHeaders(allowMethods string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", "*")
			h.Set("Access-Control-Allow-Methods", allowMethods)
			h.Set("Access-Control-Allow-Headers", "Content-Type")
			next.ServeHTTP(w, r)
		})
	}
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":         "ok",
			"profile_loaded": deps.Chat.ProfileLoaded(),
			"profile_state":  deps.Chat.ProfileState().String(),
		})
	}
}

type chatRequest struct {
	Message json.RawMessage `json:"message"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

func handleChat(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions && deps.HandlePreflight {
			deps.Metrics.ChatRequest(metrics.OutcomePreflight)
			w.WriteHeader(http.StatusOK)
			return
		}
		if r.Method != http.MethodPost {
			deps.Metrics.ChatRequest(metrics.OutcomeMethodNotAllowed)
			httpError(w, http.StatusMethodNotAllowed, msgMethodNotAllowed)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		// No validation: a missing or undecodable body becomes an empty message.
		// A body cut off at the size limit is rejected instead.
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				deps.Metrics.ChatRequest(metrics.OutcomeBodyTooLarge)
				httpError(w, http.StatusRequestEntityTooLarge, msgBodyTooLarge)
				return
			}
			deps.Logger.Debug("chat body not decodable, continuing with empty message",
				"request_id", chat.RequestID(r.Context()), "error", err)
		}

		reply, err := deps.Chat.Reply(r.Context(), messageText(req.Message))
		if err != nil {
			httpError(w, http.StatusInternalServerError, errorMessage(err))
			return
		}
		writeJSON(w, http.StatusOK, chatResponse{Reply: reply})
	}
}

// messageText renders the message field the way a template literal would:
// strings unquoted, other JSON values as written, absent or null as "".
func messageText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// errorMessage maps a chat.Service error to its fixed caller-facing text.
func errorMessage(err error) string {
	switch {
	case errors.Is(err, chat.ErrMissingAPIKey):
		return msgMissingAPIKey
	case errors.Is(err, chat.ErrProfileNotLoaded):
		return msgProfileNotLoaded
	default:
		return msgUpstreamFailure
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
