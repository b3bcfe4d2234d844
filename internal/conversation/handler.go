package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/cinechat/cinechat/internal/dialog"
	"github.com/cinechat/cinechat/internal/services"
	"github.com/cinechat/cinechat/pkg/logging"
)

// Handler is the HTTP channel adapter. The caller is the session's custodian
// on this channel: it echoes the full conversation state on every call.
type Handler struct {
	orchestrator *Orchestrator
	registry     *services.Registry
	messenger    ReplyMessenger
	logger       *logging.Logger

	turnTimeout time.Duration

	// echoReplies mirrors non-search replies out via SMS when enabled.
	echoReplies bool
	echoTo      string
}

// HandlerOption configures the handler.
type HandlerOption func(*Handler)

// WithTurnTimeout bounds one orchestrated turn end to end.
func WithTurnTimeout(d time.Duration) HandlerOption {
	return func(h *Handler) {
		if d > 0 {
			h.turnTimeout = d
		}
	}
}

// WithSMSEcho mirrors HTTP conversation replies to the given number.
func WithSMSEcho(messenger ReplyMessenger, to string) HandlerOption {
	return func(h *Handler) {
		h.echoReplies = messenger != nil && to != ""
		h.messenger = messenger
		h.echoTo = to
	}
}

// NewHandler creates the HTTP channel adapter.
func NewHandler(orchestrator *Orchestrator, registry *services.Registry, logger *logging.Logger, opts ...HandlerOption) *Handler {
	if orchestrator == nil {
		panic("conversation: orchestrator cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	h := &Handler{
		orchestrator: orchestrator,
		registry:     registry,
		logger:       logger,
		turnTimeout:  30 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// CreateConversation handles POST /api/create_conversation.
func (h *Handler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	var seed dialog.Conversation
	if err := json.NewDecoder(r.Body).Decode(&seed); err != nil {
		h.logger.Error("failed to decode create request", "error", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	ctx, cancel := h.turnContext(r.Context())
	defer cancel()

	conv, err := h.orchestrator.CreateConversation(ctx, &seed)
	if err != nil {
		h.logger.Error("failed to create conversation", "error", err)
		http.Error(w, "Failed to create conversation", http.StatusBadGateway)
		return
	}

	h.writeJSON(w, http.StatusOK, conv)
}

// Converse handles POST /api/conversation. The body is the session state
// verbatim; the merged search payload comes back when a search triggered.
func (h *Handler) Converse(w http.ResponseWriter, r *http.Request) {
	var session dialog.Conversation
	if err := json.NewDecoder(r.Body).Decode(&session); err != nil {
		h.logger.Error("failed to decode conversation request", "error", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	ctx, cancel := h.turnContext(r.Context())
	defer cancel()

	result, err := h.orchestrator.ProcessTurn(ctx, &session, ChannelHTTP)
	if err != nil {
		h.renderTurnError(w, err)
		return
	}

	if h.echoReplies && !result.Searched && result.Message != "" {
		if err := h.messenger.SendReply(ctx, OutboundReply{To: h.echoTo, Body: result.Message}); err != nil {
			h.logger.Warn("failed to echo reply over sms", "error", err)
		}
	}

	payload, err := result.Payload()
	if err != nil {
		h.logger.Error("failed to render turn payload", "error", err)
		http.Error(w, "Failed to process message", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, payload)
}

// Movies handles GET /api/movies.
func (h *Handler) Movies(w http.ResponseWriter, r *http.Request) {
	query := map[string]string{}
	for k := range r.URL.Query() {
		query[k] = r.URL.Query().Get(k)
	}

	ctx, cancel := h.turnContext(r.Context())
	defer cancel()

	payload, err := h.orchestrator.SelectMovie(ctx, query)
	if err != nil {
		h.logger.Error("failed to select movie", "error", err)
		http.Error(w, "Failed to fetch movie", http.StatusBadGateway)
		return
	}

	h.writeJSON(w, http.StatusOK, payload)
}

// Services handles GET /api/services, reporting the collaborator handles or
// "Unknown" until initialization completes.
func (h *Handler) Services(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.registry.Handles())
}

func (h *Handler) renderTurnError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrMalformedSearchParameters) {
		h.logger.Error("dialog emitted malformed search parameters", "error", err)
		http.Error(w, "Failed to process message", http.StatusBadGateway)
		return
	}
	h.logger.Error("failed to process conversation turn", "error", err)
	http.Error(w, "Failed to process message", http.StatusBadGateway)
}

func (h *Handler) turnContext(parent context.Context) (context.Context, context.CancelFunc) {
	if h.turnTimeout <= 0 {
		return parent, func() {}
	}
	return context.WithTimeout(parent, h.turnTimeout)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}
