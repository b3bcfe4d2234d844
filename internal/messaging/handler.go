package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/cinechat/cinechat/internal/conversation"
	"github.com/cinechat/cinechat/pkg/logging"
)

var twilioTracer = otel.Tracer("cinechat.internal.messaging.twilio")

// Handler is the SMS channel adapter. It accepts Twilio's inbound webhook,
// runs the orchestrated turn keyed by the sender's number, and relays the
// reply through the outbound messenger.
type Handler struct {
	orchestrator *conversation.Orchestrator
	messenger    conversation.ReplyMessenger
	logger       *logging.Logger
	turnTimeout  time.Duration
}

// NewHandler creates the SMS webhook adapter.
func NewHandler(orchestrator *conversation.Orchestrator, messenger conversation.ReplyMessenger, logger *logging.Logger, turnTimeout time.Duration) *Handler {
	if orchestrator == nil {
		panic("messaging: orchestrator cannot be nil")
	}
	if messenger == nil {
		panic("messaging: messenger cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if turnTimeout <= 0 {
		turnTimeout = 30 * time.Second
	}
	return &Handler{
		orchestrator: orchestrator,
		messenger:    messenger,
		logger:       logger,
		turnTimeout:  turnTimeout,
	}
}

// TwilioWebhook handles GET /api/twillio?Body&From&To. (The path keeps the
// upstream spelling; Twilio only cares that it matches the configured URL.)
//
// Branches that relay the reply over SMS answer 204; the turn that ends
// without a search also returns the conversation as JSON.
func (h *Handler) TwilioWebhook(w http.ResponseWriter, r *http.Request) {
	ctx, span := twilioTracer.Start(r.Context(), "messaging.twilio.webhook")
	defer span.End()

	body := r.URL.Query().Get("Body")
	from := r.URL.Query().Get("From")
	to := r.URL.Query().Get("To")
	span.SetAttributes(attribute.String("cinechat.from", from))

	if from == "" || body == "" {
		err := errors.New("missing required twilio fields")
		h.logger.Error("invalid twilio webhook", "error", err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		span.RecordError(err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, h.turnTimeout)
	defer cancel()

	h.logger.Info("inbound sms", "from", from, "body_length", len(body))
	result, err := h.orchestrator.ProcessSMS(ctx, from, body)
	if err != nil {
		// The sender gets no failure notification; the message is dropped.
		h.logger.Error("failed to process sms turn", "error", err, "from", from)
		http.Error(w, "Failed to process message", http.StatusBadGateway)
		span.RecordError(err)
		return
	}

	h.send(ctx, from, to, result.Message)

	if result.FirstContact || result.Searched {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(result.Conversation); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}

func (h *Handler) send(ctx context.Context, to, from, body string) {
	if body == "" {
		h.logger.Warn("dialog produced an empty reply, nothing to send", "to", to)
		return
	}
	if err := h.messenger.SendReply(ctx, conversation.OutboundReply{To: to, From: from, Body: body}); err != nil {
		h.logger.Error("failed to send sms reply", "error", err, "to", to)
	}
}

// HealthCheck handles GET /health.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
