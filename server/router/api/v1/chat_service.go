package v1

import (
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hrygo/calbook/plugin/ai/schedule"
	apierrors "github.com/hrygo/calbook/server/internal/errors"
	"github.com/hrygo/calbook/server/internal/observability"
)

// MaxMessageLength bounds one chat message in runes.
const MaxMessageLength = 2000

// ChatRequest is the body of POST /api/v1/chat.
type ChatRequest struct {
	// ConversationID names the conversation; a new one is assigned when empty.
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message"`
}

// ChatResponse answers one chat turn.
type ChatResponse struct {
	ConversationID string                 `json:"conversation_id"`
	Response       string                 `json:"response"`
	Status         string                 `json:"status"`
	Result         *schedule.ActionResult `json:"result"`
}

// Chat runs one conversational turn. Booking failures are part of the
// conversation and still answer 200; only malformed requests fail.
// POST /api/v1/chat
func (s *APIV1Service) Chat(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return apierrors.InvalidArgument("invalid request body")
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		return apierrors.InvalidArgument("message is required")
	}
	if utf8.RuneCountInString(req.Message) > MaxMessageLength {
		return apierrors.InvalidArgument("message is too long").WithContext("max_length", MaxMessageLength)
	}
	if req.ConversationID == "" {
		req.ConversationID = uuid.NewString()
	}
	if s.Limiter != nil && !s.Limiter.Allow("conv:"+req.ConversationID) {
		return apierrors.RateLimitExceeded("too many messages in this conversation, slow down")
	}

	ctx := c.Request().Context()
	if reqCtx, ok := observability.FromContext(ctx); ok {
		reqCtx.ConversationID = req.ConversationID
	}
	logger := observability.LoggerFrom(ctx)
	logger.Debug("chat turn received", observability.LogFieldMessageLen, len(req.Message))

	result := s.Turns.HandleTurn(ctx, req.ConversationID, req.Message, s.clock())

	status := "success"
	if !result.Succeeded() {
		status = "error"
		if result.NeedsClarification {
			status = "needs_clarification"
		}
	}
	return c.JSON(http.StatusOK, ChatResponse{
		ConversationID: req.ConversationID,
		Response:       result.Message,
		Status:         status,
		Result:         result,
	})
}
