package middleware

import (
	"errors"
	"log/slog"

	"github.com/labstack/echo/v4"

	apierrors "github.com/hrygo/calbook/server/internal/errors"
	"github.com/hrygo/calbook/server/internal/observability"
)

const (
	// HeaderRequestID carries the request id in both directions.
	HeaderRequestID = "X-Request-ID"
	// HeaderConversationID optionally names the conversation a request belongs to.
	HeaderConversationID = "X-Conversation-ID"
)

// RequestLogger attaches an observability.RequestContext to every request,
// echoes its id in the response and logs one line when the request ends.
func RequestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			var reqCtx *observability.RequestContext
			if id := req.Header.Get(HeaderRequestID); id != "" {
				reqCtx = observability.NewRequestContextWithID(logger, id, c.Path())
			} else {
				reqCtx = observability.NewRequestContext(logger, c.Path())
			}
			reqCtx.ConversationID = req.Header.Get(HeaderConversationID)

			c.SetRequest(req.WithContext(observability.WithRequestContext(req.Context(), reqCtx)))
			c.Response().Header().Set(HeaderRequestID, reqCtx.RequestID)

			err := next(c)
			if err != nil {
				// Let the error handler write the status before it is logged.
				c.Error(err)
			}

			status := c.Response().Status
			attrs := []slog.Attr{
				slog.String("method", req.Method),
				slog.Int(observability.LogFieldStatus, status),
				slog.Int64(observability.LogFieldDuration, reqCtx.DurationMs()),
			}
			var apiErr *apierrors.APIError
			if errors.As(err, &apiErr) {
				attrs = append(attrs, slog.String(observability.LogFieldErrorCode, string(apiErr.Code)))
			}
			// The handler may have learned the conversation id from the body.
			log := reqCtx.WithFields(attrs...)
			if status >= 500 {
				log.Warn("request failed")
			} else {
				log.Debug("request completed")
			}
			return nil
		}
	}
}
