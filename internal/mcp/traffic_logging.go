package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// trafficLoggingMiddleware logs every request and its response at debug level.
// Photo payloads are truncated by formatPayload.
func trafficLoggingMiddleware(logger *slog.Logger, direction string) sdkmcp.Middleware {
	return func(next sdkmcp.MethodHandler) sdkmcp.MethodHandler {
		return func(ctx context.Context, method string, req sdkmcp.Request) (sdkmcp.Result, error) {
			if logger == nil || !logger.Enabled(ctx, slog.LevelDebug) {
				return next(ctx, method, req)
			}

			params := requestParams(req)
			attrs := []any{
				"direction", direction,
				"method", method,
				"session_id", requestSessionID(req),
				"client_session", getClientSession(ctx),
			}
			if call, ok := params.(*sdkmcp.CallToolParamsRaw); ok && call != nil {
				attrs = append(attrs, "tool", call.Name)
			}
			logger.Debug("mcp request", append(attrs, "params", formatPayload(params))...)

			result, err := next(ctx, method, req)
			if strings.HasPrefix(method, "notifications/") {
				return result, err
			}
			attrs = append(attrs, "result", formatPayload(result))
			if err != nil {
				attrs = append(attrs, "error", err)
			}
			logger.Debug("mcp response", attrs...)
			return result, err
		}
	}
}

// requestSessionID tolerates requests whose session is not attached yet.
func requestSessionID(req sdkmcp.Request) (id string) {
	if req == nil {
		return ""
	}
	defer func() {
		if recover() != nil {
			id = ""
		}
	}()
	if session := req.GetSession(); session != nil {
		return session.ID()
	}
	return ""
}

func requestParams(req sdkmcp.Request) (params any) {
	if req == nil {
		return nil
	}
	defer func() {
		if recover() != nil {
			params = nil
		}
	}()
	return req.GetParams()
}

// maxLoggedPayload keeps base64 photos from flooding the log.
const maxLoggedPayload = 2048

func formatPayload(payload any) string {
	if payload == nil {
		return "<nil>"
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf("%T", payload)
	}
	if len(data) > maxLoggedPayload {
		return fmt.Sprintf("%s...(%d bytes truncated)", data[:maxLoggedPayload], len(data)-maxLoggedPayload)
	}
	return string(data)
}
