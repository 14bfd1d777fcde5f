package mcp

import (
	"context"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

type contextKey int

const (
	clientSessionKey contextKey = iota
)

// getClientSession extracts the client supplied session ID from context.
func getClientSession(ctx context.Context) string {
	v, _ := ctx.Value(clientSessionKey).(string)
	return v
}

// sessionMiddleware extracts the client session ID from the Mcp-Session-Id header (HTTP)
// or _meta.session_id (stdio) so log lines from one agent conversation can be grouped.
func sessionMiddleware() sdkmcp.Middleware {
	return func(next sdkmcp.MethodHandler) sdkmcp.MethodHandler {
		return func(ctx context.Context, method string, req sdkmcp.Request) (sdkmcp.Result, error) {
			var sessionID string

			extra := req.GetExtra()
			if extra != nil && extra.Header != nil {
				sessionID = extra.Header.Get("Mcp-Session-Id")
			}

			// Notifications such as "initialized" carry nil params.
			if sessionID == "" {
				if params := req.GetParams(); params != nil {
					func() {
						defer func() { recover() }()
						if meta := params.GetMeta(); meta != nil {
							if sid, ok := meta["session_id"].(string); ok {
								sessionID = sid
							}
						}
					}()
				}
			}

			if sessionID != "" {
				ctx = context.WithValue(ctx, clientSessionKey, sessionID)
			}
			return next(ctx, method, req)
		}
	}
}

// toolTimeoutMiddleware bounds every tools/call so a stuck store cannot hold a client forever.
func toolTimeoutMiddleware(timeout time.Duration) sdkmcp.Middleware {
	return func(next sdkmcp.MethodHandler) sdkmcp.MethodHandler {
		return func(ctx context.Context, method string, req sdkmcp.Request) (sdkmcp.Result, error) {
			if method != "tools/call" || timeout <= 0 {
				return next(ctx, method, req)
			}
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return next(ctx, method, req)
		}
	}
}
