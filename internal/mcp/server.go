package mcp

import (
	"log/slog"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Services contains all domain services needed by MCP.
type Services struct {
	Listings ListingService
	Activity ActivityService
}

// Config contains server configuration.
type Config struct {
	Services      Services
	TransportMode string // "stdio" or "http"
	ToolTimeout   time.Duration
	Logger        *slog.Logger
}

// NewServer creates and configures an MCP server with all tools and middleware.
func NewServer(cfg Config) *sdkmcp.Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	server := sdkmcp.NewServer(&sdkmcp.Implementation{
		Name:    "listingkeeper",
		Version: "0.1.0",
	}, &sdkmcp.ServerOptions{
		Instructions: serverInstructions,
		Logger:       logger,
	})

	registerDocResources(server)

	server.AddReceivingMiddleware(sessionMiddleware())
	server.AddReceivingMiddleware(toolTimeoutMiddleware(cfg.ToolTimeout))
	server.AddReceivingMiddleware(trafficLoggingMiddleware(logger, "inbound"))
	server.AddSendingMiddleware(trafficLoggingMiddleware(logger, "outbound"))

	handler := NewHandler(cfg.Services.Listings, cfg.Services.Activity)
	registerTools(server, handler, logger)

	logger.Debug("mcp server configured", "transport", cfg.TransportMode, "tools", len(buildToolCatalog()))
	return server
}
