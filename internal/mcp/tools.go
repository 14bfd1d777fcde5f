package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// ToolDefinition describes a callable tool
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema map[string]any
}

var listingFieldProperties = map[string]any{
	"status": map[string]any{
		"type":        "string",
		"description": "draft keeps the listing unpublished; active publishes it for 14 days",
		"enum":        []string{"draft", "active"},
	},
	"type": map[string]any{
		"type":        "string",
		"description": "Listing type (default sell)",
		"enum":        []string{"sell", "rent"},
	},
	"title":         map[string]any{"type": "string", "description": "Listing headline"},
	"description":   map[string]any{"type": "string", "description": "Free text description"},
	"price":         map[string]any{"type": "string", "description": "Price, thousands separators allowed (e.g. 4,500,000)"},
	"usable_area":   map[string]any{"type": "string", "description": "Usable area in square meters"},
	"land_area":     map[string]any{"type": "string", "description": "Land area"},
	"year_built":    map[string]any{"type": "string", "description": "Year built"},
	"bedrooms":      map[string]any{"type": "string", "description": "Number of bedrooms"},
	"bathrooms":     map[string]any{"type": "string", "description": "Number of bathrooms"},
	"address":       map[string]any{"type": "string", "description": "Street address"},
	"map_embed":     map[string]any{"type": "string", "description": "Map embed snippet or link"},
	"property_type": map[string]any{"type": "string", "description": "House, condo, land..."},
	"features": map[string]any{
		"type":        "array",
		"description": "Feature tags",
		"items":       map[string]any{"type": "string"},
	},
	"other_feature": map[string]any{"type": "string", "description": "Feature not covered by the tags"},
	"images": map[string]any{
		"type":        "array",
		"description": "1 to 10 photos, first is the cover. New uploads go in data_base64; photos kept from the current listing are passed back as uri",
		"minItems":    1,
		"maxItems":    10,
		"items": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"data_base64": map[string]any{"type": "string", "description": "Base64 encoded image file"},
				"uri":         map[string]any{"type": "string", "description": "Existing data URI"},
			},
		},
	},
}

func listingFieldsWith(extra map[string]any) map[string]any {
	props := make(map[string]any, len(listingFieldProperties)+len(extra))
	for k, v := range listingFieldProperties {
		props[k] = v
	}
	for k, v := range extra {
		props[k] = v
	}
	return props
}

func idSchema(description string) map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"id": map[string]any{
				"type":        "string",
				"description": description,
			},
		},
		"required": []string{"id"},
	}
}

// buildToolCatalog returns all available MCP tools
func buildToolCatalog() []ToolDefinition {
	return []ToolDefinition{
		// Browsing
		{
			Name:        "list_listings",
			Description: "List listings with their display status, newest first. Expired listings are swept before listing",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"status": map[string]any{
						"type":        "string",
						"description": "Stored status filter (default all)",
						"enum":        []string{"all", "draft", "active", "expired", "closed"},
					},
					"query": map[string]any{
						"type":        "string",
						"description": "Case-insensitive text matched against title, address and description",
					},
				},
			},
		},
		{
			Name:        "get_listing",
			Description: "Get one listing with all fields and its display status",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id": map[string]any{
						"type":        "string",
						"description": "Listing ID",
					},
					"include_images": map[string]any{
						"type":        "boolean",
						"description": "Return the encoded photos (large)",
					},
				},
				"required": []string{"id"},
			},
		},
		{
			Name:        "get_recent_activity",
			Description: "Get recent listing activity, newest first",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"listing_id": map[string]any{
						"type":        "string",
						"description": "Listing ID to filter by",
					},
					"type": map[string]any{
						"type":        "string",
						"description": "Activity type to filter by",
						"enum": []string{
							"listing_created", "listing_updated", "listing_closed", "listing_deleted",
							"listing_reposted", "listings_swept", "listings_evicted",
						},
					},
					"limit": map[string]any{
						"type":        "integer",
						"description": "Maximum number of entries (default 50)",
					},
					"offset": map[string]any{
						"type":        "integer",
						"description": "Offset for pagination",
					},
				},
			},
		},

		// Editing
		{
			Name:        "create_listing",
			Description: "Create a listing from form fields and photos",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": listingFieldsWith(nil),
				"required":   []string{"status", "title", "price", "usable_area", "address", "images"},
			},
		},
		{
			Name:        "update_listing",
			Description: "Replace the form fields and photos of a listing. Switching a draft to active starts a new 14 day period",
			InputSchema: map[string]any{
				"type": "object",
				"properties": listingFieldsWith(map[string]any{
					"id": map[string]any{"type": "string", "description": "Listing ID"},
				}),
				"required": []string{"id", "status", "title", "price", "usable_area", "address", "images"},
			},
		},
		{
			Name:        "close_listing",
			Description: "Mark a listing as closed (sold or rented)",
			InputSchema: idSchema("Listing ID"),
		},
		{
			Name:        "delete_listing",
			Description: "Delete a listing permanently",
			InputSchema: idSchema("Listing ID"),
		},

		// Lifecycle
		{
			Name:        "repost_listing",
			Description: "Reactivate an expired listing for another 14 days",
			InputSchema: idSchema("ID of an expired listing"),
		},
		{
			Name:        "bulk_repost",
			Description: "Reactivate several expired listings with one shared expiry. Nothing changes if any selected listing is not expired",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"ids": map[string]any{
						"type":        "array",
						"description": "IDs of expired listings",
						"items":       map[string]any{"type": "string"},
					},
					"all_expired": map[string]any{
						"type":        "boolean",
						"description": "Repost every currently expired listing instead of ids",
					},
				},
			},
		},
		{
			Name:        "sweep_expired",
			Description: "Persist the expired status of active listings past their expiry",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
	}
}

func registerTools(server *sdkmcp.Server, handler *Handler, logger *slog.Logger) {
	for _, def := range buildToolCatalog() {
		name := def.Name
		server.AddTool(&sdkmcp.Tool{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: def.InputSchema,
		}, func(ctx context.Context, req *sdkmcp.CallToolRequest) (*sdkmcp.CallToolResult, error) {
			var args json.RawMessage
			if req != nil && req.Params != nil {
				args = req.Params.Arguments
			}
			result, err := handler.Handle(ctx, name, args)
			if err != nil {
				apiErr := MapError(err)
				if apiErr == nil {
					logger.Error("tool call failed", "tool", name, "error", err)
					apiErr = &APIError{Code: CodeInternal, Message: err.Error()}
				}
				return toolResult(apiErr, true), nil
			}
			return toolResult(result, false), nil
		})
	}
}

func toolResult(payload any, isError bool) *sdkmcp.CallToolResult {
	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte(fmt.Sprintf(`{"code":%q,"message":%q}`, CodeInternal, err.Error()))
		isError = true
	}
	return &sdkmcp.CallToolResult{
		Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: string(data)}},
		IsError: isError,
	}
}
