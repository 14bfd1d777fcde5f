package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/estatedesk/listingkeeper/internal/domain/activity"
	"github.com/estatedesk/listingkeeper/internal/domain/listing"
	"github.com/estatedesk/listingkeeper/internal/imaging"
)

// ListingService defines listing operations needed by MCP.
type ListingService interface {
	List(ctx context.Context, filter listing.Filter) ([]listing.View, error)
	Get(ctx context.Context, id string) (*listing.View, error)
	Create(ctx context.Context, req listing.CreateRequest) (*listing.Listing, error)
	Update(ctx context.Context, req listing.UpdateRequest) (*listing.Listing, error)
	Close(ctx context.Context, id string) (*listing.Listing, error)
	Delete(ctx context.Context, id string) error
	Repost(ctx context.Context, id string) (*listing.Listing, error)
	BulkRepost(ctx context.Context, ids []string) ([]listing.Listing, error)
	ExpiredIDs(ctx context.Context) ([]string, error)
	Sweep(ctx context.Context) (int, error)
}

// ActivityService defines activity operations needed by MCP.
type ActivityService interface {
	Recent(ctx context.Context, opts activity.ListOptions) ([]activity.Entry, error)
}

// Handler dispatches MCP commands.
type Handler struct {
	listings ListingService
	activity ActivityService
	now      func() time.Time
}

// NewHandler creates a new MCP handler.
func NewHandler(listings ListingService, activitySvc ActivityService) *Handler {
	return &Handler{
		listings: listings,
		activity: activitySvc,
		now:      time.Now,
	}
}

// Handle dispatches MCP requests to domain services.
func (h *Handler) Handle(ctx context.Context, method string, params json.RawMessage) (any, error) {
	switch method {
	case "list_listings":
		var req ListListingsParams
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		views, err := h.listings.List(ctx, listing.Filter{Status: req.Status, Query: req.Query})
		if err != nil {
			return nil, mapError(err)
		}
		resp := ListListingsResponse{
			Listings:   make([]ListingSummary, 0, len(views)),
			ExpiredIDs: []string{},
		}
		for _, v := range views {
			resp.Listings = append(resp.Listings, summarize(v))
			if v.Display.IsExpired {
				resp.ExpiredIDs = append(resp.ExpiredIDs, v.ID)
			}
		}
		return resp, nil
	case "get_listing":
		var req GetListingParams
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		if err := requireID(req.ID); err != nil {
			return nil, err
		}
		view, err := h.listings.Get(ctx, req.ID)
		if err != nil {
			return nil, mapError(err)
		}
		if !req.IncludeImages {
			view.Image = ""
			view.Images = []string{}
		}
		return view, nil
	case "create_listing":
		var req CreateListingParams
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		images, err := decodeImages(req.Images)
		if err != nil {
			return nil, err
		}
		created, err := h.listings.Create(ctx, listing.CreateRequest{
			Input:  req.ListingFields.input(),
			Images: images,
		})
		if err != nil {
			return nil, mapError(err)
		}
		return h.summary(*created), nil
	case "update_listing":
		var req UpdateListingParams
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		if err := requireID(req.ID); err != nil {
			return nil, err
		}
		images, err := decodeImages(req.Images)
		if err != nil {
			return nil, err
		}
		updated, err := h.listings.Update(ctx, listing.UpdateRequest{
			ID:     req.ID,
			Input:  req.ListingFields.input(),
			Images: images,
		})
		if err != nil {
			return nil, mapError(err)
		}
		return h.summary(*updated), nil
	case "close_listing":
		var req ListingIDParams
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		if err := requireID(req.ID); err != nil {
			return nil, err
		}
		closed, err := h.listings.Close(ctx, req.ID)
		if err != nil {
			return nil, mapError(err)
		}
		return h.summary(*closed), nil
	case "delete_listing":
		var req ListingIDParams
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		if err := requireID(req.ID); err != nil {
			return nil, err
		}
		if err := h.listings.Delete(ctx, req.ID); err != nil {
			return nil, mapError(err)
		}
		return map[string]string{"status": "deleted", "id": req.ID}, nil
	case "repost_listing":
		var req ListingIDParams
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		if err := requireID(req.ID); err != nil {
			return nil, err
		}
		reposted, err := h.listings.Repost(ctx, req.ID)
		if err != nil {
			return nil, mapError(err)
		}
		return h.summary(*reposted), nil
	case "bulk_repost":
		var req BulkRepostParams
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		ids := req.IDs
		if req.AllExpired {
			expired, err := h.listings.ExpiredIDs(ctx)
			if err != nil {
				return nil, mapError(err)
			}
			if len(expired) == 0 {
				return BulkRepostResponse{Reposted: []ListingSummary{}}, nil
			}
			ids = expired
		}
		reposted, err := h.listings.BulkRepost(ctx, ids)
		if err != nil {
			return nil, mapError(err)
		}
		resp := BulkRepostResponse{Reposted: make([]ListingSummary, 0, len(reposted))}
		for _, l := range reposted {
			resp.Reposted = append(resp.Reposted, h.summary(l))
		}
		return resp, nil
	case "sweep_expired":
		n, err := h.listings.Sweep(ctx)
		if err != nil {
			return nil, mapError(err)
		}
		return SweepResponse{Expired: n}, nil
	case "get_recent_activity":
		var req GetRecentActivityParams
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		opts := activity.ListOptions{
			ListingID: req.ListingID,
			Limit:     req.Limit,
			Offset:    req.Offset,
		}
		if req.Type != nil {
			typ := activity.Type(*req.Type)
			opts.Type = &typ
		}
		entries, err := h.activity.Recent(ctx, opts)
		if err != nil {
			return nil, mapError(err)
		}
		resp := make([]ActivityEntryResponse, 0, len(entries))
		for _, entry := range entries {
			resp = append(resp, ActivityEntryResponse{
				Timestamp: entry.CreatedAt,
				Type:      entry.Type,
				ListingID: stringValue(entry.ListingID),
				Summary:   entry.Summary,
				Details:   entry.Details,
			})
		}
		return resp, nil
	default:
		return nil, fmt.Errorf("unknown method: %s", method)
	}
}

func (h *Handler) summary(l listing.Listing) ListingSummary {
	return summarize(listing.View{Listing: l, Display: listing.Classify(l, h.now())})
}

func decodeParams(params json.RawMessage, out any) error {
	if len(params) == 0 {
		return nil
	}
	if err := json.Unmarshal(params, out); err != nil {
		return &APIError{Code: CodeInvalidInput, Message: fmt.Sprintf("invalid arguments: %v", err)}
	}
	return nil
}

func decodeImages(params []ImageParam) ([]imaging.Input, error) {
	inputs := make([]imaging.Input, 0, len(params))
	for i, p := range params {
		if p.DataBase64 == "" {
			inputs = append(inputs, imaging.Input{URI: p.URI})
			continue
		}
		data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(p.DataBase64))
		if err != nil {
			return nil, &APIError{
				Code:    CodeInvalidInput,
				Message: fmt.Sprintf("images[%d]: data_base64 is not valid base64", i),
			}
		}
		inputs = append(inputs, imaging.Input{Data: data})
	}
	return inputs, nil
}

func requireID(id string) error {
	if strings.TrimSpace(id) == "" {
		return &APIError{Code: CodeInvalidInput, Message: "id is required"}
	}
	return nil
}

func mapError(err error) error {
	if apiErr := MapError(err); apiErr != nil {
		return apiErr
	}
	return err
}

func stringValue(val *string) string {
	if val == nil {
		return ""
	}
	return *val
}
