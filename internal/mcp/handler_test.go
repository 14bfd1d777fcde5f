package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/estatedesk/listingkeeper/internal/domain/activity"
	"github.com/estatedesk/listingkeeper/internal/domain/listing"
	"github.com/stretchr/testify/require"
)

type listingStub struct {
	listFn       func(context.Context, listing.Filter) ([]listing.View, error)
	getFn        func(context.Context, string) (*listing.View, error)
	createFn     func(context.Context, listing.CreateRequest) (*listing.Listing, error)
	updateFn     func(context.Context, listing.UpdateRequest) (*listing.Listing, error)
	closeFn      func(context.Context, string) (*listing.Listing, error)
	deleteFn     func(context.Context, string) error
	repostFn     func(context.Context, string) (*listing.Listing, error)
	bulkRepostFn func(context.Context, []string) ([]listing.Listing, error)
	expiredIDsFn func(context.Context) ([]string, error)
	sweepFn      func(context.Context) (int, error)
}

func (s listingStub) List(ctx context.Context, filter listing.Filter) ([]listing.View, error) {
	return s.listFn(ctx, filter)
}
func (s listingStub) Get(ctx context.Context, id string) (*listing.View, error) {
	return s.getFn(ctx, id)
}
func (s listingStub) Create(ctx context.Context, req listing.CreateRequest) (*listing.Listing, error) {
	return s.createFn(ctx, req)
}
func (s listingStub) Update(ctx context.Context, req listing.UpdateRequest) (*listing.Listing, error) {
	return s.updateFn(ctx, req)
}
func (s listingStub) Close(ctx context.Context, id string) (*listing.Listing, error) {
	return s.closeFn(ctx, id)
}
func (s listingStub) Delete(ctx context.Context, id string) error {
	return s.deleteFn(ctx, id)
}
func (s listingStub) Repost(ctx context.Context, id string) (*listing.Listing, error) {
	return s.repostFn(ctx, id)
}
func (s listingStub) BulkRepost(ctx context.Context, ids []string) ([]listing.Listing, error) {
	return s.bulkRepostFn(ctx, ids)
}
func (s listingStub) ExpiredIDs(ctx context.Context) ([]string, error) {
	return s.expiredIDsFn(ctx)
}
func (s listingStub) Sweep(ctx context.Context) (int, error) {
	return s.sweepFn(ctx)
}

type activityStub struct {
	recentFn func(context.Context, activity.ListOptions) ([]activity.Entry, error)
}

func (a activityStub) Recent(ctx context.Context, opts activity.ListOptions) ([]activity.Entry, error) {
	return a.recentFn(ctx, opts)
}

var handlerNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func stubListing(id string, status listing.Status, expiresIn time.Duration) listing.Listing {
	l := listing.Listing{
		ID:        id,
		Status:    status,
		Title:     "Listing " + id,
		CreatedAt: listing.NewTimestamp(handlerNow.AddDate(0, 0, -20)),
		Images:    []string{"data:image/jpeg;base64,AA", "data:image/jpeg;base64,BB"},
	}
	if expiresIn != 0 {
		l.ExpiresAt = listing.NewTimestamp(handlerNow.Add(expiresIn)).Ptr()
	}
	return l
}

func newTestHandler(listings ListingService, activities ActivityService) *Handler {
	h := NewHandler(listings, activities)
	h.now = func() time.Time { return handlerNow }
	return h
}

func TestHandler_ListAndGet(t *testing.T) {
	ctx := context.Background()
	var gotFilter listing.Filter

	handler := newTestHandler(listingStub{
		listFn: func(_ context.Context, filter listing.Filter) ([]listing.View, error) {
			gotFilter = filter
			active := stubListing("a", listing.StatusActive, 48*time.Hour)
			expired := stubListing("b", listing.StatusExpired, -time.Hour)
			return []listing.View{
				{Listing: active, Display: listing.Classify(active, handlerNow)},
				{Listing: expired, Display: listing.Classify(expired, handlerNow)},
			}, nil
		},
		getFn: func(_ context.Context, id string) (*listing.View, error) {
			l := stubListing(id, listing.StatusActive, 0)
			return &listing.View{Listing: l, Display: listing.Classify(l, handlerNow)}, nil
		},
	}, nil)

	result, err := handler.Handle(ctx, "list_listings", mustJSON(t, ListListingsParams{Status: "all", Query: "river"}))
	require.NoError(t, err)
	require.Equal(t, listing.Filter{Status: "all", Query: "river"}, gotFilter)

	resp := result.(ListListingsResponse)
	require.Len(t, resp.Listings, 2)
	require.Equal(t, "Expiring Soon", resp.Listings[0].Display.Label)
	require.Equal(t, 2, resp.Listings[0].ImageCount)
	require.Equal(t, []string{"b"}, resp.ExpiredIDs)

	result, err = handler.Handle(ctx, "get_listing", mustJSON(t, GetListingParams{ID: "a"}))
	require.NoError(t, err)
	view := result.(*listing.View)
	require.Empty(t, view.Images)

	result, err = handler.Handle(ctx, "get_listing", mustJSON(t, GetListingParams{ID: "a", IncludeImages: true}))
	require.NoError(t, err)
	require.Len(t, result.(*listing.View).Images, 2)
}

func TestHandler_CreateDecodesImages(t *testing.T) {
	ctx := context.Background()
	var got listing.CreateRequest

	handler := newTestHandler(listingStub{
		createFn: func(_ context.Context, req listing.CreateRequest) (*listing.Listing, error) {
			got = req
			l := stubListing("new", listing.StatusActive, listing.ListingPeriod)
			return &l, nil
		},
	}, nil)

	params := CreateListingParams{
		ListingFields: ListingFields{
			Status:     "active",
			Title:      "Riverside condo",
			Price:      "4,500,000",
			UsableArea: "68",
			Address:    "12 River Rd",
		},
		Images: []ImageParam{
			{DataBase64: base64.StdEncoding.EncodeToString([]byte("raw photo"))},
			{URI: "data:image/jpeg;base64,AA"},
		},
	}
	result, err := handler.Handle(ctx, "create_listing", mustJSON(t, params))
	require.NoError(t, err)
	require.Equal(t, "new", result.(ListingSummary).ID)

	require.Equal(t, listing.StatusActive, got.Status)
	require.Equal(t, "12 River Rd", got.Address)
	require.Len(t, got.Images, 2)
	require.Equal(t, []byte("raw photo"), got.Images[0].Data)
	require.Equal(t, "data:image/jpeg;base64,AA", got.Images[1].URI)

	params.Images = []ImageParam{{DataBase64: "%%%"}}
	_, err = handler.Handle(ctx, "create_listing", mustJSON(t, params))
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, CodeInvalidInput, apiErr.Code)
}

func TestHandler_LifecycleCommands(t *testing.T) {
	ctx := context.Background()
	var reposted []string

	handler := newTestHandler(listingStub{
		closeFn: func(_ context.Context, id string) (*listing.Listing, error) {
			l := stubListing(id, listing.StatusClosed, 0)
			l.ClosedAt = listing.NewTimestamp(handlerNow).Ptr()
			return &l, nil
		},
		deleteFn: func(_ context.Context, _ string) error { return nil },
		repostFn: func(_ context.Context, id string) (*listing.Listing, error) {
			l := stubListing(id, listing.StatusActive, listing.ListingPeriod)
			return &l, nil
		},
		bulkRepostFn: func(_ context.Context, ids []string) ([]listing.Listing, error) {
			reposted = ids
			out := make([]listing.Listing, 0, len(ids))
			for _, id := range ids {
				out = append(out, stubListing(id, listing.StatusActive, listing.ListingPeriod))
			}
			return out, nil
		},
		expiredIDsFn: func(context.Context) ([]string, error) { return []string{"x", "y"}, nil },
		sweepFn:      func(context.Context) (int, error) { return 2, nil },
	}, activityStub{recentFn: func(_ context.Context, opts activity.ListOptions) ([]activity.Entry, error) {
		require.Equal(t, activity.TypeListingReposted, *opts.Type)
		id := "x"
		return []activity.Entry{{ListingID: &id, Type: activity.TypeListingReposted, Summary: "reposted"}}, nil
	}})

	result, err := handler.Handle(ctx, "close_listing", mustJSON(t, ListingIDParams{ID: "a"}))
	require.NoError(t, err)
	require.Equal(t, "Closed", result.(ListingSummary).Display.Label)

	_, err = handler.Handle(ctx, "delete_listing", mustJSON(t, ListingIDParams{ID: "a"}))
	require.NoError(t, err)

	result, err = handler.Handle(ctx, "repost_listing", mustJSON(t, ListingIDParams{ID: "b"}))
	require.NoError(t, err)
	require.Equal(t, listing.StatusActive, result.(ListingSummary).Status)

	result, err = handler.Handle(ctx, "bulk_repost", mustJSON(t, BulkRepostParams{AllExpired: true}))
	require.NoError(t, err)
	require.Equal(t, []string{"x", "y"}, reposted)
	require.Len(t, result.(BulkRepostResponse).Reposted, 2)

	result, err = handler.Handle(ctx, "sweep_expired", nil)
	require.NoError(t, err)
	require.Equal(t, SweepResponse{Expired: 2}, result)

	typ := string(activity.TypeListingReposted)
	result, err = handler.Handle(ctx, "get_recent_activity", mustJSON(t, GetRecentActivityParams{Type: &typ}))
	require.NoError(t, err)
	entries := result.([]ActivityEntryResponse)
	require.Len(t, entries, 1)
	require.Equal(t, "x", entries[0].ListingID)
}

func TestHandler_ErrorMapping(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		err  error
		code string
	}{
		{fmt.Errorf("close a: %w", listing.ErrListingNotFound), CodeListingNotFound},
		{fmt.Errorf("repost a: %w", listing.ErrNotRepostable), CodeNotRepostable},
		{fmt.Errorf("%w: quota", listing.ErrSaveFailed), CodeSaveFailed},
		{fmt.Errorf("%w: corrupt", listing.ErrStorageUnavailable), CodeStorageUnavailable},
		{&listing.ValidationError{Fields: []listing.FieldError{{Field: "title", Message: "title is required"}}}, CodeInvalidInput},
	}

	for _, tc := range cases {
		handler := newTestHandler(listingStub{
			closeFn: func(context.Context, string) (*listing.Listing, error) { return nil, tc.err },
		}, nil)

		_, err := handler.Handle(ctx, "close_listing", mustJSON(t, ListingIDParams{ID: "a"}))
		require.Error(t, err)
		apiErr, ok := err.(*APIError)
		require.True(t, ok, tc.err.Error())
		require.Equal(t, tc.code, apiErr.Code)
	}

	handler := newTestHandler(listingStub{}, nil)
	_, err := handler.Handle(ctx, "close_listing", mustJSON(t, ListingIDParams{}))
	require.Equal(t, CodeInvalidInput, MapError(err).Code)

	_, err = handler.Handle(ctx, "close_listing", json.RawMessage(`{"id":`))
	require.Equal(t, CodeInvalidInput, MapError(err).Code)

	_, err = handler.Handle(ctx, "publish_everything", nil)
	require.ErrorContains(t, err, "unknown method")
	require.Nil(t, MapError(err))
}

func TestToolCatalog_NamesMatchHandler(t *testing.T) {
	want := []string{
		"list_listings", "get_listing", "get_recent_activity", "create_listing", "update_listing",
		"close_listing", "delete_listing", "repost_listing", "bulk_repost", "sweep_expired",
	}
	var got []string
	for _, tool := range buildToolCatalog() {
		got = append(got, tool.Name)
		require.Equal(t, "object", tool.InputSchema["type"], tool.Name)
	}
	require.Equal(t, want, got)
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}
