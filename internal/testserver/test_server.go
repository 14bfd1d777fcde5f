package testserver

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/estatedesk/listingkeeper/internal/domain/activity"
	"github.com/estatedesk/listingkeeper/internal/domain/listing"
	"github.com/estatedesk/listingkeeper/internal/imaging"
	"github.com/estatedesk/listingkeeper/internal/mcp"
	"github.com/estatedesk/listingkeeper/internal/sqlite"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"
)

// Clock is a manually advanced time source shared by every component of a TestServer.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// TestServer is the full listing stack on in-memory sqlite, reached through an MCP client session.
type TestServer struct {
	Client   *sdkmcp.ClientSession
	DB       *sqlite.DB
	Slots    *sqlite.SlotRepository
	Store    *listing.Store
	Listings *listing.Service
	Clock    *Clock
}

// Options tweaks the stack built by New.
type Options struct {
	QuotaBytes int64
}

func New(t *testing.T, opts Options) *TestServer {
	t.Helper()

	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations())

	clock := &Clock{now: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}

	var slotOpts []sqlite.SlotOption
	if opts.QuotaBytes > 0 {
		slotOpts = append(slotOpts, sqlite.WithQuota(opts.QuotaBytes))
	}
	slots := sqlite.NewSlotRepository(db, slotOpts...)
	activityRepo := sqlite.NewActivityRepository(db)

	activitySvc := activity.NewService(activityRepo, nil)
	store := listing.NewStore(slots, nil, listing.StoreOptions{Now: clock.Now})
	catalog := listing.NewCatalog(store, nil, clock.Now)
	listingSvc := listing.NewService(catalog, imaging.NewEncoder(nil), activitySvc, nil)

	server := mcp.NewServer(mcp.Config{
		Services: mcp.Services{
			Listings: listingSvc,
			Activity: activitySvc,
		},
		TransportMode: "stdio",
	})

	ctx, cancel := context.WithCancel(context.Background())
	serverTransport, clientTransport := sdkmcp.NewInMemoryTransports()
	_, err = server.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)

	client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "testserver", Version: "0.0.1"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = session.Close()
		cancel()
		_ = db.Close()
	})

	return &TestServer{
		Client:   session,
		DB:       db,
		Slots:    slots,
		Store:    store,
		Listings: listingSvc,
		Clock:    clock,
	}
}

// Call invokes a tool and decodes its JSON text content into out when out is non-nil.
// It returns whether the tool reported an error.
func (ts *TestServer) Call(t *testing.T, name string, args any, out any) bool {
	t.Helper()

	res, err := ts.Client.CallTool(context.Background(), &sdkmcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	require.NoError(t, err)
	require.Len(t, res.Content, 1)

	text, ok := res.Content[0].(*sdkmcp.TextContent)
	require.True(t, ok, "expected text content, got %T", res.Content[0])
	if out != nil {
		require.NoError(t, json.Unmarshal([]byte(text.Text), out), text.Text)
	}
	return res.IsError
}
