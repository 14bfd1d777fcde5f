package mcp

import (
	"context"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

const serverInstructions = `listingkeeper manages real estate listings stored as one collection in a size-bounded slot.

Lifecycle:
- draft: not published, no expiry.
- active: published for 14 days from the moment it went active. "Expiring Soon" in the last 7 days.
- expired: past its expiry. Only expired listings can be reposted (another 14 days from now).
- closed: sold or rented. Closed listings older than 60 days may be evicted when storage is full.

Workflow:
1) Browse with list_listings (compact, no photos). expired_ids lists what can be reposted.
2) Read one listing with get_listing; pass include_images=true only when you need the photos.
3) Write with create_listing / update_listing. Both take the full form: status, title, price, usable_area, address and 1-10 images.
   When editing, pass existing photos back as {"uri": ...} and new ones as {"data_base64": ...}.
4) Lifecycle actions: close_listing, delete_listing, repost_listing, bulk_repost (ids or all_expired=true).
5) get_recent_activity shows what changed and when.

Errors carry a code: LISTING_NOT_FOUND, INVALID_INPUT, NOT_REPOSTABLE, SAVE_FAILED, STORAGE_UNAVAILABLE.
SAVE_FAILED means nothing was written. STORAGE_UNAVAILABLE means an empty result is not trustworthy.

Docs:
- listings://docs/lifecycle
- listings://docs/storage
`

type docResource struct {
	URI         string
	Name        string
	Title       string
	Description string
	Content     string
}

var docResources = []docResource{
	{
		URI:         "listings://docs/lifecycle",
		Name:        "docs_lifecycle",
		Title:       "Listing lifecycle rules",
		Description: "How display status is derived, when listings expire and what repost does.",
		Content: `# Listing lifecycle

## Display status

The display status is derived from the stored record and the current time, first match wins:

1. stored ` + "`closed`" + ` shows **Closed** with the close date.
2. stored ` + "`draft`" + ` shows **Draft** with the creation date.
3. an expiry in the past shows **Expired**, whatever the stored status.
4. stored ` + "`expired`" + ` shows **Expired**.
5. no expiry shows **Active**. Listings published before expiry tracking never expire.
6. expiry within 7 days shows **Expiring Soon**.
7. otherwise **Active** with the expiry date.

Reading never changes a listing. The stored status of active listings past their expiry is
switched to ` + "`expired`" + ` by a sweep, which runs before list_listings, on sweep_expired and
on a schedule. A sweep that changes nothing writes nothing.

## Publishing

- Saving as draft clears the expiry.
- Saving as active from draft, expired or a new listing sets expiry to now + 14 days.
- Saving an active listing as active keeps its expiry.

## Repost

Only listings shown as Expired can be reposted. Repost sets status active and expiry to now + 14 days.
bulk_repost uses one shared expiry for every selected listing and changes nothing if any selected
listing is missing or not expired.
`,
	},
	{
		URI:         "listings://docs/storage",
		Name:        "docs_storage",
		Title:       "Listing storage and failure modes",
		Description: "What happens when storage is full or the stored collection is corrupt.",
		Content: `# Storage

All listings live in one slot as a JSON array, photos included as JPEG data URIs
(at most 1200px on the long side).

## Full storage

When a save exceeds the storage quota, closed listings closed more than 60 days ago are evicted and
the save is retried once. If it still does not fit the save fails with SAVE_FAILED and the stored
collection is unchanged. Evictions are recorded as ` + "`listings_evicted`" + ` activity.

## Corrupt storage

When the slot cannot be decoded, a recovery pass rewrites every listing slot keeping active listings
and drafts younger than 30 days, and removes slots that cannot be decoded at all. If the slot still
cannot be read the call fails with STORAGE_UNAVAILABLE.

## Other writers

Another process writing the same slot triggers a full reload. There is no merge: the last writer wins.
`,
	},
}

func registerDocResources(server *sdkmcp.Server) {
	for _, doc := range docResources {
		doc := doc

		server.AddResource(&sdkmcp.Resource{
			URI:         doc.URI,
			Name:        doc.Name,
			Title:       doc.Title,
			Description: doc.Description,
			MIMEType:    "text/markdown",
			Size:        int64(len(doc.Content)),
		}, func(_ context.Context, req *sdkmcp.ReadResourceRequest) (*sdkmcp.ReadResourceResult, error) {
			uri := doc.URI
			if req != nil && req.Params != nil && req.Params.URI != "" {
				uri = req.Params.URI
			}
			return &sdkmcp.ReadResourceResult{
				Contents: []*sdkmcp.ResourceContents{{
					URI:      uri,
					MIMEType: "text/markdown",
					Text:     doc.Content,
				}},
			}, nil
		})
	}
}
