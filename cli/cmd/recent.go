package cmd

import (
	"context"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/imagine/cli/render"
	"github.com/pithecene-io/imagine/cli/tui"
	"github.com/pithecene-io/imagine/gallery"
	"github.com/pithecene-io/imagine/types"
)

// GalleryRow is one gallery item in list command output.
type GalleryRow struct {
	ID    string `json:"id"`
	Theme string `json:"theme"`
	Type  string `json:"type"`
}

// GalleryResponse is the response for gallery list commands.
type GalleryResponse struct {
	Items   []GalleryRow `json:"items"`
	Total   int          `json:"total"`
	HasMore bool         `json:"has_more"`
}

// RecentCommand returns the recent command.
func RecentCommand() *cli.Command {
	return &cli.Command{
		Name:  "recent",
		Usage: "List recently generated images",
		Flags: append(ReadOnlyFlags(),
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Page size",
				Value: 20,
			},
			&cli.IntFlag{
				Name:  "pages",
				Usage: "Number of pages to fetch",
				Value: 1,
			},
		),
		Action: recentAction,
	}
}

func recentAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	baseURL, err := resolveBaseURL(c, cfg)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	client, err := gallery.NewClient(gallery.ClientConfig{
		BaseURL: baseURL,
		Timeout: cfg.Timeout.Duration,
	})
	if err != nil {
		return err
	}

	store, sessionPath := loadSession(c, cfg, c.Int("limit"))
	var coll *gallery.Collection
	if store != nil {
		coll = store.Recent()
	} else {
		coll = gallery.NewCollection(gallery.CollectionConfig{Limit: c.Int("limit")})
	}
	fetch := func(ctx context.Context, offset, limit int) (types.Page, error) {
		return client.Recent(ctx, offset, limit)
	}

	for page := 0; page < c.Int("pages"); page++ {
		// With a session, restored pages count as covered and are not
		// refetched.
		appendMode := page > 0 || store != nil
		if err := coll.LoadPage(c.Context, fetch, page, appendMode); err != nil {
			return err
		}
		if !coll.HasMore() {
			break
		}
	}
	if store != nil {
		saveSession(store, sessionPath)
	}

	items := coll.Items()
	if c.Bool("tui") {
		return tui.Run("gallery_recent", items)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	return r.Render(galleryResponse(items, coll.Total(), coll.HasMore()))
}

func galleryResponse(items []types.GalleryItem, total int, hasMore bool) GalleryResponse {
	rows := make([]GalleryRow, 0, len(items))
	for _, item := range items {
		rows = append(rows, GalleryRow{ID: item.ID, Theme: item.Theme, Type: item.Type})
	}
	return GalleryResponse{Items: rows, Total: total, HasMore: hasMore}
}
