package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/imagine/cli/render"
	"github.com/pithecene-io/imagine/cli/tui"
	"github.com/pithecene-io/imagine/gallery"
	"github.com/pithecene-io/imagine/types"
)

// RelatedCommand returns the related command.
func RelatedCommand() *cli.Command {
	return &cli.Command{
		Name:  "related",
		Usage: "List images related to a focused image",
		Flags: append(ReadOnlyFlags(),
			&cli.StringFlag{
				Name:     "id",
				Usage:    "Focused image ID",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "theme",
				Usage: "Theme of the focused image",
			},
			&cli.StringFlag{
				Name:  "type",
				Usage: "Paperware type of the focused image",
			},
			&cli.StringFlag{
				Name:  "selections",
				Usage: "Design attribute selections as JSON",
				Value: "{}",
			},
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
		Action: relatedAction,
	}
}

func relatedAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	baseURL, err := resolveBaseURL(c, cfg)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	var selections map[string]string
	if err := json.Unmarshal([]byte(c.String("selections")), &selections); err != nil {
		return fmt.Errorf("invalid selections JSON: %w", err)
	}

	theme := c.String("theme")
	if theme == "" {
		theme = cfg.Theme
	}
	rtype := c.String("type")
	if rtype == "" {
		rtype = cfg.Type
	}

	query := types.RelatedQuery{
		ID:         c.String("id"),
		Theme:      theme,
		Type:       rtype,
		Selections: selections,
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
		// A query-key change resets the gallery; the same key resumes
		// paging from the restored items.
		store.SetRelatedKey(query.Key())
		coll = store.Related()
	} else {
		coll = gallery.NewCollection(gallery.CollectionConfig{Limit: c.Int("limit")})
	}
	fetch := func(ctx context.Context, offset, limit int) (types.Page, error) {
		return client.Related(ctx, query, offset, limit)
	}

	for page := 0; page < c.Int("pages"); page++ {
		appendMode := page > 0 || (store != nil && coll.Len() > 0)
		if err := coll.LoadPage(c.Context, fetch, page, appendMode); err != nil {
			return err
		}
		if !coll.HasMore() {
			break
		}
	}
	if store != nil {
		store.MarkRelatedLoaded(query.Key())
		saveSession(store, sessionPath)
	}

	items := coll.Items()
	if c.Bool("tui") {
		return tui.Run("gallery_related", items)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	return r.Render(galleryResponse(items, coll.Total(), coll.HasMore()))
}
