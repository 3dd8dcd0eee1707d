package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/imagine/cli/render"
	"github.com/pithecene-io/imagine/gallery"
)

// DeleteResponse is the response for the delete command.
type DeleteResponse struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

// DeleteCommand returns the delete command.
// Unlike page fetches, delete failures surface as errors instead of
// degrading silently.
func DeleteCommand() *cli.Command {
	return &cli.Command{
		Name:  "delete",
		Usage: "Delete a generated image",
		Flags: append(ReadOnlyFlags(),
			&cli.StringFlag{
				Name:     "id",
				Usage:    "Image ID to delete",
				Required: true,
			},
		),
		Action: deleteAction,
	}
}

func deleteAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	baseURL, err := resolveBaseURL(c, cfg)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for delete", 1)
	}

	client, err := gallery.NewClient(gallery.ClientConfig{
		BaseURL: baseURL,
		Timeout: cfg.Timeout.Duration,
	})
	if err != nil {
		return err
	}

	id := c.String("id")
	if err := client.Delete(c.Context, id); err != nil {
		return cli.Exit(err.Error(), 1)
	}

	// Only confirmed deletes leave the local session.
	if store, sessionPath := loadSession(c, cfg, cfg.Gallery.PageLimit); store != nil {
		store.Delete(id)
		saveSession(store, sessionPath)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	return r.Render(DeleteResponse{ID: id, Deleted: true})
}
