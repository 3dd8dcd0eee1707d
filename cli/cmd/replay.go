package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/imagine/archive"
	"github.com/pithecene-io/imagine/cli/render"
	"github.com/pithecene-io/imagine/log"
	"github.com/pithecene-io/imagine/runtime"
)

// ReplaySetRow is one reconstructed set in replay output.
type ReplaySetRow struct {
	Slot     int    `json:"slot"`
	ID       string `json:"id"`
	Variants int    `json:"variants"`
}

// ReplayResponse is the response for the replay command.
type ReplayResponse struct {
	RunID    string         `json:"run_id"`
	Prompt   string         `json:"prompt,omitempty"`
	Sets     []ReplaySetRow `json:"sets"`
	Errors   []string       `json:"errors,omitempty"`
	Received int64          `json:"events_received"`
	Applied  int64          `json:"variants_applied"`
	Ignored  int64          `json:"events_ignored"`
}

// ReplayCommand returns the replay command. Replay rebuilds a collection
// from an archived event stream without contacting the backend.
func ReplayCommand() *cli.Command {
	return &cli.Command{
		Name:  "replay",
		Usage: "Rebuild a run's collection from its archived events",
		Flags: append(ReadOnlyFlags(),
			&cli.StringFlag{
				Name:     "run-id",
				Usage:    "Run ID to replay",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "archive-path",
				Usage: "Archive root directory",
			},
			&cli.StringFlag{
				Name:  "archive-dataset",
				Usage: "Archive dataset name",
				Value: defaultDataset,
			},
			&cli.StringFlag{
				Name:  "theme",
				Usage: "Theme recorded for the run",
			},
			&cli.StringFlag{
				Name:  "type",
				Usage: "Paperware type recorded for the run",
			},
		),
		Action: replayAction,
	}
}

func replayAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for replay", 1)
	}

	root := c.String("archive-path")
	if root == "" {
		root = cfg.Archive.Path
	}
	if root == "" {
		return cli.Exit("no archive path: set --archive-path or archive.path in imagine.yaml", 1)
	}

	reader, err := archive.NewLodeReader(c.String("archive-dataset"), root)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}

	runID := c.String("run-id")
	result, err := runtime.Replay(c.Context, reader, runID,
		c.String("theme"), c.String("type"), log.NewLogger(runID))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	resp := ReplayResponse{
		RunID:    result.RunID,
		Prompt:   result.Prompt,
		Errors:   result.Errors,
		Received: result.Stats.EventsReceived,
		Applied:  result.Stats.VariantsApplied,
		Ignored:  result.Stats.EventsIgnored,
	}
	for _, set := range result.Sets {
		resp.Sets = append(resp.Sets, ReplaySetRow{
			Slot:     set.Slot,
			ID:       set.ID,
			Variants: len(set.Variants),
		})
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	return r.Render(resp)
}
