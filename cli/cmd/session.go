package cmd

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/imagine/cli/config"
	"github.com/pithecene-io/imagine/state"
)

// SessionFlag points at the session state file. When set, gallery
// commands resume paging from the cached items and delete updates the
// cached collections.
var SessionFlag = &cli.StringFlag{
	Name:    "session",
	Aliases: []string{"s"},
	Usage:   "Session state file for resumable paging",
}

// loadSession opens the session store named by --session or config.
// Returns a nil store when no session is configured. A missing file
// starts a fresh session; a corrupt file is discarded with a warning
// rather than failing the command.
func loadSession(c *cli.Context, cfg *config.Config, pageLimit int) (*state.Store, string) {
	path := c.String("session")
	if path == "" {
		path = cfg.Session
	}
	if path == "" {
		return nil, ""
	}

	store := state.NewStore(state.StoreConfig{PageLimit: pageLimit})
	data, err := os.ReadFile(path)
	if err != nil {
		return store, path
	}
	if err := store.Restore(data); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: discarding unreadable session %s: %v\n", path, err)
		store = state.NewStore(state.StoreConfig{PageLimit: pageLimit})
	}
	return store, path
}

// saveSession snapshots the store to the session file.
func saveSession(store *state.Store, path string) {
	data, err := store.Snapshot()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to snapshot session: %v\n", err)
		return
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to write session %s: %v\n", path, err)
	}
}
