package tui

import (
	"fmt"
	"strings"

	"github.com/pithecene-io/imagine/types"
)

// Run starts the appropriate gallery TUI based on the view type.
// Live run views are driven directly by the generate command and do not
// route through here.
func Run(viewType string, items []types.GalleryItem) error {
	if !IsTUISupported(viewType) {
		return fmt.Errorf("TUI mode is not supported for %s", viewType)
	}

	title := strings.TrimPrefix(viewType, "gallery_")
	switch title {
	case "recent":
		title = "Recent Images"
	case "related":
		title = "Related Images"
	}

	return RunGalleryTUI(title, items)
}

// IsTUISupported returns true if the view type supports TUI mode.
func IsTUISupported(viewType string) bool {
	return strings.HasPrefix(viewType, "gallery_")
}

// SupportedTUIViews returns a list of view types that support TUI.
func SupportedTUIViews() []string {
	return []string{
		"gallery_recent",
		"gallery_related",
	}
}
