package sessionstore

import (
	"fmt"
	"os"

	"github.com/tidwall/sjson"
)

// SetActiveTab patches only the active_tab field of a session file
// in-place, without decoding and re-encoding the whole tab tree — useful
// for the common case of switching tabs, which would otherwise round-trip
// a potentially large layout on every tab switch.
func (s *JSONStore) SetActiveTab(name string, activeTabOneBased int) error {
	path := s.path(name)
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("sessionstore: patch %q: %w", name, err)
	}
	patched, err := sjson.SetBytes(data, "active_tab", activeTabOneBased)
	if err != nil {
		return fmt.Errorf("sessionstore: patch %q: %w", name, err)
	}
	return os.WriteFile(path, patched, 0644)
}

// SetChildRatio patches a single child's ratio within tabIndex's tree
// without touching the rest of the document, for the common case of a
// client interactively resizing one split.
func (s *JSONStore) SetChildRatio(name string, tabIndex, childIndex int, ratio float64) error {
	path := s.path(name)
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("sessionstore: patch %q: %w", name, err)
	}
	pathExpr := fmt.Sprintf("tabs.%d.root.children.%d.ratio", tabIndex, childIndex)
	patched, err := sjson.SetBytes(data, pathExpr, ratio)
	if err != nil {
		return fmt.Errorf("sessionstore: patch %q: %w", name, err)
	}
	return os.WriteFile(path, patched, 0644)
}
