package models

import "fmt"

// WindowHandle is an opaque reference to the application's native window.
// It is owned by the UI toolkit and only borrowed by the harness.
type WindowHandle struct {
	TargetID string `json:"target_id"`
	WindowID int64  `json:"window_id,omitempty"` // 0 when the browser does not expose window IDs
	Title    string `json:"title"`
	URL      string `json:"url"`
}

// IsZero reports whether the handle refers to nothing
func (h WindowHandle) IsZero() bool {
	return h.TargetID == ""
}

func (h WindowHandle) String() string {
	if h.WindowID != 0 {
		return fmt.Sprintf("%s (window %d, %q)", h.TargetID, h.WindowID, h.Title)
	}
	return fmt.Sprintf("%s (%q)", h.TargetID, h.Title)
}

// ElementHandle references a node found in the rendered document
type ElementHandle struct {
	NodeID    int64  `json:"node_id"`
	LocalName string `json:"local_name"`
	Selector  string `json:"selector"`
}
