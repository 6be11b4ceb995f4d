// Package browser describes the host browser the agent's tools act on.
package browser

import (
	"context"
	"errors"
)

// ErrNoActiveTab is returned when there is no focused tab to act on.
var ErrNoActiveTab = errors.New("no active tab")

type Tab struct {
	ID    int    `json:"id"`
	URL   string `json:"url"`
	Title string `json:"title"`
}

// Bookmark is a bookmark or, when URL is empty, a folder.
type Bookmark struct {
	ID       string `json:"id"`
	ParentID string `json:"parentId,omitempty"`
	Title    string `json:"title"`
	URL      string `json:"url,omitempty"`
}

func (b Bookmark) IsFolder() bool { return b.URL == "" }

// Browser is the capability surface tools are written against. The
// websocket extension bridge and the local headless browser both
// implement it.
type Browser interface {
	ActiveTab(ctx context.Context) (*Tab, error)
	OpenTab(ctx context.Context, url string, active bool) (*Tab, error)
	PageText(ctx context.Context, tabID int) (string, error)
	CreateBookmark(ctx context.Context, b Bookmark) (*Bookmark, error)
}
