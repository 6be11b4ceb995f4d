package browser

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

const maxPageBytes = 5 << 20

// BookmarkStore persists bookmarks for the local browser.
type BookmarkStore interface {
	CreateBookmark(ctx context.Context, b Bookmark) (*Bookmark, error)
}

// Local is a headless browser used when no extension is connected: tabs
// live in memory, pages are fetched over HTTP and bookmarks go to a store.
type Local struct {
	store  BookmarkStore
	client *http.Client
	logger *slog.Logger

	mu     sync.Mutex
	tabs   map[int]*Tab
	active int
	nextID int
}

var _ Browser = (*Local)(nil)

func NewLocal(store BookmarkStore, logger *slog.Logger) *Local {
	if logger == nil {
		logger = slog.Default()
	}
	return &Local{
		store:  store,
		client: &http.Client{Timeout: 20 * time.Second},
		logger: logger,
		tabs:   make(map[int]*Tab),
		nextID: 1,
	}
}

func (l *Local) ActiveTab(context.Context) (*Tab, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.tabs[l.active]
	if !ok {
		return nil, ErrNoActiveTab
	}
	cp := *t
	return &cp, nil
}

func (l *Local) OpenTab(_ context.Context, url string, active bool) (*Tab, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t := &Tab{ID: l.nextID, URL: url}
	l.nextID++
	l.tabs[t.ID] = t
	if active || len(l.tabs) == 1 {
		l.active = t.ID
	}
	cp := *t
	return &cp, nil
}

// PageText fetches the tab's URL and extracts its text. The page title is
// recorded on the tab as a side effect.
func (l *Local) PageText(ctx context.Context, tabID int) (string, error) {
	l.mu.Lock()
	t, ok := l.tabs[tabID]
	var url string
	if ok {
		url = t.URL
	}
	l.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("tab %d not found", tabID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", "whispr/1.0")
	resp, err := l.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("fetching %s: status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", url, err)
	}
	title, text, err := ExtractText(resp.Header.Get("Content-Type"), body)
	if err != nil {
		return "", err
	}
	l.logger.Debug("fetched page", "tab", tabID, "url", url, "size", humanize.Bytes(uint64(len(body))))

	if title != "" {
		l.mu.Lock()
		if t, ok := l.tabs[tabID]; ok {
			t.Title = title
		}
		l.mu.Unlock()
	}
	return text, nil
}

func (l *Local) CreateBookmark(ctx context.Context, b Bookmark) (*Bookmark, error) {
	if l.store == nil {
		return nil, fmt.Errorf("no bookmark store configured")
	}
	return l.store.CreateBookmark(ctx, b)
}
