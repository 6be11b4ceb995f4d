package tools

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/chris/whispr/internal/browser"
)

type fakeBrowser struct {
	active    *browser.Tab
	text      string
	bookmarks []browser.Bookmark
	opened    []string
	err       error
}

func (f *fakeBrowser) ActiveTab(context.Context) (*browser.Tab, error) {
	if f.active == nil {
		return nil, browser.ErrNoActiveTab
	}
	return f.active, nil
}

func (f *fakeBrowser) OpenTab(_ context.Context, url string, _ bool) (*browser.Tab, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.opened = append(f.opened, url)
	return &browser.Tab{ID: 10 + len(f.opened), URL: url}, nil
}

func (f *fakeBrowser) PageText(context.Context, int) (string, error) { return f.text, nil }

func (f *fakeBrowser) CreateBookmark(_ context.Context, b browser.Bookmark) (*browser.Bookmark, error) {
	if f.err != nil {
		return nil, f.err
	}
	b.ID = strconv.Itoa(len(f.bookmarks) + 1)
	f.bookmarks = append(f.bookmarks, b)
	return &b, nil
}

func browserRegistry(b browser.Browser) *Registry {
	return NewRegistry().MustRegister(BrowserTools(b)...)
}

func TestBookmarkPage(t *testing.T) {
	fb := &fakeBrowser{active: &browser.Tab{ID: 1, URL: "https://go.dev/doc", Title: "Documentation"}}
	r := browserRegistry(fb)

	out, err := r.Invoke(context.Background(), "bookmark_page", nil)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if out != "Bookmark created: Documentation (ID: 1)" {
		t.Errorf("unexpected result %q", out)
	}
	if len(fb.bookmarks) != 1 || fb.bookmarks[0].URL != "https://go.dev/doc" {
		t.Errorf("unexpected bookmarks %+v", fb.bookmarks)
	}
}

func TestBookmarkPage_TitleFallback(t *testing.T) {
	long := "https://example.com/" + strings.Repeat("a", 80)
	fb := &fakeBrowser{active: &browser.Tab{ID: 1, URL: long}}
	r := browserRegistry(fb)

	if _, err := r.Invoke(context.Background(), "bookmark_page", map[string]any{"folder_id": "7"}); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	want := "Bookmark: " + long[:50] + "..."
	if fb.bookmarks[0].Title != want {
		t.Errorf("title = %q, want %q", fb.bookmarks[0].Title, want)
	}
	if fb.bookmarks[0].ParentID != "7" {
		t.Errorf("parent = %q, want 7", fb.bookmarks[0].ParentID)
	}
}

func TestBookmarkPage_Rejects(t *testing.T) {
	tests := []struct {
		name string
		tab  *browser.Tab
		want string
	}{
		{"no active tab", nil, "no active tab"},
		{"no url", &browser.Tab{ID: 1}, "without a URL"},
		{"chrome page", &browser.Tab{ID: 1, URL: "chrome://settings"}, "internal browser pages"},
		{"edge page", &browser.Tab{ID: 1, URL: "edge://flags"}, "internal browser pages"},
		{"about page", &browser.Tab{ID: 1, URL: "about:blank"}, "internal browser pages"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb := &fakeBrowser{active: tt.tab}
			_, err := browserRegistry(fb).Invoke(context.Background(), "bookmark_page", nil)
			var eerr *ExecutionError
			if !errors.As(err, &eerr) {
				t.Fatalf("expected *ExecutionError, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected %q in error, got %v", tt.want, err)
			}
			if len(fb.bookmarks) != 0 {
				t.Errorf("expected no bookmark, got %+v", fb.bookmarks)
			}
		})
	}
}

func TestOpenTab(t *testing.T) {
	fb := &fakeBrowser{}
	r := browserRegistry(fb)

	out, err := r.Invoke(context.Background(), "open_tab", map[string]any{"url": "go.dev"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if out != "Opened tab 11: https://go.dev" {
		t.Errorf("unexpected result %q", out)
	}

	_, err = r.Invoke(context.Background(), "open_tab", map[string]any{"url": "javascript:alert(1)"})
	if err == nil || !strings.Contains(err.Error(), "unsupported url scheme") {
		t.Errorf("expected scheme rejection, got %v", err)
	}

	_, err = r.Invoke(context.Background(), "open_tab", map[string]any{})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("expected *ValidationError for missing url, got %v", err)
	}
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"go.dev", "https://go.dev", false},
		{"  http://example.com/a?b=c  ", "http://example.com/a?b=c", false},
		{"localhost:8080/x", "https://localhost:8080/x", false},
		{"ftp://example.com", "", true},
		{"file:///etc/passwd", "", true},
		{"mailto:me@example.com", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeURL(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NormalizeURL(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("NormalizeURL(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCreateBookmarkFolder(t *testing.T) {
	fb := &fakeBrowser{}
	out, err := browserRegistry(fb).Invoke(context.Background(), "create_bookmark_folder",
		map[string]any{"title": "Reading", "parent_id": "1"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if out != "Folder created: Reading (ID: 1)" {
		t.Errorf("unexpected result %q", out)
	}
	if !fb.bookmarks[0].IsFolder() {
		t.Errorf("expected a folder, got %+v", fb.bookmarks[0])
	}
}

func TestGetPageText(t *testing.T) {
	tab := &browser.Tab{ID: 3, URL: "https://example.com"}

	fb := &fakeBrowser{active: tab, text: "  Hello world  "}
	out, err := browserRegistry(fb).Invoke(context.Background(), "get_page_text", nil)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if out != "Hello world" {
		t.Errorf("unexpected text %q", out)
	}

	fb = &fakeBrowser{active: tab, text: strings.Repeat("é", maxPageText+5)}
	out, err = browserRegistry(fb).Invoke(context.Background(), "get_page_text", nil)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if !strings.HasSuffix(out, "... (truncated)") {
		t.Errorf("expected truncation marker, got suffix %q", out[len(out)-20:])
	}

	fb = &fakeBrowser{active: tab, text: "   "}
	_, err = browserRegistry(fb).Invoke(context.Background(), "get_page_text", nil)
	if err == nil || !strings.Contains(err.Error(), "no text content found on page") {
		t.Errorf("expected empty page error, got %v", err)
	}
}
