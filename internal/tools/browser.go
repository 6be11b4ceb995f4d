package tools

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/chris/whispr/internal/browser"
)

const maxPageText = 10000

var (
	internalPrefixes = []string{"chrome://", "edge://", "about:", "chrome-extension://"}
	opaqueSchemes    = []string{"about:", "javascript:", "data:", "mailto:", "file:", "blob:"}
)

// BrowserTools returns the tool set that drives b.
func BrowserTools(b browser.Browser) []Definition {
	return []Definition{
		{
			Name:        "bookmark_page",
			Description: "Bookmark the currently active tab. Use this when the user asks to save, bookmark, or remember the current page.",
			Schema: obj(map[string]*jsonschema.Schema{
				"title":     prop("string", "Bookmark title. Defaults to the page title."),
				"folder_id": prop("string", "Optional folder ID to put the bookmark in"),
			}),
			Handler: func(ctx context.Context, args map[string]any) (string, error) {
				return bookmarkPage(ctx, b, args)
			},
		},
		{
			Name:        "open_tab",
			Description: "Open a URL in a new browser tab.",
			Schema: objReq(map[string]*jsonschema.Schema{
				"url":    prop("string", "The URL to open. https:// is assumed when no scheme is given."),
				"active": prop("boolean", "Whether to focus the new tab (default true)"),
			}, "url"),
			Handler: func(ctx context.Context, args map[string]any) (string, error) {
				return openTab(ctx, b, args)
			},
		},
		{
			Name:        "create_bookmark_folder",
			Description: "Create a bookmark folder. Returns the folder ID for use with bookmark_page.",
			Schema: objReq(map[string]*jsonschema.Schema{
				"title":     prop("string", "Folder name"),
				"parent_id": prop("string", "Optional parent folder ID"),
			}, "title"),
			Handler: func(ctx context.Context, args map[string]any) (string, error) {
				title, _ := getString(args, "title")
				if strings.TrimSpace(title) == "" {
					return "", errors.New("folder title must not be empty")
				}
				parent, _ := getString(args, "parent_id")
				f, err := b.CreateBookmark(ctx, browser.Bookmark{Title: title, ParentID: parent})
				if err != nil {
					return "", fmt.Errorf("creating folder: %w", err)
				}
				return fmt.Sprintf("Folder created: %s (ID: %s)", f.Title, f.ID), nil
			},
		},
		{
			Name:        "get_page_text",
			Description: "Read the visible text of the currently active tab. Use this to answer questions about the current page.",
			Schema:      obj(nil),
			Handler: func(ctx context.Context, _ map[string]any) (string, error) {
				return pageText(ctx, b)
			},
		},
	}
}

func bookmarkPage(ctx context.Context, b browser.Browser, args map[string]any) (string, error) {
	tab, err := b.ActiveTab(ctx)
	if err != nil {
		return "", fmt.Errorf("finding active tab: %w", err)
	}
	if tab == nil {
		return "", browser.ErrNoActiveTab
	}
	if tab.URL == "" {
		return "", errors.New("cannot bookmark a page without a URL")
	}
	if isInternalPage(tab.URL) {
		return "", errors.New("cannot bookmark internal browser pages")
	}

	title, _ := getString(args, "title")
	if title == "" {
		title = tab.Title
	}
	if title == "" {
		title = "Bookmark: " + truncate(tab.URL, 50) + "..."
	}
	folder, _ := getString(args, "folder_id")

	bm, err := b.CreateBookmark(ctx, browser.Bookmark{Title: title, URL: tab.URL, ParentID: folder})
	if err != nil {
		return "", fmt.Errorf("creating bookmark: %w", err)
	}
	return fmt.Sprintf("Bookmark created: %s (ID: %s)", bm.Title, bm.ID), nil
}

func openTab(ctx context.Context, b browser.Browser, args map[string]any) (string, error) {
	raw, _ := getString(args, "url")
	target, err := NormalizeURL(raw)
	if err != nil {
		return "", err
	}
	active, ok := getBool(args, "active")
	if !ok {
		active = true
	}
	tab, err := b.OpenTab(ctx, target, active)
	if err != nil {
		return "", fmt.Errorf("opening tab: %w", err)
	}
	return fmt.Sprintf("Opened tab %d: %s", tab.ID, tab.URL), nil
}

func pageText(ctx context.Context, b browser.Browser) (string, error) {
	tab, err := b.ActiveTab(ctx)
	if err != nil {
		return "", fmt.Errorf("finding active tab: %w", err)
	}
	if tab == nil {
		return "", browser.ErrNoActiveTab
	}
	text, err := b.PageText(ctx, tab.ID)
	if err != nil {
		return "", fmt.Errorf("reading page text: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.New("no text content found on page")
	}
	if utf8.RuneCountInString(text) > maxPageText {
		text = truncate(text, maxPageText) + "... (truncated)"
	}
	return text, nil
}

// NormalizeURL adds https:// to a bare host and rejects anything that is
// not http or https.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("url must not be empty")
	}
	if !strings.Contains(raw, "://") && !hasOpaqueScheme(raw) {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid url %q: missing host", raw)
	}
	return u.String(), nil
}

func hasOpaqueScheme(raw string) bool {
	lower := strings.ToLower(raw)
	for _, p := range opaqueSchemes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}

func isInternalPage(u string) bool {
	for _, p := range internalPrefixes {
		if strings.HasPrefix(u, p) {
			return true
		}
	}
	return false
}

func getString(args map[string]any, key string) (string, bool) {
	v, ok := args[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func getBool(args map[string]any, key string) (bool, bool) {
	v, ok := args[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// truncate cuts s to n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
