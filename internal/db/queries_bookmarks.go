package db

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/chris/whispr/internal/browser"
)

// CreateBookmark stores a bookmark, or a folder when b.URL is empty. A
// parent must be an existing folder.
func (d *DB) CreateBookmark(ctx context.Context, b browser.Bookmark) (*browser.Bookmark, error) {
	parent, err := parseID(b.ParentID)
	if err != nil {
		return nil, err
	}
	if parent != nil {
		var url sql.NullString
		err := d.conn.QueryRowContext(ctx, "SELECT url FROM bookmarks WHERE id = ?", parent).Scan(&url)
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("folder %s not found", b.ParentID)
		}
		if err != nil {
			return nil, fmt.Errorf("looking up folder %s: %w", b.ParentID, err)
		}
		if url.Valid {
			return nil, fmt.Errorf("bookmark %s is not a folder", b.ParentID)
		}
	}

	res, err := d.conn.ExecContext(ctx,
		"INSERT INTO bookmarks (parent_id, title, url) VALUES (?, ?, ?)",
		parent, b.Title, nullStr(b.URL),
	)
	if err != nil {
		return nil, fmt.Errorf("creating bookmark: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("creating bookmark: %w", err)
	}
	b.ID = strconv.FormatInt(id, 10)
	return &b, nil
}

// ListBookmarks returns the children of parentID, or the top level when it
// is empty. Folders sort first.
func (d *DB) ListBookmarks(ctx context.Context, parentID string) ([]browser.Bookmark, error) {
	parent, err := parseID(parentID)
	if err != nil {
		return nil, err
	}
	query := "SELECT id, parent_id, title, url FROM bookmarks WHERE parent_id IS NULL ORDER BY url IS NOT NULL, id"
	args := []any{}
	if parent != nil {
		query = "SELECT id, parent_id, title, url FROM bookmarks WHERE parent_id = ? ORDER BY url IS NOT NULL, id"
		args = append(args, parent)
	}

	rows, err := d.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing bookmarks: %w", err)
	}
	defer rows.Close()

	var out []browser.Bookmark
	for rows.Next() {
		var id int64
		var parentCol sql.NullInt64
		var url sql.NullString
		var b browser.Bookmark
		if err := rows.Scan(&id, &parentCol, &b.Title, &url); err != nil {
			return nil, fmt.Errorf("scanning bookmark: %w", err)
		}
		b.ID = strconv.FormatInt(id, 10)
		if parentCol.Valid {
			b.ParentID = strconv.FormatInt(parentCol.Int64, 10)
		}
		b.URL = strOrEmpty(url)
		out = append(out, b)
	}
	return out, rows.Err()
}
