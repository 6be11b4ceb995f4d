package db

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"
)

// timeLayout matches sqlite's datetime('now').
const timeLayout = "2006-01-02 15:04:05"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullStr(s string) any {
	if s == "" || s == "null" {
		return nil
	}
	return s
}

func strOrEmpty(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// parseID converts a bookmark ID from its string form. Empty means none.
func parseID(s string) (any, error) {
	if s == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid bookmark id %q", s)
	}
	return id, nil
}
