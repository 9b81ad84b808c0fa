package models

import (
	"fmt"
	"time"
)

// Fields is the column map of a tabular record, keyed by field name.
type Fields map[string]interface{}

// Record mirrors the upstream REST record shape
type Record struct {
	ID          string `json:"id"`
	CreatedTime string `json:"createdTime,omitempty"`
	Fields      Fields `json:"fields"`
}

// SortSpec orders list results by a single field
type SortSpec struct {
	Field     string `json:"field"`
	Direction string `json:"direction,omitempty"` // "asc" (default) or "desc"
}

// ListOptions restricts and orders a list call
type ListOptions struct {
	Fields   []string   `json:"fields,omitempty"`
	Sort     []SortSpec `json:"sort,omitempty"`
	PageSize int        `json:"pageSize,omitempty"`
}

// Page is one upstream page of a list call. An empty Offset means last page.
type Page struct {
	Records []Record `json:"records"`
	Offset  string   `json:"offset,omitempty"`
}

// UpstreamError carries a non-success upstream response so it can be
// relayed to the caller byte-for-byte.
type UpstreamError struct {
	StatusCode int
	Body       []byte
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned status %d: %s", e.StatusCode, string(e.Body))
}

// String returns a string field or "" when missing or of another type.
func (f Fields) String(name string) string {
	if s, ok := f[name].(string); ok {
		return s
	}
	return ""
}

// Int returns a numeric field as int. JSON numbers decode as float64.
func (f Fields) Int(name string) int {
	switch v := f[name].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	}
	return 0
}

// Bool returns a checkbox field; unchecked boxes are absent upstream.
func (f Fields) Bool(name string) bool {
	b, _ := f[name].(bool)
	return b
}

// Time parses an RFC3339 timestamp field.
func (f Fields) Time(name string) (time.Time, bool) {
	s := f.String(name)
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// LinkedIDs extracts record ids from a linked-record field. Both plain id
// arrays and arrays of {id: ...} objects are accepted.
func (f Fields) LinkedIDs(name string) []string {
	var ids []string
	switch v := f[name].(type) {
	case []interface{}:
		for _, item := range v {
			switch link := item.(type) {
			case string:
				ids = append(ids, link)
			case map[string]interface{}:
				if id, ok := link["id"].(string); ok {
					ids = append(ids, id)
				}
			}
		}
	case []string:
		ids = append(ids, v...)
	}
	return ids
}

// LinksTo reports whether a linked-record field references id.
func (f Fields) LinksTo(name, id string) bool {
	for _, linked := range f.LinkedIDs(name) {
		if linked == id {
			return true
		}
	}
	return false
}
