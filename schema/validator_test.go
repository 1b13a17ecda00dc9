package payloadschema

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestValidatePendingItems_Valid(t *testing.T) {
	payload := json.RawMessage(`[
		{"id": 42, "url": "https://news.google.com/rss/articles/abc"},
		{"id": "task-7", "url": "https://news.google.com/rss/articles/def"}
	]`)

	items, err := ValidatePendingItems(payload)
	if err != nil {
		t.Fatalf("expected payload to be valid, got error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if string(items[0].ID) != "42" {
		t.Fatalf("expected integer id echoed as raw JSON, got %q", items[0].ID)
	}
	if string(items[1].ID) != `"task-7"` {
		t.Fatalf("expected string id echoed as raw JSON, got %q", items[1].ID)
	}
	if items[0].URL != "https://news.google.com/rss/articles/abc" {
		t.Fatalf("unexpected url %q", items[0].URL)
	}
}

func TestValidatePendingItems_EmptyArray(t *testing.T) {
	items, err := ValidatePendingItems(json.RawMessage(`[]`))
	if err != nil {
		t.Fatalf("expected empty array to be valid, got error: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expected no items, got %d", len(items))
	}
}

func TestValidatePendingItems_MissingURL(t *testing.T) {
	_, err := ValidatePendingItems(json.RawMessage(`[{"id": 1}]`))
	if err == nil {
		t.Fatalf("expected validation to fail for a missing url")
	}
}

func TestValidatePendingItems_UnknownField(t *testing.T) {
	_, err := ValidatePendingItems(json.RawMessage(`[{"id": 1, "url": "https://a.com/x", "extra": true}]`))
	if err == nil {
		t.Fatalf("expected validation to fail for an unknown field")
	}
}

func TestValidatePendingItems_NotAnArray(t *testing.T) {
	_, err := ValidatePendingItems(json.RawMessage(`{"id": 1, "url": "https://a.com/x"}`))
	if err == nil {
		t.Fatalf("expected validation to fail for a non-array payload")
	}
}

func TestValidatePendingItems_InvalidURL(t *testing.T) {
	_, err := ValidatePendingItems(json.RawMessage(`[{"id": 1, "url": "not a url"}]`))
	if err == nil {
		t.Fatalf("expected validation to fail for an invalid url")
	}
	if !strings.Contains(err.Error(), "not a valid URI") {
		t.Fatalf("expected URI semantic error, got: %v", err)
	}
}

func TestValidatePendingItems_TrailingContent(t *testing.T) {
	_, err := ValidatePendingItems(json.RawMessage(`[] []`))
	if err == nil {
		t.Fatalf("expected validation to fail for trailing content")
	}
}
