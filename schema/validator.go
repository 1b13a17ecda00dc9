package payloadschema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed pending_items.schema.json
var pendingItemsSchemaJSON string

// PendingItem is one entry of a pending-resolution input file. The id is an
// opaque caller-supplied value (integer or string) echoed back on output,
// so it is carried as raw JSON.
type PendingItem struct {
	ID  json.RawMessage `json:"id"`
	URL string          `json:"url"`
}

var (
	compileOnce       sync.Once
	compiledSchema    *jsonschema.Schema
	compiledSchemaErr error
)

// ValidatePendingItems checks a pending-resolution payload (a JSON array of
// {id, url} objects) against the schema and returns the decoded items.
func ValidatePendingItems(payload json.RawMessage) ([]PendingItem, error) {
	value, err := decodeStrictJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("decode payload JSON: %w", err)
	}

	schema, err := loadSchema()
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}

	if err := schema.Validate(value); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	normalized, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("normalize payload JSON: %w", err)
	}

	var items []PendingItem
	if err := json.Unmarshal(normalized, &items); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}

	for i := range items {
		if err := validateSemantics(i, &items[i]); err != nil {
			return nil, err
		}
	}
	return items, nil
}

func loadSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020

		if err := compiler.AddResource("pending_items.schema.json", strings.NewReader(pendingItemsSchemaJSON)); err != nil {
			compiledSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}

		schema, err := compiler.Compile("pending_items.schema.json")
		if err != nil {
			compiledSchemaErr = fmt.Errorf("compile schema: %w", err)
			return
		}

		compiledSchema = schema
	})

	if compiledSchemaErr != nil {
		return nil, compiledSchemaErr
	}
	if compiledSchema == nil {
		return nil, fmt.Errorf("schema not initialized")
	}
	return compiledSchema, nil
}

func decodeStrictJSON(raw []byte) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("payload is empty")
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("payload contains trailing content")
	}

	return value, nil
}

func validateSemantics(index int, item *PendingItem) error {
	if len(bytes.TrimSpace(item.ID)) == 0 {
		return fmt.Errorf("items[%d].id must not be empty", index)
	}
	trimmed := strings.TrimSpace(item.URL)
	if trimmed == "" {
		return fmt.Errorf("items[%d].url must not be empty", index)
	}
	if _, err := url.ParseRequestURI(trimmed); err != nil {
		return fmt.Errorf("items[%d].url is not a valid URI: %w", index, err)
	}
	return nil
}
