package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// ErrUnsupportedFormat is returned by Parse for unknown file extensions.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// IsDocumentFile reports whether name has an extension Parse understands.
func IsDocumentFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}

// Parse decodes raw bytes into a generic document map, choosing YAML or JSON
// by the extension of name.
func Parse(name string, data []byte) (map[string]any, error) {
	raw := make(map[string]any)
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
	case ".json":
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
	}
	if raw == nil {
		raw = make(map[string]any)
	}
	return raw, nil
}

// Decode converts a generic document map into a Document.
// Unknown keys are rejected so typos surface as schema issues.
func Decode(raw map[string]any) (*Document, error) {
	var doc Document
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			stringToActionSpec,
			stringToChoiceSpec,
		),
		ErrorUnused: true,
		Result:      &doc,
	})
	if err != nil {
		return nil, err
	}

	if err := decoder.Decode(raw); err != nil {
		var mErr *mapstructure.Error
		if errors.As(err, &mErr) {
			issues := make([]Issue, 0, len(mErr.Errors))
			for _, e := range mErr.Errors {
				issues = append(issues, Issue{Reason: e})
			}
			return nil, &SchemaError{Issues: issues}
		}
		return nil, &SchemaError{Issues: []Issue{{Reason: err.Error()}}}
	}
	return &doc, nil
}

func stringToActionSpec(from reflect.Type, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to != reflect.TypeOf(ActionSpec{}) {
		return data, nil
	}
	return map[string]any{"id": data}, nil
}

func stringToChoiceSpec(from reflect.Type, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to != reflect.TypeOf(ChoiceSpec{}) {
		return data, nil
	}
	return map[string]any{"id": data, "label": data}, nil
}
