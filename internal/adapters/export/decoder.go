// Package export decodes location export files produced by the backend.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jobrunner/mandor/internal/domain"
	"github.com/jobrunner/mandor/internal/ports/output"
)

// Format is the serialization of an export file.
type Format string

// Supported formats.
const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatOf derives the format from a file name.
func FormatOf(name string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		return FormatJSON, true
	case ".yaml", ".yml":
		return FormatYAML, true
	default:
		return "", false
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Decoder implements the ExportDecoder port.
type Decoder struct{}

// NewDecoder creates a new export decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

var _ output.ExportDecoder = (*Decoder)(nil)

// Supports returns true if the file name has a known export format.
func (d *Decoder) Supports(name string) bool {
	_, ok := FormatOf(name)
	return ok
}

// Decode reads the export file at path. The source of each location is left
// empty; the caller assigns it.
func (d *Decoder) Decode(ctx context.Context, path string) ([]domain.Location, error) {
	format, ok := FormatOf(path)
	if !ok {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), domain.ErrUnsupportedFormat)
	}

	f, err := os.Open(path) //#nosec G304 -- path is a controlled local path
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	return d.DecodeReader(ctx, f, format)
}

// DecodeReader decodes an export document in the given format.
func (d *Decoder) DecodeReader(ctx context.Context, r io.Reader, format Format) ([]domain.Location, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var doc any
	switch format {
	case FormatJSON:
		doc, err = decodeJSON(data)
	case FormatYAML:
		doc, err = decodeYAML(data)
	default:
		return nil, fmt.Errorf("format %q: %w", format, domain.ErrUnsupportedFormat)
	}
	if err != nil {
		return nil, fmt.Errorf("decoding %s export: %w", format, err)
	}

	records, err := recordsOf(doc)
	if err != nil {
		return nil, err
	}

	locations := make([]domain.Location, 0, len(records))
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if loc, ok := toLocation(rec); ok {
			locations = append(locations, loc)
		}
	}
	return locations, nil
}

func decodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func decodeYAML(data []byte) (any, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return normalizeYAML(doc), nil
}

// normalizeYAML converts decoded YAML into the shapes encoding/json produces:
// string keys only, finite float64 numbers.
func normalizeYAML(v any) any {
	switch v := v.(type) {
	case map[string]any:
		result := make(map[string]any, len(v))
		for key, value := range v {
			result[key] = normalizeYAML(value)
		}
		return result
	case map[any]any:
		result := make(map[string]any, len(v))
		for key, value := range v {
			result[fmt.Sprint(key)] = normalizeYAML(value)
		}
		return result
	case []any:
		result := make([]any, len(v))
		for i, value := range v {
			result[i] = normalizeYAML(value)
		}
		return result
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case uint64:
		return float64(v)
	case float64:
		// .nan and .inf have no JSON form; absent values are dropped on read.
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil
		}
		return v
	default:
		return v
	}
}

// recordsOf extracts the record list from a bare array or a response envelope.
func recordsOf(doc any) ([]map[string]any, error) {
	var list []any
	switch v := doc.(type) {
	case []any:
		list = v
	case map[string]any:
		for _, key := range []string{"locations", "data"} {
			if inner, ok := v[key].([]any); ok {
				list = inner
				break
			}
		}
		if list == nil {
			return nil, fmt.Errorf("no locations or data array: %w", domain.ErrUnsupportedFormat)
		}
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("unexpected top-level %T: %w", doc, domain.ErrUnsupportedFormat)
	}

	records := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if rec, ok := item.(map[string]any); ok {
			records = append(records, rec)
		}
	}
	return records, nil
}

func toLocation(rec map[string]any) (domain.Location, bool) {
	id := scalarString(rec["id"])
	if id == "" {
		return domain.Location{}, false
	}

	loc := domain.Location{
		ID:              id,
		Code:            firstString(rec, "code", "kode"),
		Name:            firstString(rec, "name", "nama"),
		PlantationGroup: firstString(rec, "pg", "plantation_group"),
		Wilayah:         firstString(rec, "wilayah", "region"),
		Address:         firstString(rec, "address", "alamat"),
		Coordinates:     firstValue(rec, "coordinates", "koordinat"),
		UpdatedAt:       parseTime(firstValue(rec, "updated_at", "updatedAt")),
	}
	return loc, true
}

func firstValue(rec map[string]any, keys ...string) any {
	for _, key := range keys {
		if v, ok := rec[key]; ok && v != nil {
			return v
		}
	}
	return nil
}

func firstString(rec map[string]any, keys ...string) string {
	for _, key := range keys {
		if s := scalarString(rec[key]); s != "" {
			return s
		}
	}
	return ""
}

// scalarString renders strings and numbers; anything else is empty.
func scalarString(v any) string {
	switch v := v.(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

func parseTime(v any) time.Time {
	switch v := v.(type) {
	case time.Time:
		return v.UTC()
	case string:
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, v); err == nil {
				return t.UTC()
			}
		}
	}
	return time.Time{}
}
