// internal/category/store.go
package category

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// FileStore keeps the whole collection as one JSON object on disk, keyed by id.
type FileStore struct {
	path   string
	tracer trace.Tracer
}

// NewFileStore creates a store backed by the JSON document at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{
		path:   path,
		tracer: otel.Tracer("categoryhub/category/store"),
	}
}

// Path returns the location of the backing document.
func (s *FileStore) Path() string {
	return s.path
}

// storedRecord mirrors Record with pointers so missing fields can be told apart
// from zero values.
type storedRecord struct {
	ID          *string `json:"id"`
	Name        *string `json:"name"`
	Description *string `json:"description"`
	IsActive    *bool   `json:"is_active"`
	ClassName   string  `json:"class_name"`
}

// LoadAll reads every category from disk. A missing file yields an empty collection.
func (s *FileStore) LoadAll(ctx context.Context) (*Collection, error) {
	_, span := s.tracer.Start(ctx, "categorystore.load",
		trace.WithAttributes(attribute.String("store.path", s.path)),
	)
	defer span.End()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		span.SetAttributes(attribute.Bool("store.missing", true))
		return NewCollection(), nil
	}
	if err != nil {
		return nil, s.fail(span, "load", err)
	}

	col, err := decodeDocument(data)
	if err != nil {
		return nil, s.fail(span, "load", err)
	}

	span.SetAttributes(attribute.Int("store.records", col.Len()))
	return col, nil
}

// SaveAll overwrites the document with every category in col, in collection order.
func (s *FileStore) SaveAll(ctx context.Context, col *Collection) error {
	_, span := s.tracer.Start(ctx, "categorystore.save",
		trace.WithAttributes(
			attribute.String("store.path", s.path),
			attribute.Int("store.records", col.Len()),
		),
	)
	defer span.End()

	data, err := encodeDocument(col)
	if err != nil {
		return s.fail(span, "save", err)
	}

	if err := writeFileAtomic(s.path, data); err != nil {
		return s.fail(span, "save", err)
	}

	return nil
}

func (s *FileStore) fail(span trace.Span, op string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return &StorageError{Op: op, Path: s.path, Err: err}
}

func decodeDocument(data []byte) (*Collection, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("document must be a JSON object")
	}

	col := NewCollection()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("read key: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v", tok)
		}

		var rec storedRecord
		if err := dec.Decode(&rec); err != nil {
			return nil, fmt.Errorf("decode record %q: %w", key, err)
		}

		c, err := rec.toCategory(key)
		if err != nil {
			return nil, fmt.Errorf("record %q: %w", key, err)
		}
		col.Put(c)
	}

	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("read document end: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("unexpected data after document")
	}

	return col, nil
}

func (r storedRecord) toCategory(key string) (*Category, error) {
	if r.Name == nil {
		return nil, fmt.Errorf("missing required field %q", "name")
	}

	rec := Record{
		ID:       key,
		Name:     *r.Name,
		IsActive: true,
	}
	if r.ID != nil && *r.ID != "" {
		rec.ID = *r.ID
	}
	if r.Description != nil {
		rec.Description = *r.Description
	}
	if r.IsActive != nil {
		rec.IsActive = *r.IsActive
	}

	return FromRecord(rec)
}

func encodeDocument(col *Collection) ([]byte, error) {
	var compact bytes.Buffer
	compact.WriteByte('{')
	for i, c := range col.All() {
		if i > 0 {
			compact.WriteByte(',')
		}
		key, err := marshalNoEscape(c.ID())
		if err != nil {
			return nil, err
		}
		value, err := marshalNoEscape(c.ToRecord())
		if err != nil {
			return nil, err
		}
		compact.Write(key)
		compact.WriteByte(':')
		compact.Write(value)
	}
	compact.WriteByte('}')

	var out bytes.Buffer
	if err := json.Indent(&out, compact.Bytes(), "", "  "); err != nil {
		return nil, fmt.Errorf("indent document: %w", err)
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".categories-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace document: %w", err)
	}

	return nil
}
