package save

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joeycumines/turnkeeper/internal/storage"
)

// ExportExt is the extension of exported save files.
const ExportExt = ".save"

// Encode serializes rec to the export text form: compressed JSON in an
// ASCII-safe alphabet.
func Encode(rec *Record) (string, error) {
	return storage.Base64Codec{}.Encode(rec)
}

// Decode parses export text. Uncompressed JSON, recognized by a leading
// '{', is accepted as well.
func Decode(text string) (*Record, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty export", ErrMalformedSave)
	}
	var rec Record
	if strings.HasPrefix(text, "{") {
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedSave, err)
		}
		return &rec, nil
	}
	if err := (storage.Base64Codec{}).Decode(text, &rec); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedSave, err)
	}
	return &rec, nil
}

// Export serializes the live history.
func (o *Orchestrator) Export() (string, error) {
	if err := o.allowed(); err != nil {
		return "", err
	}
	rec, err := o.Marshal()
	if err != nil {
		return "", err
	}
	return Encode(rec)
}

// ExportFile writes the live history to path, or to a generated file name
// in the current directory when path is empty. It returns the path written.
func (o *Orchestrator) ExportFile(path string) (string, error) {
	text, err := o.Export()
	if err != nil {
		return "", err
	}
	if path == "" {
		path = ExportFileName(o.opts.ID, o.opts.Now())
	}
	if err := storage.AtomicWriteFile(path, []byte(text), 0644); err != nil {
		return "", fmt.Errorf("export: %w", err)
	}
	return path, nil
}

// ExportFileName returns the default export file name for a story at t.
func ExportFileName(id string, t time.Time) string {
	slug := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, id)
	if slug == "" {
		slug = "story"
	}
	return filepath.Clean(slug + "-" + t.Format("20060102-150405") + ExportExt)
}

// Import restores the live history from export text. A failed restore is a
// *LoadError.
func (o *Orchestrator) Import(text string) error {
	return o.importText(context.Background(), text)
}

func (o *Orchestrator) importText(ctx context.Context, text string) error {
	rec, err := Decode(text)
	if err != nil {
		le := loadError(err)
		o.logger.Warn("save: import failed", "message", le.Message, "error", err)
		return le
	}
	return o.apply(ctx, rec)
}

// ImportFile reads path in the background and restores the live history
// from it under the orchestrator lock. done is called exactly once, from
// the reading goroutine, with the outcome; the caller does not block. If
// ctx is done before the record is applied, nothing changes and done gets
// ctx's error.
func (o *Orchestrator) ImportFile(ctx context.Context, path string, done func(error)) {
	go func() {
		data, err := os.ReadFile(path)
		if err != nil {
			done(fmt.Errorf("import: %w", err))
			return
		}
		done(o.importText(ctx, string(data)))
	}()
}
