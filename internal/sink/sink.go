package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vitalsync/vitalsync/internal/core"
	verrors "github.com/vitalsync/vitalsync/internal/errors"
)

// Sink receives converted records for durable delivery downstream.
type Sink interface {
	Publish(ctx context.Context, records []core.Record) error
	Close() error
}

// Config selects and configures the record sink.
type Config struct {
	// Type is one of "stdout", "file", or "s3".
	Type string `mapstructure:"type"`
	// Path is the output file for the file sink.
	Path string `mapstructure:"path"`

	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
	Region string `mapstructure:"region"`
}

// Open builds the sink named by cfg.Type, defaulting to stdout.
func Open(ctx context.Context, cfg Config) (Sink, error) {
	switch cfg.Type {
	case "", "stdout":
		return NewWriter(os.Stdout, false), nil
	case "file":
		if cfg.Path == "" {
			return nil, verrors.New(verrors.KindValidation, "file sink requires a path")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, verrors.Wrap(verrors.KindGeneric, err, "create sink directory")
		}
		f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, verrors.Wrap(verrors.KindGeneric, err, "open sink file")
		}
		return NewWriter(f, true), nil
	case "s3":
		return NewS3(ctx, cfg)
	default:
		return nil, verrors.New(verrors.KindValidation, fmt.Sprintf("unknown sink type %q", cfg.Type))
	}
}

// envelope is the newline-delimited JSON shape every sink emits.
type envelope struct {
	Topic     string    `json:"topic"`
	Key       any       `json:"key"`
	Value     any       `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

func encode(w io.Writer, records []core.Record) error {
	enc := json.NewEncoder(w)
	for _, rec := range records {
		env := envelope{
			Topic:     rec.Topic,
			Key:       rec.Key,
			Value:     rec.Value,
			Timestamp: rec.Timestamp,
		}
		if err := enc.Encode(env); err != nil {
			return verrors.Wrap(verrors.KindGeneric, err, "encode record")
		}
	}
	return nil
}

// Writer streams records as newline-delimited JSON to a single writer.
type Writer struct {
	mu    sync.Mutex
	w     io.Writer
	owned bool
}

// NewWriter wraps w; owned controls whether Close closes it.
func NewWriter(w io.Writer, owned bool) *Writer {
	return &Writer{w: w, owned: owned}
}

func (s *Writer) Publish(_ context.Context, records []core.Record) error {
	if len(records) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return encode(s.w, records)
}

func (s *Writer) Close() error {
	if !s.owned {
		return nil
	}
	if c, ok := s.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
