// Package archive writes every raw feed response to the data lake before it is processed.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-aqi-etl/internal/airquality"
)

const (
	// DefaultPrefix is the object prefix used when none is configured.
	DefaultPrefix = "raw_data"
	// ObjectTimeLayout formats the UTC second embedded in each object name.
	ObjectTimeLayout = "2006-01-02_15-04-05"

	contentType = "application/json; charset=utf-8"
	indent      = "    "
)

// Archiver stores raw payloads through a BlobStore.
type Archiver struct {
	store  airquality.BlobStore
	clock  airquality.Clock
	prefix string
	logger *zap.Logger
}

// New constructs an Archiver. An empty prefix falls back to DefaultPrefix.
func New(store airquality.BlobStore, clock airquality.Clock, prefix string, logger *zap.Logger) *Archiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Archiver{
		store:  store,
		clock:  clock,
		prefix: prefix,
		logger: logger,
	}
}

// ObjectName returns the archive key for city at the current second.
func (a *Archiver) ObjectName(city string) string {
	ts := a.clock.Now().UTC().Format(ObjectTimeLayout)
	return path.Join(a.prefix, fmt.Sprintf("%s_%s.json", sanitize(city), ts))
}

// Archive writes body for city and returns the location reported by the store.
// An object written within the same second for the same city is replaced.
func (a *Archiver) Archive(ctx context.Context, city string, body []byte) (string, error) {
	name := a.ObjectName(city)
	content := Pretty(body)

	uri, err := a.store.PutObject(ctx, name, contentType, bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", airquality.ErrStorageWrite, name, err)
	}
	a.logger.Info("saved raw data",
		zap.String("city", city),
		zap.String("location", uri),
		zap.Int("bytes", len(content)),
	)
	return uri, nil
}

// Pretty re-indents a JSON document with four spaces, keeping key order and
// number text as received. String escapes such as \u00e0 or \/ are decoded so
// non-ASCII text is written literally. Input that is not a single valid JSON
// document is returned unchanged.
func Pretty(body []byte) []byte {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var buf bytes.Buffer
	if err := writeValue(&buf, dec, 0); err != nil {
		return body
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return body
	}
	return buf.Bytes()
}

func writeValue(buf *bytes.Buffer, dec *json.Decoder, depth int) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("read token: %w", err)
	}
	switch v := tok.(type) {
	case json.Delim:
		switch v {
		case '{':
			return writeContainer(buf, dec, depth, '}', func() error {
				key, err := dec.Token()
				if err != nil {
					return fmt.Errorf("read key: %w", err)
				}
				if err := writeString(buf, key.(string)); err != nil {
					return err
				}
				buf.WriteString(": ")
				return writeValue(buf, dec, depth+1)
			})
		case '[':
			return writeContainer(buf, dec, depth, ']', func() error {
				return writeValue(buf, dec, depth+1)
			})
		default:
			return fmt.Errorf("unexpected delimiter %q", v)
		}
	case string:
		return writeString(buf, v)
	case json.Number:
		buf.WriteString(v.String())
	case bool:
		buf.WriteString(strconv.FormatBool(v))
	case nil:
		buf.WriteString("null")
	default:
		return fmt.Errorf("unexpected token %T", tok)
	}
	return nil
}

func writeContainer(buf *bytes.Buffer, dec *json.Decoder, depth int, closing byte, member func() error) error {
	open := byte('{')
	if closing == ']' {
		open = '['
	}
	buf.WriteByte(open)
	n := 0
	for dec.More() {
		if n > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('\n')
		buf.WriteString(strings.Repeat(indent, depth+1))
		if err := member(); err != nil {
			return err
		}
		n++
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("read closing delimiter: %w", err)
	}
	if n > 0 {
		buf.WriteByte('\n')
		buf.WriteString(strings.Repeat(indent, depth))
	}
	buf.WriteByte(closing)
	return nil
}

func writeString(buf *bytes.Buffer, s string) error {
	var out bytes.Buffer
	enc := json.NewEncoder(&out)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("encode string: %w", err)
	}
	buf.Write(bytes.TrimSuffix(out.Bytes(), []byte("\n")))
	return nil
}

func sanitize(city string) string {
	r := strings.NewReplacer("/", "-", "\\", "-", "..", "-")
	return r.Replace(city)
}
