package writer

import (
	"compress/flate"
	"fmt"
	"io"

	"github.com/klauspost/pgzip"
	"github.com/segmentio/encoding/json"
)

// JSON generally compresses well at minimum compression levels. Higher levels of compression
// will usually take a lot more CPU while not providing much space savings.
const jsonCompressionlevel = flate.BestSpeed

type jsonConfig struct {
	disableCompression bool
	skipNulls          bool
}

type JsonOption func(*jsonConfig)

func WithJsonDisableCompression() JsonOption {
	return func(cfg *jsonConfig) {
		cfg.disableCompression = true
	}
}

func WithJsonSkipNulls() JsonOption {
	return func(cfg *jsonConfig) {
		cfg.skipNulls = true
	}
}

// JsonWriter writes rows as newline-delimited JSON objects, with keys in the
// order of the fields it was created with.
type JsonWriter struct {
	w         io.Writer // will be set to `gz` for compressed writes or `cwc` if compression is disabled
	cwc       *countingWriteCloser
	gz        *pgzip.Writer
	prefixes  [][]byte
	skipNulls bool
	buf       []byte
}

// NewJsonWriter creates a JsonWriter from w. w is closed when JsonWriter is closed.
func NewJsonWriter(w io.WriteCloser, fields []string, opts ...JsonOption) *JsonWriter {
	var cfg jsonConfig
	for _, o := range opts {
		o(&cfg)
	}

	jw := &JsonWriter{
		cwc:       &countingWriteCloser{w: w},
		skipNulls: cfg.skipNulls,
	}

	if !cfg.disableCompression {
		gz, err := pgzip.NewWriterLevel(jw.cwc, jsonCompressionlevel)
		if err != nil {
			// Only possible if compressionLevel is not valid.
			panic("invalid compression level for gzip.NewWriterLevel")
		}
		jw.gz = gz
		jw.w = gz
	} else {
		jw.w = jw.cwc
	}

	for _, f := range fields {
		quoted, err := json.Marshal(f)
		if err != nil {
			panic(fmt.Errorf("error escaping field name %q: %w", f, err))
		}
		jw.prefixes = append(jw.prefixes, append(quoted, ':'))
	}

	return jw
}

// Write serializes a single row. vals must correspond one to one with the
// fields the writer was created with.
func (w *JsonWriter) Write(vals []any) (err error) {
	if len(vals) != len(w.prefixes) {
		return fmt.Errorf("row has %d values but %d fields", len(vals), len(w.prefixes))
	}

	w.buf = append(w.buf[:0], '{')
	var first = true
	for idx, v := range vals {
		if v == nil && w.skipNulls {
			continue
		}
		if !first {
			w.buf = append(w.buf, ',')
		}
		first = false

		w.buf = append(w.buf, w.prefixes[idx]...)
		if w.buf, err = json.Append(w.buf, v, 0); err != nil {
			return fmt.Errorf("encoding JSON value %d: %w", idx, err)
		}
	}
	w.buf = append(w.buf, '}', '\n')

	if _, err := w.w.Write(w.buf); err != nil {
		return fmt.Errorf("writing row bytes: %w", err)
	}

	return nil
}

// Written is the number of bytes written to the underlying writer so far.
// Compressed bytes are only counted once they are flushed.
func (w *JsonWriter) Written() int {
	return w.cwc.written
}

// Close closes the underlying gzip writer if compression is enabled, flushing its data and writing
// the GZIP footer. It also closes the underlying io.WriteCloser that was used to initialize the
// counting writer.
func (w *JsonWriter) Close() error {
	if w.gz != nil {
		if err := w.gz.Close(); err != nil {
			return fmt.Errorf("closing gzip writer: %w", err)
		}
	}

	if err := w.cwc.Close(); err != nil {
		return fmt.Errorf("closing counting writer: %w", err)
	}
	return nil
}

type countingWriteCloser struct {
	written int
	w       io.WriteCloser
}

func (c *countingWriteCloser) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.written += n
	return n, err
}

func (c *countingWriteCloser) Close() error {
	return c.w.Close()
}
