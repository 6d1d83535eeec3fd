package report

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Writer outputs JSONL records for diagnostic results.
//
// Implementations must be safe for concurrent use from multiple
// goroutines. Each Write* method emits a complete record as a single
// line of JSON followed by a newline.
type Writer interface {
	// WriteUpdate emits a routine status update record.
	WriteUpdate(ctx context.Context, update *UpdateRecord) error

	// WriteResult emits a terminal result record.
	WriteResult(ctx context.Context, result *ResultRecord) error

	// WriteAvailability emits the device availability record.
	WriteAvailability(ctx context.Context, availability *AvailabilityRecord) error

	// Close flushes any buffered output and releases resources.
	Close() error
}

// JSONLWriter writes records as newline-delimited JSON to an io.Writer.
//
// JSONLWriter is safe for concurrent use. Writes are serialized using a
// mutex to ensure atomic line writes (no interleaved output).
type JSONLWriter struct {
	w         io.Writer
	sessionID string
	mu        sync.Mutex

	// closed indicates the writer has been closed.
	closed bool
}

// NewJSONLWriter creates a new JSONL writer. sessionID correlates all
// records of one daemon run or CLI invocation.
func NewJSONLWriter(w io.Writer, sessionID string) *JSONLWriter {
	return &JSONLWriter{
		w:         w,
		sessionID: sessionID,
	}
}

// WriteUpdate emits a routine status update record.
func (jw *JSONLWriter) WriteUpdate(ctx context.Context, update *UpdateRecord) error {
	return jw.writeRecord(ctx, TypeUpdate, update)
}

// WriteResult emits a terminal result record.
func (jw *JSONLWriter) WriteResult(ctx context.Context, result *ResultRecord) error {
	return jw.writeRecord(ctx, TypeResult, result)
}

// WriteAvailability emits the device availability record.
func (jw *JSONLWriter) WriteAvailability(ctx context.Context, availability *AvailabilityRecord) error {
	return jw.writeRecord(ctx, TypeAvailability, availability)
}

// Close marks the writer as closed.
//
// If the underlying writer implements io.Closer, it is NOT closed.
// The caller is responsible for closing the underlying writer.
func (jw *JSONLWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	jw.closed = true
	return nil
}

// writeRecord marshals data and writes a complete record line.
//
// The mutex is held for the entire write so lines are never interleaved.
func (jw *JSONLWriter) writeRecord(ctx context.Context, recordType string, data any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// Marshal the payload outside the lock.
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return &WriteError{Op: "marshal_data", Err: err}
	}

	jw.mu.Lock()
	defer jw.mu.Unlock()

	if jw.closed {
		return ErrWriterClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	record := Record{
		Type:      recordType,
		TS:        time.Now().UTC(),
		SessionID: jw.sessionID,
		Data:      dataBytes,
	}

	recordBytes, err := json.Marshal(record)
	if err != nil {
		return &WriteError{Op: "marshal_record", Err: err}
	}

	// Handle short writes: io.Writer may return n < len(p) with a nil
	// error, which would silently truncate JSONL lines.
	recordBytes = append(recordBytes, '\n')
	if err := writeAll(jw.w, recordBytes); err != nil {
		return &WriteError{Op: "write", Err: err}
	}

	return nil
}

// writeAll writes all bytes to w, looping over short writes.
func writeAll(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		p = p[n:]
	}
	return nil
}

// Compile-time check that JSONLWriter implements Writer.
var _ Writer = (*JSONLWriter)(nil)
