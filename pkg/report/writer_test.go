package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/silvermint/diagd/pkg/diag"
)

func TestNewJSONLWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "session-123")

	assert.NotNil(t, w)
	assert.Equal(t, "session-123", w.sessionID)
}

func TestJSONLWriter_WriteUpdate(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "session-123")

	upd := &UpdateRecord{
		ID:       3,
		Kind:     diag.KindBatteryCapacity,
		Status:   diag.StatusRunning,
		Message:  "Routine is running.",
		Progress: 42,
	}

	err := w.WriteUpdate(context.Background(), upd)
	require.NoError(t, err)

	// Parse the output
	var record Record
	err = json.Unmarshal(buf.Bytes(), &record)
	require.NoError(t, err)

	assert.Equal(t, TypeUpdate, record.Type)
	assert.Equal(t, "session-123", record.SessionID)
	assert.False(t, record.TS.IsZero())

	// Parse the data payload
	var updData UpdateRecord
	err = json.Unmarshal(record.Data, &updData)
	require.NoError(t, err)

	assert.Equal(t, int32(3), updData.ID)
	assert.Equal(t, diag.KindBatteryCapacity, updData.Kind)
	assert.Equal(t, diag.StatusRunning, updData.Status)
	assert.Equal(t, "Routine is running.", updData.Message)
	assert.Equal(t, uint32(42), updData.Progress)
}

func TestJSONLWriter_WriteResult(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "session-123")

	res := &ResultRecord{
		ID:            7,
		Kind:          diag.KindMemory,
		Status:        diag.StatusPassed,
		Message:       "Memory routine passed.",
		Progress:      100,
		Duration:      30 * time.Second,
		DurationHuman: "30s",
	}

	err := w.WriteResult(context.Background(), res)
	require.NoError(t, err)

	var record Record
	err = json.Unmarshal(buf.Bytes(), &record)
	require.NoError(t, err)

	assert.Equal(t, TypeResult, record.Type)

	var resData ResultRecord
	err = json.Unmarshal(record.Data, &resData)
	require.NoError(t, err)

	assert.Equal(t, int32(7), resData.ID)
	assert.Equal(t, diag.StatusPassed, resData.Status)
	assert.Equal(t, uint32(100), resData.Progress)
	assert.Equal(t, 30*time.Second, resData.Duration)
	assert.Equal(t, "30s", resData.DurationHuman)
}

func TestJSONLWriter_WriteAvailability(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "session-123")

	avail := &AvailabilityRecord{
		Kinds: []diag.Kind{diag.KindBatteryCapacity, diag.KindURandom},
	}

	err := w.WriteAvailability(context.Background(), avail)
	require.NoError(t, err)

	var record Record
	err = json.Unmarshal(buf.Bytes(), &record)
	require.NoError(t, err)

	assert.Equal(t, TypeAvailability, record.Type)

	var availData AvailabilityRecord
	err = json.Unmarshal(record.Data, &availData)
	require.NoError(t, err)

	assert.Equal(t, []diag.Kind{diag.KindBatteryCapacity, diag.KindURandom}, availData.Kinds)
}

func TestJSONLWriter_NewlineTerminated(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "session-123")

	err := w.WriteUpdate(context.Background(), &UpdateRecord{ID: 1})
	require.NoError(t, err)

	err = w.WriteUpdate(context.Background(), &UpdateRecord{ID: 2})
	require.NoError(t, err)

	// Output should be two lines
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 2)

	// Each line should be valid JSON
	for _, line := range lines {
		var record Record
		err := json.Unmarshal([]byte(line), &record)
		assert.NoError(t, err)
	}
}

func TestJSONLWriter_Close(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "session-123")

	err := w.Close()
	require.NoError(t, err)

	// Writing after close should fail
	err = w.WriteUpdate(context.Background(), &UpdateRecord{ID: 1})
	assert.ErrorIs(t, err, ErrWriterClosed)
}

func TestJSONLWriter_ConcurrentWrites(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "session-123")

	const numWriters = 10
	const writesPerWriter = 100

	var wg sync.WaitGroup
	wg.Add(numWriters)

	for i := 0; i < numWriters; i++ {
		go func(writerID int) {
			defer wg.Done()
			for j := 0; j < writesPerWriter; j++ {
				upd := &UpdateRecord{
					ID:       int32(writerID),
					Progress: uint32(j),
				}
				_ = w.WriteUpdate(context.Background(), upd)
			}
		}(i)
	}

	wg.Wait()

	// Verify all lines are complete JSON objects (no interleaving)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, numWriters*writesPerWriter)

	for i, line := range lines {
		var record Record
		err := json.Unmarshal([]byte(line), &record)
		assert.NoError(t, err, "line %d should be valid JSON: %s", i, line)
	}
}

func TestJSONLWriter_ContextCancellation(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "session-123")

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // Cancel immediately

	err := w.WriteUpdate(ctx, &UpdateRecord{ID: 1})
	assert.ErrorIs(t, err, context.Canceled)

	// Buffer should be empty (nothing written)
	assert.Empty(t, buf.String())
}

func TestJSONLWriter_WriteFailure(t *testing.T) {
	// Create a writer that always fails
	failWriter := &failingWriter{err: errors.New("disk full")}
	w := NewJSONLWriter(failWriter, "session-123")

	err := w.WriteUpdate(context.Background(), &UpdateRecord{ID: 1})
	require.Error(t, err)

	var writeErr *WriteError
	assert.True(t, errors.As(err, &writeErr))
	assert.Equal(t, "write", writeErr.Op)
}

// failingWriter is an io.Writer that always returns an error.
type failingWriter struct {
	err error
}

func (f *failingWriter) Write(p []byte) (n int, err error) {
	return 0, f.err
}

func TestJSONLWriter_ShortWrite(t *testing.T) {
	// Create a writer that simulates short writes (returns n < len(p) with nil error)
	shortWriter := &shortWriteWriter{bytesPerWrite: 10}
	w := NewJSONLWriter(shortWriter, "session-123")

	res := &ResultRecord{
		ID:      5,
		Kind:    diag.KindCPUStress,
		Status:  diag.StatusFailed,
		Message: "CPU stress routine failed.",
	}

	err := w.WriteResult(context.Background(), res)
	require.NoError(t, err)

	// Verify complete output despite short writes
	lines := strings.Split(strings.TrimSpace(shortWriter.buf.String()), "\n")
	assert.Len(t, lines, 1)

	var record Record
	err = json.Unmarshal([]byte(lines[0]), &record)
	assert.NoError(t, err, "output should be valid JSON despite short writes")
	assert.Equal(t, TypeResult, record.Type)
}

func TestJSONLWriter_ZeroWrite(t *testing.T) {
	// Create a writer that returns 0 bytes written with nil error (pathological case)
	zeroWriter := &zeroWriteWriter{}
	w := NewJSONLWriter(zeroWriter, "session-123")

	err := w.WriteUpdate(context.Background(), &UpdateRecord{ID: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, io.ErrShortWrite)
}

// shortWriteWriter writes at most bytesPerWrite bytes per call.
type shortWriteWriter struct {
	buf           bytes.Buffer
	bytesPerWrite int
}

func (s *shortWriteWriter) Write(p []byte) (n int, err error) {
	if len(p) > s.bytesPerWrite {
		p = p[:s.bytesPerWrite]
	}
	return s.buf.Write(p)
}

// zeroWriteWriter always reports zero bytes written.
type zeroWriteWriter struct{}

func (z *zeroWriteWriter) Write(p []byte) (n int, err error) {
	return 0, nil
}

func TestFromUpdate_Noninteractive(t *testing.T) {
	upd := &diag.Update{Progress: 100, Output: []byte("raw output")}
	upd.SetNoninteractive(diag.StatusPassed, "Routine passed.")

	rec := FromUpdate(4, diag.KindURandom, upd)

	assert.Equal(t, int32(4), rec.ID)
	assert.Equal(t, diag.KindURandom, rec.Kind)
	assert.Equal(t, diag.StatusPassed, rec.Status)
	assert.Equal(t, "Routine passed.", rec.Message)
	assert.Equal(t, uint32(100), rec.Progress)
	assert.Equal(t, "raw output", rec.Output)
	assert.Empty(t, rec.UserMessage)
}

func TestFromUpdate_Interactive(t *testing.T) {
	upd := &diag.Update{Progress: 0}
	upd.SetInteractive(diag.MessagePlugInACPower)

	rec := FromUpdate(9, diag.KindBatteryCharge, upd)

	assert.Equal(t, diag.StatusWaiting, rec.Status)
	assert.Equal(t, diag.MessagePlugInACPower, rec.UserMessage)
	assert.Empty(t, rec.Message)
	assert.Empty(t, rec.Output)
}
