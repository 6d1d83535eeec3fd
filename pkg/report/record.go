// Package report provides JSONL output for diagnostic routine results.
//
// Output is structured as typed record envelopes containing routine
// updates, terminal results, and the device availability set. Each line
// is a self-contained JSON object that can be parsed independently.
package report

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/silvermint/diagd/pkg/diag"
)

// Record type constants define the envelope types for JSONL output.
// These follow the pattern: diagd.<type>.v<version>
const (
	// TypeUpdate identifies routine status update records.
	TypeUpdate = "diagd.update.v1"

	// TypeResult identifies terminal routine result records.
	TypeResult = "diagd.result.v1"

	// TypeAvailability identifies device availability records.
	TypeAvailability = "diagd.availability.v1"
)

// Record is the envelope for all JSONL output.
//
// Each line of JSONL output contains a Record with a type-specific
// payload in the Data field.
type Record struct {
	// Type identifies the record type (e.g., "diagd.result.v1").
	Type string `json:"type"`

	// TS is the timestamp when the record was created (RFC3339Nano).
	TS time.Time `json:"ts"`

	// SessionID correlates the records of one daemon run or one CLI
	// invocation.
	SessionID string `json:"session_id"`

	// Data contains the type-specific payload as raw JSON.
	Data json.RawMessage `json:"data"`
}

// UpdateRecord is the data payload for routine status updates.
type UpdateRecord struct {
	// ID is the routine id issued by the service.
	ID int32 `json:"id"`

	// Kind is the routine kind.
	Kind diag.Kind `json:"kind"`

	// Status and Message mirror the routine's noninteractive update.
	// For a waiting interactive routine Status is "waiting" and
	// UserMessage carries the precondition.
	Status      diag.Status      `json:"status"`
	Message     string           `json:"status_message,omitempty"`
	UserMessage diag.UserMessage `json:"user_message,omitempty"`

	// Progress is the routine progress percent.
	Progress uint32 `json:"progress_percent"`

	// Output is the routine's opaque output, included when requested.
	Output string `json:"output,omitempty"`
}

// ResultRecord is the data payload for a routine that reached a terminal
// status.
type ResultRecord struct {
	ID       int32       `json:"id"`
	Kind     diag.Kind   `json:"kind"`
	Status   diag.Status `json:"status"`
	Message  string      `json:"status_message"`
	Progress uint32      `json:"progress_percent"`

	// Duration is the wall-clock time from start to terminal status.
	Duration time.Duration `json:"duration_ns"`

	// DurationHuman is a human-readable duration string.
	DurationHuman string `json:"duration"`

	Output string `json:"output,omitempty"`
}

// AvailabilityRecord is the data payload listing the routine kinds this
// device supports.
type AvailabilityRecord struct {
	Kinds []diag.Kind `json:"kinds"`
}

// FromUpdate flattens a polled routine update into an UpdateRecord.
func FromUpdate(id int32, kind diag.Kind, update *diag.Update) *UpdateRecord {
	rec := &UpdateRecord{
		ID:       id,
		Kind:     kind,
		Progress: update.Progress,
		Output:   string(update.Output),
	}
	if update.Interactive != nil {
		rec.Status = diag.StatusWaiting
		rec.UserMessage = update.Interactive.UserMessage
	}
	if update.Noninteractive != nil {
		rec.Status = update.Noninteractive.Status
		rec.Message = update.Noninteractive.Message
	}
	return rec
}

// Writer errors.
var (
	// ErrWriterClosed is returned when writing to a closed writer.
	ErrWriterClosed = errors.New("writer is closed")
)

// WriteError wraps errors that occur during write operations.
type WriteError struct {
	Op  string // Operation that failed (e.g., "marshal_data", "write")
	Err error  // Underlying error
}

func (e *WriteError) Error() string {
	return "report: " + e.Op + ": " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
