package routines

import (
	"encoding/base64"
	"strings"

	"github.com/silvermint/diagd/pkg/debugd"
	"github.com/silvermint/diagd/pkg/diag"
)

// SelfTestType selects which NVMe device self-test operation to run.
type SelfTestType uint8

const (
	// ShortSelfTest runs the short device self-test operation.
	ShortSelfTest SelfTestType = 1
	// LongSelfTest runs the extended device self-test operation.
	LongSelfTest SelfTestType = 2
)

// NVMe self-test routine status messages.
const (
	NvmeSelfTestStartedMessage        = "SelfTest status: self-test started."
	NvmeSelfTestStartErrorMessage     = "SelfTest status: self-test failed to start."
	NvmeSelfTestAbortionErrorMessage  = "SelfTest status: ERROR, self-test abortion failed."
	NvmeSelfTestRunningMessage        = "SelfTest status: self-test is running."
	NvmeSelfTestProgressErrorMessage  = "SelfTest status: ERROR, cannot get percent info."
	NvmeSelfTestCancelledMessage      = "SelfTest status: self-test is cancelled."
	NvmeSelfTestUnknownStatusMessage  = "SelfTest status: Unknown complete status."
	nvmeSelfTestStartedPrefix         = "Device self-test started"
	nvmeSelfTestAbortPrefix           = "Aborting device self-test operation"
)

// nvmeSelfTestCompleteMessages is indexed by the result nibble of the
// self-test status byte.
var nvmeSelfTestCompleteMessages = []string{
	"SelfTest status: Test PASS.",
	"SelfTest status: Operation was aborted by Device Self-test command.",
	"SelfTest status: Operation was aborted by a Controller Level Reset.",
	"SelfTest status: Operation was aborted due to a removal of a namespace" +
		" from the namespace inventory.",
	"SelfTest Status: Operation was aborted due to the processing of a Format" +
		" NVM command.",
	"SelfTest status: A fatal error or unknown test error occurred while the" +
		" controller was executing the device self-test operation and the operation" +
		" did not complete.",
	"SelfTest status: Operation completed with a segment that failed and the" +
		" segment that failed is not known.",
	"SelfTest status: Operation completed with one or more failed segments and" +
		" the first segment that failed is indicated in the Segment Number field.",
	"SelfTest status: Operation was aborted for an unknown reason.",
}

// Self-test progress lives in log page 6. The page is fetched as raw binary
// and arrives base64 encoded.
const (
	nvmeSelfTestLogPageID  = 6
	nvmeSelfTestLogPageLen = 16
)

// NvmeLogSpec locates the self-test progress log page and its framing.
// Operators can point it at a vendor page through configuration.
type NvmeLogSpec struct {
	PageID    uint32
	Length    uint32
	RawBinary bool
}

// DefaultNvmeLogSpec is the standard device self-test log page.
func DefaultNvmeLogSpec() NvmeLogSpec {
	return NvmeLogSpec{
		PageID:    nvmeSelfTestLogPageID,
		Length:    nvmeSelfTestLogPageLen,
		RawBinary: true,
	}
}

// selfTestRoutine drives an NVMe device self-test through the debug helper.
// Progress is polled from the self-test log page on each status request.
type selfTestRoutine struct {
	adapter  debugd.Adapter
	testType SelfTestType
	log      NvmeLogSpec

	status  diag.Status
	percent uint32
	message string
	output  string
}

// NewNvmeSelfTestRoutine creates the NVMe self-test routine for the given
// operation type. A zero log spec selects the standard log page.
func NewNvmeSelfTestRoutine(adapter debugd.Adapter, testType SelfTestType, log NvmeLogSpec) diag.Routine {
	if log.Length == 0 {
		log = DefaultNvmeLogSpec()
	}
	return &selfTestRoutine{adapter: adapter, testType: testType, log: log, status: diag.StatusReady}
}

func (r *selfTestRoutine) Start() {
	r.status = diag.StatusRunning
	switch r.testType {
	case ShortSelfTest:
		r.adapter.RunNvmeShortSelfTest(r.onStart)
	case LongSelfTest:
		r.adapter.RunNvmeLongSelfTest(r.onStart)
	}
}

func (r *selfTestRoutine) Resume() {}

func (r *selfTestRoutine) Cancel() {
	// A finished test keeps its result; aborting the device operation at
	// that point would overwrite it.
	if r.status.Terminal() {
		return
	}
	r.status = diag.StatusCancelling
	r.adapter.StopNvmeSelfTest(r.onCancel)
}

func (r *selfTestRoutine) update(status diag.Status, percent uint32, message string) {
	r.status = status
	r.percent = percent
	r.message = message
}

func (r *selfTestRoutine) checkError(err error) bool {
	if err != nil {
		r.update(diag.StatusError, 100, err.Error())
		return true
	}
	return false
}

func (r *selfTestRoutine) onStart(payload string, err error) {
	if r.checkError(err) {
		return
	}
	r.output = payload
	if !strings.HasPrefix(payload, nvmeSelfTestStartedPrefix) {
		r.update(diag.StatusError, 100, NvmeSelfTestStartErrorMessage)
		return
	}
	r.update(diag.StatusRunning, 0, NvmeSelfTestStartedMessage)
}

func (r *selfTestRoutine) onCancel(payload string, err error) {
	if r.checkError(err) {
		return
	}
	r.output = payload
	if !strings.HasPrefix(payload, nvmeSelfTestAbortPrefix) {
		r.update(diag.StatusError, 100, NvmeSelfTestAbortionErrorMessage)
		return
	}
	r.update(diag.StatusCancelled, 100, NvmeSelfTestCancelledMessage)
}

// completed reports whether the log page describes a finished operation of
// this routine's test type. The progress nibble goes to zero on completion
// and the high nibble of the status byte records the operation type.
func (r *selfTestRoutine) completed(progress, status byte) bool {
	return progress&0xf == 0 && SelfTestType(status>>4) == r.testType
}

func (r *selfTestRoutine) onLogPage(payload string, err error) {
	if r.checkError(err) {
		return
	}
	r.output = payload

	decoded, decodeErr := base64.StdEncoding.DecodeString(payload)
	if decodeErr != nil || len(decoded) != int(r.log.Length) || len(decoded) <= 4 {
		r.update(diag.StatusError, 100, NvmeSelfTestProgressErrorMessage)
		return
	}

	progress := decoded[0]
	percent := uint32(decoded[1] & 0x7f)
	completeStatus := decoded[4]

	switch {
	case r.completed(progress, completeStatus):
		status := diag.StatusFailed
		if completeStatus&0xf == 0 {
			status = diag.StatusPassed
		}
		r.update(status, 100, completeMessage(completeStatus))
	case SelfTestType(progress&0xf) == r.testType:
		r.update(diag.StatusRunning, percent, NvmeSelfTestRunningMessage)
	default:
		r.update(diag.StatusError, 100, NvmeSelfTestProgressErrorMessage)
	}
}

func completeMessage(status byte) string {
	result := int(status & 0xf)
	if result >= len(nvmeSelfTestCompleteMessages) {
		return NvmeSelfTestUnknownStatusMessage
	}
	return nvmeSelfTestCompleteMessages[result]
}

func (r *selfTestRoutine) PopulateStatusUpdate(update *diag.Update, includeOutput bool) {
	// Poll progress while still running so the next status request sees
	// fresh data.
	if r.status == diag.StatusRunning && r.percent < 100 {
		r.adapter.GetNvmeLog(r.log.PageID, r.log.Length, r.log.RawBinary, r.onLogPage)
	}

	update.SetNoninteractive(r.status, r.message)
	update.Progress = r.percent

	if includeOutput &&
		r.status != diag.StatusPassed && r.status != diag.StatusCancelled {
		update.Output = []byte("Raw debugd data: " + r.output)
	}
}

func (r *selfTestRoutine) Status() diag.Status {
	return r.status
}

var _ diag.Routine = (*selfTestRoutine)(nil)
