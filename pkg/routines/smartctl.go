package routines

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/silvermint/diagd/pkg/debugd"
	"github.com/silvermint/diagd/pkg/diag"
)

// Smartctl check routine status messages.
const (
	SmartctlCheckPassedMessage     = "smartctl-check status: PASS."
	SmartctlCheckFailedMessage     = "smartctl-check status: FAIL, critical warning detected."
	SmartctlCheckParseErrorMessage = "smartctl-check status: ERROR, unable to parse smartctl output."
)

// criticalWarningRe matches the SMART/Health critical warning line of
// smartctl -A output, e.g. "Critical Warning: 0x00".
var criticalWarningRe = regexp.MustCompile(`Critical Warning:\s+(0x[0-9a-fA-F]+)`)

// smartctlRoutine asks the debug helper for SMART attributes and passes
// when the critical warning byte is zero.
type smartctlRoutine struct {
	adapter debugd.Adapter

	status  diag.Status
	message string
	output  string
}

// NewSmartctlCheckRoutine creates the smartctl-check routine.
func NewSmartctlCheckRoutine(adapter debugd.Adapter) diag.Routine {
	return &smartctlRoutine{adapter: adapter, status: diag.StatusReady}
}

func (r *smartctlRoutine) Start() {
	if r.status != diag.StatusReady {
		return
	}
	r.status = diag.StatusRunning
	r.adapter.GetSmartAttributes(r.onAttributes)
}

func (r *smartctlRoutine) Resume() {}

func (r *smartctlRoutine) Cancel() {}

func (r *smartctlRoutine) onAttributes(payload string, err error) {
	if r.status.Terminal() {
		return
	}
	if err != nil {
		r.status = diag.StatusError
		r.message = err.Error()
		return
	}

	r.output = payload
	m := criticalWarningRe.FindStringSubmatch(payload)
	if m == nil {
		r.status = diag.StatusError
		r.message = SmartctlCheckParseErrorMessage
		return
	}
	warning, parseErr := strconv.ParseUint(strings.TrimPrefix(m[1], "0x"), 16, 8)
	if parseErr != nil {
		r.status = diag.StatusError
		r.message = SmartctlCheckParseErrorMessage
		return
	}

	if warning == 0 {
		r.status = diag.StatusPassed
		r.message = SmartctlCheckPassedMessage
	} else {
		r.status = diag.StatusFailed
		r.message = SmartctlCheckFailedMessage
	}
}

func (r *smartctlRoutine) PopulateStatusUpdate(update *diag.Update, includeOutput bool) {
	update.SetNoninteractive(r.status, r.message)
	switch r.status {
	case diag.StatusPassed, diag.StatusFailed:
		update.Progress = 100
	default:
		update.Progress = 0
	}
	if includeOutput && r.output != "" {
		update.Output = []byte(r.output)
	}
}

func (r *smartctlRoutine) Status() diag.Status {
	return r.status
}

var _ diag.Routine = (*smartctlRoutine)(nil)
