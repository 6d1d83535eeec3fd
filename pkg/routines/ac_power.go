package routines

import (
	"github.com/silvermint/diagd/pkg/diag"
	"github.com/silvermint/diagd/pkg/power"
)

// AC power routine status messages.
const (
	ACPowerSucceededMessage      = "AC power routine passed."
	ACPowerFailedMessage         = "Expected AC power state not found."
	ACPowerCancelledMessage      = "AC power routine cancelled."
	ACPowerSnapshotFailedMessage = "Failed to read power supply state."
)

// acPowerRoutine verifies the AC adapter state. Interactive: after Start it
// waits for the user to plug in or unplug the charger, then checks the
// reported state on resume.
type acPowerRoutine struct {
	adapter        power.Adapter
	expectedOnline bool

	status  diag.Status
	message string
	output  []byte
}

// NewACPowerRoutine creates the AC power routine. When expectedOnline is
// true the routine passes if the battery reports charging or full.
func NewACPowerRoutine(adapter power.Adapter, expectedOnline bool) diag.Routine {
	return &acPowerRoutine{adapter: adapter, expectedOnline: expectedOnline, status: diag.StatusReady}
}

func (r *acPowerRoutine) Start() {
	if r.status != diag.StatusReady {
		return
	}
	r.status = diag.StatusWaiting
}

func (r *acPowerRoutine) Resume() {
	if r.status != diag.StatusWaiting {
		return
	}

	snapshot, err := r.adapter.PowerSupplySnapshot()
	if err != nil {
		r.status = diag.StatusError
		r.message = ACPowerSnapshotFailedMessage
		return
	}

	online := snapshot.State == power.StateCharging || snapshot.State == power.StateFull
	r.output = marshalOutput(map[string]any{
		"resultDetails": map[string]any{
			"powerSupplyState": string(snapshot.State),
		},
	})
	if online == r.expectedOnline {
		r.status = diag.StatusPassed
		r.message = ACPowerSucceededMessage
	} else {
		r.status = diag.StatusFailed
		r.message = ACPowerFailedMessage
	}
}

func (r *acPowerRoutine) Cancel() {
	if r.status.Terminal() {
		return
	}
	r.status = diag.StatusCancelled
	r.message = ACPowerCancelledMessage
}

func (r *acPowerRoutine) PopulateStatusUpdate(update *diag.Update, includeOutput bool) {
	if r.status == diag.StatusWaiting {
		if r.expectedOnline {
			update.SetInteractive(diag.MessagePlugInACPower)
		} else {
			update.SetInteractive(diag.MessageUnplugACPower)
		}
	} else {
		update.SetNoninteractive(r.status, r.message)
	}
	switch r.status {
	case diag.StatusPassed, diag.StatusFailed:
		update.Progress = 100
	default:
		update.Progress = 0
	}
	if includeOutput && r.output != nil {
		update.Output = r.output
	}
}

func (r *acPowerRoutine) Status() diag.Status {
	return r.status
}

var _ diag.Routine = (*acPowerRoutine)(nil)
