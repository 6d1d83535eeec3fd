package routines

import (
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/silvermint/diagd/pkg/diag"
	"github.com/silvermint/diagd/pkg/power"
	"github.com/silvermint/diagd/pkg/taskloop"
)

// Battery discharge routine status messages.
const (
	BatteryDischargeRunningMessage            = "Battery discharge routine running."
	BatteryDischargeSucceededMessage          = "Battery discharge routine passed."
	BatteryDischargeCancelledMessage          = "Battery discharge routine cancelled."
	BatteryDischargeNotDischargingMessage     = "Battery is not discharging."
	BatteryDischargeExcessiveDischargeMessage = "Battery discharge rate greater than maximum allowed discharge rate."
	BatteryDischargeInvalidParametersMessage  = "Maximum allowed discharge percent must be less than or equal to 100."
	BatteryDischargeSnapshotFailedMessage     = "Failed to read battery attributes."
)

// dischargeRoutine measures how much the battery drains over a fixed
// window. Interactive: after Start it waits for the user to unplug AC
// power and acknowledge with a continue command.
type dischargeRoutine struct {
	adapter    power.Adapter
	clock      clockwork.Clock
	runner     taskloop.Runner
	duration   time.Duration
	maxAllowed uint32

	status       diag.Status
	message      string
	output       []byte
	started      bool
	startTime    time.Time
	beginPercent float64
	progress     uint32
	pending      *taskloop.Delayed
}

// NewBatteryDischargeRoutine creates the battery discharge routine. The
// routine passes when the battery loses at most maxAllowed percentage
// points over duration while off AC power.
func NewBatteryDischargeRoutine(adapter power.Adapter, clock clockwork.Clock, runner taskloop.Runner, duration time.Duration, maxAllowed uint32) diag.Routine {
	return &dischargeRoutine{
		adapter:    adapter,
		clock:      clock,
		runner:     runner,
		duration:   duration,
		maxAllowed: maxAllowed,
		status:     diag.StatusReady,
	}
}

func (r *dischargeRoutine) Start() {
	if r.status != diag.StatusReady {
		return
	}
	// Wait for the user to unplug the charger before measuring.
	r.status = diag.StatusWaiting
}

func (r *dischargeRoutine) Resume() {
	if r.status != diag.StatusWaiting {
		return
	}

	if r.maxAllowed > 100 {
		r.status = diag.StatusError
		r.message = BatteryDischargeInvalidParametersMessage
		return
	}

	snapshot, err := r.adapter.PowerSupplySnapshot()
	if err != nil {
		r.status = diag.StatusError
		r.message = BatteryDischargeSnapshotFailedMessage
		return
	}
	if snapshot.State != power.StateDischarging {
		r.status = diag.StatusError
		r.message = BatteryDischargeNotDischargingMessage
		return
	}

	r.beginPercent = snapshot.Percent
	r.startTime = r.clock.Now()
	r.started = true
	r.pending = taskloop.After(r.clock, r.runner, r.duration, r.complete)
	r.status = diag.StatusRunning
	r.message = BatteryDischargeRunningMessage
}

func (r *dischargeRoutine) Cancel() {
	switch r.status {
	case diag.StatusPassed, diag.StatusFailed, diag.StatusError:
		return
	}
	r.updateProgress()
	r.pending.Cancel()
	r.status = diag.StatusCancelled
	r.message = BatteryDischargeCancelledMessage
}

func (r *dischargeRoutine) complete() {
	if r.status != diag.StatusRunning {
		return
	}

	snapshot, err := r.adapter.PowerSupplySnapshot()
	if err != nil {
		r.status = diag.StatusError
		r.message = BatteryDischargeSnapshotFailedMessage
		return
	}
	if snapshot.Percent > r.beginPercent {
		r.status = diag.StatusError
		r.message = BatteryDischargeNotDischargingMessage
		return
	}

	delta := r.beginPercent - snapshot.Percent
	r.output = marshalOutput(map[string]any{
		"resultDetails": map[string]any{
			"dischargePercent": delta,
		},
	})
	if delta > float64(r.maxAllowed) {
		r.status = diag.StatusFailed
		r.message = BatteryDischargeExcessiveDischargeMessage
		return
	}
	r.status = diag.StatusPassed
	r.message = BatteryDischargeSucceededMessage
}

// updateProgress recomputes progress except in states where it is frozen.
func (r *dischargeRoutine) updateProgress() {
	switch r.status {
	case diag.StatusPassed, diag.StatusFailed:
		r.progress = 100
	case diag.StatusError, diag.StatusCancelled:
		// Retains the last value reached.
	default:
		if r.started {
			elapsed := r.clock.Now().Sub(r.startTime)
			r.progress = clampPercent(int64(100*elapsed/r.duration), 100)
		}
	}
}

func (r *dischargeRoutine) PopulateStatusUpdate(update *diag.Update, includeOutput bool) {
	if r.status == diag.StatusWaiting {
		update.SetInteractive(diag.MessageUnplugACPower)
	} else {
		update.SetNoninteractive(r.status, r.message)
	}
	r.updateProgress()
	update.Progress = r.progress
	if includeOutput && r.output != nil {
		update.Output = r.output
	}
}

func (r *dischargeRoutine) Status() diag.Status {
	return r.status
}

var _ diag.Routine = (*dischargeRoutine)(nil)
