package routines

import (
	"math"

	"github.com/silvermint/diagd/pkg/diag"
	"github.com/silvermint/diagd/pkg/power"
)

// Battery health routine status messages.
const (
	BatteryHealthInvalidParametersMessage     = "Invalid battery health routine parameters."
	BatteryHealthNotPresentMessage            = "Battery is not present."
	BatteryHealthFailedCalculatingWearMessage = "Could not get wear percentage."
	BatteryHealthExcessiveWearMessage         = "Battery is over-worn."
	BatteryHealthExcessiveCycleCountMessage   = "Battery cycle count is too high."
	BatteryHealthRoutinePassedMessage         = "Routine passed."
)

// NewBatteryHealthRoutine checks battery wear and cycle count against the
// caller-supplied maxima.
//
// Wear percentage is capped at zero when capacity exceeds the design
// capacity: vendors set conservative design values, so fresh batteries
// can legitimately exceed them.
func NewBatteryHealthRoutine(adapter power.Adapter, maxCycleCount, percentWearAllowed uint32) diag.Routine {
	return newSimpleRoutine(func() taskResult {
		if percentWearAllowed > 100 {
			return taskResult{status: diag.StatusError, message: BatteryHealthInvalidParametersMessage}
		}

		snap, err := adapter.PowerSupplySnapshot()
		if err != nil {
			return taskResult{status: diag.StatusError, message: err.Error()}
		}
		if !snap.BatteryPresent {
			return taskResult{status: diag.StatusError, message: BatteryHealthNotPresentMessage}
		}
		if snap.ChargeFullDesignAh <= 0 {
			return taskResult{status: diag.StatusError, message: BatteryHealthFailedCalculatingWearMessage}
		}

		wear := uint32(0)
		if snap.ChargeFullAh < snap.ChargeFullDesignAh {
			wear = uint32(100 - math.Round(snap.ChargeFullAh/snap.ChargeFullDesignAh*100))
		}

		output := map[string]any{
			"resultDetails": map[string]any{
				"wearPercentage": wear,
				"cycleCount":     snap.CycleCount,
				"vendor":         snap.Vendor,
				"modelName":      snap.ModelName,
				"serialNumber":   snap.SerialNumber,
				"technology":     snap.Technology,
			},
		}

		if wear > percentWearAllowed {
			return taskResult{status: diag.StatusFailed, message: BatteryHealthExcessiveWearMessage, output: output}
		}
		if snap.CycleCount > int64(maxCycleCount) {
			return taskResult{status: diag.StatusFailed, message: BatteryHealthExcessiveCycleCountMessage, output: output}
		}
		return taskResult{status: diag.StatusPassed, message: BatteryHealthRoutinePassedMessage, output: output}
	})
}
