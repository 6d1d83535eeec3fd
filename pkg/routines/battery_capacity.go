package routines

import (
	"github.com/silvermint/diagd/pkg/diag"
	"github.com/silvermint/diagd/pkg/power"
)

// Battery capacity routine status messages. These are stable strings
// asserted by clients and tests.
const (
	BatteryCapacityInvalidParametersMessage = "Invalid battery capacity routine parameters."
	BatteryCapacityNotPresentMessage        = "Battery is not present."
	BatteryCapacityPassedMessage            = "Battery design capacity within given limits."
	BatteryCapacityFailedMessage            = "Battery design capacity not within given limits."
)

// NewBatteryCapacityRoutine checks that the battery's design capacity lies
// within [lowMAh, highMAh].
func NewBatteryCapacityRoutine(adapter power.Adapter, lowMAh, highMAh uint32) diag.Routine {
	return newSimpleRoutine(func() taskResult {
		if lowMAh > highMAh {
			return taskResult{status: diag.StatusError, message: BatteryCapacityInvalidParametersMessage}
		}

		snap, err := adapter.PowerSupplySnapshot()
		if err != nil {
			return taskResult{status: diag.StatusError, message: err.Error()}
		}
		if !snap.BatteryPresent {
			return taskResult{status: diag.StatusError, message: BatteryCapacityNotPresentMessage}
		}

		designMAh := uint32(snap.ChargeFullDesignAh * 1000)
		output := map[string]any{
			"resultDetails": map[string]any{
				"designCapacityMAh": designMAh,
			},
		}
		if designMAh < lowMAh || designMAh > highMAh {
			return taskResult{status: diag.StatusFailed, message: BatteryCapacityFailedMessage, output: output}
		}
		return taskResult{status: diag.StatusPassed, message: BatteryCapacityPassedMessage, output: output}
	})
}
