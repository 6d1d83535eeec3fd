// Package power exposes a read-only snapshot of the device power supply.
//
// The core consumes the Adapter interface; the sysfs implementation here
// is the default production binding. Numeric fields are normalised to SI
// units (Ah, V, A) regardless of the µ-unit encoding in sysfs.
package power

// State is the reported battery state.
type State string

const (
	StateCharging    State = "charging"
	StateDischarging State = "discharging"
	StateFull        State = "full"
	StateNotPresent  State = "not-present"
	StateUnknown     State = "unknown"
)

// Snapshot is a point-in-time read of the power supply.
type Snapshot struct {
	BatteryPresent bool

	// Percent is the current battery charge in [0,100].
	Percent float64

	State State

	// ChargeFullAh and ChargeFullDesignAh are in ampere-hours.
	ChargeFullAh       float64
	ChargeFullDesignAh float64

	CycleCount int64

	// VoltageV and VoltageMinDesignV are in volts; CurrentA in amperes.
	VoltageV          float64
	VoltageMinDesignV float64
	CurrentA          float64

	Vendor       string
	SerialNumber string
	ModelName    string
	Technology   string

	// Status is the raw status string as reported by the supply
	// (e.g. "Charging", "Discharging", "Full").
	Status string
}

// Adapter reads power supply properties. A nil snapshot with a non-nil
// error means the power service was unavailable; routines surface the
// error message verbatim.
type Adapter interface {
	PowerSupplySnapshot() (*Snapshot, error)
}
