package power

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultSysfsRoot is the standard battery sysfs directory on Linux.
const DefaultSysfsRoot = "/sys/class/power_supply/BAT0"

// SysfsAdapter reads power supply properties from a power_supply sysfs
// directory. Charge-reporting attributes take precedence; energy-reporting
// batteries are handled by dividing energy (µWh) by the design voltage.
type SysfsAdapter struct {
	root string
}

// NewSysfsAdapter creates an adapter rooted at dir. An empty dir selects
// DefaultSysfsRoot.
func NewSysfsAdapter(dir string) *SysfsAdapter {
	if strings.TrimSpace(dir) == "" {
		dir = DefaultSysfsRoot
	}
	return &SysfsAdapter{root: dir}
}

// PowerSupplySnapshot reads the battery attributes.
func (a *SysfsAdapter) PowerSupplySnapshot() (*Snapshot, error) {
	if _, err := os.Stat(a.root); err != nil {
		return nil, fmt.Errorf("power supply unavailable: %w", err)
	}

	snap := &Snapshot{State: StateUnknown}

	if present, err := a.readUint("present"); err == nil {
		snap.BatteryPresent = present == 1
	}

	if status, err := a.readString("status"); err == nil {
		snap.Status = status
		snap.State = parseState(status)
	}

	if capacity, err := a.readUint("capacity"); err == nil {
		snap.Percent = float64(capacity)
	} else if now, errNow := a.readUint("charge_now"); errNow == nil {
		if full, errFull := a.readUint("charge_full"); errFull == nil && full > 0 {
			snap.Percent = float64(now) / float64(full) * 100
		}
	}

	voltsMinDesign := 0.0
	if uv, err := a.readUint("voltage_min_design"); err == nil {
		voltsMinDesign = microToUnit(uv)
		snap.VoltageMinDesignV = voltsMinDesign
	}
	if uv, err := a.readUint("voltage_now"); err == nil {
		snap.VoltageV = microToUnit(uv)
	}
	if ua, err := a.readUint("current_now"); err == nil {
		snap.CurrentA = microToUnit(ua)
	}

	// Charge attributes are authoritative when both exist; fall back to
	// energy attributes, converting µWh to Ah via the design voltage.
	full, errFull := a.readUint("charge_full")
	design, errDesign := a.readUint("charge_full_design")
	if errFull == nil && errDesign == nil {
		snap.ChargeFullAh = microToUnit(full)
		snap.ChargeFullDesignAh = microToUnit(design)
	} else if voltsMinDesign > 0 {
		energyFull, errEF := a.readUint("energy_full")
		energyDesign, errED := a.readUint("energy_full_design")
		if errEF == nil && errED == nil {
			snap.ChargeFullAh = microToUnit(energyFull) / voltsMinDesign
			snap.ChargeFullDesignAh = microToUnit(energyDesign) / voltsMinDesign
		}
	}

	if cycles, err := a.readUint("cycle_count"); err == nil {
		snap.CycleCount = int64(cycles)
	}

	snap.Vendor, _ = a.readString("manufacturer")
	snap.SerialNumber, _ = a.readString("serial_number")
	snap.ModelName, _ = a.readString("model_name")
	snap.Technology, _ = a.readString("technology")

	return snap, nil
}

func (a *SysfsAdapter) readString(name string) (string, error) {
	b, err := os.ReadFile(filepath.Join(a.root, name))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func (a *SysfsAdapter) readUint(name string) (uint64, error) {
	s, err := a.readString(name)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", name, err)
	}
	return v, nil
}

func parseState(status string) State {
	switch strings.ToLower(status) {
	case "charging":
		return StateCharging
	case "discharging":
		return StateDischarging
	case "full":
		return StateFull
	default:
		return StateUnknown
	}
}

// microToUnit converts a µ-unit sysfs integer to its SI unit.
func microToUnit(v uint64) float64 {
	return float64(v) / 1e6
}

var _ Adapter = (*SysfsAdapter)(nil)
