package power

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeBatteryDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, contents := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(contents+"\n"), 0644))
	}
	return dir
}

func TestSysfsAdapter_ChargeReportingBattery(t *testing.T) {
	dir := writeBatteryDir(t, map[string]string{
		"present":            "1",
		"status":             "Discharging",
		"capacity":           "55",
		"charge_full":        "8000000",
		"charge_full_design": "8948000",
		"cycle_count":        "37",
		"voltage_now":        "12500000",
		"voltage_min_design": "11400000",
		"current_now":        "1200000",
		"manufacturer":       "ACME",
		"model_name":         "BX-1",
		"serial_number":      "123abc",
		"technology":         "Li-ion",
	})

	snap, err := NewSysfsAdapter(dir).PowerSupplySnapshot()
	require.NoError(t, err)

	assert.True(t, snap.BatteryPresent)
	assert.Equal(t, StateDischarging, snap.State)
	assert.InDelta(t, 55.0, snap.Percent, 0.001)
	assert.InDelta(t, 8.0, snap.ChargeFullAh, 0.001)
	assert.InDelta(t, 8.948, snap.ChargeFullDesignAh, 0.001)
	assert.Equal(t, int64(37), snap.CycleCount)
	assert.InDelta(t, 12.5, snap.VoltageV, 0.001)
	assert.InDelta(t, 11.4, snap.VoltageMinDesignV, 0.001)
	assert.InDelta(t, 1.2, snap.CurrentA, 0.001)
	assert.Equal(t, "ACME", snap.Vendor)
	assert.Equal(t, "BX-1", snap.ModelName)
}

func TestSysfsAdapter_EnergyReportingFallback(t *testing.T) {
	dir := writeBatteryDir(t, map[string]string{
		"present":            "1",
		"status":             "Charging",
		"capacity":           "80",
		"voltage_min_design": "10000000",
		"energy_full":        "50000000",
		"energy_full_design": "60000000",
	})

	snap, err := NewSysfsAdapter(dir).PowerSupplySnapshot()
	require.NoError(t, err)

	assert.Equal(t, StateCharging, snap.State)
	// 50 Wh at 10 V design is 5 Ah.
	assert.InDelta(t, 5.0, snap.ChargeFullAh, 0.001)
	assert.InDelta(t, 6.0, snap.ChargeFullDesignAh, 0.001)
}

func TestSysfsAdapter_MissingDirectory(t *testing.T) {
	a := NewSysfsAdapter(filepath.Join(t.TempDir(), "nope"))
	snap, err := a.PowerSupplySnapshot()
	assert.Nil(t, snap)
	assert.Error(t, err)
}

func TestParseState(t *testing.T) {
	tests := []struct {
		in   string
		want State
	}{
		{"Charging", StateCharging},
		{"Discharging", StateDischarging},
		{"Full", StateFull},
		{"Something Else", StateUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseState(tt.in), tt.in)
	}
}
