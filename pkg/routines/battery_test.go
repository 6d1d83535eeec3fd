package routines

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/silvermint/diagd/pkg/diag"
	"github.com/silvermint/diagd/pkg/power"
)

func TestBatteryCapacity_Pass(t *testing.T) {
	adapter := &fakePower{snap: &power.Snapshot{
		BatteryPresent:     true,
		ChargeFullDesignAh: 8.948,
	}}

	r := NewBatteryCapacityRoutine(adapter, 1000, 10000)
	r.Start()

	update := poll(r, true)
	require.Equal(t, diag.StatusPassed, update.Noninteractive.Status)
	assert.Equal(t, BatteryCapacityPassedMessage, update.Noninteractive.Message)
	assert.Equal(t, uint32(100), update.Progress)

	doc := decodeOutput(t, update.Output)
	details := doc["resultDetails"].(map[string]any)
	assert.Equal(t, float64(8948), details["designCapacityMAh"])
}

func TestBatteryCapacity_Fail(t *testing.T) {
	adapter := &fakePower{snap: &power.Snapshot{
		BatteryPresent:     true,
		ChargeFullDesignAh: 0.812,
	}}

	r := NewBatteryCapacityRoutine(adapter, 1000, 10000)
	r.Start()

	update := poll(r, false)
	require.Equal(t, diag.StatusFailed, update.Noninteractive.Status)
	assert.Equal(t, BatteryCapacityFailedMessage, update.Noninteractive.Message)
	assert.Equal(t, uint32(100), update.Progress)
}

func TestBatteryCapacity_InvalidParameters(t *testing.T) {
	r := NewBatteryCapacityRoutine(&fakePower{}, 10000, 1000)
	r.Start()

	update := poll(r, false)
	require.Equal(t, diag.StatusError, update.Noninteractive.Status)
	assert.Equal(t, BatteryCapacityInvalidParametersMessage, update.Noninteractive.Message)
	assert.Equal(t, uint32(0), update.Progress)
}

func TestBatteryCapacity_AdapterError(t *testing.T) {
	r := NewBatteryCapacityRoutine(&fakePower{err: errors.New("power service unavailable")}, 1000, 10000)
	r.Start()

	update := poll(r, false)
	require.Equal(t, diag.StatusError, update.Noninteractive.Status)
	assert.Equal(t, "power service unavailable", update.Noninteractive.Message)
}

func TestBatteryCapacity_BatteryAbsent(t *testing.T) {
	r := NewBatteryCapacityRoutine(&fakePower{snap: &power.Snapshot{BatteryPresent: false}}, 1000, 10000)
	r.Start()

	update := poll(r, false)
	require.Equal(t, diag.StatusError, update.Noninteractive.Status)
	assert.Equal(t, BatteryCapacityNotPresentMessage, update.Noninteractive.Message)
}

func healthySnapshot() *power.Snapshot {
	return &power.Snapshot{
		BatteryPresent:     true,
		ChargeFullAh:       8.2,
		ChargeFullDesignAh: 8.948,
		CycleCount:         87,
		Vendor:             "ACME",
		ModelName:          "B-100",
		SerialNumber:       "SN1234",
		Technology:         "Li-ion",
	}
}

func TestBatteryHealth_Pass(t *testing.T) {
	r := NewBatteryHealthRoutine(&fakePower{snap: healthySnapshot()}, 1000, 50)
	r.Start()

	update := poll(r, true)
	require.Equal(t, diag.StatusPassed, update.Noninteractive.Status)
	assert.Equal(t, BatteryHealthRoutinePassedMessage, update.Noninteractive.Message)

	details := decodeOutput(t, update.Output)["resultDetails"].(map[string]any)
	// 8.2/8.948 is roughly 92%, so wear is 8%.
	assert.Equal(t, float64(8), details["wearPercentage"])
	assert.Equal(t, float64(87), details["cycleCount"])
	assert.Equal(t, "ACME", details["vendor"])
}

func TestBatteryHealth_ExcessiveWear(t *testing.T) {
	snap := healthySnapshot()
	snap.ChargeFullAh = 4.0

	r := NewBatteryHealthRoutine(&fakePower{snap: snap}, 1000, 30)
	r.Start()

	update := poll(r, false)
	require.Equal(t, diag.StatusFailed, update.Noninteractive.Status)
	assert.Equal(t, BatteryHealthExcessiveWearMessage, update.Noninteractive.Message)
}

func TestBatteryHealth_ExcessiveCycleCount(t *testing.T) {
	snap := healthySnapshot()
	snap.CycleCount = 5000

	r := NewBatteryHealthRoutine(&fakePower{snap: snap}, 1000, 50)
	r.Start()

	update := poll(r, false)
	require.Equal(t, diag.StatusFailed, update.Noninteractive.Status)
	assert.Equal(t, BatteryHealthExcessiveCycleCountMessage, update.Noninteractive.Message)
}

func TestBatteryHealth_WearCapsAtZero(t *testing.T) {
	// A fresh battery can report more capacity than its conservative
	// design value; that must read as zero wear, not underflow.
	snap := healthySnapshot()
	snap.ChargeFullAh = 9.5

	r := NewBatteryHealthRoutine(&fakePower{snap: snap}, 1000, 0)
	r.Start()

	update := poll(r, true)
	require.Equal(t, diag.StatusPassed, update.Noninteractive.Status)
	details := decodeOutput(t, update.Output)["resultDetails"].(map[string]any)
	assert.Equal(t, float64(0), details["wearPercentage"])
}

func TestBatteryHealth_InvalidParameters(t *testing.T) {
	r := NewBatteryHealthRoutine(&fakePower{snap: healthySnapshot()}, 1000, 101)
	r.Start()

	update := poll(r, false)
	require.Equal(t, diag.StatusError, update.Noninteractive.Status)
	assert.Equal(t, BatteryHealthInvalidParametersMessage, update.Noninteractive.Message)
}

func TestBatteryHealth_MissingDesignCapacity(t *testing.T) {
	snap := healthySnapshot()
	snap.ChargeFullDesignAh = 0

	r := NewBatteryHealthRoutine(&fakePower{snap: snap}, 1000, 50)
	r.Start()

	update := poll(r, false)
	require.Equal(t, diag.StatusError, update.Noninteractive.Status)
	assert.Equal(t, BatteryHealthFailedCalculatingWearMessage, update.Noninteractive.Message)
}
