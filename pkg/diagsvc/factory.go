package diagsvc

import (
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/silvermint/diagd/pkg/debugd"
	"github.com/silvermint/diagd/pkg/diag"
	"github.com/silvermint/diagd/pkg/launcher"
	"github.com/silvermint/diagd/pkg/netdiag"
	"github.com/silvermint/diagd/pkg/power"
	"github.com/silvermint/diagd/pkg/routines"
	"github.com/silvermint/diagd/pkg/taskloop"
)

// Factory creates routine instances. The service owns one factory; tests
// substitute their own to observe construction.
type Factory interface {
	URandom(duration time.Duration) diag.Routine
	BatteryCapacity(lowMAh, highMAh uint32) diag.Routine
	BatteryHealth(maxCycleCount, percentWearAllowed uint32) diag.Routine
	BatteryCharge(duration time.Duration, minimumChargePercent uint32) diag.Routine
	BatteryDischarge(duration time.Duration, maximumDischargePercent uint32) diag.Routine
	ACPower(expectedOnline bool) diag.Routine
	SmartctlCheck() diag.Routine
	CPUCache(duration time.Duration) diag.Routine
	CPUStress(duration time.Duration) diag.Routine
	FloatingPoint(duration time.Duration) diag.Routine
	PrimeSearch(duration time.Duration, maxNum uint64) diag.Routine
	Memory() diag.Routine
	NvmeWearLevel(threshold uint32) diag.Routine
	NvmeSelfTest(testType routines.SelfTestType) diag.Routine
	DiskRead(readType routines.DiskReadType, duration time.Duration, fileSizeMiB uint32) diag.Routine

	// Network creates the delegating routine for a network check kind.
	Network(kind diag.Kind) diag.Routine
}

// Collaborators bundles the adapter façades routines run against.
type Collaborators struct {
	Power    power.Adapter
	Debugd   debugd.Adapter
	Launcher launcher.Launcher
	Netdiag  netdiag.Adapter
	Clock    clockwork.Clock
	Runner   taskloop.Runner

	// CacheRoot hosts subprocess scratch files, disk-read test files in
	// particular.
	CacheRoot string

	// Tuning carries the operator-adjustable routine parameters from
	// configuration. Zero fields fall back to routine defaults.
	Tuning Tuning
}

// Tuning groups the configurable routine constants.
type Tuning struct {
	DiskRead routines.DiskReadTuning
	NvmeLog  routines.NvmeLogSpec

	// URandomTimeout is the urandom duration used when a run request
	// omits one.
	URandomTimeout time.Duration
}

// routineFactory is the production factory.
type routineFactory struct {
	c Collaborators
}

// NewFactory builds the production routine factory.
func NewFactory(c Collaborators) Factory {
	return &routineFactory{c: c}
}

func (f *routineFactory) URandom(duration time.Duration) diag.Routine {
	if duration <= 0 {
		duration = f.c.Tuning.URandomTimeout
	}
	return routines.NewURandomRoutine(f.c.Launcher, f.c.Clock, f.c.Runner, duration)
}

func (f *routineFactory) BatteryCapacity(lowMAh, highMAh uint32) diag.Routine {
	return routines.NewBatteryCapacityRoutine(f.c.Power, lowMAh, highMAh)
}

func (f *routineFactory) BatteryHealth(maxCycleCount, percentWearAllowed uint32) diag.Routine {
	return routines.NewBatteryHealthRoutine(f.c.Power, maxCycleCount, percentWearAllowed)
}

func (f *routineFactory) BatteryCharge(duration time.Duration, minimumChargePercent uint32) diag.Routine {
	return routines.NewBatteryChargeRoutine(f.c.Power, f.c.Clock, f.c.Runner, duration, minimumChargePercent)
}

func (f *routineFactory) BatteryDischarge(duration time.Duration, maximumDischargePercent uint32) diag.Routine {
	return routines.NewBatteryDischargeRoutine(f.c.Power, f.c.Clock, f.c.Runner, duration, maximumDischargePercent)
}

func (f *routineFactory) ACPower(expectedOnline bool) diag.Routine {
	return routines.NewACPowerRoutine(f.c.Power, expectedOnline)
}

func (f *routineFactory) SmartctlCheck() diag.Routine {
	return routines.NewSmartctlCheckRoutine(f.c.Debugd)
}

func (f *routineFactory) CPUCache(duration time.Duration) diag.Routine {
	return routines.NewCPUCacheRoutine(f.c.Launcher, f.c.Clock, f.c.Runner, duration)
}

func (f *routineFactory) CPUStress(duration time.Duration) diag.Routine {
	return routines.NewCPUStressRoutine(f.c.Launcher, f.c.Clock, f.c.Runner, duration)
}

func (f *routineFactory) FloatingPoint(duration time.Duration) diag.Routine {
	return routines.NewFloatingPointRoutine(f.c.Launcher, f.c.Clock, f.c.Runner, duration)
}

func (f *routineFactory) PrimeSearch(duration time.Duration, maxNum uint64) diag.Routine {
	return routines.NewPrimeSearchRoutine(f.c.Launcher, f.c.Clock, f.c.Runner, duration, maxNum)
}

func (f *routineFactory) Memory() diag.Routine {
	return routines.NewMemoryRoutine(f.c.Launcher, f.c.Clock, f.c.Runner)
}

func (f *routineFactory) NvmeWearLevel(threshold uint32) diag.Routine {
	return routines.NewNvmeWearLevelRoutine(f.c.Debugd, threshold)
}

func (f *routineFactory) NvmeSelfTest(testType routines.SelfTestType) diag.Routine {
	return routines.NewNvmeSelfTestRoutine(f.c.Debugd, testType, f.c.Tuning.NvmeLog)
}

func (f *routineFactory) DiskRead(readType routines.DiskReadType, duration time.Duration, fileSizeMiB uint32) diag.Routine {
	return routines.NewDiskReadRoutine(f.c.Launcher, f.c.Clock, f.c.Runner, f.c.CacheRoot, readType, duration, fileSizeMiB, f.c.Tuning.DiskRead)
}

func (f *routineFactory) Network(kind diag.Kind) diag.Routine {
	switch kind {
	case diag.KindLanConnectivity:
		return routines.NewLanConnectivityRoutine(f.c.Netdiag)
	case diag.KindSignalStrength:
		return routines.NewSignalStrengthRoutine(f.c.Netdiag)
	case diag.KindGatewayPing:
		return routines.NewGatewayPingRoutine(f.c.Netdiag)
	case diag.KindSecureWifi:
		return routines.NewSecureWifiRoutine(f.c.Netdiag)
	case diag.KindDNSResolverPresent:
		return routines.NewDNSResolverPresentRoutine(f.c.Netdiag)
	case diag.KindDNSLatency:
		return routines.NewDNSLatencyRoutine(f.c.Netdiag)
	case diag.KindDNSResolution:
		return routines.NewDNSResolutionRoutine(f.c.Netdiag)
	case diag.KindCaptivePortal:
		return routines.NewCaptivePortalRoutine(f.c.Netdiag)
	case diag.KindHTTPFirewall:
		return routines.NewHTTPFirewallRoutine(f.c.Netdiag)
	}
	return nil
}
