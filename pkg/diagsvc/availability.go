package diagsvc

import (
	"sort"

	"github.com/silvermint/diagd/pkg/diag"
)

// Capabilities is the slice of the system capability oracle the
// availability policy reads.
type Capabilities interface {
	HasBattery() bool
	NvmeSupported() bool
	SmartCtlSupported() bool
	FioSupported() bool
	IsVendorSpecificDevice() bool
}

// alwaysAvailable lists the kinds every device supports.
var alwaysAvailable = []diag.Kind{
	diag.KindURandom,
	diag.KindACPower,
	diag.KindCPUCache,
	diag.KindCPUStress,
	diag.KindFloatingPoint,
	diag.KindPrimeSearch,
	diag.KindMemory,
	diag.KindLanConnectivity,
	diag.KindSignalStrength,
	diag.KindGatewayPing,
	diag.KindSecureWifi,
	diag.KindDNSResolverPresent,
	diag.KindDNSLatency,
	diag.KindDNSResolution,
	diag.KindCaptivePortal,
	diag.KindHTTPFirewall,
}

// Availability computes the supported routine set for this device. The
// set is fixed for the daemon's lifetime; capability probing happens once
// at startup.
func Availability(c Capabilities) []diag.Kind {
	kinds := append([]diag.Kind(nil), alwaysAvailable...)

	if c.HasBattery() {
		kinds = append(kinds,
			diag.KindBatteryCapacity,
			diag.KindBatteryHealth,
			diag.KindBatteryDischarge,
			diag.KindBatteryCharge,
		)
	}
	if c.NvmeSupported() {
		kinds = append(kinds, diag.KindNvmeSelfTest)
		if c.IsVendorSpecificDevice() {
			kinds = append(kinds, diag.KindNvmeWearLevel)
		}
	}
	if c.SmartCtlSupported() {
		kinds = append(kinds, diag.KindSmartctlCheck)
	}
	if c.FioSupported() {
		kinds = append(kinds, diag.KindDiskRead)
	}

	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
