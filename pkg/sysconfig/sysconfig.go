// Package sysconfig answers static device-capability predicates.
//
// Capabilities are probed once at daemon startup and never change for the
// lifetime of the process. Lab machines can force individual capabilities
// on or off through configuration overrides.
package sysconfig

import (
	"os"
	"os/exec"
)

// Oracle holds the probed capability set.
type Oracle struct {
	hasBattery     bool
	nvmeSupported  bool
	smartctl       bool
	fio            bool
	vendorSpecific bool
	hasSkuNumber   bool
}

func (o *Oracle) HasBattery() bool             { return o.hasBattery }
func (o *Oracle) NvmeSupported() bool          { return o.nvmeSupported }
func (o *Oracle) SmartCtlSupported() bool      { return o.smartctl }
func (o *Oracle) FioSupported() bool           { return o.fio }
func (o *Oracle) IsVendorSpecificDevice() bool { return o.vendorSpecific }
func (o *Oracle) HasSkuNumber() bool           { return o.hasSkuNumber }

// Override forces a capability on or off. A nil value means "probe".
type Override struct {
	HasBattery        *bool
	NvmeSupported     *bool
	SmartCtlSupported *bool
	FioSupported      *bool
	VendorSpecific    *bool
	HasSkuNumber      *bool
}

// ProbeSpec points the prober at the filesystem locations it inspects.
type ProbeSpec struct {
	// BatterySysfsDir is the battery sysfs directory.
	BatterySysfsDir string

	// NvmeDevice is the NVMe controller device node.
	NvmeDevice string

	// VendorMarkerPath marks devices that ship the vendor-specific
	// diagnostics module.
	VendorMarkerPath string

	// SkuNumberPath is the DMI product SKU file.
	SkuNumberPath string
}

// DefaultProbeSpec returns the standard Linux locations.
func DefaultProbeSpec() ProbeSpec {
	return ProbeSpec{
		BatterySysfsDir:  "/sys/class/power_supply/BAT0",
		NvmeDevice:       "/dev/nvme0",
		VendorMarkerPath: "/etc/diagnostics/vendor_module",
		SkuNumberPath:    "/sys/class/dmi/id/product_sku",
	}
}

// Probe inspects the device and applies overrides.
func Probe(spec ProbeSpec, ov Override) *Oracle {
	o := &Oracle{
		hasBattery:     dirExists(spec.BatterySysfsDir),
		nvmeSupported:  fileExists(spec.NvmeDevice),
		smartctl:       binaryOnPath("smartctl"),
		fio:            binaryOnPath("fio"),
		vendorSpecific: fileExists(spec.VendorMarkerPath),
		hasSkuNumber:   fileExists(spec.SkuNumberPath),
	}

	apply(&o.hasBattery, ov.HasBattery)
	apply(&o.nvmeSupported, ov.NvmeSupported)
	apply(&o.smartctl, ov.SmartCtlSupported)
	apply(&o.fio, ov.FioSupported)
	apply(&o.vendorSpecific, ov.VendorSpecific)
	apply(&o.hasSkuNumber, ov.HasSkuNumber)
	return o
}

// Fixed builds an oracle with every capability set explicitly. Tests and
// the service layer use it to pin availability.
func Fixed(hasBattery, nvme, smartctl, fio, vendorSpecific, hasSku bool) *Oracle {
	return &Oracle{
		hasBattery:     hasBattery,
		nvmeSupported:  nvme,
		smartctl:       smartctl,
		fio:            fio,
		vendorSpecific: vendorSpecific,
		hasSkuNumber:   hasSku,
	}
}

func apply(dst *bool, ov *bool) {
	if ov != nil {
		*dst = *ov
	}
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func binaryOnPath(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}
