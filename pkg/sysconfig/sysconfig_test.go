package sysconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boolPtr(b bool) *bool { return &b }

func TestProbe_FilesystemPredicates(t *testing.T) {
	root := t.TempDir()
	batteryDir := filepath.Join(root, "BAT0")
	require.NoError(t, os.MkdirAll(batteryDir, 0755))

	marker := filepath.Join(root, "vendor_module")
	require.NoError(t, os.WriteFile(marker, nil, 0644))

	spec := ProbeSpec{
		BatterySysfsDir:  batteryDir,
		NvmeDevice:       filepath.Join(root, "no-such-node"),
		VendorMarkerPath: marker,
		SkuNumberPath:    filepath.Join(root, "no-sku"),
	}

	o := Probe(spec, Override{})
	assert.True(t, o.HasBattery())
	assert.False(t, o.NvmeSupported())
	assert.True(t, o.IsVendorSpecificDevice())
	assert.False(t, o.HasSkuNumber())
}

func TestProbe_OverridesWin(t *testing.T) {
	spec := ProbeSpec{
		BatterySysfsDir:  "/nonexistent",
		NvmeDevice:       "/nonexistent",
		VendorMarkerPath: "/nonexistent",
		SkuNumberPath:    "/nonexistent",
	}

	o := Probe(spec, Override{
		HasBattery:        boolPtr(true),
		NvmeSupported:     boolPtr(true),
		SmartCtlSupported: boolPtr(false),
		FioSupported:      boolPtr(true),
	})

	assert.True(t, o.HasBattery())
	assert.True(t, o.NvmeSupported())
	assert.False(t, o.SmartCtlSupported())
	assert.True(t, o.FioSupported())
}

func TestFixed(t *testing.T) {
	o := Fixed(true, false, true, false, true, false)
	assert.True(t, o.HasBattery())
	assert.False(t, o.NvmeSupported())
	assert.True(t, o.SmartCtlSupported())
	assert.False(t, o.FioSupported())
	assert.True(t, o.IsVendorSpecificDevice())
	assert.False(t, o.HasSkuNumber())
}
