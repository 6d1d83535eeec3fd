package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/silvermint/diagd/internal/observability"
	"github.com/silvermint/diagd/pkg/sysconfig"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long: `Run diagnostic checks on the environment and report which routine
dependencies are available on this machine.

Examples:
  diagd doctor              # Full environment check`,
	Run: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

// helperBinaries are the external tools routines shell out to. A missing
// binary disables the routines that need it but is not fatal.
var helperBinaries = []struct {
	name     string
	usedBy   string
	required bool
}{
	{"memtester", "memory", false},
	{"stressapptest", "cpu-stress, floating-point-accuracy", false},
	{"fio", "disk-read", false},
	{"smartctl", "smartctl-check", false},
	{"nvme", "nvme-wear-level, nvme-self-test", false},
}

func runDoctor(cmd *cobra.Command, args []string) {
	observability.CLILogger.Info("=== diagd doctor ===")
	observability.CLILogger.Info("")
	observability.CLILogger.Info("Running diagnostic checks...")
	observability.CLILogger.Info("")

	allChecks := true
	checkNum := 1
	totalChecks := 4 + len(helperBinaries)

	// Check 1: environment
	observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking environment... ✅ %s/%s", checkNum, totalChecks, runtime.GOOS, runtime.GOARCH),
		zap.String("os", runtime.GOOS),
		zap.String("arch", runtime.GOARCH))
	checkNum++

	// Check 2: /proc/meminfo, needed by the memory routine
	if _, err := os.Stat("/proc/meminfo"); err != nil {
		observability.CLILogger.Warn(fmt.Sprintf("[%d/%d] Checking /proc/meminfo... ⚠️  not readable", checkNum, totalChecks),
			zap.Error(err))
		allChecks = false
	} else {
		observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking /proc/meminfo... ✅ readable", checkNum, totalChecks))
	}
	checkNum++

	// Check 3: battery sysfs directory
	spec := sysconfig.DefaultProbeSpec()
	if info, err := os.Stat(spec.BatterySysfsDir); err != nil || !info.IsDir() {
		observability.CLILogger.Warn(fmt.Sprintf("[%d/%d] Checking battery sysfs... ⚠️  %s not present (battery routines unavailable)", checkNum, totalChecks, spec.BatterySysfsDir))
	} else {
		observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking battery sysfs... ✅ %s", checkNum, totalChecks, spec.BatterySysfsDir),
			zap.String("battery_dir", spec.BatterySysfsDir))
	}
	checkNum++

	// Check 4: cache root writable, needed by disk-read
	cacheRoot := loadedConfig.Diagnostics.CacheRoot
	if err := checkWritable(cacheRoot); err != nil {
		observability.CLILogger.Warn(fmt.Sprintf("[%d/%d] Checking cache root... ⚠️  %s not writable", checkNum, totalChecks, cacheRoot),
			zap.Error(err))
		allChecks = false
	} else {
		observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking cache root... ✅ %s", checkNum, totalChecks, cacheRoot),
			zap.String("cache_root", cacheRoot))
	}
	checkNum++

	// Remaining checks: helper binaries on PATH
	for _, bin := range helperBinaries {
		path, err := exec.LookPath(bin.name)
		if err != nil {
			observability.CLILogger.Warn(fmt.Sprintf("[%d/%d] Checking %s... ⚠️  not found (needed by %s)", checkNum, totalChecks, bin.name, bin.usedBy),
				zap.String("binary", bin.name))
			allChecks = false
		} else {
			observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking %s... ✅ %s", checkNum, totalChecks, bin.name, path),
				zap.String("binary", bin.name),
				zap.String("path", path))
		}
		checkNum++
	}

	observability.CLILogger.Info("")
	if allChecks {
		observability.CLILogger.Info("✅ All checks passed! Your diagd installation is healthy.")
	} else {
		observability.CLILogger.Warn("⚠️  Some checks failed. Review the output above for details.")
	}
	observability.CLILogger.Info("")
	observability.CLILogger.Info("=== End Diagnostics ===")
}

// checkWritable verifies dir exists (creating it if needed) and accepts a
// probe file.
func checkWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	probe := filepath.Join(dir, ".diagd-doctor")
	f, err := os.Create(probe)
	if err != nil {
		return err
	}
	_ = f.Close()
	return os.Remove(probe)
}
