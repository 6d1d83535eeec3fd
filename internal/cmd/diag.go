package cmd

import (
	"bufio"
	"fmt"
	"os"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/silvermint/diagd/internal/observability"
	"github.com/silvermint/diagd/internal/server/handlers"
	"github.com/silvermint/diagd/pkg/debugd"
	"github.com/silvermint/diagd/pkg/diag"
	"github.com/silvermint/diagd/pkg/diagsvc"
	"github.com/silvermint/diagd/pkg/launcher"
	"github.com/silvermint/diagd/pkg/netdiag"
	"github.com/silvermint/diagd/pkg/power"
	"github.com/silvermint/diagd/pkg/report"
	"github.com/silvermint/diagd/pkg/sysconfig"
	"github.com/silvermint/diagd/pkg/taskloop"
)

var diagCmd = &cobra.Command{
	Use:   "diag",
	Short: "Drive diagnostic routines from the terminal",
}

var diagListCmd = &cobra.Command{
	Use:   "list",
	Short: "List routines this device supports",
	RunE:  runDiagList,
}

var (
	diagRoutine       string
	diagLengthSeconds uint32
	diagLowMAh        uint32
	diagHighMAh       uint32
	diagMaxCycles     uint32
	diagWearAllowed   uint32
	diagMinCharge     uint32
	diagMaxDischarge  uint32
	diagPowerOnline   bool
	diagWearThreshold uint32
	diagSelfTestType  string
	diagDiskReadType  string
	diagFileSizeMiB   uint32
	diagMaxNum        uint64
	diagIncludeOutput bool
	diagPollInterval  time.Duration
)

var diagRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one routine and stream its updates as JSONL",
	Long: `Run a single diagnostic routine, polling it until it reaches a
terminal status. Updates and the final result are written to stdout as
JSONL records.

Example:
  diagd diag run --routine urandom --length-seconds 5
  diagd diag run --routine battery-capacity --low-mah 2000 --high-mah 9000
  diagd diag run --routine nvme-self-test --nvme-self-test-type long`,
	RunE: runDiagRun,
}

func init() {
	rootCmd.AddCommand(diagCmd)
	diagCmd.AddCommand(diagListCmd)
	diagCmd.AddCommand(diagRunCmd)

	diagRunCmd.Flags().StringVar(&diagRoutine, "routine", "", "Routine kind to run (required)")
	diagRunCmd.Flags().Uint32Var(&diagLengthSeconds, "length-seconds", handlers.DefaultLengthSeconds, "Routine duration in seconds")
	diagRunCmd.Flags().Uint32Var(&diagLowMAh, "low-mah", handlers.DefaultLowMAh, "Battery capacity lower bound (mAh)")
	diagRunCmd.Flags().Uint32Var(&diagHighMAh, "high-mah", handlers.DefaultHighMAh, "Battery capacity upper bound (mAh)")
	diagRunCmd.Flags().Uint32Var(&diagMaxCycles, "maximum-cycle-count", handlers.DefaultMaximumCycleCount, "Battery health cycle count limit")
	diagRunCmd.Flags().Uint32Var(&diagWearAllowed, "percent-battery-wear-allowed", handlers.DefaultPercentBatteryWearAllowed, "Battery health wear limit (percent)")
	diagRunCmd.Flags().Uint32Var(&diagMinCharge, "minimum-charge-percent-required", 0, "Battery charge gain required (percent)")
	diagRunCmd.Flags().Uint32Var(&diagMaxDischarge, "maximum-discharge-percent-allowed", 100, "Battery discharge allowed (percent)")
	diagRunCmd.Flags().BoolVar(&diagPowerOnline, "expected-power-online", true, "Expect AC power to be online")
	diagRunCmd.Flags().Uint32Var(&diagWearThreshold, "wear-level-threshold", handlers.DefaultWearLevelThreshold, "NVMe wear level threshold (percent)")
	diagRunCmd.Flags().StringVar(&diagSelfTestType, "nvme-self-test-type", "short", "NVMe self-test type (short|long)")
	diagRunCmd.Flags().StringVar(&diagDiskReadType, "disk-read-type", "linear", "Disk read access pattern (linear|random)")
	diagRunCmd.Flags().Uint32Var(&diagFileSizeMiB, "file-size-mb", handlers.DefaultFileSizeMiB, "Disk read test file size (MiB)")
	diagRunCmd.Flags().Uint64Var(&diagMaxNum, "maximum-num", handlers.DefaultPrimeSearchMaxNum, "Prime search upper bound")
	diagRunCmd.Flags().BoolVar(&diagIncludeOutput, "include-output", false, "Include routine output in the final record")
	diagRunCmd.Flags().DurationVar(&diagPollInterval, "poll-interval", time.Second, "Interval between status polls")

	_ = diagRunCmd.MarkFlagRequired("routine")
}

// newLocalService builds a routine service against the real device, the
// same wiring serve uses, plus the task loop to drive it.
func newLocalService() (*diagsvc.Service, *taskloop.Loop) {
	cfg := loadedConfig
	caps := sysconfig.Probe(sysconfig.DefaultProbeSpec(), cfg.Capabilities.Override())

	loop := taskloop.New()
	collab := diagsvc.Collaborators{
		Power:     power.NewSysfsAdapter(sysconfig.DefaultProbeSpec().BatterySysfsDir),
		Debugd:    debugd.NewHelperAdapter(launcher.ExecLauncher{}, loop, ""),
		Launcher:  launcher.ExecLauncher{},
		Netdiag:   netdiag.NewLocalAdapter(loop),
		Clock:     clockwork.NewRealClock(),
		Runner:    loop,
		CacheRoot: cfg.Diagnostics.CacheRoot,
		Tuning:    routineTuning(cfg.Diagnostics),
	}

	svc := diagsvc.New(loop, diagsvc.NewFactory(collab), caps, observability.CLILogger)
	return svc, loop
}

func runDiagList(cmd *cobra.Command, args []string) error {
	svc, loop := newLocalService()
	defer loop.Close()

	writer := report.NewJSONLWriter(os.Stdout, uuid.New().String())
	defer func() { _ = writer.Close() }()

	kinds := svc.GetAvailableRoutines()
	if err := writer.WriteAvailability(cmd.Context(), &report.AvailabilityRecord{Kinds: kinds}); err != nil {
		return exitError(int(foundry.ExitFileWriteError), "Failed to write availability record", err)
	}
	return nil
}

// runParamsFromFlags maps the diag run flags onto run parameters.
func runParamsFromFlags() handlers.RunParams {
	return handlers.RunParams{
		LengthSeconds:                  &diagLengthSeconds,
		LowMAh:                         &diagLowMAh,
		HighMAh:                        &diagHighMAh,
		MaximumCycleCount:              &diagMaxCycles,
		PercentBatteryWearAllowed:      &diagWearAllowed,
		MinimumChargePercentRequired:   &diagMinCharge,
		MaximumDischargePercentAllowed: &diagMaxDischarge,
		ExpectedPowerOnline:            &diagPowerOnline,
		WearLevelThreshold:             &diagWearThreshold,
		NvmeSelfTestType:               diagSelfTestType,
		DiskReadType:                   diagDiskReadType,
		FileSizeMiB:                    &diagFileSizeMiB,
		MaximumNum:                     &diagMaxNum,
	}
}

func runDiagRun(cmd *cobra.Command, args []string) error {
	kind := diag.Kind(diagRoutine)

	svc, loop := newLocalService()
	defer loop.Close()

	sessionID := uuid.New().String()
	writer := report.NewJSONLWriter(os.Stdout, sessionID)
	defer func() { _ = writer.Close() }()

	id, status, ok := handlers.Dispatch(svc, kind, runParamsFromFlags())
	if !ok {
		return exitError(int(foundry.ExitInvalidArgument), "Unknown routine kind",
			fmt.Errorf("unsupported kind %q", diagRoutine))
	}
	if id == diag.FailedToStartID {
		return exitError(int(foundry.ExitInvalidArgument), "Routine not supported on this device",
			fmt.Errorf("routine %q reported status %s", diagRoutine, status))
	}

	observability.CLILogger.Info("Routine started",
		zap.String("kind", string(kind)),
		zap.Int32("id", id),
		zap.String("session_id", sessionID))

	start := time.Now()
	stdin := bufio.NewReader(cmd.InOrStdin())

	for {
		update := svc.GetRoutineUpdate(id, diag.CommandGetStatus, diagIncludeOutput)

		if update.Interactive != nil {
			// Blocked on a user precondition. Record the waiting state,
			// prompt, then resume.
			if err := writer.WriteUpdate(cmd.Context(), report.FromUpdate(id, kind, update)); err != nil {
				return exitError(int(foundry.ExitFileWriteError), "Failed to write update record", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Action required: %s. Press Enter to continue...\n",
				update.Interactive.UserMessage)
			if _, err := stdin.ReadString('\n'); err != nil {
				return exitError(int(foundry.ExitFileReadError), "Failed to read confirmation", err)
			}
			update = svc.GetRoutineUpdate(id, diag.CommandContinue, diagIncludeOutput)
		}

		rec := report.FromUpdate(id, kind, update)
		if err := writer.WriteUpdate(cmd.Context(), rec); err != nil {
			return exitError(int(foundry.ExitFileWriteError), "Failed to write update record", err)
		}

		if update.Noninteractive != nil && update.Noninteractive.Status.Terminal() {
			duration := time.Since(start)
			result := &report.ResultRecord{
				ID:            id,
				Kind:          kind,
				Status:        update.Noninteractive.Status,
				Message:       update.Noninteractive.Message,
				Progress:      update.Progress,
				Duration:      duration,
				DurationHuman: duration.Round(time.Millisecond).String(),
				Output:        string(update.Output),
			}
			if err := writer.WriteResult(cmd.Context(), result); err != nil {
				return exitError(int(foundry.ExitFileWriteError), "Failed to write result record", err)
			}

			// Release the routine before the loop shuts down.
			svc.GetRoutineUpdate(id, diag.CommandRemove, false)

			if update.Noninteractive.Status != diag.StatusPassed {
				return exitError(int(foundry.ExitInvalidArgument),
					fmt.Sprintf("Routine finished with status %s", update.Noninteractive.Status), nil)
			}
			return nil
		}

		select {
		case <-cmd.Context().Done():
			svc.GetRoutineUpdate(id, diag.CommandCancel, false)
			return exitError(int(foundry.ExitSignalInt), "Routine cancelled", cmd.Context().Err())
		case <-time.After(diagPollInterval):
		}
	}
}
