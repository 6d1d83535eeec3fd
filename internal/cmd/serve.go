package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/silvermint/diagd/internal/config"
	"github.com/silvermint/diagd/internal/observability"
	"github.com/silvermint/diagd/internal/server"
	"github.com/silvermint/diagd/internal/server/handlers"
	"github.com/silvermint/diagd/pkg/debugd"
	"github.com/silvermint/diagd/pkg/diagsvc"
	"github.com/silvermint/diagd/pkg/launcher"
	"github.com/silvermint/diagd/pkg/netdiag"
	"github.com/silvermint/diagd/pkg/power"
	"github.com/silvermint/diagd/pkg/routines"
	"github.com/silvermint/diagd/pkg/sysconfig"
	"github.com/silvermint/diagd/pkg/taskloop"
)

// routineTuning maps the diagnostics configuration onto the routine
// parameters the factory consumes.
func routineTuning(d config.DiagnosticsConfig) diagsvc.Tuning {
	return diagsvc.Tuning{
		DiskRead: routines.DiskReadTuning{
			HeadroomMiB:               d.DiskReadHeadroomMiB,
			FileCreationSecondsPerMiB: d.FileCreationSecondsPerMiB,
		},
		NvmeLog: routines.NvmeLogSpec{
			PageID:    d.NvmeLogPageID,
			Length:    d.NvmeLogDataLength,
			RawBinary: d.NvmeLogRawBinary,
		},
		URandomTimeout: d.URandomTimeout,
	}
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the diagnostics daemon",
	Long: `Run the diagnostics daemon with its HTTP control surface.

The daemon probes device capabilities once at startup, builds the routine
service on a dedicated task loop, and serves routine requests until it
receives SIGINT or SIGTERM.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// loopChecker reports the task loop healthy while it still executes
// posted tasks.
type loopChecker struct {
	loop *taskloop.Loop
}

func (c loopChecker) CheckHealth(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.loop.Sync(func() {})
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("task loop unresponsive: %w", ctx.Err())
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadedConfig

	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}
	if err := observability.InitLogger(level); err != nil {
		return err
	}
	logger := observability.Logger

	caps := sysconfig.Probe(sysconfig.DefaultProbeSpec(), cfg.Capabilities.Override())

	loop := taskloop.New()
	defer loop.Close()

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

	svc := diagsvc.New(loop, diagsvc.NewFactory(collab), caps, logger)

	handlers.InitHealthManager(versionInfo.Version)
	handlers.GetHealthManager().RegisterChecker("taskloop", loopChecker{loop: loop})

	srv := server.New(cfg.Server, svc, handlers.VersionInfo{
		Version:   versionInfo.Version,
		Commit:    versionInfo.Commit,
		BuildDate: versionInfo.BuildDate,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("diagd starting",
		zap.String("version", versionInfo.Version),
		zap.String("addr", srv.Addr()),
		zap.Int("available_routines", len(svc.GetAvailableRoutines())))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(gctx)
	})

	start := time.Now()
	err := g.Wait()
	logger.Info("diagd stopped", zap.Duration("uptime", time.Since(start)))
	if err != nil {
		return fmt.Errorf("daemon failed: %w", err)
	}
	return nil
}
