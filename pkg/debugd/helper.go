package debugd

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/silvermint/diagd/pkg/launcher"
	"github.com/silvermint/diagd/pkg/taskloop"
)

// DefaultTimeout bounds every helper invocation.
const DefaultTimeout = 10 * time.Second

// HelperAdapter implements Adapter by shelling out to the smartctl and
// nvme command line tools through the launcher. Results are posted back to
// the task loop runner so routine callbacks always run on the loop.
type HelperAdapter struct {
	launcher launcher.Launcher
	runner   taskloop.Runner

	// Device is the NVMe namespace device node, e.g. /dev/nvme0n1.
	Device string

	// Timeout overrides DefaultTimeout when positive.
	Timeout time.Duration
}

// NewHelperAdapter creates a HelperAdapter for device.
func NewHelperAdapter(l launcher.Launcher, runner taskloop.Runner, device string) *HelperAdapter {
	if strings.TrimSpace(device) == "" {
		device = "/dev/nvme0n1"
	}
	return &HelperAdapter{launcher: l, runner: runner, Device: device}
}

func (a *HelperAdapter) GetSmartAttributes(cb ResultCallback) {
	a.invoke([]string{"smartctl", "-A", a.Device}, false, cb)
}

func (a *HelperAdapter) GetNvmeIdentity(cb ResultCallback) {
	a.invoke([]string{"nvme", "id-ctrl", a.Device}, false, cb)
}

func (a *HelperAdapter) RunNvmeShortSelfTest(cb ResultCallback) {
	a.invoke([]string{"nvme", "device-self-test", a.Device, "--self-test-code=1"}, false, cb)
}

func (a *HelperAdapter) RunNvmeLongSelfTest(cb ResultCallback) {
	a.invoke([]string{"nvme", "device-self-test", a.Device, "--self-test-code=2"}, false, cb)
}

func (a *HelperAdapter) StopNvmeSelfTest(cb ResultCallback) {
	a.invoke([]string{"nvme", "device-self-test", a.Device, "--self-test-code=0xf"}, false, cb)
}

func (a *HelperAdapter) GetNvmeLog(pageID uint32, length uint32, rawBinary bool, cb ResultCallback) {
	argv := []string{
		"nvme", "get-log", a.Device,
		fmt.Sprintf("--log-id=%d", pageID),
		fmt.Sprintf("--log-len=%d", length),
	}
	if rawBinary {
		argv = append(argv, "--raw-binary")
	}
	a.invoke(argv, rawBinary, cb)
}

// invoke runs argv off-loop and posts the callback with the payload. Text
// output is posted with the trailing newline trimmed; raw output is
// base64 framed untouched, since it is binary. The child is killed if it
// outlives the timeout.
func (a *HelperAdapter) invoke(argv []string, raw bool, cb ResultCallback) {
	timeout := a.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	go func() {
		proc, err := a.launcher.Launch(argv, "")
		if err != nil {
			a.post(cb, "", fmt.Errorf("debug helper: %w", err))
			return
		}

		timer := time.AfterFunc(timeout, proc.Kill)
		res, err := proc.Wait()
		timer.Stop()

		if err != nil {
			a.post(cb, "", fmt.Errorf("debug helper: %w", err))
			return
		}
		if res.ExitCode != 0 {
			a.post(cb, "", fmt.Errorf("debug helper: %s exited with code %d", argv[0], res.ExitCode))
			return
		}
		if raw {
			a.post(cb, base64.StdEncoding.EncodeToString(res.Output), nil)
			return
		}
		a.post(cb, strings.TrimRight(string(res.Output), "\n"), nil)
	}()
}

func (a *HelperAdapter) post(cb ResultCallback, payload string, err error) {
	a.runner.Post(func() { cb(payload, err) })
}

var _ Adapter = (*HelperAdapter)(nil)
