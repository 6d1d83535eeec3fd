package netdiag

import (
	"net"
	"os"
	"strings"
	"time"

	"github.com/silvermint/diagd/pkg/taskloop"
)

// LocalAdapter performs best-effort checks against the local network
// stack. Radio-specific checks (signal strength, secure wifi) and checks
// that need a remote vantage point (captive portal, firewall) report
// NotRun; on managed devices those are served by the platform network
// diagnostics service instead.
type LocalAdapter struct {
	runner taskloop.Runner

	// ResolvConfPath supports tests; empty selects /etc/resolv.conf.
	ResolvConfPath string
}

// NewLocalAdapter creates a LocalAdapter posting verdicts to runner.
func NewLocalAdapter(runner taskloop.Runner) *LocalAdapter {
	return &LocalAdapter{runner: runner}
}

func (a *LocalAdapter) RunLanConnectivity(cb VerdictCallback) {
	go func() {
		ifaces, err := net.Interfaces()
		if err != nil {
			a.post(cb, VerdictNotRun)
			return
		}
		for _, iface := range ifaces {
			if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
				continue
			}
			addrs, err := iface.Addrs()
			if err == nil && len(addrs) > 0 {
				a.post(cb, VerdictNoProblem)
				return
			}
		}
		a.post(cb, VerdictProblem)
	}()
}

func (a *LocalAdapter) RunDNSResolverPresent(cb VerdictCallback) {
	go func() {
		path := a.ResolvConfPath
		if path == "" {
			path = "/etc/resolv.conf"
		}
		b, err := os.ReadFile(path)
		if err != nil {
			a.post(cb, VerdictNotRun)
			return
		}
		for _, line := range strings.Split(string(b), "\n") {
			if strings.HasPrefix(strings.TrimSpace(line), "nameserver") {
				a.post(cb, VerdictNoProblem)
				return
			}
		}
		a.post(cb, VerdictProblem)
	}()
}

func (a *LocalAdapter) RunDNSResolution(cb VerdictCallback) {
	a.resolve(cb, "localhost")
}

func (a *LocalAdapter) RunDNSLatency(cb VerdictCallback) {
	go func() {
		start := time.Now()
		if _, err := net.LookupHost("localhost"); err != nil {
			a.post(cb, VerdictNotRun)
			return
		}
		if time.Since(start) > 5*time.Second {
			a.post(cb, VerdictProblem)
			return
		}
		a.post(cb, VerdictNoProblem)
	}()
}

func (a *LocalAdapter) RunGatewayCanBePinged(cb VerdictCallback)      { a.notRun(cb) }
func (a *LocalAdapter) RunSignalStrength(cb VerdictCallback)          { a.notRun(cb) }
func (a *LocalAdapter) RunHasSecureWiFiConnection(cb VerdictCallback) { a.notRun(cb) }
func (a *LocalAdapter) RunCaptivePortal(cb VerdictCallback)           { a.notRun(cb) }
func (a *LocalAdapter) RunHTTPFirewall(cb VerdictCallback)            { a.notRun(cb) }

func (a *LocalAdapter) resolve(cb VerdictCallback, host string) {
	go func() {
		if _, err := net.LookupHost(host); err != nil {
			a.post(cb, VerdictProblem)
			return
		}
		a.post(cb, VerdictNoProblem)
	}()
}

func (a *LocalAdapter) notRun(cb VerdictCallback) {
	a.post(cb, VerdictNotRun)
}

func (a *LocalAdapter) post(cb VerdictCallback, v Verdict) {
	a.runner.Post(func() { cb(v) })
}

var _ Adapter = (*LocalAdapter)(nil)
