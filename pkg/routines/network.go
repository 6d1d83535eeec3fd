package routines

import (
	"fmt"

	"github.com/silvermint/diagd/pkg/diag"
	"github.com/silvermint/diagd/pkg/netdiag"
)

// networkRoutine wraps one external network diagnostics check. The check
// runs once on Start and its verdict maps directly onto the routine
// status.
type networkRoutine struct {
	name string
	run  func(netdiag.VerdictCallback)

	status  diag.Status
	message string
}

func newNetworkRoutine(name string, run func(netdiag.VerdictCallback)) *networkRoutine {
	return &networkRoutine{name: name, run: run, status: diag.StatusReady}
}

func (r *networkRoutine) Start() {
	if r.status != diag.StatusReady {
		return
	}
	r.status = diag.StatusRunning
	r.run(r.onVerdict)
}

func (r *networkRoutine) Resume() {}

func (r *networkRoutine) Cancel() {}

func (r *networkRoutine) onVerdict(verdict netdiag.Verdict) {
	if r.status.Terminal() {
		return
	}
	switch verdict {
	case netdiag.VerdictNoProblem:
		r.status = diag.StatusPassed
		r.message = fmt.Sprintf("%s check passed.", r.name)
	case netdiag.VerdictProblem:
		r.status = diag.StatusFailed
		r.message = fmt.Sprintf("%s check detected a problem.", r.name)
	default:
		r.status = diag.StatusError
		r.message = fmt.Sprintf("%s check did not run.", r.name)
	}
}

func (r *networkRoutine) PopulateStatusUpdate(update *diag.Update, includeOutput bool) {
	update.SetNoninteractive(r.status, r.message)
	switch r.status {
	case diag.StatusPassed, diag.StatusFailed:
		update.Progress = 100
	default:
		update.Progress = 0
	}
}

func (r *networkRoutine) Status() diag.Status {
	return r.status
}

// NewLanConnectivityRoutine creates the LAN connectivity routine.
func NewLanConnectivityRoutine(adapter netdiag.Adapter) diag.Routine {
	return newNetworkRoutine("LAN connectivity", adapter.RunLanConnectivity)
}

// NewSignalStrengthRoutine creates the signal strength routine.
func NewSignalStrengthRoutine(adapter netdiag.Adapter) diag.Routine {
	return newNetworkRoutine("Signal strength", adapter.RunSignalStrength)
}

// NewGatewayPingRoutine creates the gateway ping routine.
func NewGatewayPingRoutine(adapter netdiag.Adapter) diag.Routine {
	return newNetworkRoutine("Gateway ping", adapter.RunGatewayCanBePinged)
}

// NewSecureWifiRoutine creates the secure WiFi connection routine.
func NewSecureWifiRoutine(adapter netdiag.Adapter) diag.Routine {
	return newNetworkRoutine("Secure WiFi connection", adapter.RunHasSecureWiFiConnection)
}

// NewDNSResolverPresentRoutine creates the DNS resolver present routine.
func NewDNSResolverPresentRoutine(adapter netdiag.Adapter) diag.Routine {
	return newNetworkRoutine("DNS resolver present", adapter.RunDNSResolverPresent)
}

// NewDNSLatencyRoutine creates the DNS latency routine.
func NewDNSLatencyRoutine(adapter netdiag.Adapter) diag.Routine {
	return newNetworkRoutine("DNS latency", adapter.RunDNSLatency)
}

// NewDNSResolutionRoutine creates the DNS resolution routine.
func NewDNSResolutionRoutine(adapter netdiag.Adapter) diag.Routine {
	return newNetworkRoutine("DNS resolution", adapter.RunDNSResolution)
}

// NewCaptivePortalRoutine creates the captive portal routine.
func NewCaptivePortalRoutine(adapter netdiag.Adapter) diag.Routine {
	return newNetworkRoutine("Captive portal", adapter.RunCaptivePortal)
}

// NewHTTPFirewallRoutine creates the HTTP firewall routine.
func NewHTTPFirewallRoutine(adapter netdiag.Adapter) diag.Routine {
	return newNetworkRoutine("HTTP firewall", adapter.RunHTTPFirewall)
}

var _ diag.Routine = (*networkRoutine)(nil)
