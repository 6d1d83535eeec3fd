// Package netdiag is the façade over the external network diagnostics
// service. Routine-level network checks delegate entirely to it; the
// health daemon only maps verdicts onto routine statuses.
package netdiag

// Verdict is the outcome of one network check.
type Verdict int

const (
	// VerdictNoProblem means the check ran and found no issue.
	VerdictNoProblem Verdict = iota

	// VerdictProblem means the check ran and detected an issue.
	VerdictProblem

	// VerdictNotRun means the check could not be executed.
	VerdictNotRun
)

// VerdictCallback receives a check's verdict.
type VerdictCallback func(Verdict)

// Adapter exposes the network diagnostics checks consumed by routines.
// Calls are asynchronous; the callback is posted onto the routine task
// loop.
type Adapter interface {
	RunLanConnectivity(cb VerdictCallback)
	RunSignalStrength(cb VerdictCallback)
	RunGatewayCanBePinged(cb VerdictCallback)
	RunHasSecureWiFiConnection(cb VerdictCallback)
	RunDNSResolverPresent(cb VerdictCallback)
	RunDNSLatency(cb VerdictCallback)
	RunDNSResolution(cb VerdictCallback)
	RunCaptivePortal(cb VerdictCallback)
	RunHTTPFirewall(cb VerdictCallback)
}
