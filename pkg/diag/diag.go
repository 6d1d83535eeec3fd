// Package diag defines the diagnostic routine contract: the closed set of
// routine kinds, the routine lifecycle state machine, and the update
// structures polled by clients.
//
// A routine is a long-running self-test with operations Start, Resume,
// Cancel, and a polling surface. Every routine moves through the same
// state machine; once a terminal status is reached the routine never
// transitions again except via removal from the service registry.
package diag

// Kind identifies a diagnostic routine type.
//
// NOTE: These values appear in the HTTP API and JSONL reports and are part
// of the stable wire contract.
type Kind string

const (
	KindURandom            Kind = "urandom"
	KindBatteryCapacity    Kind = "battery-capacity"
	KindBatteryHealth      Kind = "battery-health"
	KindBatteryCharge      Kind = "battery-charge"
	KindBatteryDischarge   Kind = "battery-discharge"
	KindACPower            Kind = "ac-power"
	KindSmartctlCheck      Kind = "smartctl-check"
	KindCPUCache           Kind = "cpu-cache"
	KindCPUStress          Kind = "cpu-stress"
	KindFloatingPoint      Kind = "floating-point"
	KindNvmeWearLevel      Kind = "nvme-wear-level"
	KindNvmeSelfTest       Kind = "nvme-self-test"
	KindDiskRead           Kind = "disk-read"
	KindPrimeSearch        Kind = "prime-search"
	KindMemory             Kind = "memory"
	KindLanConnectivity    Kind = "lan-connectivity"
	KindSignalStrength     Kind = "signal-strength"
	KindGatewayPing        Kind = "gateway-ping"
	KindSecureWifi         Kind = "secure-wifi"
	KindDNSResolverPresent Kind = "dns-resolver-present"
	KindDNSLatency         Kind = "dns-latency"
	KindDNSResolution      Kind = "dns-resolution"
	KindCaptivePortal      Kind = "captive-portal"
	KindHTTPFirewall       Kind = "http-firewall"
)

// Status is the lifecycle state of a routine.
type Status string

const (
	StatusReady       Status = "ready"
	StatusRunning     Status = "running"
	StatusWaiting     Status = "waiting"
	StatusPassed      Status = "passed"
	StatusFailed      Status = "failed"
	StatusError       Status = "error"
	StatusCancelling  Status = "cancelling"
	StatusCancelled   Status = "cancelled"
	StatusRemoved     Status = "removed"
	StatusUnsupported Status = "unsupported"
)

// Terminal reports whether s is a terminal status. A routine in a terminal
// status never transitions again except via removal.
func (s Status) Terminal() bool {
	switch s {
	case StatusPassed, StatusFailed, StatusError, StatusCancelled,
		StatusRemoved, StatusUnsupported:
		return true
	}
	return false
}

// Command is a client command issued against a running routine.
type Command string

const (
	CommandContinue  Command = "continue"
	CommandCancel    Command = "cancel"
	CommandGetStatus Command = "get-status"
	CommandRemove    Command = "remove"
)

// UserMessage is the interactive precondition a Waiting routine is blocked
// on. The enumeration is closed: battery routines are the only interactive
// routines and they gate on AC power state.
type UserMessage string

const (
	MessagePlugInACPower UserMessage = "plug-in-ac-power"
	MessageUnplugACPower UserMessage = "unplug-ac-power"
)

// FailedToStartID is the sentinel routine id returned when a run request is
// rejected (unsupported kind). The service never allocates this value.
const FailedToStartID int32 = 0

// InteractiveUpdate signals that the routine is blocked awaiting an
// external condition. It carries no status field because the routine is
// necessarily Waiting.
type InteractiveUpdate struct {
	UserMessage UserMessage `json:"user_message"`
}

// NoninteractiveUpdate carries the routine status and its human-readable
// status message.
type NoninteractiveUpdate struct {
	Status  Status `json:"status"`
	Message string `json:"status_message"`
}

// Update is the result of polling a routine. Exactly one of Interactive or
// Noninteractive is set.
type Update struct {
	Progress       uint32                `json:"progress_percent"`
	Interactive    *InteractiveUpdate    `json:"interactive_update,omitempty"`
	Noninteractive *NoninteractiveUpdate `json:"noninteractive_update,omitempty"`

	// Output is an opaque report produced by the routine: either raw log
	// text or a JSON document. Populated only when the caller asked for
	// output.
	Output []byte `json:"output,omitempty"`
}

// SetInteractive replaces the update union with an interactive update.
func (u *Update) SetInteractive(msg UserMessage) {
	u.Interactive = &InteractiveUpdate{UserMessage: msg}
	u.Noninteractive = nil
}

// SetNoninteractive replaces the update union with a noninteractive update.
func (u *Update) SetNoninteractive(status Status, message string) {
	u.Noninteractive = &NoninteractiveUpdate{Status: status, Message: message}
	u.Interactive = nil
}

// Routine is the contract every diagnostic routine implements.
//
// All methods are called on the service task loop; implementations do not
// need internal locking for their state, but any I/O they initiate must
// complete off-loop and post its completion back to the loop.
type Routine interface {
	// Start begins the routine. Valid only in Ready; transitions to
	// Running or Waiting. Failures during start become a terminal Error
	// status, never a Go error.
	Start()

	// Resume unblocks a Waiting routine. Outside Waiting it is a no-op.
	Resume()

	// Cancel stops a non-terminal routine. In terminal states it is a
	// no-op; in particular an existing Error, Passed or Failed result is
	// never overwritten.
	Cancel()

	// PopulateStatusUpdate fills in the current status, progress and
	// message. It is a read of routine state, safe to call repeatedly.
	// When includeOutput is true the routine's current output is
	// materialised into the update.
	PopulateStatusUpdate(update *Update, includeOutput bool)

	// Status returns the current lifecycle status.
	Status() Status
}
