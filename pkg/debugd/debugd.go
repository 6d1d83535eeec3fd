// Package debugd is the façade over the privileged debug helper that
// storage routines use for SMART attributes and NVMe admin commands.
//
// The adapter is asynchronous: every call takes a result callback which is
// posted onto the routine task loop when the helper finishes. Helper calls
// carry an intrinsic timeout; a timeout surfaces as a callback error.
package debugd

// ResultCallback receives the helper's string payload, or an error when
// the call failed or timed out. Exactly one of the two is meaningful.
type ResultCallback func(payload string, err error)

// Adapter exposes the debug helper operations consumed by routines.
type Adapter interface {
	GetSmartAttributes(cb ResultCallback)
	GetNvmeIdentity(cb ResultCallback)
	RunNvmeShortSelfTest(cb ResultCallback)
	RunNvmeLongSelfTest(cb ResultCallback)
	StopNvmeSelfTest(cb ResultCallback)

	// GetNvmeLog fetches an NVMe log page. With rawBinary the payload is
	// base64-framed raw bytes.
	GetNvmeLog(pageID uint32, length uint32, rawBinary bool, cb ResultCallback)
}
