// Package routines contains the concrete diagnostic routines served by
// the routine service.
//
// Three families cover the non-network routines: single-shot threshold
// checks built on simpleRoutine, interactive timed-observation routines
// (battery charge/discharge, ac-power), and subprocess routines that
// supervise an external worker binary. NVMe self-test follows its own
// progress protocol against the debug helper. Network routines delegate
// to the platform network diagnostics adapter.
package routines

import (
	"encoding/json"

	"github.com/silvermint/diagd/pkg/diag"
)

// marshalOutput renders a routine output dictionary as indented JSON.
// Returns nil for an empty dictionary so updates without output stay
// empty.
func marshalOutput(dict map[string]any) []byte {
	if len(dict) == 0 {
		return nil
	}
	b, err := json.MarshalIndent(dict, "", "  ")
	if err != nil {
		return nil
	}
	return b
}

// clampPercent bounds wall-clock based progress at limit while a routine
// is still running.
func clampPercent(v int64, limit uint32) uint32 {
	if v < 0 {
		return 0
	}
	if v > int64(limit) {
		return limit
	}
	return uint32(v)
}

var _ diag.Routine = (*simpleRoutine)(nil)
