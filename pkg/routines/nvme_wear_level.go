package routines

import (
	"encoding/base64"

	"github.com/silvermint/diagd/pkg/debugd"
	"github.com/silvermint/diagd/pkg/diag"
)

// NVMe wear level routine status messages.
const (
	NvmeWearLevelPassedMessage    = "WearLevel status: PASS."
	NvmeWearLevelFailedMessage    = "WearLevel status: FAILED, exceed the threshold."
	NvmeWearLevelErrorMessage     = "WearLevel status: ERROR, cannot get wear level info."
	NvmeWearLevelThresholdMessage = "WearLevel status: ERROR, threshold in percentage should be non-negative and under 100."
)

// Vendor log page carrying the drive wear estimate.
const (
	nvmeWearLevelPageID  = 202
	nvmeWearLevelPageLen = 16
	nvmeWearLevelOffset  = 5
)

// wearLevelRoutine reads the vendor wear level log page and compares the
// wear percentage byte against the configured threshold.
type wearLevelRoutine struct {
	adapter   debugd.Adapter
	threshold uint32

	status  diag.Status
	message string
	output  string
}

// NewNvmeWearLevelRoutine creates the NVMe wear level routine. The threshold
// is a percentage and must be below 100.
func NewNvmeWearLevelRoutine(adapter debugd.Adapter, threshold uint32) diag.Routine {
	return &wearLevelRoutine{adapter: adapter, threshold: threshold, status: diag.StatusReady}
}

func (r *wearLevelRoutine) Start() {
	if r.status != diag.StatusReady {
		return
	}
	if r.threshold >= 100 {
		r.status = diag.StatusError
		r.message = NvmeWearLevelThresholdMessage
		return
	}
	r.status = diag.StatusRunning
	r.adapter.GetNvmeLog(nvmeWearLevelPageID, nvmeWearLevelPageLen, true, r.onLogPage)
}

func (r *wearLevelRoutine) Resume() {}

func (r *wearLevelRoutine) Cancel() {}

func (r *wearLevelRoutine) onLogPage(payload string, err error) {
	if r.status.Terminal() {
		return
	}
	if err != nil {
		r.status = diag.StatusError
		r.message = NvmeWearLevelErrorMessage
		return
	}

	r.output = payload
	page, decodeErr := base64.StdEncoding.DecodeString(payload)
	if decodeErr != nil || len(page) != nvmeWearLevelPageLen {
		r.status = diag.StatusError
		r.message = NvmeWearLevelErrorMessage
		return
	}

	wear := uint32(page[nvmeWearLevelOffset])
	if wear < r.threshold {
		r.status = diag.StatusPassed
		r.message = NvmeWearLevelPassedMessage
	} else {
		r.status = diag.StatusFailed
		r.message = NvmeWearLevelFailedMessage
	}
}

func (r *wearLevelRoutine) PopulateStatusUpdate(update *diag.Update, includeOutput bool) {
	update.SetNoninteractive(r.status, r.message)
	switch r.status {
	case diag.StatusPassed, diag.StatusFailed:
		update.Progress = 100
	default:
		update.Progress = 0
	}
	if includeOutput && r.output != "" {
		update.Output = []byte(r.output)
	}
}

func (r *wearLevelRoutine) Status() diag.Status {
	return r.status
}

var _ diag.Routine = (*wearLevelRoutine)(nil)
