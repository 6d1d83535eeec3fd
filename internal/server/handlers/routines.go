// Package handlers implements the HTTP endpoints over the diagnostics
// service.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/silvermint/diagd/internal/observability"
	"github.com/silvermint/diagd/internal/server/middleware"
	"github.com/silvermint/diagd/pkg/diag"
	"github.com/silvermint/diagd/pkg/routines"
)

// RoutineService is the slice of the diagnostics service the HTTP layer
// drives.
type RoutineService interface {
	GetAvailableRoutines() []diag.Kind
	GetRoutineUpdate(id int32, command diag.Command, includeOutput bool) *diag.Update

	RunURandomRoutine(duration time.Duration) (int32, diag.Status)
	RunBatteryCapacityRoutine(lowMAh, highMAh uint32) (int32, diag.Status)
	RunBatteryHealthRoutine(maximumCycleCount, percentBatteryWearAllowed uint32) (int32, diag.Status)
	RunBatteryChargeRoutine(duration time.Duration, minimumChargePercent uint32) (int32, diag.Status)
	RunBatteryDischargeRoutine(duration time.Duration, maximumDischargePercent uint32) (int32, diag.Status)
	RunACPowerRoutine(expectedOnline bool) (int32, diag.Status)
	RunSmartctlCheckRoutine() (int32, diag.Status)
	RunCPUCacheRoutine(duration time.Duration) (int32, diag.Status)
	RunCPUStressRoutine(duration time.Duration) (int32, diag.Status)
	RunFloatingPointRoutine(duration time.Duration) (int32, diag.Status)
	RunPrimeSearchRoutine(duration time.Duration, maxNum uint64) (int32, diag.Status)
	RunMemoryRoutine() (int32, diag.Status)
	RunNvmeWearLevelRoutine(threshold uint32) (int32, diag.Status)
	RunNvmeSelfTestRoutine(testType routines.SelfTestType) (int32, diag.Status)
	RunDiskReadRoutine(readType routines.DiskReadType, duration time.Duration, fileSizeMiB uint32) (int32, diag.Status)
	RunNetworkRoutine(kind diag.Kind) (int32, diag.Status)
}

// RunParams is the JSON body accepted when starting a routine. Every
// field is optional; absent fields take the documented defaults.
type RunParams struct {
	LengthSeconds *uint32 `json:"length_seconds,omitempty"`

	LowMAh  *uint32 `json:"low_mah,omitempty"`
	HighMAh *uint32 `json:"high_mah,omitempty"`

	MaximumCycleCount         *uint32 `json:"maximum_cycle_count,omitempty"`
	PercentBatteryWearAllowed *uint32 `json:"percent_battery_wear_allowed,omitempty"`

	MinimumChargePercentRequired   *uint32 `json:"minimum_charge_percent_required,omitempty"`
	MaximumDischargePercentAllowed *uint32 `json:"maximum_discharge_percent_allowed,omitempty"`

	ExpectedPowerOnline *bool `json:"expected_power_online,omitempty"`

	WearLevelThreshold *uint32 `json:"wear_level_threshold,omitempty"`
	NvmeSelfTestType   string  `json:"nvme_self_test_type,omitempty"`

	DiskReadType string  `json:"disk_read_type,omitempty"`
	FileSizeMiB  *uint32 `json:"file_size_mb,omitempty"`

	MaximumNum *uint64 `json:"maximum_num,omitempty"`
}

// Defaults applied when a run request omits parameters.
const (
	DefaultLengthSeconds             = 10
	DefaultLowMAh                    = 1000
	DefaultHighMAh                   = 10000
	DefaultMaximumCycleCount         = 1000
	DefaultPercentBatteryWearAllowed = 50
	DefaultWearLevelThreshold        = 50
	DefaultFileSizeMiB               = 1024
	DefaultPrimeSearchMaxNum         = 1000000
)

// RunResponse is the body returned when a routine run is requested.
type RunResponse struct {
	ID     int32       `json:"id"`
	Status diag.Status `json:"status"`
}

// CommandRequest is the body for commands against an existing routine.
type CommandRequest struct {
	Command       diag.Command `json:"command"`
	IncludeOutput bool         `json:"include_output,omitempty"`
}

// UpdateResponse echoes the routine id alongside the polled update.
type UpdateResponse struct {
	ID int32 `json:"id"`
	diag.Update
}

// ListResponse is the body for the available-routines listing.
type ListResponse struct {
	Routines []diag.Kind `json:"routines"`
}

// RoutineHandlers serves the /routines endpoints.
type RoutineHandlers struct {
	svc RoutineService
}

// NewRoutineHandlers builds handlers over the given service.
func NewRoutineHandlers(svc RoutineService) *RoutineHandlers {
	return &RoutineHandlers{svc: svc}
}

// List handles GET /routines.
func (h *RoutineHandlers) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ListResponse{Routines: h.svc.GetAvailableRoutines()})
}

// RunOrCommand handles POST /routines/{ref}. A numeric ref addresses an
// existing routine and the body carries a command; any other ref is a
// routine kind to start.
func (h *RoutineHandlers) RunOrCommand(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ref")

	if id, err := strconv.ParseInt(ref, 10, 32); err == nil {
		h.command(w, r, int32(id))
		return
	}
	h.run(w, r, diag.Kind(ref))
}

func (h *RoutineHandlers) run(w http.ResponseWriter, r *http.Request, kind diag.Kind) {
	var params RunParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil && !errors.Is(err, io.EOF) {
		middleware.WriteError(w, r, http.StatusBadRequest,
			"INVALID_ARGUMENT", "malformed run parameters: "+err.Error(), nil)
		return
	}

	id, status, ok := Dispatch(h.svc, kind, params)
	if !ok {
		middleware.WriteError(w, r, http.StatusBadRequest,
			"INVALID_ARGUMENT", "unknown routine kind", map[string]interface{}{"kind": string(kind)})
		return
	}

	observability.Logger.Info("Routine run requested",
		zap.String("kind", string(kind)),
		zap.Int32("id", id),
		zap.String("status", string(status)),
		zap.String("request_id", middleware.GetRequestID(r.Context())))

	writeJSON(w, http.StatusOK, RunResponse{ID: id, Status: status})
}

// Dispatch maps a kind plus parameters onto the service call. The third
// return is false for kinds outside the enumeration. The CLI shares this
// mapping with the HTTP handlers.
func Dispatch(svc RoutineService, kind diag.Kind, p RunParams) (int32, diag.Status, bool) {
	duration := time.Duration(uint32Or(p.LengthSeconds, DefaultLengthSeconds)) * time.Second

	switch kind {
	case diag.KindURandom:
		// Zero means "use the configured urandom timeout"; the service
		// fills it in.
		id, st := svc.RunURandomRoutine(time.Duration(uint32Or(p.LengthSeconds, 0)) * time.Second)
		return id, st, true
	case diag.KindBatteryCapacity:
		id, st := svc.RunBatteryCapacityRoutine(
			uint32Or(p.LowMAh, DefaultLowMAh), uint32Or(p.HighMAh, DefaultHighMAh))
		return id, st, true
	case diag.KindBatteryHealth:
		id, st := svc.RunBatteryHealthRoutine(
			uint32Or(p.MaximumCycleCount, DefaultMaximumCycleCount),
			uint32Or(p.PercentBatteryWearAllowed, DefaultPercentBatteryWearAllowed))
		return id, st, true
	case diag.KindBatteryCharge:
		id, st := svc.RunBatteryChargeRoutine(duration,
			uint32Or(p.MinimumChargePercentRequired, 0))
		return id, st, true
	case diag.KindBatteryDischarge:
		id, st := svc.RunBatteryDischargeRoutine(duration,
			uint32Or(p.MaximumDischargePercentAllowed, 100))
		return id, st, true
	case diag.KindACPower:
		expected := true
		if p.ExpectedPowerOnline != nil {
			expected = *p.ExpectedPowerOnline
		}
		id, st := svc.RunACPowerRoutine(expected)
		return id, st, true
	case diag.KindSmartctlCheck:
		id, st := svc.RunSmartctlCheckRoutine()
		return id, st, true
	case diag.KindCPUCache:
		id, st := svc.RunCPUCacheRoutine(duration)
		return id, st, true
	case diag.KindCPUStress:
		id, st := svc.RunCPUStressRoutine(duration)
		return id, st, true
	case diag.KindFloatingPoint:
		id, st := svc.RunFloatingPointRoutine(duration)
		return id, st, true
	case diag.KindPrimeSearch:
		id, st := svc.RunPrimeSearchRoutine(duration,
			uint64Or(p.MaximumNum, DefaultPrimeSearchMaxNum))
		return id, st, true
	case diag.KindMemory:
		id, st := svc.RunMemoryRoutine()
		return id, st, true
	case diag.KindNvmeWearLevel:
		id, st := svc.RunNvmeWearLevelRoutine(
			uint32Or(p.WearLevelThreshold, DefaultWearLevelThreshold))
		return id, st, true
	case diag.KindNvmeSelfTest:
		testType := routines.ShortSelfTest
		if p.NvmeSelfTestType == "long" {
			testType = routines.LongSelfTest
		}
		id, st := svc.RunNvmeSelfTestRoutine(testType)
		return id, st, true
	case diag.KindDiskRead:
		readType := routines.DiskReadLinear
		if p.DiskReadType == string(routines.DiskReadRandom) {
			readType = routines.DiskReadRandom
		}
		id, st := svc.RunDiskReadRoutine(readType, duration,
			uint32Or(p.FileSizeMiB, DefaultFileSizeMiB))
		return id, st, true
	case diag.KindLanConnectivity, diag.KindSignalStrength, diag.KindGatewayPing,
		diag.KindSecureWifi, diag.KindDNSResolverPresent, diag.KindDNSLatency,
		diag.KindDNSResolution, diag.KindCaptivePortal, diag.KindHTTPFirewall:
		id, st := svc.RunNetworkRoutine(kind)
		return id, st, true
	}
	return diag.FailedToStartID, diag.StatusError, false
}

func (h *RoutineHandlers) command(w http.ResponseWriter, r *http.Request, id int32) {
	var req CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, r, http.StatusBadRequest,
			"INVALID_ARGUMENT", "malformed command body: "+err.Error(), nil)
		return
	}

	switch req.Command {
	case diag.CommandContinue, diag.CommandCancel, diag.CommandGetStatus, diag.CommandRemove:
	default:
		middleware.WriteError(w, r, http.StatusBadRequest,
			"INVALID_ARGUMENT", "unknown command", map[string]interface{}{"command": string(req.Command)})
		return
	}

	update := h.svc.GetRoutineUpdate(id, req.Command, req.IncludeOutput)
	writeJSON(w, http.StatusOK, UpdateResponse{ID: id, Update: *update})
}

func uint32Or(p *uint32, def uint32) uint32 {
	if p != nil {
		return *p
	}
	return def
}

func uint64Or(p *uint64, def uint64) uint64 {
	if p != nil {
		return *p
	}
	return def
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		observability.Logger.Warn("Failed to encode response", zap.Error(err))
	}
}
