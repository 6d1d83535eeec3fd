// Package diagsvc implements the routine service: the registry of live
// diagnostic routines, the availability policy, and the command dispatch
// clients drive routines with.
//
// All state lives on a single task loop. Public operations run through
// Sync, so commands from one client are serialised in arrival order and a
// status request issued after a continue command observes the resume.
package diagsvc

import (
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/silvermint/diagd/pkg/diag"
	"github.com/silvermint/diagd/pkg/routines"
	"github.com/silvermint/diagd/pkg/taskloop"
)

// RoutineNotFoundMessage is returned for ids that were never issued or
// have been removed.
const RoutineNotFoundMessage = "Specified routine does not exist."

// Service owns the routine registry.
type Service struct {
	loop    taskloop.SyncRunner
	factory Factory
	logger  *zap.Logger

	available map[diag.Kind]struct{}
	kinds     []diag.Kind

	routines map[int32]diag.Routine
	nextID   int32
}

// New builds the service. The availability set is computed once from the
// capability oracle and never changes.
func New(loop taskloop.SyncRunner, factory Factory, caps Capabilities, logger *zap.Logger) *Service {
	kinds := Availability(caps)
	available := make(map[diag.Kind]struct{}, len(kinds))
	for _, k := range kinds {
		available[k] = struct{}{}
	}
	return &Service{
		loop:      loop,
		factory:   factory,
		logger:    logger,
		available: available,
		kinds:     kinds,
		routines:  make(map[int32]diag.Routine),
		nextID:    1,
	}
}

// GetAvailableRoutines returns the supported routine kinds in a stable
// order.
func (s *Service) GetAvailableRoutines() []diag.Kind {
	return append([]diag.Kind(nil), s.kinds...)
}

// run is the common entry flow: gate on availability, construct, start,
// register.
func (s *Service) run(kind diag.Kind, create func() diag.Routine) (int32, diag.Status) {
	id := diag.FailedToStartID
	status := diag.StatusUnsupported

	s.loop.Sync(func() {
		if _, ok := s.available[kind]; !ok {
			s.logger.Warn("routine kind not supported on this device",
				zap.String("kind", string(kind)))
			return
		}
		if s.nextID == math.MaxInt32 {
			s.logger.Fatal("routine id space exhausted")
		}

		r := create()
		r.Start()

		id = s.nextID
		s.nextID++
		s.routines[id] = r
		status = r.Status()

		s.logger.Info("routine started",
			zap.String("kind", string(kind)),
			zap.Int32("id", id),
			zap.String("status", string(status)))
	})
	return id, status
}

func (s *Service) RunURandomRoutine(duration time.Duration) (int32, diag.Status) {
	return s.run(diag.KindURandom, func() diag.Routine { return s.factory.URandom(duration) })
}

func (s *Service) RunBatteryCapacityRoutine(lowMAh, highMAh uint32) (int32, diag.Status) {
	return s.run(diag.KindBatteryCapacity, func() diag.Routine { return s.factory.BatteryCapacity(lowMAh, highMAh) })
}

func (s *Service) RunBatteryHealthRoutine(maxCycleCount, percentWearAllowed uint32) (int32, diag.Status) {
	return s.run(diag.KindBatteryHealth, func() diag.Routine { return s.factory.BatteryHealth(maxCycleCount, percentWearAllowed) })
}

func (s *Service) RunBatteryChargeRoutine(duration time.Duration, minimumChargePercent uint32) (int32, diag.Status) {
	return s.run(diag.KindBatteryCharge, func() diag.Routine { return s.factory.BatteryCharge(duration, minimumChargePercent) })
}

func (s *Service) RunBatteryDischargeRoutine(duration time.Duration, maximumDischargePercent uint32) (int32, diag.Status) {
	return s.run(diag.KindBatteryDischarge, func() diag.Routine { return s.factory.BatteryDischarge(duration, maximumDischargePercent) })
}

func (s *Service) RunACPowerRoutine(expectedOnline bool) (int32, diag.Status) {
	return s.run(diag.KindACPower, func() diag.Routine { return s.factory.ACPower(expectedOnline) })
}

func (s *Service) RunSmartctlCheckRoutine() (int32, diag.Status) {
	return s.run(diag.KindSmartctlCheck, func() diag.Routine { return s.factory.SmartctlCheck() })
}

func (s *Service) RunCPUCacheRoutine(duration time.Duration) (int32, diag.Status) {
	return s.run(diag.KindCPUCache, func() diag.Routine { return s.factory.CPUCache(duration) })
}

func (s *Service) RunCPUStressRoutine(duration time.Duration) (int32, diag.Status) {
	return s.run(diag.KindCPUStress, func() diag.Routine { return s.factory.CPUStress(duration) })
}

func (s *Service) RunFloatingPointRoutine(duration time.Duration) (int32, diag.Status) {
	return s.run(diag.KindFloatingPoint, func() diag.Routine { return s.factory.FloatingPoint(duration) })
}

func (s *Service) RunPrimeSearchRoutine(duration time.Duration, maxNum uint64) (int32, diag.Status) {
	return s.run(diag.KindPrimeSearch, func() diag.Routine { return s.factory.PrimeSearch(duration, maxNum) })
}

func (s *Service) RunMemoryRoutine() (int32, diag.Status) {
	return s.run(diag.KindMemory, func() diag.Routine { return s.factory.Memory() })
}

func (s *Service) RunNvmeWearLevelRoutine(threshold uint32) (int32, diag.Status) {
	return s.run(diag.KindNvmeWearLevel, func() diag.Routine { return s.factory.NvmeWearLevel(threshold) })
}

func (s *Service) RunNvmeSelfTestRoutine(testType routines.SelfTestType) (int32, diag.Status) {
	return s.run(diag.KindNvmeSelfTest, func() diag.Routine { return s.factory.NvmeSelfTest(testType) })
}

func (s *Service) RunDiskReadRoutine(readType routines.DiskReadType, duration time.Duration, fileSizeMiB uint32) (int32, diag.Status) {
	return s.run(diag.KindDiskRead, func() diag.Routine {
		return s.factory.DiskRead(readType, duration, fileSizeMiB)
	})
}

// RunNetworkRoutine starts one of the delegating network check routines.
func (s *Service) RunNetworkRoutine(kind diag.Kind) (int32, diag.Status) {
	return s.run(kind, func() diag.Routine { return s.factory.Network(kind) })
}

// GetRoutineUpdate applies command to the routine registered under id and
// returns its update. Remove populates the update, rewrites a
// noninteractive status to Removed and erases the routine.
func (s *Service) GetRoutineUpdate(id int32, command diag.Command, includeOutput bool) *diag.Update {
	update := &diag.Update{}
	s.loop.Sync(func() {
		r, ok := s.routines[id]
		if !ok {
			update.SetNoninteractive(diag.StatusError, RoutineNotFoundMessage)
			update.Progress = 0
			return
		}

		switch command {
		case diag.CommandContinue:
			r.Resume()
		case diag.CommandCancel:
			r.Cancel()
		case diag.CommandGetStatus:
			// Pure read.
		case diag.CommandRemove:
			r.PopulateStatusUpdate(update, includeOutput)
			if update.Noninteractive != nil {
				update.Noninteractive.Status = diag.StatusRemoved
			}
			delete(s.routines, id)
			s.logger.Info("routine removed", zap.Int32("id", id))
			return
		}

		r.PopulateStatusUpdate(update, includeOutput)
	})
	return update
}

// ActiveRoutineCount reports the number of registered routines.
func (s *Service) ActiveRoutineCount() int {
	n := 0
	s.loop.Sync(func() { n = len(s.routines) })
	return n
}
