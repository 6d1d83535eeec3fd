package routines

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/silvermint/diagd/pkg/diag"
	"github.com/silvermint/diagd/pkg/launcher"
	"github.com/silvermint/diagd/pkg/taskloop"
)

// DiskReadType selects the read access pattern.
type DiskReadType string

const (
	DiskReadLinear DiskReadType = "linear"
	DiskReadRandom DiskReadType = "random"
)

// Disk read routine status messages.
const (
	DiskReadSucceededMessage         = "Disk read routine passed."
	DiskReadFailedMessage            = "Disk read routine failed."
	DiskReadInsufficientSpaceMessage = "Not enough free disk space to run the disk read routine."
)

// Free space that must remain after the test file is written.
const diskReadHeadroomMiB = 1024

// Estimated time fio needs to write one MiB of the test file.
const diskReadSecondsPerMiB = 0.005

const diskReadTestFile = "fio-test-file"

// DiskReadTuning carries the operator-adjustable disk read parameters.
type DiskReadTuning struct {
	// HeadroomMiB is the free space that must remain after the test file
	// is written.
	HeadroomMiB uint32
	// FileCreationSecondsPerMiB estimates how long fio needs to write one
	// MiB of the test file.
	FileCreationSecondsPerMiB float64
}

// DefaultDiskReadTuning returns the stock headroom and write-rate estimate.
func DefaultDiskReadTuning() DiskReadTuning {
	return DiskReadTuning{
		HeadroomMiB:               diskReadHeadroomMiB,
		FileCreationSecondsPerMiB: diskReadSecondsPerMiB,
	}
}

// NewDiskReadRoutine creates the disk read routine. It lays down a test
// file of fileSizeMiB under cacheRoot with fio, reads it back with the
// requested access pattern for duration, and removes the file afterwards.
// A zero tuning selects the defaults.
func NewDiskReadRoutine(l launcher.Launcher, clock clockwork.Clock, runner taskloop.Runner, cacheRoot string, readType DiskReadType, duration time.Duration, fileSizeMiB uint32, tuning DiskReadTuning) diag.Routine {
	if tuning == (DiskReadTuning{}) {
		tuning = DefaultDiskReadTuning()
	}
	testFile := filepath.Join(cacheRoot, diskReadTestFile)

	prepareDuration := time.Duration(float64(fileSizeMiB) * tuning.FileCreationSecondsPerMiB * float64(time.Second))

	rw := "read"
	if readType == DiskReadRandom {
		rw = "randread"
	}

	return newSubprocRoutine(l, clock, runner, subprocConfig{
		Commands: [][]string{
			{"fio", "--name=prepare",
				"--filename=" + testFile,
				fmt.Sprintf("--size=%dMB", fileSizeMiB),
				"--verify=md5", "--rw=write", "--end_fsync=1"},
			{"fio", "--name=run",
				"--filename=" + testFile,
				"--time_based=1",
				fmt.Sprintf("--runtime=%d", int(duration.Seconds())),
				"--direct=1", "--rw=" + rw},
		},
		Expected: prepareDuration + duration,
		PreStart: func() error {
			return checkDiskSpace(cacheRoot, testFile, fileSizeMiB, tuning.HeadroomMiB)
		},
		PostStop: func() {
			os.Remove(testFile)
		},
		Decode: passFailDecoder(DiskReadSucceededMessage, DiskReadFailedMessage),
	})
}

// checkDiskSpace verifies the filesystem holding root can take the test
// file plus headroom. A stale test file from an aborted run is removed
// first so its size does not count against the free space.
func checkDiskSpace(root, testFile string, fileSizeMiB, headroomMiB uint32) error {
	os.Remove(testFile)

	var stat syscall.Statfs_t
	if err := syscall.Statfs(root, &stat); err != nil {
		return err
	}

	freeMiB := stat.Bavail * uint64(stat.Bsize) / (1 << 20)
	if freeMiB < uint64(fileSizeMiB)+uint64(headroomMiB) {
		return errors.New(DiskReadInsufficientSpaceMessage)
	}
	return nil
}
