package routines

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/jonboulle/clockwork"

	"github.com/silvermint/diagd/pkg/diag"
	"github.com/silvermint/diagd/pkg/launcher"
	"github.com/silvermint/diagd/pkg/taskloop"
)

// Memory routine status messages. Failure messages concatenate when the
// worker reports more than one failure bit.
const (
	MemorySucceededMessage                 = "Memory routine passed."
	MemoryAllocatingLockingInvokingMessage = "Error allocating or locking memory, or invoking the memtester binary."
	MemoryStuckAddressFailureMessage       = "Memtester stuck address test failed."
	MemoryOtherTestFailureMessage          = "Memtester test other than stuck address failed."
)

// memtester exit code bits.
const (
	memtesterAllocatingLockingInvokingError = 0x01
	memtesterStuckAddressTestError          = 0x02
	memtesterOtherTestError                 = 0x04
)

// Approximate number of microseconds memtester needs per byte of memory
// tested. Measured on target hardware.
const memtesterMicrosecondsPerByte = 0.20

var (
	memtesterVersionRe = regexp.MustCompile(`^memtester version (.+)$`)
	memtesterBytesRe   = regexp.MustCompile(`got  \d+MB \((\d+) bytes\)`)
	memtesterSubtestRe = regexp.MustCompile(`^(.+?)\s*: (.+)$`)
)

// NewMemoryRoutine creates the memory routine. It tests the currently
// available physical memory with one memtester pass; the expected duration
// scales with the amount of memory tested.
func NewMemoryRoutine(l launcher.Launcher, clock clockwork.Clock, runner taskloop.Runner) diag.Routine {
	availableKiB := availableMemoryKiB()
	expected := memtesterDuration(availableKiB * 1024)
	return newSubprocRoutine(l, clock, runner, subprocConfig{
		Commands: [][]string{
			{"memtester", fmt.Sprintf("%dK", availableKiB), "1"},
		},
		Expected:    expected,
		Decode:      decodeMemtesterExit,
		ParseOutput: parseMemtesterOutput,
	})
}

// defaultMemoryTestKiB is used when the available memory cannot be read.
const defaultMemoryTestKiB = 4 * 1024

// availableMemoryKiB reads MemAvailable from /proc/meminfo.
func availableMemoryKiB() uint64 {
	data, err := os.ReadFile("/proc/meminfo")
	if err != nil {
		return defaultMemoryTestKiB
	}
	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(line, "MemAvailable:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) >= 2 {
			if v, err := strconv.ParseUint(fields[1], 10, 64); err == nil {
				return v
			}
		}
	}
	return defaultMemoryTestKiB
}

func memtesterDuration(bytes uint64) time.Duration {
	return time.Duration(float64(bytes) * memtesterMicrosecondsPerByte * float64(time.Microsecond))
}

func decodeMemtesterExit(code int, _ string) (diag.Status, string) {
	if code == 0 {
		return diag.StatusPassed, MemorySucceededMessage
	}
	var message strings.Builder
	if code&memtesterAllocatingLockingInvokingError != 0 {
		message.WriteString(MemoryAllocatingLockingInvokingMessage)
	}
	if code&memtesterStuckAddressTestError != 0 {
		message.WriteString(MemoryStuckAddressFailureMessage)
	}
	if code&memtesterOtherTestError != 0 {
		message.WriteString(MemoryOtherTestFailureMessage)
	}
	return diag.StatusFailed, message.String()
}

// parseMemtesterOutput extracts the version, the number of bytes tested and
// every subtest verdict from the raw worker output.
func parseMemtesterOutput(raw string) []byte {
	details := map[string]any{}
	subtests := map[string]any{}

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(processBackspaces(line))
		if line == "" {
			continue
		}

		if m := memtesterVersionRe.FindStringSubmatch(line); m != nil {
			details["memtesterVersion"] = m[1]
			continue
		}
		if m := memtesterBytesRe.FindStringSubmatch(line); m != nil {
			if bytes, err := strconv.ParseUint(m[1], 10, 64); err == nil {
				details["bytesTested"] = bytes
			}
			continue
		}
		if m := memtesterSubtestRe.FindStringSubmatch(line); m != nil &&
			!strings.HasPrefix(line, "FAILURE:") {
			subtests[subtestKey(m[1])] = m[2]
		}
	}

	if len(subtests) > 0 {
		details["subtests"] = subtests
	}
	if len(details) == 0 {
		return nil
	}
	return marshalOutput(map[string]any{"resultDetails": details})
}

// processBackspaces applies '\b' characters the way a console would.
// memtester animates its progress with backspaces.
func processBackspaces(raw string) string {
	var processed []byte
	for i := 0; i < len(raw); i++ {
		if raw[i] == '\b' {
			if len(processed) > 0 {
				processed = processed[:len(processed)-1]
			}
		} else {
			processed = append(processed, raw[i])
		}
	}
	return string(processed)
}

// subtestKey turns a subtest name like "Stuck Address" into a JSON key
// like "stuckAddress".
func subtestKey(name string) string {
	key := strings.ReplaceAll(name, " ", "")
	if key == "" {
		return key
	}
	runes := []rune(key)
	runes[0] = unicode.ToLower(runes[0])
	return string(runes)
}
