//go:build linux

package diskpressure

import (
	"os"
	"strconv"
	"strings"
)

// readProcIOBytes reads cumulative process I/O counters from
// /proc/self/io. write_bytes tracks actual storage writes (post page
// -cache), a real signal under SQLite + archive write workloads.
func readProcIOBytes() (readBytes, writeBytes uint64) {
	content, err := os.ReadFile("/proc/self/io")
	if err != nil {
		return 0, 0
	}

	for _, line := range strings.Split(string(content), "\n") {
		if val, ok := strings.CutPrefix(line, "read_bytes: "); ok {
			readBytes, _ = strconv.ParseUint(strings.TrimSpace(val), 10, 64)
		} else if val, ok := strings.CutPrefix(line, "write_bytes: "); ok {
			writeBytes, _ = strconv.ParseUint(strings.TrimSpace(val), 10, 64)
		}
	}
	return readBytes, writeBytes
}
