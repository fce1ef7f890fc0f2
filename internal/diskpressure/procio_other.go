//go:build !linux

package diskpressure

// readProcIOBytes returns (0, 0) on platforms without /proc/self/io.
func readProcIOBytes() (readBytes, writeBytes uint64) {
	return 0, 0
}
