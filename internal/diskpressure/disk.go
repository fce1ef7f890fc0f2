// Package diskpressure samples available disk space for the storage
// root and database file, classifies pressure against configured
// thresholds, and records Linux process I/O counters when available
// (spec.md §4.6).
package diskpressure

import (
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/Dicklesworthstone/mcp-agent-mail-go/config"
)

const mib uint64 = 1024 * 1024

// Pressure is the classified severity of a disk sample.
type Pressure int

const (
	Ok Pressure = iota
	Warning
	Critical
	Fatal
)

// Label returns the lowercase name used in logs and metrics.
func (p Pressure) Label() string {
	switch p {
	case Warning:
		return "warning"
	case Critical:
		return "critical"
	case Fatal:
		return "fatal"
	default:
		return "ok"
	}
}

// Sample is one disk-pressure observation.
type Sample struct {
	StorageProbePath  string
	DBProbePath       string
	StorageFreeBytes  *uint64
	DBFreeBytes       *uint64
	EffectiveFreeBytes *uint64
	Pressure          Pressure
	Errors            []string
	IOReadBytes       uint64
	IOWriteBytes      uint64
}

// ClassifyPressure applies the three-threshold table from spec.md
// §4.6: a threshold of 0 disables that tier. Fatal is checked first,
// then Critical, then Warning, so a deployment that only sets Fatal
// still gets a meaningful classification.
func ClassifyPressure(freeBytes, warningMB, criticalMB, fatalMB uint64) Pressure {
	warning := warningMB * mib
	critical := criticalMB * mib
	fatal := fatalMB * mib

	switch {
	case fatal > 0 && freeBytes < fatal:
		return Fatal
	case critical > 0 && freeBytes < critical:
		return Critical
	case warning > 0 && freeBytes < warning:
		return Warning
	default:
		return Ok
	}
}

// normalizeProbePath walks up to the nearest existing ancestor of
// path, falling back to "." if none exists. statfs requires an
// existing path, and the storage root or database file may not have
// been created yet on first run.
func normalizeProbePath(path string) string {
	if _, err := os.Stat(path); err == nil {
		return path
	}
	cur := path
	for {
		parent := filepath.Dir(cur)
		if parent == cur || parent == "" {
			break
		}
		if _, err := os.Stat(parent); err == nil {
			return parent
		}
		cur = parent
	}
	return "."
}

// availableBytes returns the free space available to an unprivileged
// user on the filesystem containing path.
func availableBytes(path string) (uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, err
	}
	return uint64(stat.Bavail) * uint64(stat.Bsize), nil
}

// Sampler samples disk pressure against a fixed configuration.
type Sampler struct {
	storageRoot string
	dbFilePath  string // empty for in-memory databases
	disk        config.DiskConfig
}

// NewSampler builds a Sampler from the store's configured storage root
// and database URL. dbFilePath should come from
// config.SQLiteFilePathFromDatabaseURL; an empty string means the
// database is in-memory and has no filesystem footprint to probe.
func NewSampler(storageRoot, dbFilePath string, disk config.DiskConfig) *Sampler {
	return &Sampler{storageRoot: storageRoot, dbFilePath: dbFilePath, disk: disk}
}

// Sample takes one disk-pressure reading.
func (s *Sampler) Sample() Sample {
	storageProbe := normalizeProbePath(s.storageRoot)

	sample := Sample{StorageProbePath: storageProbe}

	if free, err := availableBytes(storageProbe); err != nil {
		sample.Errors = append(sample.Errors, "statfs(storage) failed path="+storageProbe+" err="+err.Error())
	} else {
		sample.StorageFreeBytes = &free
	}

	if s.dbFilePath != "" {
		dbProbe := normalizeProbePath(s.dbFilePath)
		sample.DBProbePath = dbProbe
		if free, err := availableBytes(dbProbe); err != nil {
			sample.Errors = append(sample.Errors, "statfs(db) failed path="+dbProbe+" err="+err.Error())
		} else {
			sample.DBFreeBytes = &free
		}
	}

	sample.EffectiveFreeBytes = minOpt(sample.StorageFreeBytes, sample.DBFreeBytes)
	if sample.EffectiveFreeBytes != nil {
		sample.Pressure = ClassifyPressure(*sample.EffectiveFreeBytes, s.disk.WarningMB, s.disk.CriticalMB, s.disk.FatalMB)
	} else {
		sample.Pressure = Ok
	}

	sample.IOReadBytes, sample.IOWriteBytes = readProcIOBytes()

	return sample
}

func minOpt(a, b *uint64) *uint64 {
	switch {
	case a != nil && b != nil:
		if *a < *b {
			return a
		}
		return b
	case a != nil:
		return a
	case b != nil:
		return b
	default:
		return nil
	}
}
