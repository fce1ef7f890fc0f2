package config

import "strings"

// DatabaseLocation is the resolved shape of a DATABASE_URL value.
type DatabaseLocation struct {
	// IsFile is true when the URL denotes a local SQLite file (as
	// opposed to an in-memory database or a non-sqlite scheme).
	IsFile bool
	// IsMemory is true for any in-memory SQLite variant.
	IsMemory bool
	// Path is the filesystem path when IsFile is true.
	Path string
}

var sqliteSchemePrefixes = []string{
	"sqlite+aiosqlite:///",
	"sqlite:///",
}

// ParseDatabaseURL interprets DATABASE_URL per the external-interfaces
// contract:
//
//	sqlite+aiosqlite:///./x.db  -> relative file "./x.db"
//	sqlite:////abs/path.db      -> absolute file "/abs/path.db"
//	sqlite:///:memory:          -> memory, no file
//	anything else               -> not a file; disk-probe skipped
func ParseDatabaseURL(url string) DatabaseLocation {
	for _, prefix := range sqliteSchemePrefixes {
		if !strings.HasPrefix(url, prefix) {
			continue
		}
		rest := url[len(prefix):]
		if isMemoryForm(rest) {
			return DatabaseLocation{IsMemory: true}
		}
		// "sqlite:////abs/path.db" has already consumed 3 of the 4
		// leading slashes via the prefix match, leaving "/abs/path.db".
		return DatabaseLocation{IsFile: true, Path: rest}
	}
	return DatabaseLocation{}
}

func isMemoryForm(rest string) bool {
	switch strings.ToLower(strings.TrimSuffix(rest, "?cache=shared")) {
	case ":memory:", "file::memory:", "":
		return true
	default:
		return false
	}
}

// IsSQLiteMemoryDatabaseURL reports whether url denotes an in-memory
// SQLite database (rejected for legacy import and disk-probing).
func IsSQLiteMemoryDatabaseURL(url string) bool {
	return ParseDatabaseURL(url).IsMemory
}

// SQLiteFilePathFromDatabaseURL returns the filesystem path for url,
// and false if url is not a file-backed SQLite URL.
func SQLiteFilePathFromDatabaseURL(url string) (string, bool) {
	loc := ParseDatabaseURL(url)
	if !loc.IsFile {
		return "", false
	}
	return loc.Path, true
}
