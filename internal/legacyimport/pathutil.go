package legacyimport

import (
	"database/sql"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/glebarez/go-sqlite"

	"github.com/Dicklesworthstone/mcp-agent-mail-go/internal/errs"
)

func legacyErr(msg string) error {
	return errs.New(errs.InvalidArgument, "legacyimport: "+msg)
}

// openRawSQLite opens path directly, bypassing GORM, for the
// schema-inspection queries the detector and migration step run
// before the rest of the store machinery is relevant.
func openRawSQLite(path string) (*sql.DB, error) {
	return sql.Open("sqlite", path)
}

// readEnvFileMap parses a simple KEY=value env file, tolerating an
// "export " prefix and quoted values. A missing file is not an error;
// it yields a nil map so callers can distinguish "file absent" from
// "file present but empty".
func readEnvFileMap(path string) (map[string]string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	out := make(map[string]string)
	for _, line := range strings.Split(string(content), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		kv := strings.TrimPrefix(trimmed, "export ")
		if kv != trimmed {
			kv = strings.TrimSpace(kv)
		}
		key, val, found := strings.Cut(kv, "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		val = strings.TrimSpace(val)
		if len(val) >= 2 {
			if (strings.HasPrefix(val, `"`) && strings.HasSuffix(val, `"`)) ||
				(strings.HasPrefix(val, "'") && strings.HasSuffix(val, "'")) {
				val = val[1 : len(val)-1]
			}
		}
		out[key] = val
	}
	return out, nil
}

func discoverUserEnvFile() string {
	home, ok := os.LookupEnv("HOME")
	if !ok || home == "" {
		return ""
	}
	preferred := filepath.Join(home, ".mcp_agent_mail", ".env")
	if info, err := os.Stat(preferred); err == nil && !info.IsDir() {
		return preferred
	}
	legacy := filepath.Join(home, "mcp_agent_mail", ".env")
	if info, err := os.Stat(legacy); err == nil && !info.IsDir() {
		return legacy
	}
	return ""
}

func expandTilde(raw string) string {
	home, ok := os.LookupEnv("HOME")
	if !ok || home == "" {
		return raw
	}
	if raw == "~" {
		return home
	}
	if rest, ok := strings.CutPrefix(raw, "~/"); ok {
		return filepath.Join(home, rest)
	}
	return raw
}

func normalizeInputPath(raw, base string) string {
	expanded := expandTilde(raw)
	if filepath.IsAbs(expanded) {
		return expanded
	}
	return filepath.Join(base, expanded)
}

// pathsOverlap reports whether a and b are the same path or one is an
// ancestor of the other, after resolving symlinks where possible so a
// copy-mode import can't be pointed at its own source.
func pathsOverlap(a, b string) bool {
	na := normalizeForOverlap(a)
	nb := normalizeForOverlap(b)
	rel, err := filepath.Rel(nb, na)
	if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return true
	}
	rel, err = filepath.Rel(na, nb)
	if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return true
	}
	return false
}

func normalizeForOverlap(path string) string {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved
	}
	return filepath.Clean(path)
}

func defaultCopyTargetDB(sourceDB string) string {
	ext := filepath.Ext(sourceDB)
	stem := strings.TrimSuffix(filepath.Base(sourceDB), ext)
	return filepath.Join(filepath.Dir(sourceDB), stem+".go-copy.sqlite3")
}

func defaultCopyTargetStorage(sourceStorage string) string {
	name := filepath.Base(sourceStorage)
	return filepath.Join(filepath.Dir(sourceStorage), name+"-go-copy")
}

func defaultBackupDir(sourceStorageRoot, timestamp string) string {
	parent := filepath.Dir(sourceStorageRoot)
	if parent == "" {
		parent = "."
	}
	return filepath.Join(parent, "agentmail-legacy-backups", timestamp)
}
