// Package config resolves the broker's configuration from five
// layers, strictly ordered: an explicit caller argument, the process
// environment, a project-local env file, a user-global env file, and
// a built-in default. Fields tagged `layout:"true"` (console/layout
// keys) skip the project-local layer, per the external-interfaces
// contract.
//
// Usage:
//
//	cfg, err := config.NewLoader().
//	    WithProjectEnvFile(".env").
//	    WithUserEnvFile(config.DefaultUserEnvFilePath()).
//	    WithOverride("HTTP_PORT", "9090").
//	    Load()
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Config is the complete resolved configuration for the broker.
type Config struct {
	App           AppConfig           `yaml:"app"`
	Store         StoreConfig         `yaml:"store"`
	Storage       StorageConfig       `yaml:"storage"`
	HTTP          HTTPConfig          `yaml:"http"`
	Limits        LimitsConfig        `yaml:"limits"`
	Disk          DiskConfig          `yaml:"disk"`
	Integrity     IntegrityConfig     `yaml:"integrity"`
	Tools         ToolsConfig         `yaml:"tools"`
	Console       ConsoleConfig       `yaml:"console"`
	Log           LogConfig           `yaml:"log"`
	Archive       ArchiveConfig       `yaml:"archive"`
	Search        SearchConfig        `yaml:"search"`
	Export        ExportConfig        `yaml:"export"`
	Observability ObservabilityConfig `yaml:"observability"`
	Telemetry     TelemetryConfig     `yaml:"telemetry"`
}

// AppConfig controls environment-sensitive toggles.
type AppConfig struct {
	// Environment is "development" or "production". Development mode
	// permits permissive CORS and absolute attachment paths.
	Environment string `yaml:"environment" env:"APP_ENVIRONMENT"`
}

func (a AppConfig) IsDevelopment() bool { return a.Environment == "development" }

// StoreConfig holds the relational store location.
type StoreConfig struct {
	DatabaseURL string `yaml:"database_url" env:"DATABASE_URL"`

	MaxOpenConns    int           `yaml:"max_open_conns" env:"STORE_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"STORE_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"STORE_CONN_MAX_LIFETIME"`
	AcquireTimeout  time.Duration `yaml:"acquire_timeout" env:"STORE_ACQUIRE_TIMEOUT"`
}

// StorageConfig holds the archive/attachment root.
type StorageConfig struct {
	Root string `yaml:"root" env:"STORAGE_ROOT"`
}

// HTTPConfig is the tool-call ingress surface.
type HTTPConfig struct {
	Host                          string `yaml:"host" env:"HTTP_HOST"`
	Port                          int    `yaml:"port" env:"HTTP_PORT"`
	Path                          string `yaml:"path" env:"HTTP_PATH"`
	BearerToken                   string `yaml:"bearer_token" env:"HTTP_BEARER_TOKEN"`
	AllowLocalhostUnauthenticated bool   `yaml:"allow_localhost_unauthenticated" env:"HTTP_ALLOW_LOCALHOST_UNAUTHENTICATED"`
}

// Addr returns the listen address in host:port form.
func (h HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

// LimitsConfig bounds write-pipeline payload sizes and recipient
// resolution policy.
type LimitsConfig struct {
	MaxMessageBodyBytes  int64 `yaml:"max_message_body_bytes" env:"MAX_MESSAGE_BODY_BYTES"`
	MaxAttachmentBytes   int64 `yaml:"max_attachment_bytes" env:"MAX_ATTACHMENT_BYTES"`
	MaxTotalMessageBytes int64 `yaml:"max_total_message_bytes" env:"MAX_TOTAL_MESSAGE_BYTES"`
	MaxSubjectBytes      int64 `yaml:"max_subject_bytes" env:"MAX_SUBJECT_BYTES"`

	// AutoRegisterRecipients controls step 2 of spec.md §4.3: when
	// true, a recipient name with no existing agent row is created on
	// first reference; when false, delivery to an unknown recipient is
	// rejected rather than silently registering them.
	AutoRegisterRecipients bool `yaml:"auto_register_recipients" env:"AUTO_REGISTER_RECIPIENTS"`
}

// DiskConfig holds the pressure-sampler thresholds, in MiB.
type DiskConfig struct {
	WarningMB  int64 `yaml:"warning_mb" env:"DISK_SPACE_WARNING_MB"`
	CriticalMB int64 `yaml:"critical_mb" env:"DISK_SPACE_CRITICAL_MB"`
	FatalMB    int64 `yaml:"fatal_mb" env:"DISK_SPACE_FATAL_MB"`
}

// IntegrityConfig drives store integrity gates.
type IntegrityConfig struct {
	CheckOnStartup      bool `yaml:"check_on_startup" env:"INTEGRITY_CHECK_ON_STARTUP"`
	CheckIntervalHours  int  `yaml:"check_interval_hours" env:"INTEGRITY_CHECK_INTERVAL_HOURS"`
}

// ToolsConfig drives the dispatcher's tool exposure policy.
type ToolsConfig struct {
	FilterEnabled  bool     `yaml:"filter_enabled" env:"TOOLS_FILTER_ENABLED"`
	FilterProfile  string   `yaml:"filter_profile" env:"TOOLS_FILTER_PROFILE"` // full|core|minimal|messaging|custom
	FilterMode     string   `yaml:"filter_mode" env:"TOOLS_FILTER_MODE"`       // include|exclude
	FilterClusters []string `yaml:"filter_clusters" env:"TOOLS_FILTER_CLUSTERS"`
	FilterTools    []string `yaml:"filter_tools" env:"TOOLS_FILTER_TOOLS"`
}

// ConsoleConfig holds TUI presentation preferences. These are
// "console/layout keys": per the external-interfaces contract they
// skip the project-local env file layer, resolving only from an
// explicit argument, the process environment, the user-global env
// file, or the default.
type ConsoleConfig struct {
	ColorEnabled bool   `yaml:"color_enabled" env:"CONSOLE_COLOR_ENABLED" layout:"true"`
	Layout       string `yaml:"layout" env:"CONSOLE_LAYOUT" layout:"true"` // compact|wide
}

// LogConfig controls zap's construction.
type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"` // json|console
}

// ArchiveConfig tunes the write-behind queue.
type ArchiveConfig struct {
	Workers            int           `yaml:"workers" env:"ARCHIVE_WORKERS"`
	QueueHighWaterMark int           `yaml:"queue_high_water_mark" env:"ARCHIVE_QUEUE_HIGH_WATER_MARK"`
	BatchWindow        time.Duration `yaml:"batch_window" env:"ARCHIVE_BATCH_WINDOW"`
	InlineThreshold    int64         `yaml:"inline_threshold_bytes" env:"ARCHIVE_INLINE_THRESHOLD_BYTES"`
}

// SearchConfig tunes the two-tier reranker.
type SearchConfig struct {
	QualityWeight     float64 `yaml:"quality_weight" env:"SEARCH_QUALITY_WEIGHT"`
	MaxRefinementDocs int     `yaml:"max_refinement_docs" env:"SEARCH_MAX_REFINEMENT_DOCS"`
	FastOnly          bool    `yaml:"fast_only" env:"SEARCH_FAST_ONLY"`
	QualityOnly       bool    `yaml:"quality_only" env:"SEARCH_QUALITY_ONLY"`
	DefaultLimit      int     `yaml:"default_limit" env:"SEARCH_DEFAULT_LIMIT"`
	FastDimension     int     `yaml:"fast_dimension" env:"SEARCH_FAST_DIMENSION"`
	QualityDimension  int     `yaml:"quality_dimension" env:"SEARCH_QUALITY_DIMENSION"`
}

// ExportConfig tunes the share pipeline.
type ExportConfig struct {
	InlineThresholdBytes int64 `yaml:"inline_threshold_bytes" env:"EXPORT_INLINE_THRESHOLD_BYTES"`
	DetachThresholdBytes int64 `yaml:"detach_threshold_bytes" env:"EXPORT_DETACH_THRESHOLD_BYTES"`
	ChunkThresholdBytes  int64 `yaml:"chunk_threshold_bytes" env:"EXPORT_CHUNK_THRESHOLD_BYTES"`
	ChunkSizeBytes       int64 `yaml:"chunk_size_bytes" env:"EXPORT_CHUNK_SIZE_BYTES"`
}

// ObservabilityConfig tunes BOCPD and the conformal predictor.
type ObservabilityConfig struct {
	HazardRate         float64 `yaml:"hazard_rate" env:"OBS_HAZARD_RATE"`
	MaxRunLength       int     `yaml:"max_run_length" env:"OBS_MAX_RUN_LENGTH"`
	ChangePointThresh  float64 `yaml:"change_point_threshold" env:"OBS_CHANGE_POINT_THRESHOLD"`
	ConformalWindow    int     `yaml:"conformal_window" env:"OBS_CONFORMAL_WINDOW"`
	ConformalCoverage  float64 `yaml:"conformal_coverage" env:"OBS_CONFORMAL_COVERAGE"`
	LedgerCapacity     int     `yaml:"ledger_capacity" env:"OBS_LEDGER_CAPACITY"`
}

// TelemetryConfig drives OpenTelemetry trace/metric export. Disabled
// by default: when Enabled is false, Init wires up a noop provider set
// and never dials OTLPEndpoint.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"TELEMETRY_ENABLED"`
	ServiceName  string  `yaml:"service_name" env:"TELEMETRY_SERVICE_NAME"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"TELEMETRY_OTLP_ENDPOINT"`
	SampleRate   float64 `yaml:"sample_rate" env:"TELEMETRY_SAMPLE_RATE"`
}

// Loader is a builder for layered configuration resolution.
type Loader struct {
	projectEnvFile string
	userEnvFile    string
	overrides      map[string]string
	validators     []func(*Config) error
}

// NewLoader returns a Loader pre-seeded with the built-in defaults.
func NewLoader() *Loader {
	return &Loader{
		overrides:  make(map[string]string),
		validators: make([]func(*Config) error, 0),
	}
}

// WithProjectEnvFile sets the project-local env file path (e.g. "./.env").
func (l *Loader) WithProjectEnvFile(path string) *Loader {
	l.projectEnvFile = path
	return l
}

// WithUserEnvFile sets the user-global env file path.
func (l *Loader) WithUserEnvFile(path string) *Loader {
	l.userEnvFile = path
	return l
}

// WithOverride records an explicit caller argument for key, taking
// precedence over every other layer.
func (l *Loader) WithOverride(key, value string) *Loader {
	l.overrides[key] = value
	return l
}

// WithValidator registers a post-load validation function.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// DefaultUserEnvFilePath returns "~/.config/agentmail/env", expanding
// the user's home directory, or "" if it cannot be determined.
func DefaultUserEnvFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "agentmail", "env")
}

// Load resolves the configuration across all five layers.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	userValues, err := parseEnvFileIfExists(l.userEnvFile)
	if err != nil {
		return nil, fmt.Errorf("config: user env file: %w", err)
	}
	projectValues, err := parseEnvFileIfExists(l.projectEnvFile)
	if err != nil {
		return nil, fmt.Errorf("config: project env file: %w", err)
	}

	if err := resolveFields(reflect.ValueOf(cfg).Elem(), l.overrides, projectValues, userValues); err != nil {
		return nil, fmt.Errorf("config: resolve fields: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config: validation: %w", err)
		}
	}

	return cfg, nil
}

// resolveFields walks cfg's fields recursively. For each leaf field
// with an `env` tag, it resolves, in order: explicit override,
// process env, project-local file (unless `layout:"true"`),
// user-global file, leaving the existing (default) value untouched
// otherwise.
func resolveFields(v reflect.Value, overrides, projectValues, userValues map[string]string) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		ft := t.Field(i)

		if field.Kind() == reflect.Struct {
			if err := resolveFields(field, overrides, projectValues, userValues); err != nil {
				return err
			}
			continue
		}

		key := ft.Tag.Get("env")
		if key == "" || key == "-" {
			continue
		}
		skipProjectLocal := ft.Tag.Get("layout") == "true"

		value, found := overrides[key]
		if !found {
			value, found = os.LookupEnv(key)
		}
		if !found && !skipProjectLocal {
			value, found = projectValues[key]
		}
		if !found {
			value, found = userValues[key]
		}
		if !found {
			continue
		}

		if err := setFieldValue(field, value); err != nil {
			return fmt.Errorf("field %s (env %s): %w", ft.Name, key, err)
		}
	}
	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(n)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(n)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			if strings.TrimSpace(value) == "" {
				field.Set(reflect.ValueOf([]string{}))
				return nil
			}
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// MustLoad loads the configuration, panicking on error. Intended for
// cmd/ entrypoints only.
func MustLoad(l *Loader) *Config {
	cfg, err := l.Load()
	if err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	return cfg
}

// Validate runs structural sanity checks beyond per-field parsing.
func (c *Config) Validate() error {
	var problems []string

	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		problems = append(problems, "http.port must be in (0, 65535]")
	}
	if c.Limits.MaxMessageBodyBytes <= 0 {
		problems = append(problems, "limits.max_message_body_bytes must be positive")
	}
	if c.Disk.WarningMB > 0 && c.Disk.CriticalMB > 0 && c.Disk.WarningMB < c.Disk.CriticalMB {
		problems = append(problems, "disk.warning_mb must be >= disk.critical_mb")
	}
	if c.Disk.CriticalMB > 0 && c.Disk.FatalMB > 0 && c.Disk.CriticalMB < c.Disk.FatalMB {
		problems = append(problems, "disk.critical_mb must be >= disk.fatal_mb")
	}
	if c.Search.QualityWeight < 0 || c.Search.QualityWeight > 1 {
		problems = append(problems, "search.quality_weight must be in [0, 1]")
	}
	if c.Search.FastOnly && c.Search.QualityOnly {
		problems = append(problems, "search.fast_only and search.quality_only are mutually exclusive")
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		problems = append(problems, "telemetry.sample_rate must be in [0, 1]")
	}

	if len(problems) > 0 {
		return fmt.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// RedactedSecret returns value with everything but the last 4
// characters replaced by "****", per the external-interfaces
// contract for secrets in log/diagnostic surfaces.
func RedactedSecret(value string) string {
	if value == "" {
		return ""
	}
	if len(value) <= 4 {
		return "****"
	}
	return "****" + value[len(value)-4:]
}
