// Package config (defaults.go) supplies the built-in default layer —
// the last-resort values used when no argument, environment variable,
// or env file supplies a key.
package config

import "time"

// DefaultConfig returns the built-in default configuration.
func DefaultConfig() *Config {
	return &Config{
		App:           DefaultAppConfig(),
		Store:         DefaultStoreConfig(),
		Storage:       DefaultStorageConfig(),
		HTTP:          DefaultHTTPConfig(),
		Limits:        DefaultLimitsConfig(),
		Disk:          DefaultDiskConfig(),
		Integrity:     DefaultIntegrityConfig(),
		Tools:         DefaultToolsConfig(),
		Console:       DefaultConsoleConfig(),
		Log:           DefaultLogConfig(),
		Archive:       DefaultArchiveConfig(),
		Search:        DefaultSearchConfig(),
		Export:        DefaultExportConfig(),
		Observability: DefaultObservabilityConfig(),
		Telemetry:     DefaultTelemetryConfig(),
	}
}

func DefaultAppConfig() AppConfig {
	return AppConfig{Environment: "production"}
}

func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		DatabaseURL:     "sqlite:///./agentmail.db",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		AcquireTimeout:  5 * time.Second,
	}
}

func DefaultStorageConfig() StorageConfig {
	return StorageConfig{Root: "./agentmail-storage"}
}

func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Host:                          "127.0.0.1",
		Port:                          8765,
		Path:                          "/mcp",
		BearerToken:                   "",
		AllowLocalhostUnauthenticated: true,
	}
}

func DefaultLimitsConfig() LimitsConfig {
	return LimitsConfig{
		MaxMessageBodyBytes:    1 << 20,  // 1 MiB
		MaxAttachmentBytes:     25 << 20, // 25 MiB
		MaxTotalMessageBytes:   50 << 20, // 50 MiB
		MaxSubjectBytes:        1024,
		AutoRegisterRecipients: true,
	}
}

func DefaultDiskConfig() DiskConfig {
	return DiskConfig{
		WarningMB:  2048,
		CriticalMB: 512,
		FatalMB:    64,
	}
}

func DefaultIntegrityConfig() IntegrityConfig {
	return IntegrityConfig{
		CheckOnStartup:     true,
		CheckIntervalHours: 24,
	}
}

func DefaultToolsConfig() ToolsConfig {
	return ToolsConfig{
		FilterEnabled:  false,
		FilterProfile:  "full",
		FilterMode:     "exclude",
		FilterClusters: []string{},
		FilterTools:    []string{},
	}
}

func DefaultConsoleConfig() ConsoleConfig {
	return ConsoleConfig{ColorEnabled: true, Layout: "compact"}
}

func DefaultLogConfig() LogConfig {
	return LogConfig{Level: "info", Format: "json"}
}

func DefaultArchiveConfig() ArchiveConfig {
	return ArchiveConfig{
		Workers:            4,
		QueueHighWaterMark: 1024,
		BatchWindow:        200 * time.Millisecond,
		InlineThreshold:    64 << 10, // 64 KiB
	}
}

func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		QualityWeight:     0.7,
		MaxRefinementDocs: 100,
		FastOnly:          false,
		QualityOnly:       false,
		DefaultLimit:      20,
		FastDimension:     256, // potion-128m-equivalent fast embedder
		QualityDimension:  384, // MiniLM-L6-v2-equivalent quality embedder
	}
}

func DefaultExportConfig() ExportConfig {
	return ExportConfig{
		InlineThresholdBytes: 16 << 10,   // 16 KiB
		DetachThresholdBytes: 1 << 20,    // 1 MiB
		ChunkThresholdBytes:  512 << 20,  // 512 MiB
		ChunkSizeBytes:       64 << 20,   // 64 MiB
	}
}

func DefaultObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		HazardRate:        1.0 / 250.0,
		MaxRunLength:      500,
		ChangePointThresh: 0.8,
		ConformalWindow:   500,
		ConformalCoverage: 0.90,
		LedgerCapacity:    10000,
	}
}

// DefaultTelemetryConfig disables OTel export by default — tracing is
// opt-in via TELEMETRY_ENABLED, since most deployments run without a
// collector endpoint reachable.
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		ServiceName:  "agentmail",
		OTLPEndpoint: "localhost:4317",
		SampleRate:   0.1,
	}
}
