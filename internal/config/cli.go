package config

import "time"

// CLIArgs 是 CLI 暴露的覆盖项；nil 表示未显式指定。
// 这能保证覆盖优先级可实现：例如 --apply=false 必须能覆盖 apply: true。
type CLIArgs struct {
	ConfigPath string

	Apply     *bool
	Source    *string
	ReportDir *string

	StoreDriver *string
	StoreDSN    *string
	CacheDriver *string

	YearsBack       *int
	MaxPagesPerYear *int
	Workers         *int
	BatchSize       *int
	MinDelay        *time.Duration

	LogLevel  *string
	LogFormat *string
	Listen    *string
}

func (a CLIArgs) apply(cfg *Config) {
	set(&cfg.Apply, a.Apply)
	set(&cfg.Source, a.Source)
	set(&cfg.ReportDir, a.ReportDir)
	set(&cfg.Store.Driver, a.StoreDriver)
	set(&cfg.Store.DSN, a.StoreDSN)
	set(&cfg.Cache.Driver, a.CacheDriver)
	set(&cfg.Ingest.YearsBack, a.YearsBack)
	set(&cfg.Ingest.MaxPagesPerYear, a.MaxPagesPerYear)
	set(&cfg.Ingest.Workers, a.Workers)
	set(&cfg.Ingest.BatchSize, a.BatchSize)
	set(&cfg.Ingest.MinDelay, a.MinDelay)
	set(&cfg.Logging.Level, a.LogLevel)
	set(&cfg.Logging.Format, a.LogFormat)
	set(&cfg.Server.Listen, a.Listen)
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}
