package main

import (
	"flag"
	"io"
	"time"

	"github.com/John-Robertt/movieingest/internal/config"
)

// flags 把 flag.FlagSet 的结果映射为 config.CLIArgs：
// 只有命令行上显式出现的参数才会覆盖配置（flag.Visit），这样 --apply=false 也能生效。
type flags struct {
	fs *flag.FlagSet

	configPath string
	apply      bool
	source     string
	reportDir  string

	storeDriver string
	storeDSN    string
	cacheDriver string

	yearsBack int
	maxPages  int
	workers   int
	batchSize int
	minDelay  time.Duration

	logLevel  string
	logFormat string
	listen    string
}

func newFlags(name string, stderr io.Writer) *flags {
	f := &flags{fs: flag.NewFlagSet(name, flag.ContinueOnError)}
	f.fs.SetOutput(stderr)
	f.fs.StringVar(&f.configPath, "config", "", "配置文件路径（默认 ./movieingest.yaml，可选）")
	f.fs.StringVar(&f.logLevel, "log-level", "", "日志级别：debug|info|warn|error")
	f.fs.StringVar(&f.logFormat, "log-format", "", "日志格式：text|json")
	return f
}

func (f *flags) withStore() *flags {
	f.fs.StringVar(&f.storeDriver, "store-driver", "", "存储：memory|sqlite|postgres")
	f.fs.StringVar(&f.storeDSN, "store-dsn", "", "存储 DSN（sqlite 为文件路径）")
	return f
}

func (f *flags) withIngest() *flags {
	f.fs.BoolVar(&f.apply, "apply", false, "写入数据库与缓存（默认 dry-run）；支持 --apply=false")
	f.fs.StringVar(&f.source, "source", "", "列表来源：tmdb|imdb（默认有 TMDB key 时 tmdb）")
	f.fs.StringVar(&f.reportDir, "report-dir", "", "运行汇总目录（apply 时写 <dir>/runs/<id>.json）")
	f.fs.StringVar(&f.cacheDriver, "cache-driver", "", "详情缓存：off|file|redis")
	f.fs.IntVar(&f.yearsBack, "years-back", 0, "从今年往前的年份数")
	f.fs.IntVar(&f.maxPages, "max-pages", 0, "每个年份最多抓取的列表页数")
	f.fs.IntVar(&f.workers, "workers", 0, "并发 worker 数")
	f.fs.IntVar(&f.batchSize, "batch-size", 0, "每批写入条数")
	f.fs.DurationVar(&f.minDelay, "min-delay", 0, "每次请求后的最小间隔（例如 1.5s）")
	return f
}

func (f *flags) withListen() *flags {
	f.fs.StringVar(&f.listen, "listen", "", "HTTP 监听地址（例如 :8080）")
	return f
}

func (f *flags) parse(args []string) error { return f.fs.Parse(args) }

func (f *flags) cliArgs() config.CLIArgs {
	a := config.CLIArgs{ConfigPath: f.configPath}
	f.fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "apply":
			a.Apply = &f.apply
		case "source":
			a.Source = &f.source
		case "report-dir":
			a.ReportDir = &f.reportDir
		case "store-driver":
			a.StoreDriver = &f.storeDriver
		case "store-dsn":
			a.StoreDSN = &f.storeDSN
		case "cache-driver":
			a.CacheDriver = &f.cacheDriver
		case "years-back":
			a.YearsBack = &f.yearsBack
		case "max-pages":
			a.MaxPagesPerYear = &f.maxPages
		case "workers":
			a.Workers = &f.workers
		case "batch-size":
			a.BatchSize = &f.batchSize
		case "min-delay":
			a.MinDelay = &f.minDelay
		case "log-level":
			a.LogLevel = &f.logLevel
		case "log-format":
			a.LogFormat = &f.logFormat
		case "listen":
			a.Listen = &f.listen
		}
	})
	return a
}
