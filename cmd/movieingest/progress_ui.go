package main

import (
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"

	"github.com/John-Robertt/movieingest/internal/app/run"
	"github.com/John-Robertt/movieingest/internal/config"
	"github.com/John-Robertt/movieingest/internal/domain"
)

var _ run.Observer = (*progressUI)(nil)

var (
	uiTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	uiMutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	uiOKStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	uiWarnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	uiErrStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
)

// progressUI 是交互终端的进度输出。
//
// - 所有过程信息写到 stderr（或 fallback 到 stdout），不污染 stdout 的 JSON 输出
// - 每个条目一行；长时间没有条目完成时由 ticker 补一行进度条
type progressUI struct {
	w   io.Writer
	cfg config.Config
	bar progress.Model

	mu          sync.Mutex
	startedAt   time.Time
	lastPrinted time.Time
	last        domain.Progress
	workers     int

	keepaliveThreshold time.Duration
	tickerInterval     time.Duration

	stopCh        chan struct{}
	tickerStarted bool
}

func newProgressUI(w io.Writer, cfg config.Config) *progressUI {
	return &progressUI{
		w:                  w,
		cfg:                cfg,
		bar:                progress.New(progress.WithDefaultGradient(), progress.WithWidth(30)),
		keepaliveThreshold: 6 * time.Second,
		tickerInterval:     2 * time.Second,
	}
}

func (p *progressUI) OnStart(r domain.IngestionRun, rc run.Config) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.startedAt = time.Now()
	p.workers = rc.WorkerCount

	mode := "dry-run"
	modeHint := " (不写数据库/不写缓存)"
	if !rc.DryRun {
		mode = "apply"
		modeHint = ""
	}

	fmt.Fprintf(p.w, "%s %s\n", uiTitleStyle.Render("movieingest "+mode), uiMutedStyle.Render("["+p.startedAt.Format("15:04:05")+"]"))
	fmt.Fprintln(p.w, "配置（生效）:")
	fmt.Fprintf(p.w, "  run_id: %s\n", r.ID)
	fmt.Fprintf(p.w, "  mode: %s%s\n", mode, modeHint)
	fmt.Fprintf(p.w, "  source: %s\n", r.Source)
	fmt.Fprintf(p.w, "  pages: %d (years_back=%d max_pages=%d)\n", r.Requested, rc.YearsBack, rc.MaxPagesPerYear)
	fmt.Fprintf(p.w, "  workers: %d batch_size: %d min_delay: %s\n", rc.WorkerCount, rc.BatchSize, rc.MinDelay)
	fmt.Fprintf(p.w, "  store: %s\n", storeLabel(p.cfg, rc.DryRun))
	fmt.Fprintf(p.w, "  cache: %s\n", p.cfg.Cache.Driver)
	fmt.Fprintf(p.w, "  proxy: %s\n", formatProxy(p.cfg.Proxy.URL))
	fmt.Fprintf(p.w, "  events: %s\n", onOff(len(p.cfg.Kafka.Brokers) > 0))
	fmt.Fprintln(p.w)
	p.lastPrinted = time.Now()
}

func (p *progressUI) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch name {
	case "exec":
		fmt.Fprintf(p.w, "执行: workers=%d batch_size=%d segments=%d\n\n",
			intField(fields, "workers"), intField(fields, "batch_size"), intField(fields, "segments"),
		)
		if !p.tickerStarted {
			p.startTickerLocked()
		}
	case "listing":
		fmt.Fprintf(p.w, "列表: segments=%d pages=%d found=%d (%s)\n",
			intField(fields, "segments"), intField(fields, "pages"), intField(fields, "found"), formatShortDuration(dur),
		)
	case "persist":
		fmt.Fprintf(p.w, "写入: batches=%d saved=%d failed=%d (%s)\n",
			intField(fields, "batches"), intField(fields, "saved"), intField(fields, "failed"), formatShortDuration(dur),
		)
	default:
		fmt.Fprintf(p.w, "%s (%s)\n", name, formatShortDuration(dur))
	}
	p.lastPrinted = time.Now()
}

// OnFetch 只展示失败的请求（重试前的那次），成功请求由条目行体现。
func (p *progressUI) OnFetch(source, op string, attempt int, err error, dur time.Duration) {
	if err == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, uiMutedStyle.Render(fmt.Sprintf("  %s %s attempt=%d: %s (%s)",
		source, op, attempt, truncate(err.Error(), 120), formatShortDuration(dur),
	)))
	p.lastPrinted = time.Now()
}

func (p *progressUI) OnItemDone(pr domain.Progress, res domain.ItemResult, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.last = pr

	key := res.Key
	if key == "" {
		key = "<no-id>"
	}
	title := truncate(res.Title, 60)
	switch res.Status {
	case domain.StatusSaved:
		src := res.Source
		if res.DetailSource != "" {
			src += "+" + res.DetailSource
		}
		fmt.Fprintf(p.w, "[%d/%d] %s %s %s source=%s (%s)\n",
			pr.Processed, pr.Total, key, uiOKStyle.Render("OK"), title, src, formatShortDuration(dur),
		)
	case domain.StatusSkipped:
		fmt.Fprintf(p.w, "[%d/%d] %s %s %s (%s)\n",
			pr.Processed, pr.Total, key, uiWarnStyle.Render("SKIP"), res.ErrorCode, formatShortDuration(dur),
		)
	default:
		fmt.Fprintf(p.w, "[%d/%d] %s %s %s@%s: %s attempts=%d (%s)\n",
			pr.Processed, pr.Total, key, uiErrStyle.Render("FAIL"), res.ErrorCode, res.Stage,
			truncate(res.ErrorMsg, 160), res.Attempts, formatShortDuration(dur),
		)
	}
	p.lastPrinted = time.Now()
}

func (p *progressUI) OnFinish(r domain.IngestionRun) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tickerStarted {
		close(p.stopCh)
		p.tickerStarted = false
	}
	p.last = r.Progress(true)
	fmt.Fprintln(p.w)
	fmt.Fprintln(p.w, p.progressLineLocked())
}

func (p *progressUI) progressLineLocked() string {
	pct := 0.0
	if p.last.Total > 0 {
		pct = float64(p.last.Processed) / float64(p.last.Total)
	}
	return fmt.Sprintf("%s %d/%d saved=%d skipped=%d errored=%d elapsed=%s",
		p.bar.ViewAs(pct), p.last.Processed, p.last.Total,
		p.last.Saved, p.last.Skipped, p.last.Errored, formatElapsed(time.Since(p.startedAt)),
	)
}

func (p *progressUI) startTickerLocked() {
	p.stopCh = make(chan struct{})
	p.tickerStarted = true

	interval := p.tickerInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	threshold := p.keepaliveThreshold
	if threshold <= 0 {
		threshold = 6 * time.Second
	}
	stop := p.stopCh

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				p.mu.Lock()
				if time.Since(p.lastPrinted) > threshold {
					fmt.Fprintln(p.w, p.progressLineLocked())
					p.lastPrinted = time.Now()
				}
				p.mu.Unlock()
			case <-stop:
				return
			}
		}
	}()
}

func storeLabel(cfg config.Config, dryRun bool) string {
	if dryRun {
		return "memory (dry-run)"
	}
	if cfg.Store.Driver == "postgres" {
		return "postgres"
	}
	return cfg.Store.Driver + " " + cfg.Store.DSN
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func formatProxy(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "off"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "on (" + truncate(raw, 120) + ")"
	}
	auth := "off"
	if u.User != nil {
		auth = "on"
	}
	return fmt.Sprintf("on (%s://%s, auth=%s)", u.Scheme, u.Host, auth)
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	return fmt.Sprintf("%02d:%02d:%02d", sec/3600, (sec%3600)/60, sec%60)
}

func intField(fields map[string]any, key string) int {
	switch x := fields[key].(type) {
	case int:
		return x
	case int64:
		return int(x)
	default:
		return 0
	}
}
