package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"

	"github.com/John-Robertt/movieingest/internal/app/bootstrap"
	"github.com/John-Robertt/movieingest/internal/config"
	"github.com/John-Robertt/movieingest/internal/infra/logx"
	"github.com/John-Robertt/movieingest/internal/store"
)

// movieStats 是 stats 命令的 JSON 输出。
type movieStats struct {
	Total           int     `json:"total"`
	WithPoster      int     `json:"with_poster"`
	WithDescription int     `json:"with_description"`
	WithCast        int     `json:"with_cast"`
	Target          int     `json:"target,omitempty"`
	Percent         float64 `json:"percent,omitempty"`
}

func (c *cli) statsCmd(ctx context.Context, args []string) int {
	f := newFlags("stats", c.stderr).withStore()
	var target int
	f.fs.IntVar(&target, "target", 0, "目标记录数（输出完成百分比）")
	if err := f.parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if target < 0 {
		fmt.Fprintln(c.stderr, "参数错误：--target 不能为负数")
		return exitUsage
	}

	cfg, err := config.LoadEffective(c.cwd, f.cliArgs(), c.env)
	if err != nil {
		fmt.Fprintf(c.stderr, "配置错误[%s]：%v\n", config.Code(err), err)
		return exitFail
	}
	logger := logx.SetupTo(c.stderr, cfg.Logging.Level, cfg.Logging.Format)

	st, err := bootstrap.OpenStore(ctx, cfg.Store, logger)
	if err != nil {
		fmt.Fprintf(c.stderr, "打开存储失败：%v\n", err)
		return exitFail
	}
	defer st.Close()

	ms, err := countMovies(ctx, st)
	if err != nil {
		fmt.Fprintf(c.stderr, "统计失败：%v\n", err)
		return exitFail
	}
	if target > 0 {
		ms.Target = target
		ms.Percent = min(100, float64(ms.Total)*100/float64(target))
	}

	if c.stdoutTTY {
		fmt.Fprint(c.stdout, renderStats(ms))
		return exitOK
	}
	_ = json.NewEncoder(c.stdout).Encode(ms)
	return exitOK
}

func countMovies(ctx context.Context, st store.Store) (movieStats, error) {
	var ms movieStats
	for _, q := range []struct {
		dst *int
		f   store.CountFilter
	}{
		{&ms.Total, store.CountFilter{}},
		{&ms.WithPoster, store.CountFilter{WithPoster: true}},
		{&ms.WithDescription, store.CountFilter{WithDescription: true}},
		{&ms.WithCast, store.CountFilter{WithCast: true}},
	} {
		n, err := st.Count(ctx, q.f)
		if err != nil {
			return movieStats{}, err
		}
		*q.dst = n
	}
	return ms, nil
}

var (
	statsTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	statsLabelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(18)
	statsPanelStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

func renderStats(ms movieStats) string {
	row := func(label string, n int) string {
		pct := ""
		if ms.Total > 0 && label != "total" {
			pct = fmt.Sprintf(" (%.1f%%)", float64(n)*100/float64(ms.Total))
		}
		return statsLabelStyle.Render(label) + fmt.Sprintf("%d%s", n, pct)
	}
	lines := []string{
		statsTitleStyle.Render("movies"),
		row("total", ms.Total),
		row("with poster", ms.WithPoster),
		row("with description", ms.WithDescription),
		row("with cast", ms.WithCast),
	}
	if ms.Target > 0 {
		bar := progress.New(progress.WithDefaultGradient(), progress.WithWidth(30))
		lines = append(lines, statsLabelStyle.Render(fmt.Sprintf("target %d", ms.Target))+bar.ViewAs(ms.Percent/100))
	}
	return statsPanelStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...)) + "\n"
}
