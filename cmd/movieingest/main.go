package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/John-Robertt/movieingest/internal/app/bootstrap"
	"github.com/John-Robertt/movieingest/internal/config"
)

// 退出码：0 成功；1 运行失败（含配置错误、条目 errored、列表错误、取消）；2 用法错误。
const (
	exitOK    = 0
	exitFail  = 1
	exitUsage = 2
)

// cli 收拢进程级依赖，测试时替换。
type cli struct {
	stdout io.Writer
	stderr io.Writer
	env    config.LookupEnv
	cwd    string

	// progress 非 nil 时启用交互进度输出。
	progress  io.Writer
	stdoutTTY bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "读取当前目录失败：%v\n", err)
		os.Exit(exitFail)
	}
	progressW, _ := pickProgressWriter()
	c := &cli{
		stdout:    os.Stdout,
		stderr:    os.Stderr,
		env:       os.LookupEnv,
		cwd:       cwd,
		progress:  progressW,
		stdoutTTY: isTTY(os.Stdout),
	}
	code := c.main(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}

func (c *cli) main(ctx context.Context, args []string) int {
	if len(args) == 0 || isHelp(args[0]) {
		c.printUsage()
		return exitOK
	}

	switch args[0] {
	case "run":
		return c.ingestCmd(ctx, bootstrap.KindYears, args[1:])
	case "recent":
		return c.ingestCmd(ctx, bootstrap.KindRecent, args[1:])
	case "titles":
		return c.ingestCmd(ctx, bootstrap.KindTitles, args[1:])
	case "stats":
		return c.statsCmd(ctx, args[1:])
	case "serve":
		return c.serveCmd(ctx, args[1:])
	default:
		fmt.Fprintf(c.stderr, "未知命令：%q\n\n", args[0])
		c.printUsage()
		return exitUsage
	}
}

func isHelp(s string) bool {
	return s == "-h" || s == "--help" || s == "help"
}

func (c *cli) printUsage() {
	fmt.Fprint(c.stdout, `用法：
  movieingest run     [flags]              按年份抓取目录（tmdb 或 imdb 搜索页）
  movieingest recent  [flags]              抓取正在上映 + 即将上映
  movieingest titles  [flags] [id...]      按 IMDb ID 列表抓取（或 --file）
  movieingest stats   [flags]              统计已入库记录
  movieingest serve   [flags]              启动管理 HTTP 服务

默认 dry-run（不写数据库、不写缓存）；加 --apply 才会落库。
使用 "movieingest <命令> --help" 查看参数。
`)
}
