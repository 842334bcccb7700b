package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/John-Robertt/SRMC/internal/app/run"
	"github.com/John-Robertt/SRMC/internal/config"
	"github.com/John-Robertt/SRMC/internal/domain"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	progressW, _ := pickProgressWriter()
	code := runCLI(ctx, os.Args[1:], os.Stdout, os.Stderr, progressW)
	stop()
	os.Exit(code)
}

// exitError 携带 RunE 决定的退出码（输出已由 RunE 自己完成）。
type exitError struct{ code int }

func (e exitError) Error() string { return fmt.Sprintf("exit %d", e.code) }

// runCLI 解析参数并执行一次采集，返回进程退出码。
// progress 非空时启用交互进度输出；否则只向 stderr 写逐 source 的结果行。
func runCLI(ctx context.Context, args []string, stdout, stderr, progress io.Writer) int {
	cmd := newRootCmd(ctx, stdout, stderr, progress)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.Execute()
	if err == nil {
		return 0
	}
	var ee exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	fmt.Fprintf(stderr, "参数错误：%v\n\n", err)
	fmt.Fprint(stderr, cmd.UsageString())
	return 2
}

type flagValues struct {
	configPath   string
	perGame      int
	lang         string
	purchaseType string
	filterType   string
	sleep        float64
	outPath      string
	metadataPath string
	concurrency  int
	maxRetries   int
	timeout      time.Duration
	archiveDir   string
	sqlitePath   string
	metricsOut   string
	baseURL      string
}

func newRootCmd(ctx context.Context, stdout, stderr, progress io.Writer) *cobra.Command {
	var fv flagValues

	cmd := &cobra.Command{
		Use:   "srmc [flags]",
		Short: "采集 Steam 评测并标注变现相关关键词，输出单个 CSV",
		Long: `srmc 按 source 列表逐个分页拉取 Steam 评测（appreviews 接口），
规范化为固定列并标注 monetization_flag，最终写出单个 CSV。

配置优先级：命令行参数 > 环境变量（SRMC_*，可写在 .env）> srmc.yaml > 内置默认值。`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCollect(ctx, cliArgs(cmd.Flags(), fv), stdout, stderr, progress)
		},
	}

	fs := cmd.Flags()
	fs.SortFlags = false
	fs.StringVar(&fv.configPath, "config", "", "配置文件路径（默认读取 ./"+config.DefaultConfigName+"，不存在则忽略）")
	fs.IntVar(&fv.perGame, "per-game", config.DefaultPerGame, "每个游戏最多保留的评测条数")
	fs.StringVar(&fv.lang, "lang", config.DefaultLanguage, "评测语言（english, schinese, all ...）")
	fs.StringVar(&fv.purchaseType, "purchase-type", config.DefaultPurchase, "购买类型：all|steam|non_steam_purchase（verified 等同 steam）")
	fs.StringVar(&fv.filterType, "filter-type", config.DefaultFilter, "排序/过滤：recent|updated|all")
	fs.Float64Var(&fv.sleep, "sleep", config.DefaultSleep.Seconds(), "两次分页请求之间的最小间隔（秒）")
	fs.StringVar(&fv.outPath, "outpath", config.DefaultOutPath, "CSV 输出路径")
	fs.StringVar(&fv.metadataPath, "save-metadata-json", "", "可选：运行元数据 JSON 输出路径")
	fs.IntVar(&fv.concurrency, "concurrency", config.DefaultConcurrency, fmt.Sprintf("并发采集的 source 数（1..%d）", config.MaxConcurrency))
	fs.IntVar(&fv.maxRetries, "max-retries", config.DefaultMaxRetries, "单页失败后的最大重试次数")
	fs.DurationVar(&fv.timeout, "timeout", config.DefaultTimeout, "单次请求超时")
	fs.StringVar(&fv.archiveDir, "archive-dir", "", "可选：原始分页响应归档目录")
	fs.StringVar(&fv.sqlitePath, "sqlite", "", "可选：同时写入 SQLite 数据库")
	fs.StringVar(&fv.metricsOut, "metrics-out", "", "可选：Prometheus textfile 输出路径")
	fs.StringVar(&fv.baseURL, "base-url", "", "评测接口 base URL（测试/镜像用）")

	return cmd
}

// cliArgs 只把显式指定的参数转换为指针，未指定的交给下层优先级。
func cliArgs(fs *pflag.FlagSet, fv flagValues) config.CLIArgs {
	return config.CLIArgs{
		ConfigPath:   fv.configPath,
		PerGame:      changed(fs, "per-game", fv.perGame),
		Language:     changed(fs, "lang", fv.lang),
		PurchaseType: changed(fs, "purchase-type", fv.purchaseType),
		FilterType:   changed(fs, "filter-type", fv.filterType),
		Sleep:        changed(fs, "sleep", fv.sleep),
		OutPath:      changed(fs, "outpath", fv.outPath),
		MetadataPath: changed(fs, "save-metadata-json", fv.metadataPath),
		Concurrency:  changed(fs, "concurrency", fv.concurrency),
		MaxRetries:   changed(fs, "max-retries", fv.maxRetries),
		Timeout:      changed(fs, "timeout", fv.timeout),
		ArchiveDir:   changed(fs, "archive-dir", fv.archiveDir),
		SQLitePath:   changed(fs, "sqlite", fv.sqlitePath),
		MetricsOut:   changed(fs, "metrics-out", fv.metricsOut),
		BaseURL:      changed(fs, "base-url", fv.baseURL),
	}
}

func changed[T any](fs *pflag.FlagSet, name string, v T) *T {
	if !fs.Changed(name) {
		return nil
	}
	return &v
}

func runCollect(ctx context.Context, cli config.CLIArgs, stdout, stderr, progress io.Writer) error {
	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(stderr, "读取当前目录失败：%v\n", err)
		return exitError{1}
	}

	eff, err := config.LoadEffective(cwd, cli)
	if err != nil {
		fmt.Fprintf(stderr, "配置错误（%s）：%v\n", config.Code(err), err)
		return exitError{2}
	}

	var ui *progressUI
	if progress != nil {
		ui = newProgressUI(progress, false)
	} else {
		ui = newProgressUI(stderr, true)
	}
	meta, err := run.ExecuteWithObserver(ctx, eff, ui)
	ui.Close()
	if err != nil {
		fmt.Fprintf(stderr, "运行失败：%v\n", err)
		return exitError{1}
	}

	emitSummary(stdout, stderr, eff, meta)
	if meta.Failed() > 0 {
		return exitError{1}
	}
	return nil
}

func emitSummary(stdout, stderr io.Writer, eff config.EffectiveConfig, meta domain.RunMeta) {
	for _, a := range meta.Apps {
		if a.ErrorCode == "" {
			continue
		}
		fmt.Fprintf(stderr, "%s %s: %s\n", domain.Source{AppID: a.AppID, Name: a.Name}, a.ErrorCode, a.ErrorMsg)
	}

	fmt.Fprintf(stdout, "\nSaved single CSV: %s (%d rows)\n", eff.OutPath, meta.TotalRows)
	if strings.TrimSpace(eff.MetadataPath) != "" {
		fmt.Fprintf(stdout, "Saved metadata JSON: %s\n", eff.MetadataPath)
	}
	if eff.SQLitePath != "" {
		fmt.Fprintf(stdout, "Loaded SQLite: %s (run_id=%s)\n", eff.SQLitePath, meta.RunID)
	}
	if eff.ArchiveDir != "" {
		fmt.Fprintf(stdout, "Archived raw pages: %s\n", eff.ArchiveDir)
	}
	if eff.MetricsOut != "" {
		fmt.Fprintf(stdout, "Wrote metrics: %s\n", eff.MetricsOut)
	}
}

func isTTY(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func pickProgressWriter() (io.Writer, bool) {
	// 进度输出只在交互终端启用；默认走 stderr（不污染 stdout 的结果行）。
	if isTTY(os.Stderr) {
		return os.Stderr, true
	}
	if isTTY(os.Stdout) {
		return os.Stdout, true
	}
	return nil, false
}
