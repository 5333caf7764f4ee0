package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	cfgpkg "synthdlg/internal/config"
	"synthdlg/internal/diag"
	"synthdlg/internal/pipeline"
)

var pipelineRun = pipeline.Run

// 简化的 CLI：默认子命令 run。
// 位置参数为 roots（文件/目录）。
// 全局旗标（最小集）：--config, --generator, --concurrency, --max-retries, --lenses, --out
func main() {
	os.Exit(run())
}

func run() int {
	start := time.Now()
	corrID := uuid.NewString()
	// 在任何 ENV 读取前，尝试加载工作目录下的 .env（不覆盖已有 ENV）。
	_ = godotenv.Load()
	// 先占位默认 logger，解析/合并配置后以最终 level/format 重建
	logger := diag.NewLogger(diag.LogOptions{Level: "info", CorrID: corrID})

	var (
		flagConfig      string
		flagGenerator   string
		flagConcurrency int
		flagMaxRetries  int
		flagLenses      string
		flagOut         string
		flagDataset     string
		flagInitDir     string
	)
	flag.StringVar(&flagConfig, "config", "", "配置文件路径（JSON）；缺省读取 ./config.json（若存在）")
	flag.StringVar(&flagGenerator, "generator", "", "生成后端 provider 名称（覆盖配置）")
	flag.IntVar(&flagConcurrency, "concurrency", 0, "并发度（覆盖配置）")
	// max-retries 允许显式设置为 0；默认 -1 表示“未覆盖”。
	flag.IntVar(&flagMaxRetries, "max-retries", -1, "生成阶段最大重试次数（覆盖配置；0 表示不重试）")
	flag.StringVar(&flagLenses, "lenses", "", "启用的 lens 名（逗号分隔，覆盖配置）")
	flag.StringVar(&flagOut, "out", "", "输出目录（覆盖 fs writer 的 output_dir）")
	flag.StringVar(&flagDataset, "dataset", "", "产物基名（覆盖配置）")
	flag.StringVar(&flagInitDir, "init-config", "", "在指定目录生成默认配置 config.json 和 .env 模板（已存在则跳过，不覆盖）；不带值时默认当前目录")
	normalizeInitArg()
	flag.Parse()

	roots := flag.Args()

	// --init-config: 生成模板并退出
	if dir := strings.TrimSpace(flagInitDir); dir != "" {
		if err := initConfig(dir); err != nil {
			fprintf(os.Stderr, "生成默认配置失败: %v\n", err)
			return 3
		}
		return 0
	}

	// JSON 配置（文件或 ENV: SYNTHDLG_CONFIG_JSON）
	var cfgJSON []byte
	if s := os.Getenv("SYNTHDLG_CONFIG_JSON"); s != "" {
		cfgJSON = []byte(s)
	}
	if flagConfig == "" {
		if s := os.Getenv("SYNTHDLG_CONFIG_FILE"); s != "" {
			flagConfig = s
		}
	}
	// 默认读取工作目录下 config.json（若存在）
	if flagConfig == "" {
		if _, err := os.Stat("config.json"); err == nil {
			flagConfig = "config.json"
		}
	}

	cfg := cfgpkg.Defaults()
	if flagConfig != "" || len(cfgJSON) > 0 {
		base, err := cfgpkg.LoadJSON(flagConfig, cfgJSON)
		if err != nil {
			fprintf(os.Stderr, "配置解析失败: %v\n", err)
			return 3
		}
		cfg = cfgpkg.Merge(cfg, base)
	}

	// ENV 覆盖（最小集合）
	overEnv, err := cfgpkg.EnvOverlay(os.Environ())
	if err != nil {
		fprintf(os.Stderr, "环境变量解析失败: %v\n", err)
		return 3
	}
	cfg = cfgpkg.Merge(cfg, overEnv)

	// CLI 覆盖
	var overCLI cfgpkg.Config
	// 标记 MaxRetries 未设置（避免默认 0 被误判为要覆盖）
	overCLI.MaxRetries = -1
	if flagGenerator != "" {
		overCLI.Generator = flagGenerator
	}
	if flagConcurrency > 0 {
		overCLI.Concurrency = flagConcurrency
	}
	if flagMaxRetries >= 0 {
		overCLI.MaxRetries = flagMaxRetries
	}
	if flagLenses != "" {
		overCLI.Lenses.Select = splitComma(flagLenses)
	}
	if flagOut != "" {
		overCLI.Options.Writer = json.RawMessage(`{"output_dir":` + jsonString(flagOut) + `}`)
	}
	if flagDataset != "" {
		overCLI.DatasetName = flagDataset
	}
	if len(roots) > 0 {
		overCLI.Inputs = roots
	}
	cfg = cfgpkg.Merge(cfg, overCLI)

	// 基本校验
	if err := cfgpkg.Validate(cfg); err != nil {
		fprintf(os.Stderr, "配置校验失败: %v\n", err)
		_ = dumpConfig(cfg)
		return 3
	}

	// 使用最终配置重建 logger
	logger = diag.NewLogger(diag.LogOptions{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		CorrID: corrID,
	})

	// 预检：fs writer 的输出目录可写性
	if err := preflightCheckOutputDir(cfg); err != nil {
		fprintf(os.Stderr, "输出目录不可写或无法创建: %v\n", err)
		return 3
	}

	comp, set, err := cfgpkg.Assemble(cfg)
	if err != nil {
		fprintf(os.Stderr, "装配失败: %v\n", err)
		logger.Error().Str("code", string(diag.Classify(err))).Msg(err.Error())
		return 3
	}
	defer func() { _ = comp.Dedup.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info().
		Int("inputs", len(cfg.Inputs)).
		Int("concurrency", cfg.Concurrency).
		Str("generator", cfg.Generator).
		Int("lenses", len(set.Lenses)).
		Msg("run start")

	rep, err := pipelineRun(ctx, comp, set, logger)
	if err != nil {
		logger.Error().Str("code", string(diag.Classify(err))).Msg(err.Error())
		if !errors.Is(err, context.Canceled) {
			fprintf(os.Stderr, "运行失败: %v\n", err)
		}
		return 1
	}
	fprintf(os.Stderr, "完成：%d 文档 / %d 块 → %d 记录（%d 失败，%d 重复），耗时 %s\n",
		rep.Documents, rep.Chunks, rep.Records, rep.Failures, rep.Dupes,
		time.Since(start).Round(time.Millisecond))
	return 0
}

func fprintf(w *os.File, format string, a ...any) { _, _ = fmt.Fprintf(w, format, a...) }

func splitComma(s string) []string {
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func dumpConfig(c cfgpkg.Config) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	_, _ = os.Stderr.Write(append([]byte("有效配置:\n"), b...))
	_, _ = os.Stderr.Write([]byte("\n"))
	return nil
}

// initConfig 在目录下生成 config.json 与 .env 模板（均不覆盖已存在文件）。
func initConfig(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := writeConfig(filepath.Join(dir, "config.json")); err != nil {
		return err
	}
	if err := writeDotEnv(filepath.Join(dir, ".env")); err != nil {
		fprintf(os.Stderr, "提示：.env 生成失败（已跳过）：%v\n", err)
	}
	return nil
}

func writeConfig(path string) error {
	b, err := cfgpkg.TemplateJSON()
	if err != nil {
		return err
	}
	if path == "-" {
		_, err = os.Stdout.Write(append(b, '\n'))
		return err
	}
	// 不覆盖已存在文件
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	if _, err := f.Write(append(b, '\n')); err != nil {
		return err
	}
	return nil
}

// normalizeInitArg: 允许 --init-config 在未提供路径值时采用默认值当前目录 "."。
// 兼容以下形式：
//
//	--init-config                => 等价于 --init-config .
//	--init-config=out
//	--init-config out
//
// 仅在检测到“裸开关或后继为下一个开关”的情况下插入默认值。
func normalizeInitArg() {
	args := os.Args
	if len(args) <= 1 {
		return
	}
	out := make([]string, 0, len(args)+1)
	out = append(out, args[0])
	for i := 1; i < len(args); i++ {
		a := args[i]
		out = append(out, a)
		if a == "--init-config" || a == "-init-config" {
			if i == len(args)-1 {
				out = append(out, ".")
				continue
			}
			if strings.HasPrefix(args[i+1], "-") {
				out = append(out, ".")
				continue
			}
		}
	}
	os.Args = out
}

// writeDotEnv 生成 .env 模板（若文件已存在则跳过）。
// 仅创建文件；不覆盖，不合并。
func writeDotEnv(path string) error {
	if st, err := os.Stat(path); err == nil && !st.IsDir() {
		return nil
	} else if err != nil && !os.IsNotExist(err) {
		return err
	}
	var b strings.Builder
	b.WriteString("# synthdlg .env 模板（由 --init-config 生成）\n")
	b.WriteString("# 优先级：CLI > ENV(.env) > JSON\n")
	b.WriteString("# 空值表示未设置；按需填写后移除本行注释。\n\n")

	b.WriteString("# 配置来源（可二选一）\n")
	b.WriteString("SYNTHDLG_CONFIG_FILE=\n")
	b.WriteString("SYNTHDLG_CONFIG_JSON=\n\n")

	b.WriteString("# 运行参数覆盖\n")
	b.WriteString("SYNTHDLG_INPUTS=\n")
	b.WriteString("SYNTHDLG_CONCURRENCY=\n")
	b.WriteString("SYNTHDLG_MAX_RETRIES=\n")
	b.WriteString("SYNTHDLG_DATASET_NAME=\n")
	b.WriteString("SYNTHDLG_GENERATOR=\n")
	b.WriteString("SYNTHDLG_LENSES_SELECT=\n")
	b.WriteString("SYNTHDLG_LENSES_FILE=\n\n")

	b.WriteString("# 组件选择\n")
	b.WriteString("SYNTHDLG_COMPONENTS_SOURCE=\n")
	b.WriteString("SYNTHDLG_COMPONENTS_CHUNKER=\n")
	b.WriteString("SYNTHDLG_COMPONENTS_COMPOSER=\n")
	b.WriteString("SYNTHDLG_COMPONENTS_PARSER=\n")
	b.WriteString("SYNTHDLG_COMPONENTS_WRITER=\n")
	b.WriteString("SYNTHDLG_COMPONENTS_DEDUP=\n\n")

	b.WriteString("# Provider 覆盖（openai）\n")
	b.WriteString("SYNTHDLG_PROVIDER__openai__CLIENT=\n")
	b.WriteString("SYNTHDLG_PROVIDER__openai__LIMITS_RPM=\n")
	b.WriteString("SYNTHDLG_PROVIDER__openai__LIMITS_TPM=\n")
	b.WriteString("SYNTHDLG_PROVIDER__openai__LIMITS_MAX_TOKENS_PER_REQ=\n")
	b.WriteString("SYNTHDLG_PROVIDER__openai__OPTIONS_JSON=\n\n")

	b.WriteString("# Provider 覆盖（ollama）\n")
	b.WriteString("SYNTHDLG_PROVIDER__ollama__CLIENT=\n")
	b.WriteString("SYNTHDLG_PROVIDER__ollama__OPTIONS_JSON=\n\n")

	b.WriteString("# 常见供应商 API Key（由客户端读取，不经 SYNTHDLG_ 前缀）\n")
	b.WriteString("OPENAI_API_KEY=\n")

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	if _, err := f.WriteString(b.String()); err != nil {
		return err
	}
	return nil
}

// preflightCheckOutputDir: 当 Writer 使用文件系统实现(fs)时，启动前检查输出目录可写性。
// 规则：
// - 若目录已存在：尝试创建并删除临时文件；失败则判为不可写。
// - 若目录不存在：检查父目录是否可写（尝试在父目录创建并删除临时目录）。
// 仅针对 fs writer 生效；其他 writer 跳过。
func preflightCheckOutputDir(cfg cfgpkg.Config) error {
	def := cfgpkg.Defaults()
	writerName := cfg.Components.Writer
	if strings.TrimSpace(writerName) == "" {
		writerName = def.Components.Writer
	}
	if strings.TrimSpace(writerName) != "fs" {
		return nil
	}
	var wopts struct {
		OutputDir string `json:"output_dir"`
	}
	if len(cfg.Options.Writer) > 0 {
		_ = json.Unmarshal(cfg.Options.Writer, &wopts)
	}
	dir := strings.TrimSpace(wopts.OutputDir)
	if dir == "" {
		// 未指定时无法可靠检查，让装配阶段按实现自行报错
		return nil
	}
	if st, err := os.Stat(dir); err == nil && st.IsDir() {
		f, err := os.CreateTemp(dir, ".wcheck-*")
		if err != nil {
			return err
		}
		name := f.Name()
		_ = f.Close()
		_ = os.Remove(name)
		return nil
	} else if err == nil && !st.IsDir() {
		return fmt.Errorf("路径存在但不是目录: %s", dir)
	} else if err != nil && !os.IsNotExist(err) {
		return err
	}
	parent := filepath.Dir(dir)
	if parent == "" || parent == dir {
		return fmt.Errorf("无法确定父目录: %s", dir)
	}
	pst, err := os.Stat(parent)
	if err != nil {
		return err
	}
	if !pst.IsDir() {
		return fmt.Errorf("父路径不是目录: %s", parent)
	}
	tmpd, err := os.MkdirTemp(parent, ".wcheck-*")
	if err != nil {
		return err
	}
	_ = os.RemoveAll(tmpd)
	return nil
}
