package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/John-Robertt/SRMC/internal/domain"
)

const (
	// ErrCodeNotFound 表示 --config 显式指定的文件不存在。
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
)

const (
	DefaultConfigName  = "srmc.yaml"
	DefaultPerGame     = 4000
	DefaultLanguage    = "english"
	DefaultPurchase    = "all"
	DefaultFilter      = "recent"
	DefaultSleep       = time.Second
	DefaultOutPath     = "data/steam_reviews/all_reviews.csv"
	DefaultConcurrency = 1
	DefaultMaxRetries  = 6
	DefaultTimeout     = 20 * time.Second

	MaxConcurrency = 8

	DefaultNotes = "Single-file dataset for research on ethical & profitable monetization models."
)

// 环境变量（也可写在 <cwd>/.env；进程环境优先于 .env）。
const (
	EnvUserAgent   = "SRMC_USER_AGENT"
	EnvBaseURL     = "SRMC_BASE_URL"
	EnvConcurrency = "SRMC_CONCURRENCY"
	EnvProxyURL    = "SRMC_PROXY_URL"
)

// CLIArgs 是 CLI 传入的参数；指针为 nil 表示“未显式指定”。
// 这能保证覆盖优先级可实现：例如 --sleep=0 必须能覆盖配置文件里的 sleep: 2。
type CLIArgs struct {
	ConfigPath string

	PerGame      *int
	Language     *string
	PurchaseType *string
	FilterType   *string
	Sleep        *float64
	OutPath      *string
	MetadataPath *string
	Concurrency  *int
	MaxRetries   *int
	Timeout      *time.Duration
	ArchiveDir   *string
	SQLitePath   *string
	MetricsOut   *string
	BaseURL      *string
}

// FileConfig 对应 srmc.yaml 的解析结构。
type FileConfig struct {
	PerGame      *int           `yaml:"per_game"`
	Language     string         `yaml:"language"`
	PurchaseType string         `yaml:"purchase_type"`
	FilterType   string         `yaml:"filter_type"`
	Sleep        *float64       `yaml:"sleep"`
	OutPath      string         `yaml:"outpath"`
	MetadataPath string         `yaml:"metadata_path"`
	Concurrency  *int           `yaml:"concurrency"`
	MaxRetries   *int           `yaml:"max_retries"`
	Timeout      *time.Duration `yaml:"timeout"`
	BaseURL      string         `yaml:"base_url"`
	UserAgent    string         `yaml:"user_agent"`
	ProxyURL     string         `yaml:"proxy_url"`
	ArchiveDir   string         `yaml:"archive_dir"`
	SQLitePath   string         `yaml:"sqlite_path"`
	MetricsOut   string         `yaml:"metrics_out"`
	Notes        string         `yaml:"notes"`

	Sources []domain.Source `yaml:"sources"`
}

// EffectiveConfig 是合并并做最小规范化后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
// 所有路径都已是绝对路径；可选输出为空表示不启用。
type EffectiveConfig struct {
	// ConfigPath 是实际读取的配置文件；未读取时为空。
	ConfigPath string

	PerGame      int
	Language     string
	PurchaseType string
	FilterType   string
	Sleep        time.Duration

	OutPath      string
	MetadataPath string
	ArchiveDir   string
	SQLitePath   string
	MetricsOut   string

	Concurrency int
	MaxRetries  int
	Timeout     time.Duration

	BaseURL   string
	UserAgent string
	ProxyURL  string
	Notes     string

	Sources []domain.Source
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Path == "" {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		if e.Err != nil {
			return fmt.Sprintf("%s：配置文件 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置文件 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 读取配置文件与环境变量，然后与 CLI 参数合并为最终配置。
//
// 发现规则：
// 1) CLI 提供 --config：该文件必须存在
// 2) 未提供：尝试读取 <cwd>/srmc.yaml（可选）
//
// 覆盖优先级：CLI（显式指定）> 环境变量（SRMC_*，含 <cwd>/.env）> 配置文件 > 内置默认值。
// sources 只能由配置文件提供，缺省为内置列表。
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	cfgPath := filepath.Join(cwdAbs, DefaultConfigName)
	required := false
	if strings.TrimSpace(cli.ConfigPath) != "" {
		cfgPath = absCleanFrom(cwdAbs, cli.ConfigPath)
		required = true
	}

	fc, exists, err := readFileConfig(cfgPath)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	if !exists {
		if required {
			return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: cfgPath, Err: os.ErrNotExist}
		}
		cfgPath = ""
	}

	env, err := loadEnv(cwdAbs)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: filepath.Join(cwdAbs, ".env"), Err: err}
	}

	return merge(cwdAbs, cli, fc, env, cfgPath)
}

func merge(cwd string, cli CLIArgs, fc FileConfig, env envLookup, cfgPath string) (EffectiveConfig, error) {
	invalid := func(format string, args ...any) error {
		return &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf(format, args...)}
	}

	eff := EffectiveConfig{
		ConfigPath:   cfgPath,
		PerGame:      pickInt(cli.PerGame, fc.PerGame, DefaultPerGame),
		Language:     pickStr(cli.Language, fc.Language, DefaultLanguage),
		PurchaseType: pickStr(cli.PurchaseType, fc.PurchaseType, DefaultPurchase),
		FilterType:   pickStr(cli.FilterType, fc.FilterType, DefaultFilter),
		MaxRetries:   pickInt(cli.MaxRetries, fc.MaxRetries, DefaultMaxRetries),
		Timeout:      DefaultTimeout,
		UserAgent:    firstNonEmpty(env.get(EnvUserAgent), fc.UserAgent),
		ProxyURL:     firstNonEmpty(env.get(EnvProxyURL), fc.ProxyURL),
		Notes:        firstNonEmpty(fc.Notes, DefaultNotes),
	}

	if eff.PerGame < 0 {
		return EffectiveConfig{}, invalid("per_game 不能为负数，实际是 %d", eff.PerGame)
	}
	if eff.Language = strings.TrimSpace(eff.Language); eff.Language == "" {
		return EffectiveConfig{}, invalid("language 不能为空")
	}
	pt, err := NormalizePurchaseType(eff.PurchaseType)
	if err != nil {
		return EffectiveConfig{}, invalid("%v", err)
	}
	eff.PurchaseType = pt
	switch eff.FilterType {
	case "recent", "updated", "all":
	default:
		return EffectiveConfig{}, invalid("filter_type 只能是 recent/updated/all，实际是 %q", eff.FilterType)
	}
	if eff.MaxRetries < 0 {
		return EffectiveConfig{}, invalid("max_retries 不能为负数，实际是 %d", eff.MaxRetries)
	}

	// sleep：秒（可为小数）。
	sleep := DefaultSleep.Seconds()
	if cli.Sleep != nil {
		sleep = *cli.Sleep
	} else if fc.Sleep != nil {
		sleep = *fc.Sleep
	}
	if sleep < 0 {
		return EffectiveConfig{}, invalid("sleep 不能为负数，实际是 %v", sleep)
	}
	eff.Sleep = time.Duration(sleep * float64(time.Second))

	if cli.Timeout != nil {
		eff.Timeout = *cli.Timeout
	} else if fc.Timeout != nil {
		eff.Timeout = *fc.Timeout
	}
	if eff.Timeout <= 0 {
		return EffectiveConfig{}, invalid("timeout 必须为正数，实际是 %v", eff.Timeout)
	}

	// concurrency：CLI > env > config > 默认；超出 [1, 8] 截断。
	concurrency := DefaultConcurrency
	if fc.Concurrency != nil {
		concurrency = *fc.Concurrency
	}
	if s := env.get(EnvConcurrency); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return EffectiveConfig{}, invalid("%s 不是整数：%q", EnvConcurrency, s)
		}
		concurrency = n
	}
	if cli.Concurrency != nil {
		concurrency = *cli.Concurrency
	}
	if concurrency < 1 {
		concurrency = 1
	}
	if concurrency > MaxConcurrency {
		concurrency = MaxConcurrency
	}
	eff.Concurrency = concurrency

	baseURL := firstNonEmpty(env.get(EnvBaseURL), fc.BaseURL)
	if cli.BaseURL != nil {
		baseURL = strings.TrimSpace(*cli.BaseURL)
	}
	if baseURL != "" {
		if err := validateHTTPURL(baseURL); err != nil {
			return EffectiveConfig{}, invalid("base_url %v", err)
		}
		eff.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if eff.ProxyURL != "" {
		if err := validateHTTPURL(eff.ProxyURL); err != nil {
			return EffectiveConfig{}, invalid("proxy_url %v", err)
		}
	}

	out := pickStr(cli.OutPath, fc.OutPath, DefaultOutPath)
	if strings.TrimSpace(out) == "" {
		return EffectiveConfig{}, invalid("outpath 不能为空")
	}
	eff.OutPath = absCleanFrom(cwd, out)
	eff.MetadataPath = absCleanFrom(cwd, pickStr(cli.MetadataPath, fc.MetadataPath, ""))
	eff.ArchiveDir = absCleanFrom(cwd, pickStr(cli.ArchiveDir, fc.ArchiveDir, ""))
	eff.SQLitePath = absCleanFrom(cwd, pickStr(cli.SQLitePath, fc.SQLitePath, ""))
	eff.MetricsOut = absCleanFrom(cwd, pickStr(cli.MetricsOut, fc.MetricsOut, ""))

	for _, p := range []string{eff.MetadataPath, eff.SQLitePath, eff.MetricsOut} {
		if p != "" && p == eff.OutPath {
			return EffectiveConfig{}, invalid("输出路径冲突：%q 被重复使用", p)
		}
	}

	eff.Sources = domain.DefaultSources()
	if len(fc.Sources) > 0 {
		eff.Sources = append([]domain.Source(nil), fc.Sources...)
	}
	if err := domain.ValidateSources(eff.Sources); err != nil {
		return EffectiveConfig{}, invalid("%v", err)
	}

	return eff, nil
}

// NormalizePurchaseType 校验 purchase_type；verified 是 steam 的别名。
func NormalizePurchaseType(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "all":
		return "all", nil
	case "steam", "verified":
		return "steam", nil
	case "non_steam_purchase":
		return "non_steam_purchase", nil
	default:
		return "", fmt.Errorf("purchase_type 只能是 all/steam/non_steam_purchase（verified 等同 steam），实际是 %q", s)
	}
}

func validateHTTPURL(s string) error {
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("无效：%q", s)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("必须是 http/https：%q", s)
	}
	return nil
}

func pickInt(cli, file *int, def int) int {
	if cli != nil {
		return *cli
	}
	if file != nil {
		return *file
	}
	return def
}

func pickStr(cli *string, file, def string) string {
	if cli != nil {
		return strings.TrimSpace(*cli)
	}
	if s := strings.TrimSpace(file); s != "" {
		return s
	}
	return def
}

func firstNonEmpty(ss ...string) string {
	for _, s := range ss {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute；空串保持为空。
func absCleanFrom(base, p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	p = filepath.Clean(p)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// readFileConfig 读取并解析 YAML 配置文件（未知字段报错）。
// 返回值 exists 表示该文件是否存在（不存在不算错误）。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
		return FileConfig{}, true, err
	}
	return fc, true, nil
}

// envLookup 先查进程环境，再查 .env 文件内容。
type envLookup struct {
	dotenv map[string]string
}

func (e envLookup) get(key string) string {
	if v, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(v)
	}
	return strings.TrimSpace(e.dotenv[key])
}

func loadEnv(cwd string) (envLookup, error) {
	path := filepath.Join(cwd, ".env")
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return envLookup{}, nil
		}
		return envLookup{}, err
	}
	m, err := godotenv.Read(path)
	if err != nil {
		return envLookup{}, err
	}
	return envLookup{dotenv: m}, nil
}
