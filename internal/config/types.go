package config

import (
	"encoding/json"

	"synthdlg/internal/dedup"
	"synthdlg/pkg/contract"
)

// Config: 运行期只读配置（一次解析，运行期不变）。
// JSON 使用 snake_case；未知字段在解析期失败。
type Config struct {
	Inputs      []string `json:"inputs"`
	Concurrency int      `json:"concurrency"`
	// MaxRetries: 生成阶段瞬态错误的最大重试次数（>=0）。0 表示不重试。
	MaxRetries int `json:"max_retries"`
	// DatasetName: 产物基名（<name>.jsonl / <name>.failures.jsonl）。
	DatasetName string  `json:"dataset_name"`
	Logging     Logging `json:"logging"`

	// 组件名选择（空则使用默认名）。
	Components Components `json:"components"`

	// 生成后端选择与定义。
	Generator string              `json:"generator"`
	Provider  map[string]Provider `json:"provider"`

	// 各组件 Options 子树，原样 JSON 传入工厂。
	Options Options `json:"options"`

	// Lens 选择与外部定义文件。
	Lenses Lenses `json:"lenses"`

	// Params: 运行级生成参数覆盖（优先于 lens 默认）。
	Params contract.GenParams `json:"params"`

	// Token: 限流预算用的 token 估算配置。
	Token Token `json:"token"`

	// Validate: 记录校验阈值。
	Validate dedup.ValidateOptions `json:"validate"`
}

// Logging: 日志等级与格式（json | console）。
type Logging struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// Components: 组件名选择（注册表中的实现名）。
type Components struct {
	Source   string `json:"source"`
	Chunker  string `json:"chunker"`
	Composer string `json:"composer"`
	Parser   string `json:"parser"`
	Writer   string `json:"writer"`
	Dedup    string `json:"dedup"`
}

// Options: 各组件的原样 JSON Options。
type Options struct {
	Source   json.RawMessage `json:"source"`
	Chunker  json.RawMessage `json:"chunker"`
	Composer json.RawMessage `json:"composer"`
	Parser   json.RawMessage `json:"parser"`
	Writer   json.RawMessage `json:"writer"`
	Dedup    json.RawMessage `json:"dedup"`
}

// Provider: 命名生成后端定义（client 实现 + options + 限额）。
type Provider struct {
	Client  string          `json:"client"`
	Options json.RawMessage `json:"options"`
	Limits  Limits          `json:"limits"`
}

// Limits: 限流配置（仅承载；执行位于 rate.Gate）。
type Limits struct {
	RPM             int `json:"rpm"`
	TPM             int `json:"tpm"`
	MaxTokensPerReq int `json:"max_tokens_per_req"`
}

// Lenses: lens 启用集与外部定义文件。
type Lenses struct {
	// Select: 启用的 lens 名；空表示目录内全部（内置 + File）。
	Select []string `json:"select"`
	// File: 追加 lens 定义的 JSON 文件路径（可选）。
	File string `json:"file"`
}

// Token: token 估算配置。
type Token struct {
	// Encoding: tiktoken 编码名（如 "cl100k_base"）；空则按字节近似。
	Encoding      string `json:"encoding"`
	BytesPerToken int    `json:"bytes_per_token"`
}
