package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Defaults 返回带有安全默认值的 Config 雏形。
// 注意：Generator 不设默认（必须由 JSON/ENV/CLI 提供）。
func Defaults() Config {
	return Config{
		Concurrency: 1,
		MaxRetries:  0,
		DatasetName: "dataset",
		Logging:     Logging{Level: "info", Format: "json"},
		Components: Components{
			Source:   "fs",
			Chunker:  "window",
			Composer: "ground",
			Parser:   "markers",
			Writer:   "fs",
			Dedup:    "memory",
		},
	}
}

// LoadJSON 从文件路径或原始 JSON 解析 Config（严格拒绝未知字段）。
func LoadJSON(path string, raw []byte) (Config, error) {
	var cfg Config
	var r io.Reader
	switch {
	case len(raw) > 0:
		r = bytes.NewReader(raw)
	case path != "":
		f, err := os.Open(path)
		if err != nil {
			return cfg, err
		}
		defer f.Close()
		r = f
	default:
		return cfg, errors.New("no config source provided")
	}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Merge 按优先级合并（后者覆盖前者）。
// 仅标量/字符串/原样 JSON 为“替换”；不做深度合并。
func Merge(base, over Config) Config {
	out := base
	if len(over.Inputs) > 0 {
		out.Inputs = cloneStrings(over.Inputs)
	}
	if over.Concurrency != 0 {
		out.Concurrency = over.Concurrency
	}
	// 特殊：MaxRetries 的 0 具有语义（禁用重试），需要显式可覆盖。
	// 约定：over.MaxRetries >= 0 视为“存在”，-1 视为未覆盖。
	if over.MaxRetries >= 0 {
		out.MaxRetries = over.MaxRetries
	}
	if strings.TrimSpace(over.DatasetName) != "" {
		out.DatasetName = strings.TrimSpace(over.DatasetName)
	}
	if strings.TrimSpace(over.Logging.Level) != "" {
		out.Logging.Level = strings.TrimSpace(over.Logging.Level)
	}
	if strings.TrimSpace(over.Logging.Format) != "" {
		out.Logging.Format = strings.TrimSpace(over.Logging.Format)
	}

	// 组件名（空不覆盖）
	if over.Components.Source != "" {
		out.Components.Source = over.Components.Source
	}
	if over.Components.Chunker != "" {
		out.Components.Chunker = over.Components.Chunker
	}
	if over.Components.Composer != "" {
		out.Components.Composer = over.Components.Composer
	}
	if over.Components.Parser != "" {
		out.Components.Parser = over.Components.Parser
	}
	if over.Components.Writer != "" {
		out.Components.Writer = over.Components.Writer
	}
	if over.Components.Dedup != "" {
		out.Components.Dedup = over.Components.Dedup
	}

	// Provider（完整替换对应键）
	if len(over.Provider) > 0 {
		if out.Provider == nil {
			out.Provider = make(map[string]Provider, len(over.Provider))
		}
		for k, v := range over.Provider {
			out.Provider[k] = v
		}
	}

	// Options（完整替换对应键）
	if len(over.Options.Source) > 0 {
		out.Options.Source = cloneRaw(over.Options.Source)
	}
	if len(over.Options.Chunker) > 0 {
		out.Options.Chunker = cloneRaw(over.Options.Chunker)
	}
	if len(over.Options.Composer) > 0 {
		out.Options.Composer = cloneRaw(over.Options.Composer)
	}
	if len(over.Options.Parser) > 0 {
		out.Options.Parser = cloneRaw(over.Options.Parser)
	}
	if len(over.Options.Writer) > 0 {
		out.Options.Writer = cloneRaw(over.Options.Writer)
	}
	if len(over.Options.Dedup) > 0 {
		out.Options.Dedup = cloneRaw(over.Options.Dedup)
	}

	// Lens 选择
	if len(over.Lenses.Select) > 0 {
		out.Lenses.Select = cloneStrings(over.Lenses.Select)
	}
	if strings.TrimSpace(over.Lenses.File) != "" {
		out.Lenses.File = strings.TrimSpace(over.Lenses.File)
	}

	// 生成参数与估算配置
	out.Params = base.Params.Merge(over.Params)
	if strings.TrimSpace(over.Token.Encoding) != "" {
		out.Token.Encoding = strings.TrimSpace(over.Token.Encoding)
	}
	if over.Token.BytesPerToken > 0 {
		out.Token.BytesPerToken = over.Token.BytesPerToken
	}
	if over.Validate.MinTotalRunes > 0 {
		out.Validate.MinTotalRunes = over.Validate.MinTotalRunes
	}

	// 生成后端名称
	if strings.TrimSpace(over.Generator) != "" {
		out.Generator = strings.TrimSpace(over.Generator)
	}
	return out
}

// EnvOverlay 从环境变量构建一个 Config 覆盖（仅解析有限键集合）。
// 规则：前缀 SYNTHDLG_；集合之外的同前缀键忽略。
// 支持：INPUTS, CONCURRENCY, MAX_RETRIES, DATASET_NAME, GENERATOR,
// LOGGING_{LEVEL,FORMAT}, COMPONENTS_*, LENSES_{SELECT,FILE},
// 以及 PROVIDER__<name>__CLIENT / PROVIDER__<name>__LIMITS_{RPM,TPM,MAX_TOKENS_PER_REQ}
// / PROVIDER__<name>__OPTIONS_JSON。
func EnvOverlay(environ []string) (Config, error) {
	var over Config
	// -1 表示未设置，以便 Merge 能区分“未覆盖”和“显式设置为 0”。
	over.MaxRetries = -1
	prov := map[string]Provider{}
	for _, kv := range environ {
		if !strings.HasPrefix(kv, "SYNTHDLG_") {
			continue
		}
		eq := strings.IndexByte(kv, '=')
		if eq <= len("SYNTHDLG_") {
			continue
		}
		key := kv[:eq]
		val := kv[eq+1:]
		nk := strings.TrimPrefix(key, "SYNTHDLG_")
		switch nk {
		case "INPUTS":
			if val != "" {
				over.Inputs = splitComma(val)
			}
		case "CONCURRENCY":
			if v, err := atoi(val); err == nil {
				over.Concurrency = v
			}
		case "MAX_RETRIES":
			if v, err := atoi(val); err == nil {
				over.MaxRetries = v
			}
		case "DATASET_NAME":
			over.DatasetName = strings.TrimSpace(val)
		case "GENERATOR":
			over.Generator = strings.TrimSpace(val)
		case "LOGGING_LEVEL":
			over.Logging.Level = strings.TrimSpace(val)
		case "LOGGING_FORMAT":
			over.Logging.Format = strings.TrimSpace(val)
		case "COMPONENTS_SOURCE":
			over.Components.Source = strings.TrimSpace(val)
		case "COMPONENTS_CHUNKER":
			over.Components.Chunker = strings.TrimSpace(val)
		case "COMPONENTS_COMPOSER":
			over.Components.Composer = strings.TrimSpace(val)
		case "COMPONENTS_PARSER":
			over.Components.Parser = strings.TrimSpace(val)
		case "COMPONENTS_WRITER":
			over.Components.Writer = strings.TrimSpace(val)
		case "COMPONENTS_DEDUP":
			over.Components.Dedup = strings.TrimSpace(val)
		case "LENSES_SELECT":
			if val != "" {
				over.Lenses.Select = splitComma(val)
			}
		case "LENSES_FILE":
			over.Lenses.File = strings.TrimSpace(val)
		default:
			// provider.* 路径：PROVIDER__name__FOO
			if strings.HasPrefix(nk, "PROVIDER__") {
				parts := strings.Split(nk, "__")
				if len(parts) >= 3 {
					name := strings.TrimSpace(parts[1])
					field := strings.Join(parts[2:], "__")
					p := prov[name]
					changed := false
					switch field {
					case "CLIENT":
						if tv := strings.TrimSpace(val); tv != "" {
							p.Client = tv
							changed = true
						}
					case "LIMITS_RPM":
						if v, err := atoi(val); err == nil {
							p.Limits.RPM = v
							changed = true
						}
					case "LIMITS_TPM":
						if v, err := atoi(val); err == nil {
							p.Limits.TPM = v
							changed = true
						}
					case "LIMITS_MAX_TOKENS_PER_REQ":
						if v, err := atoi(val); err == nil {
							p.Limits.MaxTokensPerReq = v
							changed = true
						}
					case "OPTIONS_JSON":
						// 原样 JSON；空值视为未设置，避免清空现有配置
						if strings.TrimSpace(val) != "" {
							p.Options = json.RawMessage(val)
							changed = true
						}
					}
					// 仅在发生有效变更时记录该 provider；避免空值覆盖 config.json
					if changed {
						prov[name] = p
					}
				}
			}
		}
	}
	if len(prov) > 0 {
		over.Provider = prov
	}
	return over, nil
}

func cloneStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneRaw(in json.RawMessage) json.RawMessage {
	if len(in) == 0 {
		return nil
	}
	out := make([]byte, len(in))
	copy(out, in)
	return out
}

func splitComma(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func atoi(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(strings.TrimSpace(s), "%d", &n)
	if err != nil {
		return 0, err
	}
	return n, nil
}
