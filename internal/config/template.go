package config

import "encoding/json"

// DefaultTemplateConfig 返回一个“可运行”的默认配置模板：
// - 使用 mock 生成后端与合理限额（本地/离线调试友好）；
// - 默认输入为 ./docs，Writer 输出到 ./out 目录；
// - 组件名采用仓库内置实现；
// - 选项给出安全中性默认值。
func DefaultTemplateConfig() Config {
	d := Defaults()
	return Config{
		Inputs:      []string{"./docs"},
		Concurrency: 4,
		MaxRetries:  2,
		DatasetName: d.DatasetName,
		Logging:     Logging{Level: "info", Format: "json"},
		Components:  d.Components,
		Generator:   "mock",
		Provider: map[string]Provider{
			"mock": {
				Client:  "mock",
				Options: json.RawMessage(`{"prefix":"MOCK","response_mode":""}`),
				Limits:  Limits{RPM: 60, TPM: 10000, MaxTokensPerReq: 4096},
			},
			"openai": {
				Client: "openai",
				// 覆盖全部 OpenAI 选项键，值可为空/默认
				Options: json.RawMessage(`{
  "base_url": "",
  "model": "",
  "api_key_env": "",
  "api_key": "",
  "timeout_seconds": 60,
  "endpoint_path": "",
  "disable_default_auth": false,
  "extra_headers": {}
}`),
				Limits: Limits{RPM: 60, TPM: 90000, MaxTokensPerReq: 8192},
			},
			"ollama": {
				Client:  "ollama",
				Options: json.RawMessage(`{"base_url":"http://localhost:11434","model":"llama3","timeout_seconds":120}`),
			},
		},
		Options: Options{
			Source:  json.RawMessage(`{"extensions":[".txt",".md"]}`),
			Chunker: json.RawMessage(`{"chunk_size":1200,"overlap":120}`),
			Writer:  json.RawMessage(`{"output_dir":"./out"}`),
		},
		Lenses: Lenses{Select: []string{"dialogue", "summary"}},
		Token:  Token{BytesPerToken: 4},
	}
}

// TemplateJSON 渲染模板为带缩进的 JSON（-init 输出）。
func TemplateJSON() ([]byte, error) {
	return json.MarshalIndent(DefaultTemplateConfig(), "", "  ")
}
