// Package openai 实现 OpenAI 兼容 Chat Completions 后端的 Generator。
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"synthdlg/pkg/contract"
)

// Options: 最小必需配置。
type Options struct {
	BaseURL        string `json:"base_url"`        // 例如 https://api.openai.com/v1
	Model          string `json:"model"`           // 为空则使用默认
	APIKeyEnv      string `json:"api_key_env"`     // 优先从环境变量读取
	APIKey         string `json:"api_key"`         // 明文传入（不推荐，按需用于测试）
	TimeoutSeconds int    `json:"timeout_seconds"` // 可选 client 级超时（秒）
	// 第三方兼容（最小）：
	Endpoint           string            `json:"endpoint_path"`        // 覆盖默认 /chat/completions；可为完整 URL
	DisableDefaultAuth bool              `json:"disable_default_auth"` // 关闭默认 Authorization: Bearer 注入
	ExtraHeaders       map[string]string `json:"extra_headers"`        // 追加/覆盖请求头（Azure/OpenRouter 等兼容服务）
}

func (o *Options) defaults() {
	if o.BaseURL == "" {
		o.BaseURL = "https://api.openai.com/v1"
	}
	if o.Model == "" {
		o.Model = "gpt-4.1-mini"
	}
	if o.APIKeyEnv == "" {
		o.APIKeyEnv = "OPENAI_API_KEY"
	}
	if o.Endpoint == "" {
		o.Endpoint = "/chat/completions"
	}
}

type Client struct {
	hc          *http.Client
	url         string
	apiKey      string
	model       string
	extraH      map[string]string
	disableAuth bool
	do          func(*http.Request) (*http.Response, error)
}

// New 从原样 JSON 选项构造客户端。
func New(raw json.RawMessage) (contract.Generator, error) {
	var opts Options
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &opts); err != nil {
			return nil, fmt.Errorf("openai options: %w: %v", contract.ErrConfig, err)
		}
	}
	opts.defaults()
	key := opts.APIKey
	if key == "" && opts.APIKeyEnv != "" {
		key = os.Getenv(opts.APIKeyEnv)
	}
	if key == "" && !opts.DisableDefaultAuth {
		return nil, fmt.Errorf("openai: %w: missing api key", contract.ErrConfig)
	}
	if opts.TimeoutSeconds <= 0 {
		opts.TimeoutSeconds = 60
	}
	hc := &http.Client{Timeout: time.Duration(opts.TimeoutSeconds) * time.Second}
	// 允许 endpoint_path 为完整 URL；否则健壮拼接，确保恰好一个斜杠。
	fullURL := opts.Endpoint
	if !(strings.HasPrefix(fullURL, "http://") || strings.HasPrefix(fullURL, "https://")) {
		base := strings.TrimRight(opts.BaseURL, "/")
		path := strings.TrimLeft(opts.Endpoint, "/")
		fullURL = base + "/" + path
	}
	return &Client{
		hc:          hc,
		url:         fullURL,
		apiKey:      key,
		model:       opts.Model,
		extraH:      opts.ExtraHeaders,
		disableAuth: opts.DisableDefaultAuth,
		do:          hc.Do,
	}, nil
}

type oaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
type oaReq struct {
	Model       string      `json:"model"`
	Messages    []oaMessage `json:"messages"`
	Temperature *float64    `json:"temperature,omitempty"`
	MaxTokens   int         `json:"max_tokens,omitempty"`
}
type oaResp struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// upstreamError 承载 HTTP 上游状态，并包装对应哨兵便于 errors.Is 分类。
type upstreamError struct {
	status   int
	msg      string
	sentinel error
}

func (e upstreamError) Error() string {
	return fmt.Sprintf("openai upstream %d: %s", e.status, e.msg)
}
func (e upstreamError) Unwrap() error           { return e.sentinel }
func (e upstreamError) UpstreamStatus() int     { return e.status }
func (e upstreamError) UpstreamMessage() string { return e.msg }

// classifyStatus: HTTP 状态 → 哨兵。
//   - 401/403 → ErrAuth（致命）
//   - 429     → ErrRateLimited（瞬态）
//   - 408/5xx → ErrBackendUnavailable（瞬态）
//   - 其余 4xx → ErrConfig（请求构造问题，重试无意义）
func classifyStatus(status int) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return contract.ErrAuth
	case status == http.StatusTooManyRequests:
		return contract.ErrRateLimited
	case status == http.StatusRequestTimeout || status/100 == 5:
		return contract.ErrBackendUnavailable
	default:
		return contract.ErrConfig
	}
}

// Generate 实现 contract.Generator：单次调用，同步返回。
func (c *Client) Generate(ctx context.Context, gr contract.GenerationRequest) (contract.Raw, error) {
	body, err := json.Marshal(&oaReq{
		Model:       c.model,
		Messages:    []oaMessage{{Role: "user", Content: gr.Prompt}},
		Temperature: gr.Params.Temperature,
		MaxTokens:   gr.Params.MaxOutputTokens,
	})
	if err != nil {
		return contract.Raw{}, fmt.Errorf("openai encode: %w: %v", contract.ErrInvalidInput, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return contract.Raw{}, fmt.Errorf("openai request: %w: %v", contract.ErrInvalidInput, err)
	}
	if !c.disableAuth {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range c.extraH {
		if k == "" {
			continue
		}
		req.Header.Set(k, v)
	}

	resp, err := c.do(req)
	if err != nil {
		return contract.Raw{}, transportErr("openai", ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		// 读取少量响应体辅助定位
		slurp, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return contract.Raw{}, upstreamError{
			status:   resp.StatusCode,
			msg:      strings.TrimSpace(string(slurp)),
			sentinel: classifyStatus(resp.StatusCode),
		}
	}
	var or oaResp
	if err := json.NewDecoder(resp.Body).Decode(&or); err != nil {
		return contract.Raw{}, fmt.Errorf("openai decode: %w", contract.ErrResponseInvalid)
	}
	if len(or.Choices) == 0 || or.Choices[0].Message.Content == "" {
		return contract.Raw{}, fmt.Errorf("openai: %w: empty choices", contract.ErrResponseInvalid)
	}
	return contract.Raw{Text: or.Choices[0].Message.Content}, nil
}

// transportErr 将传输层失败归类：ctx 超时 → ErrTimeout；取消原样上抛；其余 → ErrBackendUnavailable。
func transportErr(backend string, ctx context.Context, err error) error {
	if errors.Is(err, context.Canceled) {
		return ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %v", backend, contract.ErrTimeout, err)
	}
	var ne interface{ Timeout() bool }
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%s: %w: %v", backend, contract.ErrTimeout, err)
	}
	return fmt.Errorf("%s: %w: %v", backend, contract.ErrBackendUnavailable, err)
}

var _ contract.Generator = (*Client)(nil)
var _ contract.UpstreamError = upstreamError{}
