// Package ollama 实现本地 Ollama 后端（/api/generate）的 Generator。
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"synthdlg/pkg/contract"
)

// Options: 最小必需配置。
type Options struct {
	BaseURL        string `json:"base_url"` // 默认 http://localhost:11434
	Model          string `json:"model"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

type Client struct {
	hc    *http.Client
	url   string
	model string
	do    func(*http.Request) (*http.Response, error)
}

// New 从原样 JSON 选项构造客户端；本地后端无鉴权。
func New(raw json.RawMessage) (contract.Generator, error) {
	var opts Options
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &opts); err != nil {
			return nil, fmt.Errorf("ollama options: %w: %v", contract.ErrConfig, err)
		}
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "http://localhost:11434"
	}
	if opts.Model == "" {
		return nil, fmt.Errorf("ollama: %w: model is required", contract.ErrConfig)
	}
	if opts.TimeoutSeconds <= 0 {
		opts.TimeoutSeconds = 120
	}
	hc := &http.Client{Timeout: time.Duration(opts.TimeoutSeconds) * time.Second}
	return &Client{
		hc:    hc,
		url:   strings.TrimRight(opts.BaseURL, "/") + "/api/generate",
		model: opts.Model,
		do:    hc.Do,
	}, nil
}

type olReq struct {
	Model   string    `json:"model"`
	Prompt  string    `json:"prompt"`
	Stream  bool      `json:"stream"`
	Options olOptions `json:"options,omitempty"`
}
type olOptions struct {
	Temperature *float64 `json:"temperature,omitempty"`
	NumPredict  int      `json:"num_predict,omitempty"`
}
type olResp struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Generate 实现 contract.Generator（非流式单次请求）。
func (c *Client) Generate(ctx context.Context, gr contract.GenerationRequest) (contract.Raw, error) {
	body, err := json.Marshal(&olReq{
		Model:  c.model,
		Prompt: gr.Prompt,
		Stream: false,
		Options: olOptions{
			Temperature: gr.Params.Temperature,
			NumPredict:  gr.Params.MaxOutputTokens,
		},
	})
	if err != nil {
		return contract.Raw{}, fmt.Errorf("ollama encode: %w: %v", contract.ErrInvalidInput, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return contract.Raw{}, fmt.Errorf("ollama request: %w: %v", contract.ErrInvalidInput, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return contract.Raw{}, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return contract.Raw{}, fmt.Errorf("ollama: %w: %v", contract.ErrTimeout, err)
		}
		var ne interface{ Timeout() bool }
		if errors.As(err, &ne) && ne.Timeout() {
			return contract.Raw{}, fmt.Errorf("ollama: %w: %v", contract.ErrTimeout, err)
		}
		// 本地进程未起、连接拒绝等均视为后端不可用
		return contract.Raw{}, fmt.Errorf("ollama: %w: %v", contract.ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		slurp, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		msg := strings.TrimSpace(string(slurp))
		if resp.StatusCode == http.StatusTooManyRequests {
			return contract.Raw{}, fmt.Errorf("ollama upstream %d: %w: %s", resp.StatusCode, contract.ErrRateLimited, msg)
		}
		if resp.StatusCode/100 == 5 || resp.StatusCode == http.StatusRequestTimeout {
			return contract.Raw{}, fmt.Errorf("ollama upstream %d: %w: %s", resp.StatusCode, contract.ErrBackendUnavailable, msg)
		}
		return contract.Raw{}, fmt.Errorf("ollama upstream %d: %w: %s", resp.StatusCode, contract.ErrConfig, msg)
	}
	var or olResp
	if err := json.NewDecoder(resp.Body).Decode(&or); err != nil {
		return contract.Raw{}, fmt.Errorf("ollama decode: %w", contract.ErrResponseInvalid)
	}
	if or.Response == "" {
		return contract.Raw{}, fmt.Errorf("ollama: %w: empty response", contract.ErrResponseInvalid)
	}
	return contract.Raw{Text: or.Response}, nil
}

var _ contract.Generator = (*Client)(nil)
