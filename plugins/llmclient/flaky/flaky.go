// Package flaky 实现按脚本注错的 Generator（重试与失败路径联调用）。
package flaky

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"synthdlg/pkg/contract"

	"synthdlg/plugins/llmclient/mock"
)

// Options 定义注错脚本。
type Options struct {
	// Script: 依调用次序消费的结果序列；耗尽后恒为 "ok"。
	// 合法项："ok" | "timeout" | "rate_limited" | "unavailable" | "auth" | "garbage"。
	// 为空时默认 ["timeout","timeout","ok"]（两次瞬态后成功）。
	Script []string `json:"script,omitempty"`
	// Mock: 透传给内置 mock 的选项（"ok"/"garbage" 的实际产出方）。
	Mock json.RawMessage `json:"mock,omitempty"`
}

// Client 带调用计数状态；除计数外委托内置 mock 产出成功响应。
type Client struct {
	script []string
	ok     contract.Generator
	bad    contract.Generator
	count  atomic.Int64
}

func New(raw json.RawMessage) (contract.Generator, error) {
	var o Options
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &o); err != nil {
			return nil, fmt.Errorf("flaky options: %w: %v", contract.ErrConfig, err)
		}
	}
	if len(o.Script) == 0 {
		o.Script = []string{"timeout", "timeout", "ok"}
	}
	for i, s := range o.Script {
		switch s {
		case "ok", "timeout", "rate_limited", "unavailable", "auth", "garbage":
		default:
			return nil, fmt.Errorf("flaky: %w: unknown script item %q at %d", contract.ErrConfig, s, i)
		}
	}
	okGen, err := mock.New(o.Mock)
	if err != nil {
		return nil, err
	}
	badGen, err := mock.New(json.RawMessage(`{"response_mode":"garbage"}`))
	if err != nil {
		return nil, err
	}
	return &Client{script: o.Script, ok: okGen, bad: badGen}, nil
}

// Generate 实现 contract.Generator。
func (c *Client) Generate(ctx context.Context, req contract.GenerationRequest) (contract.Raw, error) {
	n := c.count.Add(1) - 1
	step := "ok"
	if int(n) < len(c.script) {
		step = c.script[n]
	}
	switch step {
	case "timeout":
		return contract.Raw{}, fmt.Errorf("flaky call %d: %w", n+1, contract.ErrTimeout)
	case "rate_limited":
		return contract.Raw{}, fmt.Errorf("flaky call %d: %w", n+1, contract.ErrRateLimited)
	case "unavailable":
		return contract.Raw{}, fmt.Errorf("flaky call %d: %w", n+1, contract.ErrBackendUnavailable)
	case "auth":
		return contract.Raw{}, fmt.Errorf("flaky call %d: %w", n+1, contract.ErrAuth)
	case "garbage":
		return c.bad.Generate(ctx, req)
	default:
		return c.ok.Generate(ctx, req)
	}
}

var _ contract.Generator = (*Client)(nil)
