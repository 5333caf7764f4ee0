// Package mock 实现无网络的确定性 Generator（调试与集成测试用）。
package mock

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"synthdlg/pkg/contract"
)

// Options: 最小调试配置（可选）。
type Options struct {
	Prefix string `json:"prefix"` // 输出内容前缀，默认 "MOCK"
	// ResponseMode: 响应形状。
	//  - "auto"（默认/空）：按提示文本嗅探——含 "[Student]" 产出标记对话，
	//    含 "bullet" 产出条目列表，否则产出单段摘要；
	//  - "dialogue" | "bullets" | "summary"：固定形状；
	//  - "garbage": 产出无标记无条目的散文（用于解析失败路径联调）。
	ResponseMode string `json:"response_mode,omitempty"`
}

// Client 无状态；响应仅由提示文本决定（同提示恒得同响应）。
type Client struct {
	prefix string
	mode   string
}

func New(raw json.RawMessage) (contract.Generator, error) {
	var o Options
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &o); err != nil {
			return nil, fmt.Errorf("mock options: %w: %v", contract.ErrConfig, err)
		}
	}
	if o.Prefix == "" {
		o.Prefix = "MOCK"
	}
	mode := strings.TrimSpace(o.ResponseMode)
	if mode == "" {
		mode = "auto"
	}
	switch mode {
	case "auto", "dialogue", "bullets", "summary", "garbage":
	default:
		return nil, fmt.Errorf("mock: %w: unknown response_mode %q", contract.ErrConfig, mode)
	}
	return &Client{prefix: o.Prefix, mode: mode}, nil
}

// Generate 实现 contract.Generator。
// 响应中嵌入提示摘要（sha256 前缀），使不同块/lens 产出互不重复的记录。
func (c *Client) Generate(ctx context.Context, req contract.GenerationRequest) (contract.Raw, error) {
	select {
	case <-ctx.Done():
		return contract.Raw{}, ctx.Err()
	default:
	}
	mode := c.mode
	if mode == "auto" {
		switch {
		case strings.Contains(req.Prompt, "[Student]"):
			mode = "dialogue"
		case strings.Contains(strings.ToLower(req.Prompt), "bullet"):
			mode = "bullets"
		default:
			mode = "summary"
		}
	}
	d := digest(req.Prompt)
	switch mode {
	case "dialogue":
		return contract.Raw{Text: fmt.Sprintf(
			"[Student] %s: what does passage %s say?\n[Teacher] %s: it establishes the fact recorded under %s.\n[Student] Anything else?\n[Teacher] Yes, a second supporting detail.",
			c.prefix, d, c.prefix, d)}, nil
	case "bullets":
		return contract.Raw{Text: fmt.Sprintf("- %s fact one for %s\n- %s fact two for %s", c.prefix, d, c.prefix, d)}, nil
	case "garbage":
		return contract.Raw{Text: "Plain prose with no markers and no list items whatsoever."}, nil
	default: // summary
		return contract.Raw{Text: fmt.Sprintf("%s summary of material %s in a single paragraph.", c.prefix, d)}, nil
	}
}

func digest(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:4])
}

var _ contract.Generator = (*Client)(nil)
