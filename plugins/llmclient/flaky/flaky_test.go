package flaky

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"synthdlg/pkg/contract"
)

// TestFlakyDefaultScript 默认两次超时后成功
func TestFlakyDefaultScript(t *testing.T) {
	g, err := New(nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	req := contract.GenerationRequest{Prompt: "p"}
	for i := 0; i < 2; i++ {
		if _, err := g.Generate(context.Background(), req); !errors.Is(err, contract.ErrTimeout) {
			t.Fatalf("call %d: expect ErrTimeout, got %v", i+1, err)
		}
	}
	raw, err := g.Generate(context.Background(), req)
	if err != nil || raw.Text == "" {
		t.Fatalf("call 3: expect success, got %q %v", raw.Text, err)
	}
}

// TestFlakyScript 脚本逐项消费，耗尽后恒成功
func TestFlakyScript(t *testing.T) {
	g, err := New(json.RawMessage(`{"script":["rate_limited","unavailable","auth","ok"]}`))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	req := contract.GenerationRequest{Prompt: "p"}
	wants := []error{contract.ErrRateLimited, contract.ErrBackendUnavailable, contract.ErrAuth}
	for i, want := range wants {
		if _, err := g.Generate(context.Background(), req); !errors.Is(err, want) {
			t.Fatalf("call %d: expect %v, got %v", i+1, want, err)
		}
	}
	for i := 0; i < 3; i++ {
		if _, err := g.Generate(context.Background(), req); err != nil {
			t.Fatalf("post-script call: %v", err)
		}
	}
}

// TestFlakyBadScript 非法脚本项为配置错误
func TestFlakyBadScript(t *testing.T) {
	if _, err := New(json.RawMessage(`{"script":["boom"]}`)); !errors.Is(err, contract.ErrConfig) {
		t.Fatalf("expect ErrConfig, got %v", err)
	}
}
