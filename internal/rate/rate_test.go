package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"synthdlg/pkg/contract"
)

// TestGateTryLimit 超过 RPM/TPM 即拒绝
func TestGateTryLimit(t *testing.T) {
	now := time.Unix(0, 0)
	clk := func() time.Time { return now }
	g := NewGate(Limits{RPM: 1, TPM: 10, MaxTokensPerReq: 5}, clk)
	if !g.Try(Ask{Requests: 1, Tokens: 3}) {
		t.Fatalf("首次应通过")
	}
	if g.Try(Ask{Requests: 1, Tokens: 3}) {
		t.Fatalf("应因 RPM 拒绝")
	}
}

// TestGateRefill 时间流逝后额度回补
func TestGateRefill(t *testing.T) {
	now := time.Unix(0, 0)
	clk := func() time.Time { return now }
	g := NewGate(Limits{RPM: 60}, clk)
	if !g.Try(Ask{Requests: 60}) {
		t.Fatalf("满桶应通过")
	}
	if g.Try(Ask{Requests: 1}) {
		t.Fatalf("空桶应拒绝")
	}
	now = now.Add(2 * time.Second) // 60/min = 1/s
	if !g.Try(Ask{Requests: 2}) {
		t.Fatalf("回补后应通过")
	}
}

// TestGateWaitCancel 等待中取消
func TestGateWaitCancel(t *testing.T) {
	now := time.Unix(0, 0)
	clk := func() time.Time { return now }
	g := NewGate(Limits{RPM: 1}, clk)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	if err := g.Wait(ctx, Ask{Requests: 2}); !errors.Is(err, context.Canceled) {
		t.Fatalf("应返回取消错误, got %v", err)
	}
}

// TestGateMaxTokensPerReq 单请求上限快速失败
func TestGateMaxTokensPerReq(t *testing.T) {
	g := NewGate(Limits{TPM: 100, MaxTokensPerReq: 10}, nil)
	if err := g.Wait(context.Background(), Ask{Requests: 1, Tokens: 11}); !errors.Is(err, contract.ErrInvalidInput) {
		t.Fatalf("expect ErrInvalidInput, got %v", err)
	}
	if g.Try(Ask{Requests: 1, Tokens: 11}) {
		t.Fatalf("Try 也应拒绝")
	}
}

// TestGateDisabled 零配置不限额
func TestGateDisabled(t *testing.T) {
	g := NewGate(Limits{}, nil)
	for i := 0; i < 1000; i++ {
		if !g.Try(Ask{Requests: 1, Tokens: 1 << 20}) {
			t.Fatalf("disabled gate should always admit")
		}
	}
}

// TestGateSnapshot 诊断快照
func TestGateSnapshot(t *testing.T) {
	now := time.Unix(0, 0)
	clk := func() time.Time { return now }
	g := NewGate(Limits{RPM: 10, TPM: 100}, clk)
	g.Try(Ask{Requests: 3, Tokens: 40})
	r, tok := g.Snapshot()
	if r != 7 || tok != 60 {
		t.Fatalf("snapshot wrong: %d %d", r, tok)
	}
}
