// Package rate 实现生成后端的客户端限流（令牌桶，RPM/TPM 两维度）。
// 单次运行只有一个生成后端，闸门不做分组；多 worker 共享单实例。
package rate

import (
	"context"
	"sync"
	"time"

	"synthdlg/pkg/contract"
)

// Limits: 限额配置。0 表示该维度不启用。
type Limits struct {
	RPM             int `json:"rpm"`                // requests per minute
	TPM             int `json:"tpm"`                // tokens per minute
	MaxTokensPerReq int `json:"max_tokens_per_req"` // 单请求 token 上限（输入+预期输出），0 不限制
}

// Ask: 一次放行申请。
type Ask struct {
	Requests int // 默认为 1；必须 >=1
	Tokens   int // 预计 token（>=0）
}

// Gate: 限流闸门（并发安全）。
type Gate struct {
	clk func() time.Time
	lim Limits

	mu  sync.Mutex
	req bucket // RPM 维度
	tok bucket // TPM 维度
}

// NewGate 从静态配置构造闸门；clk 为空则使用 time.Now。
func NewGate(lim Limits, clk func() time.Time) *Gate {
	if clk == nil {
		clk = time.Now
	}
	now := clk()
	g := &Gate{clk: clk, lim: lim}
	if lim.RPM > 0 {
		g.req = newBucket(lim.RPM, now)
	}
	if lim.TPM > 0 {
		g.tok = newBucket(lim.TPM, now)
	}
	return g
}

type bucket struct {
	cap   int
	level float64
	rate  float64
	last  time.Time
}

func newBucket(capacity int, now time.Time) bucket {
	return bucket{cap: capacity, level: float64(capacity), rate: float64(capacity) / 60.0, last: now}
}

func (b *bucket) enabled() bool { return b.cap > 0 }

func (b *bucket) refill(now time.Time) {
	if !b.enabled() || now.Before(b.last) {
		// 时钟回拨视为无时间流逝
		return
	}
	dt := now.Sub(b.last).Seconds()
	if dt <= 0 {
		return
	}
	b.level += dt * b.rate
	if b.level > float64(b.cap) {
		b.level = float64(b.cap)
	}
	b.last = now
}

func (b *bucket) canTake(n int) bool {
	if !b.enabled() || n <= 0 {
		return true
	}
	return b.level >= float64(n)
}

func (b *bucket) take(n int) {
	if !b.enabled() || n <= 0 {
		return
	}
	b.level -= float64(n)
	if b.level < 0 {
		b.level = 0
	}
}

// waitSecFor 返回达到可消费 n 还需等待的秒数。
func (b *bucket) waitSecFor(n int) float64 {
	if !b.enabled() || n <= 0 {
		return 0
	}
	deficit := float64(n) - b.level
	if deficit <= 0 {
		return 0
	}
	return deficit / b.rate
}

// Try: 非阻塞尝试；额度不足返回 false。
func (g *Gate) Try(a Ask) bool {
	if a.Requests <= 0 || a.Tokens < 0 {
		return false
	}
	if g.lim.MaxTokensPerReq > 0 && a.Tokens > g.lim.MaxTokensPerReq {
		return false
	}
	now := g.clk()
	g.mu.Lock()
	defer g.mu.Unlock()
	g.req.refill(now)
	g.tok.refill(now)
	if g.req.canTake(a.Requests) && g.tok.canTake(a.Tokens) {
		g.req.take(a.Requests)
		g.tok.take(a.Tokens)
		return true
	}
	return false
}

// Wait: 阻塞直到额度可用或 ctx 取消；违反单请求上限快速失败（致命配置问题）。
func (g *Gate) Wait(ctx context.Context, a Ask) error {
	if a.Requests <= 0 || a.Tokens < 0 {
		return contract.ErrInvalidInput
	}
	if g.lim.MaxTokensPerReq > 0 && a.Tokens > g.lim.MaxTokensPerReq {
		return contract.ErrInvalidInput
	}
	const minSleep = 10 * time.Millisecond
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		now := g.clk()
		g.mu.Lock()
		g.req.refill(now)
		g.tok.refill(now)
		if g.req.canTake(a.Requests) && g.tok.canTake(a.Tokens) {
			g.req.take(a.Requests)
			g.tok.take(a.Tokens)
			g.mu.Unlock()
			return nil
		}
		wr := g.req.waitSecFor(a.Requests)
		wt := g.tok.waitSecFor(a.Tokens)
		g.mu.Unlock()

		waitSec := wr
		if wt > waitSec {
			waitSec = wt
		}
		d := time.Duration(waitSec*float64(time.Second) + float64(minSleep))
		if d < minSleep {
			d = minSleep
		}
		if err := sleepCtx(ctx, d); err != nil {
			return err
		}
	}
}

// sleepCtx 分片睡眠（步长 200ms），及时响应取消。
func sleepCtx(ctx context.Context, d time.Duration) error {
	const step = 200 * time.Millisecond
	for d > 0 {
		s := d
		if s > step {
			s = step
		}
		t := time.NewTimer(s)
		select {
		case <-ctx.Done():
			if !t.Stop() {
				<-t.C
			}
			return ctx.Err()
		case <-t.C:
		}
		d -= s
	}
	return nil
}

// Snapshot: 返回当前可用请求/令牌的向下取整估值（仅诊断）。
func (g *Gate) Snapshot() (rpmAvail, tpmAvail int) {
	now := g.clk()
	g.mu.Lock()
	defer g.mu.Unlock()
	g.req.refill(now)
	g.tok.refill(now)
	clamp := func(b bucket) int {
		if !b.enabled() || b.level < 0 {
			return 0
		}
		if b.level > float64(b.cap) {
			return b.cap
		}
		return int(b.level)
	}
	return clamp(g.req), clamp(g.tok)
}
