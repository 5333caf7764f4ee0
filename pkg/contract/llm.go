package contract

import (
	"context"
	"errors"
)

// GenerationRequest: 由一个 Chunk 与一个 Lens 组合而成的具体生成请求。
// Prompt 为最终提示文本；Params 为合并后的生成参数（运行配置 > lens 默认）。
type GenerationRequest struct {
	Prompt string
	Params GenParams
}

// Raw: 生成后端返回的原始文本载荷（万能容器）。
// 约束：原样返回，不做清洗/截断/归一化；随解析即刻消费，不持久化。
type Raw struct {
	Text string
}

// Generator: 生成后端能力接口（外部协作者边界）。
// 单次调用、同步返回；应尊重 ctx 取消/超时并及时释放资源；
// 须可被多个流水线并发调用，除限流器外不共享可变状态。
// 失败只以下列四类哨兵（或其包装）表达；核心不检视后端线协议细节。
type Generator interface {
	Generate(ctx context.Context, req GenerationRequest) (Raw, error)
}

// 生成失败的最小分类。
var (
	// ErrTimeout: 单次调用超时（瞬态，可重试）。
	ErrTimeout = errors.New("generation timeout")
	// ErrRateLimited: 后端限流（瞬态，可重试）。
	ErrRateLimited = errors.New("rate limited")
	// ErrBackendUnavailable: 后端不可用（5xx/连接失败；瞬态，可重试）。
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrAuth: 鉴权失败（致命，重试不可能成功，整个运行终止）。
	ErrAuth = errors.New("auth failed")
)
