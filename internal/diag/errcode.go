// Package diag 提供错误分类与结构化日志。
package diag

import (
	"context"
	"errors"
	"os"

	"synthdlg/pkg/contract"
)

// Code 是最小错误分类代码，仅用于日志/指标汇总，与退出码解耦。
type Code string

const (
	CodeUnknown   Code = "unknown"
	CodeCancel    Code = "cancel"
	CodeConfig    Code = "config"
	CodeAuth      Code = "auth"
	CodeTimeout   Code = "timeout"
	CodeRate      Code = "rate_limited"
	CodeBackend   Code = "backend"
	CodeParse     Code = "parse"
	CodeRecord    Code = "record"
	CodeInvariant Code = "invariant"
	CodeIO        Code = "io"
)

// Classify 将错误归为最小分类。
// 仅依赖哨兵错误与标准库错误类型，不做字符串匹配。
func Classify(err error) Code {
	if err == nil {
		return CodeUnknown
	}
	// 取消/超时优先
	if errors.Is(err, context.Canceled) {
		return CodeCancel
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, contract.ErrTimeout) {
		return CodeTimeout
	}
	if errors.Is(err, contract.ErrAuth) {
		return CodeAuth
	}
	if errors.Is(err, contract.ErrRateLimited) {
		return CodeRate
	}
	if errors.Is(err, contract.ErrBackendUnavailable) {
		return CodeBackend
	}
	if errors.Is(err, contract.ErrNoMarkersFound) ||
		errors.Is(err, contract.ErrRoleSequenceViolation) ||
		errors.Is(err, contract.ErrResponseInvalid) {
		return CodeParse
	}
	if errors.Is(err, contract.ErrRecordInvalid) {
		return CodeRecord
	}
	if errors.Is(err, contract.ErrConfig) || errors.Is(err, contract.ErrUnknownLens) {
		return CodeConfig
	}
	if errors.Is(err, contract.ErrInvariantViolation) ||
		errors.Is(err, contract.ErrInvalidInput) ||
		errors.Is(err, contract.ErrPathInvalid) {
		return CodeInvariant
	}
	var perr *os.PathError
	if errors.As(err, &perr) {
		return CodeIO
	}
	return CodeUnknown
}

// Transient 判断生成错误是否可重试（退避后重发同一请求）。
func Transient(err error) bool {
	return errors.Is(err, contract.ErrTimeout) ||
		errors.Is(err, contract.ErrRateLimited) ||
		errors.Is(err, contract.ErrBackendUnavailable)
}

// Fatal 判断错误是否必须终止整个运行（而非跳过单条目）。
func Fatal(err error) bool {
	return errors.Is(err, contract.ErrAuth) || errors.Is(err, contract.ErrConfig)
}
