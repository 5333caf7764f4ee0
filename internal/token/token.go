// Package token 提供提示文本的 token 估算。
// 优先使用 tiktoken 精确计数；编码不可用时退化为字节近似。
package token

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"synthdlg/pkg/contract"
)

// Estimator 估算文本 token 数（限流预算与请求上限用）。
type Estimator func(s string) int

// NewEstimator 构造估算器。
// encoding 非空时使用 tiktoken（如 "cl100k_base"）；否则 tokens ≈ ceil(bytes/bytesPerToken)。
func NewEstimator(encoding string, bytesPerToken int) (Estimator, error) {
	if encoding != "" {
		enc, err := tiktoken.GetEncoding(encoding)
		if err != nil {
			return nil, fmt.Errorf("token: %w: encoding %q: %v", contract.ErrConfig, encoding, err)
		}
		return func(s string) int {
			return len(enc.Encode(s, nil, nil))
		}, nil
	}
	bpt := bytesPerToken
	if bpt <= 0 {
		bpt = 4
	}
	return func(s string) int {
		n := len(s)
		if n == 0 {
			return 0
		}
		return (n + bpt - 1) / bpt
	}, nil
}
