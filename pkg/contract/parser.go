package contract

import (
	"context"
	"errors"
	"strings"
)

// Parser: 按 lens 声明的形状，从无约束自然语言输出中提取结构化轮次。
// 约束：
//  1. 仅依赖 Raw.Text 与 Lens（形状、角色映射）；
//  2. 产出轮次已做稳定归一（首尾去空白、轮内空行折叠），供去重使用；
//  3. 违例失败而非静默修复：训练数据正确性优先于产出率；
//  4. 纯计算，无 I/O，无内部并发。
type Parser interface {
	Parse(ctx context.Context, l Lens, raw Raw) ([]DialogueTurn, error)
}

// 解析失败的最小分类。
var (
	// ErrNoMarkersFound: 形状要求标记但全文未出现任何已映射标记。
	ErrNoMarkersFound = errors.New("no markers found")
	// ErrRoleSequenceViolation: 标记存在但角色序列不满足形状要求（如未严格交替）。
	ErrRoleSequenceViolation = errors.New("role sequence violation")
	// ErrResponseInvalid: 其余响应违例（空轮、轮数不足、形状不符等）。
	ErrResponseInvalid = errors.New("response invalid")
)

// NormalizeTurnContent: 轮内容的稳定归一（库函数，纯计算）。
// 规则：
//  - 去除首尾空白；
//  - 行尾空白去除；
//  - 轮内连续空行折叠为单个空行。
// 该归一为幂等：Normalize(Normalize(s)) == Normalize(s)，是去重有意义的前提。
func NormalizeTurnContent(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, ln := range lines {
		ln = strings.TrimRight(ln, " \t\r")
		if strings.TrimSpace(ln) == "" {
			blank = true
			continue
		}
		if blank && len(out) > 0 {
			out = append(out, "")
		}
		blank = false
		out = append(out, ln)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// ValidateAlternation: 校验标记形状的角色序列（库函数，纯计算）。
// 要求以 asker 角色开始并严格交替；违例返回 ErrRoleSequenceViolation。
func ValidateAlternation(turns []DialogueTurn, asker Role) error {
	expect := asker
	for _, t := range turns {
		if t.Role != expect {
			return ErrRoleSequenceViolation
		}
		if expect == RoleUser {
			expect = RoleAssistant
		} else {
			expect = RoleUser
		}
	}
	return nil
}
