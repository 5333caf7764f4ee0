package dedup

import (
	"fmt"
	"strings"

	"synthdlg/pkg/contract"
)

// ValidateOptions 为记录校验阈值。
type ValidateOptions struct {
	// MinTotalRunes: 全部轮内容的 rune 总数下限；<=0 使用默认 40。
	MinTotalRunes int `json:"min_total_runes"`
}

// Validate 校验单条记录；违例返回 ErrRecordInvalid 包装（按条目跳过）。
// 规则：
//  1. 至少一轮；
//  2. 任一轮内容去空白后非空；
//  3. 轮内容 rune 总数不低于阈值（过短记录训练价值为负）。
func Validate(rec contract.TrainingRecord, opts ValidateOptions) error {
	min := opts.MinTotalRunes
	if min <= 0 {
		min = 40
	}
	if len(rec.Turns) == 0 {
		return fmt.Errorf("dedup: %w: no turns", contract.ErrRecordInvalid)
	}
	total := 0
	for i, t := range rec.Turns {
		if strings.TrimSpace(t.Content) == "" {
			return fmt.Errorf("dedup: %w: blank turn %d", contract.ErrRecordInvalid, i)
		}
		if t.Role != contract.RoleUser && t.Role != contract.RoleAssistant {
			return fmt.Errorf("dedup: %w: unknown role %q at turn %d", contract.ErrRecordInvalid, t.Role, i)
		}
		total += len([]rune(t.Content))
	}
	if total < min {
		return fmt.Errorf("dedup: %w: total length %d below %d", contract.ErrRecordInvalid, total, min)
	}
	return nil
}
