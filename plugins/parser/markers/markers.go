// Package markers 实现按 lens 形状的响应解析器。
//
// 标记形状（dialogue/lecture）：以行首 "[标签]" 界定轮边界，标签经 RoleMap
// 映射为规范角色；块形状（summary/bullets）无标记，归一为单一 assistant 轮。
// 解析失败而非静默修复：不合形状的响应整体拒绝。
package markers

import (
	"context"
	"fmt"
	"strings"

	"synthdlg/pkg/contract"
)

// Parser 无状态、纯计算；可跨 goroutine 共享。
type Parser struct{}

// New 创建 Parser。
func New() *Parser { return &Parser{} }

// Parse 实现 contract.Parser。
// 错误分类：
//   - ErrNoMarkersFound: 标记形状但全文无任何已映射标记；
//   - ErrRoleSequenceViolation: 角色序列未从提问方开始或未严格交替；
//   - ErrResponseInvalid: 空轮、轮数/条目数不足、空响应。
func (p *Parser) Parse(ctx context.Context, l contract.Lens, raw contract.Raw) ([]contract.DialogueTurn, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	if l.Shape.Markered() {
		return parseMarkered(l, raw.Text)
	}
	switch l.Shape {
	case contract.ShapeSummary:
		return parseSummary(raw.Text)
	case contract.ShapeBullets:
		return parseBullets(raw.Text)
	default:
		return nil, fmt.Errorf("parser: %w: unknown shape %q", contract.ErrConfig, l.Shape)
	}
}

// parseMarkered 扫描标记行切出轮次。
// 规则：
//   - 轮边界：行在去除前导空白后以 "[标签]" 开头，且标签命中 RoleMap（大小写不敏感）；
//   - 标记后同行余文与后续行同属该轮，直至下一标记或 EOF；
//   - 首标记之前的前导文本（寒暄、复述指令）丢弃；
//   - 未入表的 "[...]" 行不是边界，归入当前轮内容；
//   - 末轮无终止标记仍接受，但归一后内容为空则整体拒绝。
func parseMarkered(l contract.Lens, text string) ([]contract.DialogueTurn, error) {
	labels := lowerRoleMap(l.RoleMap)
	lines := strings.Split(text, "\n")

	var turns []contract.DialogueTurn
	var cur *contract.DialogueTurn
	var body []string
	flush := func() error {
		if cur == nil {
			return nil
		}
		content := contract.NormalizeTurnContent(strings.Join(body, "\n"))
		if content == "" {
			return fmt.Errorf("parser: %w: empty turn for role %q", contract.ErrResponseInvalid, cur.Role)
		}
		cur.Content = content
		turns = append(turns, *cur)
		return nil
	}

	for _, ln := range lines {
		role, rest, ok := matchMarker(ln, labels)
		if !ok {
			if cur != nil {
				body = append(body, ln)
			}
			continue
		}
		if err := flush(); err != nil {
			return nil, err
		}
		cur = &contract.DialogueTurn{Role: role}
		body = body[:0]
		if rest != "" {
			body = append(body, rest)
		}
	}
	if cur == nil {
		return nil, fmt.Errorf("parser: %w: lens %q", contract.ErrNoMarkersFound, l.Name)
	}
	if err := flush(); err != nil {
		return nil, err
	}
	if len(turns) < 2 {
		return nil, fmt.Errorf("parser: %w: got %d turn(s), need >= 2", contract.ErrResponseInvalid, len(turns))
	}
	if err := contract.ValidateAlternation(turns, contract.RoleUser); err != nil {
		return nil, fmt.Errorf("parser: %w", err)
	}
	return turns, nil
}

// matchMarker 判定行是否为轮边界，返回映射角色与标记后同行余文。
func matchMarker(line string, labels map[string]contract.Role) (contract.Role, string, bool) {
	s := strings.TrimLeft(line, " \t")
	if len(s) == 0 || s[0] != '[' {
		return "", "", false
	}
	end := strings.IndexByte(s, ']')
	if end < 0 {
		return "", "", false
	}
	role, ok := labels[strings.ToLower(strings.TrimSpace(s[1:end]))]
	if !ok {
		return "", "", false
	}
	rest := strings.TrimLeft(s[end+1:], " \t")
	rest = strings.TrimPrefix(rest, ":")
	return role, strings.TrimSpace(rest), true
}

func lowerRoleMap(m contract.RoleMap) map[string]contract.Role {
	out := make(map[string]contract.Role, len(m))
	for k, v := range m {
		out[strings.ToLower(k)] = v
	}
	return out
}

// parseSummary 全文归一为单一 assistant 轮。
func parseSummary(text string) ([]contract.DialogueTurn, error) {
	content := contract.NormalizeTurnContent(text)
	if content == "" {
		return nil, fmt.Errorf("parser: %w: empty summary", contract.ErrResponseInvalid)
	}
	return []contract.DialogueTurn{{Role: contract.RoleAssistant, Content: content}}, nil
}

// parseBullets 提取条目行并归一为 "- " 前缀；非条目行（导语等）丢弃。
// 接受的条目前缀："- "、"* "、"• "；少于 2 条整体拒绝。
func parseBullets(text string) ([]contract.DialogueTurn, error) {
	var items []string
	for _, ln := range strings.Split(text, "\n") {
		if it, ok := bulletItem(ln); ok {
			items = append(items, "- "+it)
		}
	}
	if len(items) < 2 {
		return nil, fmt.Errorf("parser: %w: got %d bullet(s), need >= 2", contract.ErrResponseInvalid, len(items))
	}
	content := contract.NormalizeTurnContent(strings.Join(items, "\n"))
	return []contract.DialogueTurn{{Role: contract.RoleAssistant, Content: content}}, nil
}

// bulletItem 识别条目行并返回去前缀后的条目文本。
func bulletItem(line string) (string, bool) {
	s := strings.TrimSpace(line)
	for _, pfx := range []string{"- ", "* ", "• "} {
		if strings.HasPrefix(s, pfx) {
			it := strings.TrimSpace(s[len(pfx):])
			if it == "" {
				return "", false
			}
			return it, true
		}
	}
	return "", false
}

var _ contract.Parser = (*Parser)(nil)
