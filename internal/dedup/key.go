// Package dedup 实现记录校验与内容去重。
//
// 去重键：各轮内容经空白折叠后拼接，取 SHA-256（hex）。
// 键只依赖轮内容，不含角色与溯源；同文不同源视为重复。
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"

	"synthdlg/pkg/contract"
)

// Key 计算记录的去重键（纯函数）。
func Key(turns []contract.DialogueTurn) string {
	h := sha256.New()
	for _, t := range turns {
		h.Write([]byte(collapseSpace(t.Content)))
		h.Write([]byte{0}) // 轮间定界，避免跨轮拼接碰撞
	}
	return hex.EncodeToString(h.Sum(nil))
}

// collapseSpace 将任意空白连串折叠为单个空格并去除首尾空白。
// 比 NormalizeTurnContent 更激进：仅用于键计算，不改动记录本体。
func collapseSpace(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	space := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space && sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		space = false
		sb.WriteRune(r)
	}
	return sb.String()
}
