package window

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	"synthdlg/pkg/contract"
)

// Options 为滑动窗口 Chunker 的配置（最小必要）。
type Options struct {
	// ChunkSize: 目标块尺寸。单位由 Tokenizer 决定（空=rune 数，否则=token 数）。
	ChunkSize int `json:"chunk_size"`
	// Overlap: 相邻块重叠上界（同单位）。必须满足 0 <= Overlap < ChunkSize。
	Overlap int `json:"overlap"`
	// Boundary: 切分边界偏好："paragraph"（默认）| "sentence" | "none"（按行）。
	Boundary string `json:"boundary"`
	// Tokenizer: tiktoken 编码名（如 "cl100k_base"）。空串时按 rune 计数。
	Tokenizer string `json:"tokenizer"`
}

// Chunker 实现基于边界单元的滑动窗口分块。
// 模型：先按边界偏好切出连续覆盖全文的最小单元，再贪心装入目标尺寸，
// 块间以尾部单元回含形成重叠——即原始窗口/步长扫描的单元化表达。
type Chunker struct {
	size     int
	overlap  int
	boundary string
	enc      *tiktoken.Tiktoken // nil 表示按 rune 计数
}

// New 创建 Chunker；尺寸/重叠/边界违例返回 ErrConfig 包装（致命，运行前终止）。
func New(opts *Options) (*Chunker, error) {
	if opts == nil {
		return nil, fmt.Errorf("chunker: %w: nil options", contract.ErrConfig)
	}
	if opts.ChunkSize <= 0 {
		return nil, fmt.Errorf("chunker: %w: chunk_size must be > 0", contract.ErrConfig)
	}
	if opts.Overlap < 0 {
		return nil, fmt.Errorf("chunker: %w: overlap must be >= 0", contract.ErrConfig)
	}
	if opts.Overlap >= opts.ChunkSize {
		// 重叠不小于块尺寸会导致不前进或产出空推进块
		return nil, fmt.Errorf("chunker: %w: overlap(%d) must be < chunk_size(%d)", contract.ErrConfig, opts.Overlap, opts.ChunkSize)
	}
	b := opts.Boundary
	if b == "" {
		b = "paragraph"
	}
	switch b {
	case "paragraph", "sentence", "none":
	default:
		return nil, fmt.Errorf("chunker: %w: unknown boundary %q", contract.ErrConfig, b)
	}
	var enc *tiktoken.Tiktoken
	if opts.Tokenizer != "" {
		e, err := tiktoken.GetEncoding(opts.Tokenizer)
		if err != nil {
			return nil, fmt.Errorf("chunker: %w: tokenizer %q: %v", contract.ErrConfig, opts.Tokenizer, err)
		}
		enc = e
	}
	return &Chunker{size: opts.ChunkSize, overlap: opts.Overlap, boundary: b, enc: enc}, nil
}

// span: 源文本内的字节区间 [start,end)。
type span struct{ start, end int }

// Split 实现 contract.Chunker。
// 约束（见 contract）：覆盖全文、重叠受限、退化短文恰一块、可重放。
func (c *Chunker) Split(ctx context.Context, doc contract.SourceDocument) ([]contract.Chunk, error) {
	if doc.Text == "" {
		return nil, nil
	}
	units := c.segment(doc.Text)
	units = c.hardSplit(doc.Text, units)

	meta := contract.CloneMeta(doc.Meta)
	var chunks []contract.Chunk
	var idx contract.ChunkIndex
	i := 0
	for i < len(units) {
		if err := ctxErr(ctx); err != nil {
			return nil, err
		}
		// 贪心扩展：首单元无条件纳入以保证前进。
		j := i
		sz := 0
		for j < len(units) {
			usz := c.measure(doc.Text[units[j].start:units[j].end])
			if j > i && sz+usz > c.size {
				break
			}
			sz += usz
			j++
		}
		start, end := units[i].start, units[j-1].end
		chunks = append(chunks, contract.Chunk{
			DocID: doc.ID,
			Index: idx,
			Start: start,
			End:   end,
			Text:  doc.Text[start:end],
			Meta:  meta,
		})
		idx++
		if j == len(units) {
			break
		}
		// 重叠：自尾部回含单元，总量不超过 Overlap，且必须保持前进（k > i）。
		k := j
		osz := 0
		for k > i+1 {
			usz := c.measure(doc.Text[units[k-1].start:units[k-1].end])
			if osz+usz > c.overlap {
				break
			}
			osz += usz
			k--
		}
		i = k
	}
	return chunks, nil
}

// measure 返回配置单位下的文本尺寸。
func (c *Chunker) measure(s string) int {
	if c.enc != nil {
		return len(c.enc.Encode(s, nil, nil))
	}
	return utf8.RuneCountInString(s)
}

// segment 按边界偏好切出连续覆盖全文的单元（每个字节恰属一个单元）。
func (c *Chunker) segment(text string) []span {
	switch c.boundary {
	case "paragraph":
		return segmentAfter(text, func(i int) int {
			// 段界：连续 >=2 个换行；分隔符归入前一单元。
			if text[i] != '\n' || i+1 >= len(text) || text[i+1] != '\n' {
				return 0
			}
			j := i
			for j < len(text) && text[j] == '\n' {
				j++
			}
			return j - i
		})
	case "sentence":
		return segmentAfter(text, func(i int) int {
			if !isSentenceEnd(text[i]) {
				return 0
			}
			// 句界：终止符 + 紧随空白；空白归入前一单元。
			j := i + 1
			for j < len(text) && (text[j] == '"' || text[j] == '\'' || text[j] == ')') {
				j++
			}
			if j >= len(text) || !isSpaceByte(text[j]) {
				return 0
			}
			for j < len(text) && isSpaceByte(text[j]) {
				j++
			}
			return j - i
		})
	default: // "none": 按行
		return segmentAfter(text, func(i int) int {
			if text[i] != '\n' {
				return 0
			}
			return 1
		})
	}
}

// segmentAfter: 通用扫描。sep(i) 返回自位置 i 起的分隔符长度（0 表示非分隔）；
// 分隔符并入前一单元尾部，保证单元连续覆盖全文。
func segmentAfter(text string, sep func(i int) int) []span {
	var out []span
	start := 0
	i := 0
	for i < len(text) {
		if n := sep(i); n > 0 {
			out = append(out, span{start, i + n})
			i += n
			start = i
			continue
		}
		i++
	}
	if start < len(text) {
		out = append(out, span{start, len(text)})
	}
	return out
}

// hardSplit 将超出块尺寸的单元按字节块二次切分（rune 对齐，块内字节数 <= ChunkSize；
// rune 数与 token 数均不超过字节数，故该上界对两种度量同时成立），保证贪心必定前进。
func (c *Chunker) hardSplit(text string, units []span) []span {
	out := make([]span, 0, len(units))
	for _, u := range units {
		if c.measure(text[u.start:u.end]) <= c.size {
			out = append(out, u)
			continue
		}
		start := u.start
		for i := u.start; i < u.end; {
			_, w := utf8.DecodeRuneInString(text[i:u.end])
			if i+w-start > c.size && i > start {
				out = append(out, span{start, i})
				start = i
			}
			i += w
		}
		if start < u.end {
			out = append(out, span{start, u.end})
		}
	}
	return out
}

func isSentenceEnd(b byte) bool { return b == '.' || b == '!' || b == '?' }

func isSpaceByte(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

func ctxErr(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

// Reconstruct 按 Index 顺序去除重叠还原全文（测试/校验辅助，纯函数）。
// 依赖块的 Start/End 溯源偏移；块序列违例返回 ErrInvariantViolation。
func Reconstruct(chunks []contract.Chunk) (string, error) {
	var sb strings.Builder
	pos := 0
	for i, ch := range chunks {
		if ch.Start > pos || ch.End < pos {
			return "", fmt.Errorf("chunker: %w: gap or regression at chunk %d", contract.ErrInvariantViolation, i)
		}
		cut := pos - ch.Start // 与前块重叠的字节数
		sb.WriteString(ch.Text[cut:])
		pos = ch.End
	}
	return sb.String(), nil
}

var _ contract.Chunker = (*Chunker)(nil)
