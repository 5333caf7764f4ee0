package window

import (
	"context"
	"errors"
	"strings"
	"testing"

	"synthdlg/pkg/contract"
)

func doc(text string) contract.SourceDocument {
	return contract.SourceDocument{ID: "d", Text: text}
}

// TestSplitDegenerate 短文档恰好产出一块等于全文
func TestSplitDegenerate(t *testing.T) {
	c, err := New(&Options{ChunkSize: 1000, Overlap: 100})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	text := "One paragraph.\n\nAnother paragraph."
	chunks, err := c.Split(context.Background(), doc(text))
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if len(chunks) != 1 || chunks[0].Text != text || chunks[0].Index != 0 {
		t.Fatalf("degenerate case broken: %+v", chunks)
	}
	if chunks[0].Start != 0 || chunks[0].End != len(text) {
		t.Fatalf("offsets wrong: %+v", chunks[0])
	}
}

// TestSplitCoverage 覆盖性质：去除重叠后按序还原全文
func TestSplitCoverage(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 40; i++ {
		sb.WriteString("Sentence number one here. Sentence number two follows! A third, longer sentence closes the paragraph?\n\n")
	}
	text := sb.String()
	for _, bd := range []string{"paragraph", "sentence", "none"} {
		c, err := New(&Options{ChunkSize: 300, Overlap: 60, Boundary: bd})
		if err != nil {
			t.Fatalf("new(%s): %v", bd, err)
		}
		chunks, err := c.Split(context.Background(), doc(text))
		if err != nil {
			t.Fatalf("split(%s): %v", bd, err)
		}
		if len(chunks) < 2 {
			t.Fatalf("expected multiple chunks for boundary %s", bd)
		}
		got, err := Reconstruct(chunks)
		if err != nil {
			t.Fatalf("reconstruct(%s): %v", bd, err)
		}
		if got != text {
			t.Fatalf("coverage violated for boundary %s", bd)
		}
		for i := 1; i < len(chunks); i++ {
			if chunks[i].Index != chunks[i-1].Index+1 {
				t.Fatalf("index not contiguous at %d", i)
			}
			ov := chunks[i-1].End - chunks[i].Start
			if ov < 0 {
				t.Fatalf("gap between chunks %d and %d", i-1, i)
			}
		}
	}
}

// TestSplitOverlapBounded 重叠不超过配置上界（rune 度量）
func TestSplitOverlapBounded(t *testing.T) {
	text := strings.Repeat("word. ", 500)
	c, err := New(&Options{ChunkSize: 100, Overlap: 20, Boundary: "sentence"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	chunks, err := c.Split(context.Background(), doc(text))
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	for i := 1; i < len(chunks); i++ {
		ov := chunks[i-1].End - chunks[i].Start
		if ov > 20 {
			t.Fatalf("overlap %d exceeds bound at chunk %d", ov, i)
		}
	}
}

// TestSplitDeterministic 同输入同配置输出恒等
func TestSplitDeterministic(t *testing.T) {
	text := strings.Repeat("Alpha beta gamma. ", 100)
	c, _ := New(&Options{ChunkSize: 80, Overlap: 10, Boundary: "sentence"})
	a, err := c.Split(context.Background(), doc(text))
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	b, err := c.Split(context.Background(), doc(text))
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if len(a) != len(b) {
		t.Fatalf("non-deterministic chunk count")
	}
	for i := range a {
		if a[i].Start != b[i].Start || a[i].End != b[i].End || a[i].Text != b[i].Text || a[i].Index != b[i].Index {
			t.Fatalf("chunk %d differs", i)
		}
	}
}

// TestSplitOversizedUnit 超长单元硬切分仍覆盖全文
func TestSplitOversizedUnit(t *testing.T) {
	text := strings.Repeat("x", 1000) // 无任何边界
	c, _ := New(&Options{ChunkSize: 128, Overlap: 0, Boundary: "paragraph"})
	chunks, err := c.Split(context.Background(), doc(text))
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	got, err := Reconstruct(chunks)
	if err != nil || got != text {
		t.Fatalf("oversized unit coverage broken: %v", err)
	}
}

// TestSplitEmptyDoc 空文档产出零块
func TestSplitEmptyDoc(t *testing.T) {
	c, _ := New(&Options{ChunkSize: 10, Overlap: 0})
	chunks, err := c.Split(context.Background(), doc(""))
	if err != nil || chunks != nil {
		t.Fatalf("empty doc should yield nil, nil")
	}
}

// TestNewConfigErrors 构造期配置违例
func TestNewConfigErrors(t *testing.T) {
	cases := []Options{
		{ChunkSize: 0, Overlap: 0},
		{ChunkSize: 10, Overlap: -1},
		{ChunkSize: 10, Overlap: 10}, // overlap >= size 会不前进
		{ChunkSize: 10, Overlap: 20},
		{ChunkSize: 10, Overlap: 0, Boundary: "wat"},
		{ChunkSize: 10, Overlap: 0, Tokenizer: "no-such-encoding"},
	}
	for i, o := range cases {
		if _, err := New(&o); !errors.Is(err, contract.ErrConfig) {
			t.Fatalf("case %d: expect ErrConfig, got %v", i, err)
		}
	}
	if _, err := New(nil); !errors.Is(err, contract.ErrConfig) {
		t.Fatalf("nil options: expect ErrConfig, got %v", err)
	}
}

// TestSplitCtxCancel 上下文取消
func TestSplitCtxCancel(t *testing.T) {
	c, _ := New(&Options{ChunkSize: 5, Overlap: 0})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Split(ctx, doc(strings.Repeat("a ", 100)))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expect ctx cancel, got %v", err)
	}
}
