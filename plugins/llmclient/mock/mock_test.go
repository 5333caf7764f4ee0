package mock

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"synthdlg/pkg/contract"
	"synthdlg/pkg/lens"
	"synthdlg/plugins/parser/markers"
)

// TestMockShapes auto 模式按提示嗅探形状，且产物可被解析器接受
func TestMockShapes(t *testing.T) {
	g, err := New(nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	p := markers.New()
	cat := lens.Builtin()
	for _, name := range cat.Names() {
		l, _ := cat.Get(name)
		prompt := strings.Replace(l.Template, "{{.Chunk}}", "passage body", 1)
		prompt = strings.Replace(prompt, "{{.Title}}", "T", 1)
		raw, err := g.Generate(context.Background(), contract.GenerationRequest{Prompt: prompt})
		if err != nil {
			t.Fatalf("generate(%s): %v", name, err)
		}
		turns, err := p.Parse(context.Background(), l, raw)
		if err != nil {
			t.Fatalf("mock output for %s not parseable: %v\n%s", name, err, raw.Text)
		}
		if len(turns) == 0 {
			t.Fatalf("no turns for %s", name)
		}
	}
}

// TestMockDeterministic 同提示恒得同响应，不同提示产出不同内容
func TestMockDeterministic(t *testing.T) {
	g, _ := New(nil)
	a, _ := g.Generate(context.Background(), contract.GenerationRequest{Prompt: "p1"})
	b, _ := g.Generate(context.Background(), contract.GenerationRequest{Prompt: "p1"})
	c, _ := g.Generate(context.Background(), contract.GenerationRequest{Prompt: "p2"})
	if a.Text != b.Text {
		t.Fatalf("non-deterministic response")
	}
	if a.Text == c.Text {
		t.Fatalf("distinct prompts should yield distinct responses")
	}
}

// TestMockGarbageMode garbage 模式产出不可解析文本
func TestMockGarbageMode(t *testing.T) {
	g, err := New(json.RawMessage(`{"response_mode":"garbage"}`))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	raw, _ := g.Generate(context.Background(), contract.GenerationRequest{Prompt: "x"})
	l, _ := lens.Builtin().Get("dialogue")
	if _, err := markers.New().Parse(context.Background(), l, raw); !errors.Is(err, contract.ErrNoMarkersFound) {
		t.Fatalf("expect unparseable garbage, got %v", err)
	}
}

// TestMockBadMode 未知模式为配置错误
func TestMockBadMode(t *testing.T) {
	if _, err := New(json.RawMessage(`{"response_mode":"wat"}`)); !errors.Is(err, contract.ErrConfig) {
		t.Fatalf("expect ErrConfig, got %v", err)
	}
}
