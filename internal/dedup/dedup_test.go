package dedup

import (
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"synthdlg/pkg/contract"
)

func turns(contents ...string) []contract.DialogueTurn {
	out := make([]contract.DialogueTurn, len(contents))
	for i, c := range contents {
		role := contract.RoleUser
		if i%2 == 1 {
			role = contract.RoleAssistant
		}
		out[i] = contract.DialogueTurn{Role: role, Content: c}
	}
	return out
}

// TestKeyWhitespaceInsensitive 空白差异不改变键
func TestKeyWhitespaceInsensitive(t *testing.T) {
	a := Key(turns("what  is\tthis?", "an answer"))
	b := Key(turns("what is this?", "an  answer"))
	if a != b {
		t.Fatalf("whitespace variants should collide: %s vs %s", a, b)
	}
}

// TestKeyContentSensitive 内容差异必改键；跨轮拼接不碰撞
func TestKeyContentSensitive(t *testing.T) {
	if Key(turns("q", "a")) == Key(turns("q", "b")) {
		t.Fatalf("distinct content should not collide")
	}
	if Key(turns("ab", "c")) == Key(turns("a", "bc")) {
		t.Fatalf("turn boundary must participate in key")
	}
}

// TestKeyIgnoresRoleAndProvenance 键只依赖轮内容
func TestKeyIgnoresRoleAndProvenance(t *testing.T) {
	a := []contract.DialogueTurn{{Role: contract.RoleUser, Content: "same"}}
	b := []contract.DialogueTurn{{Role: contract.RoleAssistant, Content: "same"}}
	if Key(a) != Key(b) {
		t.Fatalf("role must not participate in key")
	}
}

// TestValidate 校验规则
func TestValidate(t *testing.T) {
	long := strings.Repeat("long enough content here. ", 4)
	ok := contract.TrainingRecord{Turns: turns(long, long)}
	if err := Validate(ok, ValidateOptions{}); err != nil {
		t.Fatalf("valid record rejected: %v", err)
	}
	cases := []contract.TrainingRecord{
		{},                                  // 无轮
		{Turns: turns(long, "   \t\n")},     // 空白轮
		{Turns: turns("tiny", "short")},     // 总长不足
		{Turns: []contract.DialogueTurn{{Role: "narrator", Content: long}}}, // 未知角色
	}
	for i, rec := range cases {
		if err := Validate(rec, ValidateOptions{}); !errors.Is(err, contract.ErrRecordInvalid) {
			t.Fatalf("case %d: expect ErrRecordInvalid, got %v", i, err)
		}
	}
}

// TestMemorySeen 查并置语义
func TestMemorySeen(t *testing.T) {
	m := NewMemory()
	if seen, _ := m.Seen("k1"); seen {
		t.Fatalf("first sight should be false")
	}
	if seen, _ := m.Seen("k1"); !seen {
		t.Fatalf("second sight should be true")
	}
	if seen, _ := m.Seen("k2"); seen {
		t.Fatalf("distinct key should be unseen")
	}
}

// TestMemoryConcurrent 并发下恰有一个 worker 首见
func TestMemoryConcurrent(t *testing.T) {
	m := NewMemory()
	const n = 32
	var wg sync.WaitGroup
	firsts := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if seen, _ := m.Seen("shared"); !seen {
				firsts <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(firsts)
	count := 0
	for range firsts {
		count++
	}
	if count != 1 {
		t.Fatalf("expect exactly one first sight, got %d", count)
	}
}

// TestSQLiteSeen 持久索引：查并置 + 跨实例生效
func TestSQLiteSeen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	s, err := NewSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if seen, err := s.Seen("k"); err != nil || seen {
		t.Fatalf("first sight: seen=%v err=%v", seen, err)
	}
	if seen, err := s.Seen("k"); err != nil || !seen {
		t.Fatalf("second sight: seen=%v err=%v", seen, err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	// 重开复用同一库：跨运行去重
	s2, err := NewSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	if seen, err := s2.Seen("k"); err != nil || !seen {
		t.Fatalf("cross-run sight: seen=%v err=%v", seen, err)
	}
	n, err := s2.Count()
	if err != nil || n != 1 {
		t.Fatalf("count: n=%d err=%v", n, err)
	}
}
