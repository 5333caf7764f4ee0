package dataset

import (
	"bytes"
	"fmt"
	"sync"
	"testing"

	"synthdlg/pkg/contract"
)

func rec(src string, chunk int64, lens string) contract.TrainingRecord {
	return contract.TrainingRecord{
		Turns: []contract.DialogueTurn{
			{Role: contract.RoleUser, Content: "q " + src},
			{Role: contract.RoleAssistant, Content: "a " + lens},
		},
		Provenance: contract.Provenance{
			SourceID:   contract.DocID(src),
			ChunkIndex: contract.ChunkIndex(chunk),
			Lens:       lens,
		},
	}
}

// TestRecordsDeterministicOrder 排序键：源 → 块 → lens 目录序
func TestRecordsDeterministicOrder(t *testing.T) {
	a := NewAccumulator([]string{"dialogue", "summary"})
	// 乱序投递
	a.Add(rec("b.txt", 0, "summary"))
	a.Add(rec("a.txt", 1, "dialogue"))
	a.Add(rec("a.txt", 0, "summary"))
	a.Add(rec("a.txt", 0, "dialogue"))
	a.Add(rec("b.txt", 0, "dialogue"))

	got := a.Records()
	want := []contract.Provenance{
		{SourceID: "a.txt", ChunkIndex: 0, Lens: "dialogue"},
		{SourceID: "a.txt", ChunkIndex: 0, Lens: "summary"},
		{SourceID: "a.txt", ChunkIndex: 1, Lens: "dialogue"},
		{SourceID: "b.txt", ChunkIndex: 0, Lens: "dialogue"},
		{SourceID: "b.txt", ChunkIndex: 0, Lens: "summary"},
	}
	if len(got) != len(want) {
		t.Fatalf("count wrong: %d", len(got))
	}
	for i := range want {
		if got[i].Provenance != want[i] {
			t.Fatalf("position %d: got %+v want %+v", i, got[i].Provenance, want[i])
		}
	}
}

// TestAddDeepCopies 收录后修改原轮次不影响汇集器
func TestAddDeepCopies(t *testing.T) {
	a := NewAccumulator(nil)
	turns := []contract.DialogueTurn{{Role: contract.RoleUser, Content: "original"}}
	a.Add(contract.TrainingRecord{Turns: turns})
	turns[0].Content = "mutated"
	if a.Records()[0].Turns[0].Content != "original" {
		t.Fatalf("accumulator shares caller's slice")
	}
}

// TestConcurrentAdd 并发投递无丢失
func TestConcurrentAdd(t *testing.T) {
	a := NewAccumulator(nil)
	const n = 100
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a.Add(rec(fmt.Sprintf("d%03d.txt", i), 0, "dialogue"))
			if i%3 == 0 {
				a.AddSkipped()
			}
		}(i)
	}
	wg.Wait()
	recs, fails, skipped := a.Counts()
	if recs != n || fails != 0 || skipped != 34 {
		t.Fatalf("counts wrong: %d %d %d", recs, fails, skipped)
	}
}

// TestJSONLRoundTrip 编码→解码保持记录不变
func TestJSONLRoundTrip(t *testing.T) {
	records := []contract.TrainingRecord{
		rec("a.txt", 0, "dialogue"),
		rec("a.txt", 1, "summary"),
	}
	// 多行内容与需转义字符
	records[0].Turns[1].Content = "line1\nline2 with \"quotes\" & <angle>"

	var buf bytes.Buffer
	if err := EncodeJSONL(&buf, records); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if bytes.Contains(buf.Bytes(), []byte(`<`)) {
		t.Fatalf("HTML escaping should be off")
	}
	got, err := DecodeJSONL(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != len(records) {
		t.Fatalf("count wrong: %d", len(got))
	}
	for i := range records {
		if got[i].Provenance != records[i].Provenance {
			t.Fatalf("provenance %d differs", i)
		}
		for j := range records[i].Turns {
			if got[i].Turns[j] != records[i].Turns[j] {
				t.Fatalf("turn %d/%d differs: %+v", i, j, got[i].Turns[j])
			}
		}
	}
}

// TestFailuresSidecar 失败条目编码与排序
func TestFailuresSidecar(t *testing.T) {
	a := NewAccumulator([]string{"dialogue"})
	a.AddFailure(Failure{
		Provenance: contract.Provenance{SourceID: "b.txt", ChunkIndex: 2, Lens: "dialogue"},
		Stage:      "parse",
		Reason:     "no markers found",
	})
	a.AddFailure(Failure{
		Provenance: contract.Provenance{SourceID: "a.txt", ChunkIndex: 0, Lens: "dialogue"},
		Stage:      "generate",
		Reason:     "backend unavailable",
	})
	fails := a.Failures()
	if fails[0].Provenance.SourceID != "a.txt" {
		t.Fatalf("failures not sorted: %+v", fails)
	}
	var buf bytes.Buffer
	if err := EncodeFailuresJSONL(&buf, fails); err != nil {
		t.Fatalf("encode failures: %v", err)
	}
	if n := bytes.Count(buf.Bytes(), []byte("\n")); n != 2 {
		t.Fatalf("expect 2 lines, got %d", n)
	}
}
