// Package dataset 实现训练记录的汇集、确定性排序与 JSONL 编解码。
//
// 流水线 worker 并发产出记录；Accumulator 线程安全地汇集，
// 输出前按（源文档、块序号、lens 目录序）排序，保证同输入同输出字节。
package dataset

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"

	"synthdlg/pkg/contract"
)

// Failure 为单条目失败记录（sidecar 输出）。
type Failure struct {
	Provenance contract.Provenance `json:"provenance"`
	Stage      string              `json:"stage"`  // generate | parse | validate | dedup
	Reason     string              `json:"reason"` // 错误摘要
}

// Accumulator 汇集一次运行的产出。
type Accumulator struct {
	lensOrder map[string]int

	mu       sync.Mutex
	records  []contract.TrainingRecord
	failures []Failure
	skipped  int // 去重丢弃数
}

// NewAccumulator 创建汇集器；lensNames 依目录序决定同块多 lens 记录的输出次序。
func NewAccumulator(lensNames []string) *Accumulator {
	order := make(map[string]int, len(lensNames))
	for i, n := range lensNames {
		order[n] = i
	}
	return &Accumulator{lensOrder: order}
}

// Add 收录一条记录（深拷贝轮次，切断与产出方的共享）。
func (a *Accumulator) Add(rec contract.TrainingRecord) {
	rec.Turns = contract.CloneTurns(rec.Turns)
	a.mu.Lock()
	a.records = append(a.records, rec)
	a.mu.Unlock()
}

// AddFailure 收录一条失败条目。
func (a *Accumulator) AddFailure(f Failure) {
	a.mu.Lock()
	a.failures = append(a.failures, f)
	a.mu.Unlock()
}

// AddSkipped 登记一次去重丢弃。
func (a *Accumulator) AddSkipped() {
	a.mu.Lock()
	a.skipped++
	a.mu.Unlock()
}

// Counts 返回 (记录数, 失败数, 去重丢弃数)。
func (a *Accumulator) Counts() (int, int, int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.records), len(a.failures), a.skipped
}

// Records 返回确定性排序后的记录副本。
// 排序键：SourceID 字典序 → ChunkIndex → lens 目录序 → lens 名。
func (a *Accumulator) Records() []contract.TrainingRecord {
	a.mu.Lock()
	out := make([]contract.TrainingRecord, len(a.records))
	copy(out, a.records)
	a.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := out[i].Provenance, out[j].Provenance
		if pi.SourceID != pj.SourceID {
			return pi.SourceID < pj.SourceID
		}
		if pi.ChunkIndex != pj.ChunkIndex {
			return pi.ChunkIndex < pj.ChunkIndex
		}
		oi, oj := a.lensOrder[pi.Lens], a.lensOrder[pj.Lens]
		if oi != oj {
			return oi < oj
		}
		return pi.Lens < pj.Lens
	})
	return out
}

// Failures 返回确定性排序后的失败副本（与记录同序）。
func (a *Accumulator) Failures() []Failure {
	a.mu.Lock()
	out := make([]Failure, len(a.failures))
	copy(out, a.failures)
	a.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := out[i].Provenance, out[j].Provenance
		if pi.SourceID != pj.SourceID {
			return pi.SourceID < pj.SourceID
		}
		if pi.ChunkIndex != pj.ChunkIndex {
			return pi.ChunkIndex < pj.ChunkIndex
		}
		return a.lensOrder[pi.Lens] < a.lensOrder[pj.Lens]
	})
	return out
}

// EncodeJSONL 将记录流式编码为 JSONL（一行一条，无缩进）。
func EncodeJSONL(w io.Writer, records []contract.TrainingRecord) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(&rec); err != nil {
			return fmt.Errorf("dataset: encode record %d: %w", i, err)
		}
	}
	return bw.Flush()
}

// EncodeFailuresJSONL 将失败条目编码为 JSONL sidecar。
func EncodeFailuresJSONL(w io.Writer, failures []Failure) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	for i, f := range failures {
		if err := enc.Encode(&f); err != nil {
			return fmt.Errorf("dataset: encode failure %d: %w", i, err)
		}
	}
	return bw.Flush()
}

// DecodeJSONL 自 JSONL 读回记录（校验与往返测试用）。
func DecodeJSONL(r io.Reader) ([]contract.TrainingRecord, error) {
	dec := json.NewDecoder(r)
	var out []contract.TrainingRecord
	for {
		var rec contract.TrainingRecord
		if err := dec.Decode(&rec); err == io.EOF {
			return out, nil
		} else if err != nil {
			return nil, fmt.Errorf("dataset: decode record %d: %w", len(out), err)
		}
		out = append(out, rec)
	}
}
