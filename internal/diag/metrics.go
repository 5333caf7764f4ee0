package diag

import "sync/atomic"

// Counters 为运行级指标（并发安全的轻量计数，随运行报告输出）。
type Counters struct {
	Generated int64 // 生成调用成功次数
	Retries   int64 // 瞬态错误重试次数
	Records   int64 // 通过校验与去重的记录数
	Failures  int64 // 按条目跳过的失败数
	Dupes     int64 // 去重丢弃数
}

func (c *Counters) IncGenerated() { atomic.AddInt64(&c.Generated, 1) }
func (c *Counters) IncRetries()   { atomic.AddInt64(&c.Retries, 1) }
func (c *Counters) IncRecords()   { atomic.AddInt64(&c.Records, 1) }
func (c *Counters) IncFailures()  { atomic.AddInt64(&c.Failures, 1) }
func (c *Counters) IncDupes()     { atomic.AddInt64(&c.Dupes, 1) }

// Snapshot 返回各计数的原子读取副本。
func (c *Counters) Snapshot() Counters {
	return Counters{
		Generated: atomic.LoadInt64(&c.Generated),
		Retries:   atomic.LoadInt64(&c.Retries),
		Records:   atomic.LoadInt64(&c.Records),
		Failures:  atomic.LoadInt64(&c.Failures),
		Dupes:     atomic.LoadInt64(&c.Dupes),
	}
}
