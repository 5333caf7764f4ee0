package contract

import "errors"

// DedupIndex: 去重索引能力接口。
// 约束：
//  1. Seen 为"查并置"语义：首见返回 false 并登记，再见返回 true；
//  2. 并发安全由实现保证（流水线多 worker 共享单实例）；
//  3. 默认实现为运行内内存索引；外部（持久）索引跨运行生效。
type DedupIndex interface {
	// Seen: key 为规范化内容哈希（hex）。错误仅来自外部介质故障。
	Seen(key string) (bool, error)
	Close() error
}

// ErrRecordInvalid: 记录校验违例（空内容、纯空白轮、总长不足）。
// 按条目跳过，不终止运行。
var ErrRecordInvalid = errors.New("record invalid")
