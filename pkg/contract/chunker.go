package contract

import "context"

// Chunker: 将单个源文档切分为有序 Chunk 序列，并分配 Index（0..n-1）。
// 约束：
//  1. 不跨文档合并；
//  2. Index 严格递增且稳定；同输入同配置输出恒等（可重放）；
//  3. 不跳过、不截断任何源文本：按 Index 排序并去除重叠后必须还原全文；
//  4. 相邻重叠显式且不超过配置上界，不得为负；
//  5. 退化情形：短于目标尺寸的文档恰好产出一个覆盖全文的 Chunk；
//  6. 无内部并发、幂等；重叠 >= 目标尺寸属构造期配置错误（ErrConfig）。
type Chunker interface {
	Split(ctx context.Context, doc SourceDocument) ([]Chunk, error)
}
