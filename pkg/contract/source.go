package contract

import "context"

// SourceProvider: 源文档供给抽象（文件/目录/STDIN）。
// 核心仅要求 {id, text, meta}；抓取方式（网络/归档）为外部协作者职责。
// 约束：
//  1. 按文档维度回调，DocID 稳定且去平台差异化；
//  2. 文本经 CRLF→LF 归一后交付，不做业务解析；
//  3. 不在内部起并发；yield 返回错误即终止遍历。
type SourceProvider interface {
	Iterate(ctx context.Context, roots []string, yield func(doc SourceDocument) error) error
}
