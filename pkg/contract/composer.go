package contract

import "context"

// Composer: (Chunk, Lens, 运行参数) → GenerationRequest 的纯函数组件。
// 约束：
//  1. 纯计算，不做 I/O；同输入必得同请求文本（测试夹具可复现）；
//  2. 将块文本插入 lens 模板的唯一替换点；
//  3. 参数合并优先级：运行配置 > lens 默认；
//  4. 失败快速返回错误（模板渲染失败等）。
type Composer interface {
	Compose(ctx context.Context, c Chunk, l Lens, runParams GenParams) (GenerationRequest, error)
}
