package contract

// DocID: 逻辑源文档ID（通常为路径或外部标识，需规范化，跨平台一致）。
type DocID string

// ChunkIndex: 单文档内稳定递增的分块序号（0..n-1）。
type ChunkIndex int64

// Meta: 可选的轻量元信息；核心流程不读取其键值。
type Meta map[string]string

// SourceDocument: 不可变的源文档（加载后只读）。
// 约束：
// - Text 为最小必需文本（经 CRLF→LF 归一），不做业务性清洗；
// - Meta 可为 nil；常见键："title"、"source_type"。
type SourceDocument struct {
	ID   DocID
	Text string
	Meta Meta
}

// Chunk: 接地单元（不可跨文档）。
// 约束：
// - 同一文档内 Index 自 0 严格递增；
// - [Start,End) 为 Text 在源文档中的字节区间；
// - 按 Index 排序后必须完整覆盖源文本；相邻重叠显式且受配置上界约束，不得为负；
// - Meta 承自源文档（拷贝），供 Composer 读取标题等上下文；可为 nil。
type Chunk struct {
	DocID DocID
	Index ChunkIndex
	Start int
	End   int
	Text  string
	Meta  Meta
}

// Role: 固定角色集合（训练记录的规范角色）。
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// DialogueTurn: 训练记录内的一轮发言；顺序有意义。
type DialogueTurn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Provenance: 记录溯源（用于追踪与去重定位）。
type Provenance struct {
	SourceID   DocID      `json:"source_id"`
	ChunkIndex ChunkIndex `json:"chunk_index"`
	Lens       string     `json:"lens"`
}

// TrainingRecord: 有序轮次 + 溯源；构造后不可变。
// 所有权沿 Parser → Validator → Writer 单向传递，任何阶段不得共享可变引用。
type TrainingRecord struct {
	Turns      []DialogueTurn `json:"turns"`
	Provenance Provenance     `json:"provenance"`
}

// CloneTurns: 强制拷贝轮次切片（含内容字符串），避免底层共享导致生命周期耦合。
func CloneTurns(ts []DialogueTurn) []DialogueTurn {
	if len(ts) == 0 {
		return nil
	}
	out := make([]DialogueTurn, len(ts))
	for i, t := range ts {
		out[i] = DialogueTurn{Role: t.Role, Content: cloneString(t.Content)}
	}
	return out
}

// cloneString: 强制拷贝字符串。
func cloneString(s string) string {
	if s == "" {
		return ""
	}
	b := make([]byte, len(s))
	copy(b, s)
	return string(b)
}

// CloneMeta: 复制 Meta 映射，避免引用共享导致意外修改。
func CloneMeta(m Meta) Meta {
	if m == nil {
		return nil
	}
	out := make(Meta, len(m))
	for k, v := range m {
		out[cloneString(k)] = cloneString(v)
	}
	return out
}
