package contract

// Shape: lens 声明的期望输出形状标识。
// 形状决定 Parser 的边界识别策略与最小轮数，详见各 Parser 实现。
type Shape string

const (
	// ShapeDialogue: 标记式多轮对话（[Student]/[Teacher] 风格），严格交替，≥2 轮。
	ShapeDialogue Shape = "dialogue"
	// ShapeLecture: 标记式问答+长篇讲解，复用对话标记规则，≥2 轮。
	ShapeLecture Shape = "lecture"
	// ShapeSummary: 无标记单段摘要，产出单一 assistant 轮。
	ShapeSummary Shape = "summary"
	// ShapeBullets: 无标记条目列表（≥2 条），归一为 "- " 前缀的单一 assistant 轮。
	ShapeBullets Shape = "bullets"
)

// RoleMap: 标记标签（如 "Student"）→ 规范角色的映射表。
// 匹配大小写不敏感；未入表的标签不视为轮边界。
type RoleMap map[string]Role

// GenParams: 生成参数（lens 默认值，运行配置可覆盖）。
// 指针字段为 nil 表示“未指定”，以便覆盖合并能区分零值。
type GenParams struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens int      `json:"max_output_tokens,omitempty"`
}

// Merge: 返回以 over 覆盖 p 后的参数（nil/0 不覆盖）。纯函数。
func (p GenParams) Merge(over GenParams) GenParams {
	out := p
	if over.Temperature != nil {
		v := *over.Temperature
		out.Temperature = &v
	}
	if over.MaxOutputTokens > 0 {
		out.MaxOutputTokens = over.MaxOutputTokens
	}
	return out
}

// Lens: 命名提示/解析策略描述符（模板 + 形状 + 角色映射 + 默认参数）。
// 约束：
//  1. 不可变；目录加载后按名称查找；
//  2. Template 恰含一个块文本替换点（text/template 语法，{{.Chunk}}）；
//     可选引用 {{.Title}}（文档标题，可为空）；
//  3. 标记形状（dialogue/lecture）必须给出非空 RoleMap，且恰有一个标签映射
//     到 user（提问方）、一个映射到 assistant；
//  4. 新增 lens 仅新增目录条目，不触及既有解析逻辑。
type Lens struct {
	Name     string   `json:"name" validate:"required"`
	Template string   `json:"template" validate:"required,contains={{.Chunk}}"`
	Shape    Shape    `json:"shape" validate:"required,oneof=dialogue lecture summary bullets"`
	RoleMap  RoleMap  `json:"role_map,omitempty"`
	Params   GenParams `json:"params,omitempty"`
}

// Markered: 该形状是否以标记行界定轮边界。
func (s Shape) Markered() bool { return s == ShapeDialogue || s == ShapeLecture }

// AskerLabel: 返回映射到 user 的标签；无则返回空串。
func (m RoleMap) AskerLabel() string {
	for k, v := range m {
		if v == RoleUser {
			return k
		}
	}
	return ""
}
