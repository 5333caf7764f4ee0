package lens

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"

	"synthdlg/pkg/contract"
)

// Catalog: 名称 → Lens 的注册目录。
// 启动期加载一次后只读（逻辑上开放扩展：新增 lens 即新增条目，不改既有解析逻辑）。
// 保留插入顺序：运行时按该顺序对每个 Chunk 施加 lens，保证输出可复现。
type Catalog struct {
	byName map[string]contract.Lens
	order  []string
}

var validate = validator.New()

// New 创建空目录。
func New() *Catalog {
	return &Catalog{byName: make(map[string]contract.Lens)}
}

// Builtin 返回装载了内置 lens 的目录（dialogue/lecture/summary/bullets）。
func Builtin() *Catalog {
	c := New()
	for _, l := range builtins {
		// 内置定义在编译期保证合法；失败属编程错误。
		if err := c.Add(l); err != nil {
			panic(fmt.Sprintf("lens: builtin %q invalid: %v", l.Name, err))
		}
	}
	return c
}

// Add 校验并注册一个 lens；重名或定义违例返回 ErrConfig 包装。
func (c *Catalog) Add(l contract.Lens) error {
	if err := Check(l); err != nil {
		return err
	}
	if _, dup := c.byName[l.Name]; dup {
		return fmt.Errorf("lens: %w: duplicate name %q", contract.ErrConfig, l.Name)
	}
	c.byName[l.Name] = l
	c.order = append(c.order, l.Name)
	return nil
}

// Get 按名称查找；未知名称返回 ErrUnknownLens（配置错误类，非运行时崩溃）。
func (c *Catalog) Get(name string) (contract.Lens, error) {
	l, ok := c.byName[name]
	if !ok {
		return contract.Lens{}, fmt.Errorf("lens: %w: %q", contract.ErrUnknownLens, name)
	}
	return l, nil
}

// Names 返回注册顺序的名称副本。
func (c *Catalog) Names() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Len 返回条目数。
func (c *Catalog) Len() int { return len(c.order) }

// Check 对单个 lens 定义做静态校验（结构 tag + 领域规则）。
func Check(l contract.Lens) error {
	if err := validate.Struct(l); err != nil {
		return fmt.Errorf("lens %q: %w: %v", l.Name, contract.ErrConfig, err)
	}
	if l.Shape.Markered() {
		users, assistants := 0, 0
		for label, role := range l.RoleMap {
			if label == "" {
				return fmt.Errorf("lens %q: %w: empty marker label", l.Name, contract.ErrConfig)
			}
			switch role {
			case contract.RoleUser:
				users++
			case contract.RoleAssistant:
				assistants++
			default:
				return fmt.Errorf("lens %q: %w: unknown role %q", l.Name, contract.ErrConfig, role)
			}
		}
		if users != 1 || assistants != 1 {
			return fmt.Errorf("lens %q: %w: marker shape requires exactly one user and one assistant label", l.Name, contract.ErrConfig)
		}
	}
	return nil
}

// LoadFile 从 JSON 文件加载 lens 定义数组（严格拒绝未知字段）并逐条校验。
// 文件格式：[{name, template, shape, role_map?, params?}, ...]
func LoadFile(path string) ([]contract.Lens, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("lens file read: %w", err)
	}
	return Decode(b)
}

// Decode 解析并校验 lens 定义数组。
func Decode(b []byte) ([]contract.Lens, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	var ls []contract.Lens
	if err := dec.Decode(&ls); err != nil {
		return nil, fmt.Errorf("lens decode: %w: %v", contract.ErrConfig, err)
	}
	for _, l := range ls {
		if err := Check(l); err != nil {
			return nil, err
		}
	}
	return ls, nil
}
