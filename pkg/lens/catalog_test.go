package lens

import (
	"errors"
	"testing"

	"synthdlg/pkg/contract"
)

// TestBuiltinCatalog 内置目录完整性
func TestBuiltinCatalog(t *testing.T) {
	c := Builtin()
	for _, name := range []string{"dialogue", "lecture", "summary", "bullets"} {
		l, err := c.Get(name)
		if err != nil {
			t.Fatalf("builtin %q missing: %v", name, err)
		}
		if l.Name != name {
			t.Fatalf("name mismatch: %q", l.Name)
		}
	}
	if c.Len() != 4 {
		t.Fatalf("unexpected builtin count %d", c.Len())
	}
}

// TestGetUnknown 未知名称返回 ErrUnknownLens
func TestGetUnknown(t *testing.T) {
	c := Builtin()
	_, err := c.Get("nope")
	if !errors.Is(err, contract.ErrUnknownLens) {
		t.Fatalf("expect ErrUnknownLens, got %v", err)
	}
}

// TestAddDuplicate 重名注册拒绝
func TestAddDuplicate(t *testing.T) {
	c := Builtin()
	l, _ := c.Get("summary")
	if err := c.Add(l); !errors.Is(err, contract.ErrConfig) {
		t.Fatalf("expect config error on duplicate, got %v", err)
	}
}

// TestCheckMarkerRoleMap 标记形状的角色映射规则
func TestCheckMarkerRoleMap(t *testing.T) {
	bad := contract.Lens{
		Name:     "x",
		Template: "{{.Chunk}}",
		Shape:    contract.ShapeDialogue,
		RoleMap:  contract.RoleMap{"A": contract.RoleUser, "B": contract.RoleUser},
	}
	if err := Check(bad); !errors.Is(err, contract.ErrConfig) {
		t.Fatalf("expect config error for two user labels, got %v", err)
	}
	bad.RoleMap = nil
	if err := Check(bad); !errors.Is(err, contract.ErrConfig) {
		t.Fatalf("expect config error for missing role map, got %v", err)
	}
}

// TestCheckTemplateSubstitution 模板必须含块替换点
func TestCheckTemplateSubstitution(t *testing.T) {
	bad := contract.Lens{Name: "x", Template: "no placeholder", Shape: contract.ShapeSummary}
	if err := Check(bad); !errors.Is(err, contract.ErrConfig) {
		t.Fatalf("expect config error for missing {{.Chunk}}, got %v", err)
	}
}

// TestDecodeStrict 未知字段与违例定义拒绝
func TestDecodeStrict(t *testing.T) {
	ok := []byte(`[{"name":"s2","template":"Summarize: {{.Chunk}}","shape":"summary"}]`)
	ls, err := Decode(ok)
	if err != nil || len(ls) != 1 {
		t.Fatalf("decode failed: %v", err)
	}
	unknown := []byte(`[{"name":"s2","template":"{{.Chunk}}","shape":"summary","extra":1}]`)
	if _, err := Decode(unknown); err == nil {
		t.Fatalf("expect strict decode failure")
	}
	badShape := []byte(`[{"name":"s2","template":"{{.Chunk}}","shape":"haiku"}]`)
	if _, err := Decode(badShape); !errors.Is(err, contract.ErrConfig) {
		t.Fatalf("expect config error for bad shape, got %v", err)
	}
}

// TestOrderPreserved 注册顺序保持（输出可复现的前提）
func TestOrderPreserved(t *testing.T) {
	c := Builtin()
	names := c.Names()
	want := []string{"dialogue", "lecture", "summary", "bullets"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("order broken: %v", names)
		}
	}
}
