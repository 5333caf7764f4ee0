package ground

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"text/template"

	"synthdlg/pkg/contract"
)

// Options 为扎根式 Composer 的可选配置。
type Options struct {
	// TitleKey: 文档 Meta 中标题键名；空串使用默认 "title"。
	TitleKey string `json:"title_key"`
}

// Composer 将块文本插入 lens 模板，合并生成参数。
// 纯计算：同输入必得同请求文本；模板按 lens 名缓存，首次使用时解析。
type Composer struct {
	titleKey string

	mu    sync.Mutex
	cache map[string]*template.Template
}

// New 创建 Composer。
func New(opts *Options) *Composer {
	tk := "title"
	if opts != nil && opts.TitleKey != "" {
		tk = opts.TitleKey
	}
	return &Composer{titleKey: tk, cache: make(map[string]*template.Template)}
}

// promptData: 模板可见的数据（唯一块替换点 + 可选标题上下文）。
type promptData struct {
	Chunk string
	Title string
}

// Compose 实现 contract.Composer。
// 参数合并优先级：运行配置 > lens 默认。
func (c *Composer) Compose(ctx context.Context, ch contract.Chunk, l contract.Lens, runParams contract.GenParams) (contract.GenerationRequest, error) {
	select {
	case <-ctx.Done():
		return contract.GenerationRequest{}, ctx.Err()
	default:
	}
	if ch.Text == "" {
		return contract.GenerationRequest{}, fmt.Errorf("composer: %w: empty chunk text", contract.ErrInvalidInput)
	}
	tpl, err := c.lookup(l)
	if err != nil {
		return contract.GenerationRequest{}, err
	}
	var buf bytes.Buffer
	buf.Grow(len(l.Template) + len(ch.Text))
	if err := tpl.Execute(&buf, promptData{Chunk: ch.Text, Title: c.title(ch)}); err != nil {
		return contract.GenerationRequest{}, fmt.Errorf("composer render %q: %w", l.Name, err)
	}
	return contract.GenerationRequest{
		Prompt: buf.String(),
		Params: l.Params.Merge(runParams),
	}, nil
}

// title 取块 Meta 中的标题；缺失时退化为 DocID，保证上下文行非空且确定。
func (c *Composer) title(ch contract.Chunk) string {
	if t := ch.Meta[c.titleKey]; t != "" {
		return t
	}
	return string(ch.DocID)
}

// lookup 返回 lens 模板（带缓存）。
func (c *Composer) lookup(l contract.Lens) (*template.Template, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.cache[l.Name]; ok {
		return t, nil
	}
	t, err := template.New(l.Name).Option("missingkey=error").Parse(l.Template)
	if err != nil {
		return nil, fmt.Errorf("composer template %q: %w: %v", l.Name, contract.ErrConfig, err)
	}
	c.cache[l.Name] = t
	return t, nil
}

var _ contract.Composer = (*Composer)(nil)
