// Package filesystem 实现基于文件系统的 SourceProvider。
// 按稳定顺序（字典序，先目录后文件）递归扫描根集合，仅产出匹配扩展名的
// 常规文件；文本经 CRLF→LF 归一后整体装载为 SourceDocument。
package filesystem

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"synthdlg/pkg/contract"
)

// Options 为 FileSystem SourceProvider 的可选配置（最小必要）。
type Options struct {
	// Extensions: 接受的文件扩展名（小写、含点）。默认 [".txt",".md"]。
	Extensions []string `json:"extensions"`
	// ExcludeDirNames: 扫描目录时跳过这些目录名（小写基名完全匹配）。
	// 例如 [".git","node_modules","vendor"]。仅影响目录递归，不影响单文件 root。
	ExcludeDirNames []string `json:"exclude_dir_names"`
	// MaxFileBytes: 单文件字节上限；超限文件报错而非静默截断。<=0 使用默认 16MiB。
	MaxFileBytes int64 `json:"max_file_bytes"`
}

type FileSystem struct {
	exts       map[string]struct{}
	excludeDir map[string]struct{}
	maxBytes   int64
}

// New 创建 FileSystem SourceProvider。
func New(opts *Options) *FileSystem {
	exts := map[string]struct{}{".txt": {}, ".md": {}}
	if opts != nil && len(opts.Extensions) > 0 {
		exts = make(map[string]struct{}, len(opts.Extensions))
		for _, e := range opts.Extensions {
			if e == "" {
				continue
			}
			if !strings.HasPrefix(e, ".") {
				e = "." + e
			}
			exts[strings.ToLower(e)] = struct{}{}
		}
	}
	ex := make(map[string]struct{})
	if opts != nil {
		for _, name := range opts.ExcludeDirNames {
			if name == "" {
				continue
			}
			ex[strings.ToLower(name)] = struct{}{}
		}
	}
	var maxBytes int64 = 16 << 20
	if opts != nil && opts.MaxFileBytes > 0 {
		maxBytes = opts.MaxFileBytes
	}
	return &FileSystem{exts: exts, excludeDir: ex, maxBytes: maxBytes}
}

// Iterate 实现 contract.SourceProvider。
// yield 返回非 nil 即中止整个遍历并上抛该错误。
func (r *FileSystem) Iterate(ctx context.Context, roots []string, yield func(doc contract.SourceDocument) error) error {
	if len(roots) == 0 {
		return fmt.Errorf("source: %w: no roots", contract.ErrConfig)
	}
	for _, root := range roots {
		if err := r.iterateOne(ctx, root, yield); err != nil {
			return err
		}
	}
	return nil
}

func (r *FileSystem) iterateOne(ctx context.Context, root string, yield func(contract.SourceDocument) error) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	info, err := os.Lstat(root)
	if err != nil {
		return err
	}
	// 符号链接只跟随到常规文件；目录链接忽略，不报错。
	if info.Mode()&os.ModeSymlink != 0 {
		t, err := os.Stat(root)
		if err != nil {
			return err
		}
		if t.Mode().IsRegular() {
			return r.yieldFile(ctx, root, yield)
		}
		return nil
	}
	if info.IsDir() {
		return r.walkDir(ctx, root, yield)
	}
	if !info.Mode().IsRegular() {
		return nil
	}
	// 显式指定的单文件 root 不做扩展名过滤
	return r.yieldFile(ctx, root, yield)
}

func (r *FileSystem) walkDir(ctx context.Context, dir string, yield func(contract.SourceDocument) error) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	// 稳定顺序：字典序
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	// 先目录（不跟随目录符号链接）
	for _, e := range entries {
		if err := ctxErr(ctx); err != nil {
			return err
		}
		if !e.IsDir() {
			continue
		}
		if _, skip := r.excludeDir[strings.ToLower(e.Name())]; skip {
			continue
		}
		if err := r.walkDir(ctx, filepath.Join(dir, e.Name()), yield); err != nil {
			return err
		}
	}
	// 再文件（允许指向常规文件的符号链接）
	for _, e := range entries {
		if err := ctxErr(ctx); err != nil {
			return err
		}
		if e.IsDir() {
			continue
		}
		if _, ok := r.exts[strings.ToLower(filepath.Ext(e.Name()))]; !ok {
			continue
		}
		p := filepath.Join(dir, e.Name())
		if e.Type()&os.ModeSymlink != 0 {
			t, err := os.Stat(p)
			if err != nil {
				return err
			}
			if !t.Mode().IsRegular() {
				continue
			}
		}
		if err := r.yieldFile(ctx, p, yield); err != nil {
			return err
		}
	}
	return nil
}

func (r *FileSystem) yieldFile(ctx context.Context, path string, yield func(contract.SourceDocument) error) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Size() > r.maxBytes {
		return fmt.Errorf("source %s: %w: file size %d exceeds limit %d", path, contract.ErrInvalidInput, info.Size(), r.maxBytes)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	text := strings.ReplaceAll(string(b), "\r\n", "\n")
	doc := contract.SourceDocument{
		ID:   contract.NormalizeDocID(path),
		Text: text,
		Meta: contract.Meta{"title": titleOf(path, text)},
	}
	if err := ctxErr(ctx); err != nil {
		return err
	}
	return yield(doc)
}

// titleOf 提取文档标题：Markdown 首个一级标题优先，否则文件名（去扩展名）。
func titleOf(path, text string) string {
	if strings.EqualFold(filepath.Ext(path), ".md") {
		for _, ln := range strings.Split(text, "\n") {
			ln = strings.TrimSpace(ln)
			if ln == "" {
				continue
			}
			if t := strings.TrimPrefix(ln, "# "); t != ln {
				return strings.TrimSpace(t)
			}
			break
		}
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func ctxErr(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

var _ contract.SourceProvider = (*FileSystem)(nil)
