package filesystem

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"synthdlg/pkg/contract"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func collect(t *testing.T, r *FileSystem, roots []string) []contract.SourceDocument {
	t.Helper()
	var docs []contract.SourceDocument
	err := r.Iterate(context.Background(), roots, func(d contract.SourceDocument) error {
		docs = append(docs, d)
		return nil
	})
	if err != nil {
		t.Fatalf("iterate: %v", err)
	}
	return docs
}

// TestIterateStableOrder 字典序稳定遍历，仅匹配扩展名
func TestIterateStableOrder(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.txt", "B")
	writeFile(t, dir, "a.md", "A")
	writeFile(t, dir, "c.bin", "skip")
	writeFile(t, dir, "sub/d.txt", "D")

	docs := collect(t, New(nil), []string{dir})
	if len(docs) != 3 {
		t.Fatalf("expect 3 docs, got %d", len(docs))
	}
	// 先子目录后文件，目录内字典序
	if docs[0].Text != "D" || docs[1].Text != "A" || docs[2].Text != "B" {
		t.Fatalf("order wrong: %+v", docs)
	}
}

// TestIterateCRLF CRLF→LF 归一
func TestIterateCRLF(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "w.txt", "line1\r\nline2\r\n")
	docs := collect(t, New(nil), []string{dir})
	if docs[0].Text != "line1\nline2\n" {
		t.Fatalf("CRLF not normalized: %q", docs[0].Text)
	}
}

// TestIterateTitleMeta Markdown 一级标题优先，否则文件名
func TestIterateTitleMeta(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "doc.md", "# The Real Title\n\nbody")
	writeFile(t, dir, "plain.txt", "body")
	docs := collect(t, New(nil), []string{dir})
	if docs[0].Meta["title"] != "The Real Title" {
		t.Fatalf("md title wrong: %q", docs[0].Meta["title"])
	}
	if docs[1].Meta["title"] != "plain" {
		t.Fatalf("txt title wrong: %q", docs[1].Meta["title"])
	}
}

// TestIterateExcludeDirs 排除目录名
func TestIterateExcludeDirs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".git/x.txt", "hidden")
	writeFile(t, dir, "ok.txt", "ok")
	r := New(&Options{ExcludeDirNames: []string{".git"}})
	docs := collect(t, r, []string{dir})
	if len(docs) != 1 || docs[0].Text != "ok" {
		t.Fatalf("exclusion broken: %+v", docs)
	}
}

// TestIterateSingleFileRoot 单文件 root 不做扩展名过滤
func TestIterateSingleFileRoot(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "raw.data", "payload")
	docs := collect(t, New(nil), []string{p})
	if len(docs) != 1 || docs[0].Text != "payload" {
		t.Fatalf("single file root broken: %+v", docs)
	}
}

// TestIterateSizeLimit 超限文件报错
func TestIterateSizeLimit(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "big.txt", "0123456789")
	r := New(&Options{MaxFileBytes: 5})
	err := r.Iterate(context.Background(), []string{dir}, func(contract.SourceDocument) error { return nil })
	if !errors.Is(err, contract.ErrInvalidInput) {
		t.Fatalf("expect ErrInvalidInput, got %v", err)
	}
}

// TestIterateYieldErrorStops yield 报错即中止
func TestIterateYieldErrorStops(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "a")
	writeFile(t, dir, "b.txt", "b")
	boom := errors.New("boom")
	n := 0
	err := New(nil).Iterate(context.Background(), []string{dir}, func(contract.SourceDocument) error {
		n++
		return boom
	})
	if !errors.Is(err, boom) || n != 1 {
		t.Fatalf("yield error should stop iteration: n=%d err=%v", n, err)
	}
}

// TestIterateNoRoots 空根集合为配置错误
func TestIterateNoRoots(t *testing.T) {
	err := New(nil).Iterate(context.Background(), nil, func(contract.SourceDocument) error { return nil })
	if !errors.Is(err, contract.ErrConfig) {
		t.Fatalf("expect ErrConfig, got %v", err)
	}
}

// TestIterateDocIDNormalized DocID 统一正斜杠
func TestIterateDocIDNormalized(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "sub/x.txt", "x")
	docs := collect(t, New(nil), []string{dir})
	for _, d := range docs {
		if strings.ContainsRune(string(d.ID), '\\') {
			t.Fatalf("DocID not normalized: %q", d.ID)
		}
	}
}
