// Package registry 维护各能力接口的显式工厂表（零反射）。
// 工厂统一接收原样 JSON Options，严格解码（拒绝未知字段）。
package registry

import (
	"bytes"
	"encoding/json"

	"synthdlg/internal/dedup"
	"synthdlg/pkg/contract"
	cwin "synthdlg/plugins/chunker/window"
	cgrd "synthdlg/plugins/composer/ground"
	flk "synthdlg/plugins/llmclient/flaky"
	mck "synthdlg/plugins/llmclient/mock"
	olm "synthdlg/plugins/llmclient/ollama"
	oai "synthdlg/plugins/llmclient/openai"
	pmk "synthdlg/plugins/parser/markers"
	sfs "synthdlg/plugins/source/filesystem"
	wfs "synthdlg/plugins/writer/filesystem"
)

// strictUnmarshal: 使用 DisallowUnknownFields 严格解码，拒绝未知字段。
func strictUnmarshal(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		// 保持零值（默认选项）
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// NewSource 工厂签名：接收原样 JSON Options。
type NewSource func(raw json.RawMessage) (contract.SourceProvider, error)

// NewChunker 工厂签名。
type NewChunker func(raw json.RawMessage) (contract.Chunker, error)

// NewComposer 工厂签名。
type NewComposer func(raw json.RawMessage) (contract.Composer, error)

// NewParser 工厂签名。
type NewParser func(raw json.RawMessage) (contract.Parser, error)

// NewGenerator 工厂签名。
type NewGenerator func(raw json.RawMessage) (contract.Generator, error)

// NewWriter 工厂签名。
type NewWriter func(raw json.RawMessage) (contract.Writer, error)

// NewDedupIndex 工厂签名。
type NewDedupIndex func(raw json.RawMessage) (contract.DedupIndex, error)

// Source 工厂注册表。
var Source = map[string]NewSource{
	// fs: 文件系统 SourceProvider（.txt/.md）
	"fs": func(raw json.RawMessage) (contract.SourceProvider, error) {
		var opts sfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return sfs.New(&opts), nil
	},
}

// Chunker 工厂注册表。
var Chunker = map[string]NewChunker{
	// window: 边界单元滑动窗口分块
	"window": func(raw json.RawMessage) (contract.Chunker, error) {
		var opts cwin.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return cwin.New(&opts)
	},
}

// Composer 工厂注册表。
var Composer = map[string]NewComposer{
	// ground: lens 模板插值 Composer
	"ground": func(raw json.RawMessage) (contract.Composer, error) {
		var opts cgrd.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return cgrd.New(&opts), nil
	},
}

// Parser 工厂注册表。
var Parser = map[string]NewParser{
	// markers: 标记/块形状响应解析器
	"markers": func(raw json.RawMessage) (contract.Parser, error) {
		if err := strictUnmarshal(raw, &struct{}{}); err != nil {
			return nil, err
		}
		return pmk.New(), nil
	},
}

// Generator 工厂注册表。
var Generator = map[string]NewGenerator{
	"openai": func(raw json.RawMessage) (contract.Generator, error) { return oai.New(raw) },
	"ollama": func(raw json.RawMessage) (contract.Generator, error) { return olm.New(raw) },
	"mock":   func(raw json.RawMessage) (contract.Generator, error) { return mck.New(raw) },
	"flaky":  func(raw json.RawMessage) (contract.Generator, error) { return flk.New(raw) },
}

// Writer 工厂注册表。
var Writer = map[string]NewWriter{
	// fs: 文件系统 Writer（原子替换可配置）
	"fs": func(raw json.RawMessage) (contract.Writer, error) {
		var opts wfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return wfs.New(&opts)
	},
}

// dedupOptions: 持久索引选项。
type dedupOptions struct {
	Path string `json:"path"`
}

// Dedup 工厂注册表。
var Dedup = map[string]NewDedupIndex{
	// memory: 运行内索引（默认）
	"memory": func(raw json.RawMessage) (contract.DedupIndex, error) {
		if err := strictUnmarshal(raw, &struct{}{}); err != nil {
			return nil, err
		}
		return dedup.NewMemory(), nil
	},
	// sqlite: 跨运行持久索引
	"sqlite": func(raw json.RawMessage) (contract.DedupIndex, error) {
		var opts dedupOptions
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return dedup.NewSQLite(opts.Path)
	},
}
