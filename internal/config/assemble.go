package config

import (
	"errors"
	"fmt"
	"strings"

	"synthdlg/internal/pipeline"
	"synthdlg/internal/rate"
	"synthdlg/internal/token"
	"synthdlg/pkg/contract"
	"synthdlg/pkg/lens"
	"synthdlg/pkg/registry"
)

// Validate 对最小必要边界做静态校验。
func Validate(cfg Config) error {
	if len(cfg.Inputs) == 0 {
		return errors.New("config: inputs empty")
	}
	for _, r := range cfg.Inputs {
		if strings.TrimSpace(r) == "" {
			return errors.New("config: input path cannot be empty")
		}
	}
	if cfg.Concurrency < 1 {
		return errors.New("config: concurrency must be >= 1")
	}
	if cfg.MaxRetries < 0 {
		return errors.New("config: max_retries must be >= 0")
	}
	if cfg.Generator == "" {
		return errors.New("config: generator not set")
	}
	prov, ok := cfg.Provider[cfg.Generator]
	if !ok {
		return fmt.Errorf("config: provider %q not found", cfg.Generator)
	}
	if prov.Client == "" {
		return fmt.Errorf("config: provider %q missing client", cfg.Generator)
	}
	// 组件名若为空，使用默认名（由 Defaults() 提供）。此处只要最终有值即可。
	d := Defaults()
	if name := effName(cfg.Components.Source, d.Components.Source); registry.Source[name] == nil {
		return fmt.Errorf("config: source %q not registered", name)
	}
	if name := effName(cfg.Components.Chunker, d.Components.Chunker); registry.Chunker[name] == nil {
		return fmt.Errorf("config: chunker %q not registered", name)
	}
	if name := effName(cfg.Components.Composer, d.Components.Composer); registry.Composer[name] == nil {
		return fmt.Errorf("config: composer %q not registered", name)
	}
	if name := effName(cfg.Components.Parser, d.Components.Parser); registry.Parser[name] == nil {
		return fmt.Errorf("config: parser %q not registered", name)
	}
	if name := effName(cfg.Components.Writer, d.Components.Writer); registry.Writer[name] == nil {
		return fmt.Errorf("config: writer %q not registered", name)
	}
	if name := effName(cfg.Components.Dedup, d.Components.Dedup); registry.Dedup[name] == nil {
		return fmt.Errorf("config: dedup %q not registered", name)
	}
	if registry.Generator[prov.Client] == nil {
		return fmt.Errorf("config: generator client %q not registered", prov.Client)
	}
	return nil
}

// Assemble 构造 Components 与 Settings。
// 严格 Options 解析在 registry（工厂）层进行；此处只传 raw JSON。
func Assemble(cfg Config) (pipeline.Components, pipeline.Settings, error) {
	if err := Validate(cfg); err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}

	// 有效名称
	d := Defaults()
	srcN := effName(cfg.Components.Source, d.Components.Source)
	chkN := effName(cfg.Components.Chunker, d.Components.Chunker)
	cmpN := effName(cfg.Components.Composer, d.Components.Composer)
	prsN := effName(cfg.Components.Parser, d.Components.Parser)
	wrtN := effName(cfg.Components.Writer, d.Components.Writer)
	ddpN := effName(cfg.Components.Dedup, d.Components.Dedup)

	// 构造实例
	src, err := registry.Source[srcN](cfg.Options.Source)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}
	chk, err := registry.Chunker[chkN](cfg.Options.Chunker)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}
	cmp, err := registry.Composer[cmpN](cfg.Options.Composer)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}
	prs, err := registry.Parser[prsN](cfg.Options.Parser)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}
	wrt, err := registry.Writer[wrtN](cfg.Options.Writer)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}
	ddp, err := registry.Dedup[ddpN](cfg.Options.Dedup)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}

	// 生成后端
	prov := cfg.Provider[cfg.Generator]
	gen, err := registry.Generator[prov.Client](prov.Options)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}

	comp := pipeline.Components{
		Source:    src,
		Chunker:   chk,
		Composer:  cmp,
		Generator: gen,
		Parser:    prs,
		Writer:    wrt,
		Dedup:     ddp,
	}

	// 限流 Gate：任一限额启用才构造；否则不装闸门。
	var gate *rate.Gate
	if prov.Limits.RPM > 0 || prov.Limits.TPM > 0 || prov.Limits.MaxTokensPerReq > 0 {
		gate = rate.NewGate(rate.Limits{
			RPM:             prov.Limits.RPM,
			TPM:             prov.Limits.TPM,
			MaxTokensPerReq: prov.Limits.MaxTokensPerReq,
		}, nil)
	}

	est, err := token.NewEstimator(cfg.Token.Encoding, cfg.Token.BytesPerToken)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}

	lenses, err := resolveLenses(cfg.Lenses)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}

	set := pipeline.Settings{
		Inputs:      cloneStrings(cfg.Inputs),
		Lenses:      lenses,
		Concurrency: cfg.Concurrency,
		MaxRetries:  cfg.MaxRetries,
		RunParams:   cfg.Params,
		Gate:        gate,
		Estimate:    est,
		Validate:    cfg.Validate,
		DatasetName: cfg.DatasetName,
	}
	return comp, set, nil
}

// resolveLenses 装载目录（内置 + 可选文件追加）并按选择集解析启用顺序。
// 选择集为空时启用目录内全部 lens（目录注册顺序）。
func resolveLenses(lc Lenses) ([]contract.Lens, error) {
	cat := lens.Builtin()
	if lc.File != "" {
		extra, err := lens.LoadFile(lc.File)
		if err != nil {
			return nil, err
		}
		for _, l := range extra {
			if err := cat.Add(l); err != nil {
				return nil, err
			}
		}
	}
	names := lc.Select
	if len(names) == 0 {
		names = cat.Names()
	}
	out := make([]contract.Lens, 0, len(names))
	for _, n := range names {
		l, err := cat.Get(n)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

func effName(got, def string) string {
	if got == "" {
		return def
	}
	return got
}
