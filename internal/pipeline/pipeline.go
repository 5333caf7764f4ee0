// Package pipeline 编排完整运行：
// Source → Chunker → {chunk × lens} 任务队列 → worker（Compose → Gate →
// Generate（退避重试）→ Parse → Validate）→ Accumulator →
// 排序去重终局化 → Writer。
//
// - 单点并发：仅此层管理并发与背压；原子组件均为同步、无内部并发。
// - 失败分级：瞬态生成错误退避重试；解析/校验失败按条目跳过并入 sidecar；
//   鉴权/配置错误为致命，记录首错并 cancel 整体。
// - 确定性输出：候选全量汇集后按（源、块、lens）排序，再依该次序咨询
//   去重索引并落盘；幸存者与 worker 完成次序无关。
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"synthdlg/internal/dataset"
	"synthdlg/internal/dedup"
	"synthdlg/internal/diag"
	"synthdlg/internal/rate"
	"synthdlg/internal/token"
	"synthdlg/pkg/contract"
)

// Components 聚合运行所需的原子组件。
type Components struct {
	Source    contract.SourceProvider
	Chunker   contract.Chunker
	Composer  contract.Composer
	Generator contract.Generator
	Parser    contract.Parser
	Writer    contract.Writer
	Dedup     contract.DedupIndex
}

// Settings 运行期配置（最小必要）。
type Settings struct {
	Inputs []string
	// Lenses: 本次运行启用的 lens（已自目录解析）。
	Lenses      []contract.Lens
	Concurrency int
	// MaxRetries: 生成阶段瞬态错误的最大重试次数（>=0）。0 表示不重试。
	MaxRetries int
	// RetryInitialInterval: 首次退避间隔；<=0 使用 backoff 默认（500ms）。
	RetryInitialInterval time.Duration
	// RunParams: 运行级生成参数覆盖（优先于 lens 默认）。
	RunParams contract.GenParams
	// Gate: 限流闸门（可选）；非空则在每次生成调用前 Wait。
	Gate *rate.Gate
	// Estimate: token 估算器（限流预算用）；nil 时按字节近似。
	Estimate token.Estimator
	// Validate: 记录校验阈值。
	Validate dedup.ValidateOptions
	// DatasetName: 产物基名；空串使用 "dataset"。
	DatasetName string
}

// Report 为一次运行的汇总结果。
type Report struct {
	Documents int           `json:"documents"`
	Chunks    int           `json:"chunks"`
	Records   int           `json:"records"`
	Failures  int           `json:"failures"`
	Dupes     int           `json:"dupes"`
	Retries   int64         `json:"retries"`
	Duration  time.Duration `json:"duration"`
}

// job: 一个（块 × lens）生成任务。
type job struct {
	chunk contract.Chunk
	lens  contract.Lens
}

// Run 执行完整流水线，返回运行报告。
// 致命错误（鉴权/配置/IO/取消）使整体失败；按条目失败不影响返回值。
func Run(ctx context.Context, comp Components, set Settings, log zerolog.Logger) (Report, error) {
	start := time.Now()
	if err := sanity(comp, set); err != nil {
		return Report{}, err
	}
	if set.Estimate == nil {
		set.Estimate, _ = token.NewEstimator("", 0)
	}
	name := set.DatasetName
	if name == "" {
		name = "dataset"
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lensNames := make([]string, len(set.Lenses))
	for i, l := range set.Lenses {
		lensNames[i] = l.Name
	}
	acc := dataset.NewAccumulator(lensNames)
	var counters diag.Counters

	nWorkers := set.Concurrency
	if nWorkers < 1 {
		nWorkers = 1
	}
	// 有界通道：2×并发度，形成自然背压
	inCh := make(chan job, nWorkers*2)

	// 首错（仅致命错误）
	var errMu sync.Mutex
	var firstErr error
	fail := func(err error) {
		errMu.Lock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
		errMu.Unlock()
	}

	var wg sync.WaitGroup
	wg.Add(nWorkers)
	for i := 0; i < nWorkers; i++ {
		go func() {
			defer wg.Done()
			for j := range inCh {
				runJob(ctx, comp, set, j, acc, &counters, fail, log)
			}
		}()
	}

	// 生产者：遍历文档、分块、按 lens 叉乘投递任务。
	var docCount, chunkCount int
	produceErr := comp.Source.Iterate(ctx, set.Inputs, func(doc contract.SourceDocument) error {
		docCount++
		chunks, err := comp.Chunker.Split(ctx, doc)
		if err != nil {
			// 分块失败属于输入/配置问题，整体终止
			return fmt.Errorf("chunk %s: %w", doc.ID, err)
		}
		log.Debug().Str("comp", "chunker").Str("doc", string(doc.ID)).Int("chunks", len(chunks)).Msg("split")
		chunkCount += len(chunks)
		for _, ch := range chunks {
			for _, l := range set.Lenses {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case inCh <- job{chunk: ch, lens: l}:
				}
			}
		}
		return nil
	})
	close(inCh)
	wg.Wait()

	if produceErr != nil {
		fail(fmt.Errorf("source iterate: %w", produceErr))
	}
	errMu.Lock()
	err := firstErr
	errMu.Unlock()
	// 上游取消可能未经任何 worker 记错（任务间隙收到取消）。
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}

	// 去重终局化：在确定性排序后的记录序列上咨询索引。
	// 幸存者由排序键决定而非 worker 完成次序——同内容冲突恒保留
	// （SourceID, ChunkIndex, lens 序）最小的记录，跨运行字节一致。
	var kept []contract.TrainingRecord
	if err == nil || errors.Is(err, context.Canceled) {
		var derr error
		kept, derr = dedupFinalize(comp.Dedup, acc, &counters)
		if derr != nil && err == nil {
			// 索引介质故障：去重失效会污染产出，整体终止
			err = fmt.Errorf("dedup: %w", derr)
		}
	}

	snap := counters.Snapshot()
	_, fails, dupes := acc.Counts()
	report := Report{
		Documents: docCount,
		Chunks:    chunkCount,
		Records:   len(kept),
		Failures:  fails,
		Dupes:     dupes,
		Retries:   snap.Retries,
		Duration:  time.Since(start),
	}
	if err != nil {
		// 取消：已接受记录仍构成有效的部分数据集，照常落盘后返回。
		// 其余致命错误（鉴权/配置/介质）不落盘。
		if errors.Is(err, context.Canceled) && kept != nil {
			flush := context.Background()
			if werr := writeJSONL(flush, comp.Writer, contract.ArtifactID(name+".jsonl"), func(w io.Writer) error {
				return dataset.EncodeJSONL(w, kept)
			}); werr != nil {
				log.Warn().Str("comp", "writer").Msg("partial dataset flush failed: " + werr.Error())
			}
			if werr := writeJSONL(flush, comp.Writer, contract.ArtifactID(name+".failures.jsonl"), func(w io.Writer) error {
				return dataset.EncodeFailuresJSONL(w, acc.Failures())
			}); werr != nil {
				log.Warn().Str("comp", "writer").Msg("failures flush failed: " + werr.Error())
			}
		}
		return report, err
	}

	// 落盘：记录主产物 + 失败 sidecar（流式管道，单次 Write 原子替换）。
	if werr := writeJSONL(ctx, comp.Writer, contract.ArtifactID(name+".jsonl"), func(w io.Writer) error {
		return dataset.EncodeJSONL(w, kept)
	}); werr != nil {
		return report, fmt.Errorf("write dataset: %w", werr)
	}
	if werr := writeJSONL(ctx, comp.Writer, contract.ArtifactID(name+".failures.jsonl"), func(w io.Writer) error {
		return dataset.EncodeFailuresJSONL(w, acc.Failures())
	}); werr != nil {
		return report, fmt.Errorf("write failures: %w", werr)
	}
	report.Duration = time.Since(start)
	log.Info().
		Int("documents", report.Documents).
		Int("chunks", report.Chunks).
		Int("records", report.Records).
		Int("failures", report.Failures).
		Int("dupes", report.Dupes).
		Int64("retries", report.Retries).
		Dur("duration", report.Duration).
		Msg("run finished")
	return report, nil
}

// runJob 处理单个（块 × lens）任务；按条目失败登记 sidecar，致命失败上报 fail。
func runJob(ctx context.Context, comp Components, set Settings, j job, acc *dataset.Accumulator, c *diag.Counters, fail func(error), log zerolog.Logger) {
	prov := contract.Provenance{
		SourceID:   j.chunk.DocID,
		ChunkIndex: j.chunk.Index,
		Lens:       j.lens.Name,
	}
	item := func(stage string, err error) {
		c.IncFailures()
		log.Warn().
			Str("comp", stage).
			Str("code", string(diag.Classify(err))).
			Str("doc", string(prov.SourceID)).
			Int64("chunk", int64(prov.ChunkIndex)).
			Str("lens", prov.Lens).
			Msg(err.Error())
		acc.AddFailure(dataset.Failure{Provenance: prov, Stage: stage, Reason: err.Error()})
	}

	req, err := comp.Composer.Compose(ctx, j.chunk, j.lens, set.RunParams)
	if err != nil {
		if diag.Fatal(err) || errors.Is(err, context.Canceled) {
			fail(fmt.Errorf("compose: %w", err))
			return
		}
		item("compose", err)
		return
	}

	raw, err := generate(ctx, comp.Generator, set, req, c)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return // 整体取消，首错已在别处记录
		}
		if diag.Fatal(err) {
			fail(fmt.Errorf("generate: %w", err))
			return
		}
		item("generate", err)
		return
	}
	c.IncGenerated()

	turns, err := comp.Parser.Parse(ctx, j.lens, raw)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		item("parse", err)
		return
	}

	rec := contract.TrainingRecord{Turns: turns, Provenance: prov}
	if err := dedup.Validate(rec, set.Validate); err != nil {
		item("validate", err)
		return
	}
	// 去重推迟到终局化（排序后）执行，worker 只汇集候选。
	acc.Add(rec)
}

// dedupFinalize 在排序后的候选序列上应用去重索引并返回幸存记录。
// 排序先于索引咨询，故幸存者与 worker 完成次序无关。
func dedupFinalize(idx contract.DedupIndex, acc *dataset.Accumulator, c *diag.Counters) ([]contract.TrainingRecord, error) {
	recs := acc.Records()
	kept := recs[:0]
	for _, rec := range recs {
		seen, err := idx.Seen(dedup.Key(rec.Turns))
		if err != nil {
			return nil, err
		}
		if seen {
			c.IncDupes()
			acc.AddSkipped()
			continue
		}
		c.IncRecords()
		kept = append(kept, rec)
	}
	return kept, nil
}

// generate 调用生成后端；瞬态错误按指数退避重试（上限 MaxRetries 次）。
func generate(ctx context.Context, g contract.Generator, set Settings, req contract.GenerationRequest, c *diag.Counters) (contract.Raw, error) {
	tokens := set.Estimate(req.Prompt) + req.Params.MaxOutputTokens
	var raw contract.Raw
	op := func() error {
		if set.Gate != nil {
			if err := set.Gate.Wait(ctx, rate.Ask{Requests: 1, Tokens: tokens}); err != nil {
				// 取消或单请求超限：重试无意义
				return backoff.Permanent(err)
			}
		}
		r, err := g.Generate(ctx, req)
		if err != nil {
			if diag.Transient(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		raw = r
		return nil
	}
	eb := backoff.NewExponentialBackOff()
	if set.RetryInitialInterval > 0 {
		eb.InitialInterval = set.RetryInitialInterval
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(set.MaxRetries)), ctx)
	err := backoff.RetryNotify(op, bo, func(error, time.Duration) {
		c.IncRetries()
	})
	return raw, err
}

// writeJSONL 通过管道把编码流交给 Writer 单次落盘。
func writeJSONL(ctx context.Context, w contract.Writer, id contract.ArtifactID, encode func(io.Writer) error) error {
	pr, pw := io.Pipe()
	done := make(chan error, 1)
	go func() {
		done <- w.Write(ctx, id, pr)
	}()
	encErr := encode(pw)
	if encErr != nil {
		_ = pw.CloseWithError(encErr)
	} else {
		_ = pw.Close()
	}
	werr := <-done
	if encErr != nil {
		return encErr
	}
	return werr
}

func sanity(comp Components, set Settings) error {
	if comp.Source == nil || comp.Chunker == nil || comp.Composer == nil ||
		comp.Generator == nil || comp.Parser == nil || comp.Writer == nil || comp.Dedup == nil {
		return fmt.Errorf("pipeline: %w: missing components", contract.ErrConfig)
	}
	if len(set.Inputs) == 0 {
		return fmt.Errorf("pipeline: %w: empty inputs", contract.ErrConfig)
	}
	if len(set.Lenses) == 0 {
		return fmt.Errorf("pipeline: %w: no lenses selected", contract.ErrConfig)
	}
	if set.MaxRetries < 0 {
		return fmt.Errorf("pipeline: %w: max_retries must be >= 0", contract.ErrConfig)
	}
	return nil
}
