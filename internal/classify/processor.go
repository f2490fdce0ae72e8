package classify

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/galaxia-dev/starchive/internal/archive"
	"github.com/galaxia-dev/starchive/internal/progress"
	"github.com/galaxia-dev/starchive/internal/taxonomy"
)

// Analyzer produces a classification for one record body. *LLMClient
// implements it.
type Analyzer interface {
	Analyze(ctx context.Context, content string) (Analysis, error)
}

// Summary is the outcome tally of one classification run.
type Summary struct {
	Total     int
	Processed int
	Skipped   int
	Failed    int
	Elapsed   time.Duration
}

// ProcessorConfig configures one classification run.
type ProcessorConfig struct {
	Concurrency int
	RunID       uuid.UUID
}

// Processor walks a raw archive directory and writes classified copies of
// its records into the processed directory. Records already classified in
// the destination are skipped, so an interrupted run resumes where it
// stopped.
type Processor struct {
	cfg      ProcessorConfig
	analyzer Analyzer
	emitter  progress.Emitter
	log      *zap.Logger
}

// NewProcessor builds a processor.
func NewProcessor(cfg ProcessorConfig, analyzer Analyzer, emitter progress.Emitter, log *zap.Logger) *Processor {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Processor{cfg: cfg, analyzer: analyzer, emitter: emitter, log: log}
}

// Run classifies every record under srcDir into dstDir and reports the
// tally. A record that cannot be classified is copied through unchanged so
// the processed directory never loses content relative to the raw one.
func (p *Processor) Run(ctx context.Context, srcDir, dstDir string) (Summary, error) {
	start := time.Now()

	src, err := archive.NewStore(srcDir)
	if err != nil {
		return Summary{}, err
	}
	dst, err := archive.NewStore(dstDir)
	if err != nil {
		return Summary{}, err
	}

	paths, err := src.List()
	if err != nil {
		return Summary{}, err
	}
	if len(paths) == 0 {
		return Summary{}, fmt.Errorf("no records found in %s; crawl first", srcDir)
	}

	var (
		mu      sync.Mutex
		summary = Summary{Total: len(paths)}
		wg      sync.WaitGroup
		sem     = make(chan struct{}, p.cfg.Concurrency)
	)
	for _, path := range paths {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(path string) {
			defer wg.Done()
			defer func() { <-sem }()
			outcome := p.processOne(ctx, src, dst, path)
			mu.Lock()
			switch outcome {
			case progress.StageClassifyDone:
				summary.Processed++
			case progress.StageClassifySkip:
				summary.Skipped++
			default:
				summary.Failed++
			}
			mu.Unlock()
		}(path)
	}
	wg.Wait()

	summary.Elapsed = time.Since(start)
	p.log.Info("classification run finished",
		zap.Int("total", summary.Total),
		zap.Int("processed", summary.Processed),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
		zap.Duration("elapsed", summary.Elapsed))
	return summary, ctx.Err()
}

func (p *Processor) processOne(ctx context.Context, src, dst *archive.Store, path string) progress.Stage {
	name := filepath.Base(path)
	dstPath := dst.AssetPath(name)

	// Resume check: a classified copy in the destination is final.
	if dst.AssetExists(name) {
		if rec, err := dst.Load(dstPath); err == nil && rec.Meta.Classified() {
			p.emit(progress.StageClassifySkip, name, 0)
			return progress.StageClassifySkip
		}
	}

	rec, err := src.Load(path)
	if err != nil {
		p.log.Error("unreadable record", zap.String("file", name), zap.Error(err))
		p.emit(progress.StageClassifyFail, name, 0)
		return progress.StageClassifyFail
	}

	started := time.Now()
	analysis, err := p.analyzer.Analyze(ctx, rec.Body)
	if err != nil {
		p.log.Error("classification failed, copying record through",
			zap.String("file", name), zap.Error(err))
		if saveErr := dst.Save(rec); saveErr != nil {
			p.log.Error("copy-through failed", zap.String("file", name), zap.Error(saveErr))
		}
		p.emit(progress.StageClassifyFail, name, time.Since(started))
		return progress.StageClassifyFail
	}

	topic := analysis.Topic
	if topic == "" {
		topic = "未分类"
	}
	normalizedTopic, official := taxonomy.NormalizeTopic(topic)
	if !official {
		p.log.Info("emergent topic kept", zap.String("file", name), zap.String("topic", normalizedTopic))
	}
	rec.Meta.Tags = taxonomy.NormalizeTags(analysis.Tags)
	rec.Meta.Digest = analysis.Digest
	rec.Meta.Topic = normalizedTopic

	if err := dst.Save(rec); err != nil {
		p.log.Error("saving classified record", zap.String("file", name), zap.Error(err))
		p.emit(progress.StageClassifyFail, name, time.Since(started))
		return progress.StageClassifyFail
	}
	p.emit(progress.StageClassifyDone, name, time.Since(started))
	return progress.StageClassifyDone
}

func (p *Processor) emit(stage progress.Stage, itemID string, dur time.Duration) {
	if p.emitter == nil {
		return
	}
	p.emitter.Emit(progress.Event{
		RunID:  p.cfg.RunID,
		TS:     time.Now().UTC(),
		Stage:  stage,
		ItemID: itemID,
		Dur:    dur,
	})
}
