package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/galaxia-dev/starchive/internal/progress"
)

// PrometheusSink exports pipeline progress metrics. It owns all collectors
// for runs, pages, items, assets, and classification outcomes.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runRuntime    prometheus.Histogram

	pagesFetched prometheus.Counter
	items        *prometheus.CounterVec
	assets       *prometheus.CounterVec
	classified   *prometheus.CounterVec
	classifyTime prometheus.Histogram
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "starchive_runs_started_total",
			Help: "Total pipeline runs that have started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "starchive_runs_completed_total",
			Help: "Total pipeline runs completed partitioned by result.",
		}, []string{"result"}),
		runRuntime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "starchive_run_runtime_seconds",
			Help:    "Wall time per completed run.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}),
		pagesFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "starchive_pages_fetched_total",
			Help: "Pages fetched from the content API.",
		}),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "starchive_items_total",
			Help: "Archived items partitioned by outcome.",
		}, []string{"outcome"}),
		assets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "starchive_assets_total",
			Help: "Asset downloads partitioned by outcome.",
		}, []string{"outcome"}),
		classified: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "starchive_classifications_total",
			Help: "Classification attempts partitioned by outcome.",
		}, []string{"outcome"}),
		classifyTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "starchive_classification_duration_seconds",
			Help:    "Duration of successful classification calls.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runRuntime,
		s.pagesFetched,
		s.items,
		s.assets,
		s.classified,
		s.classifyTime,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors for each event in the batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageRunStart:
			s.runsStarted.Inc()
		case progress.StageRunDone:
			s.runsCompleted.WithLabelValues("ok").Inc()
			s.runRuntime.Observe(evt.Dur.Seconds())
		case progress.StageRunError:
			s.runsCompleted.WithLabelValues("error").Inc()
			s.runRuntime.Observe(evt.Dur.Seconds())
		case progress.StagePageFetched:
			s.pagesFetched.Inc()
		case progress.StageItemSaved:
			s.items.WithLabelValues("saved").Inc()
		case progress.StageItemSkipped:
			s.items.WithLabelValues("skipped").Inc()
		case progress.StageItemFailed:
			s.items.WithLabelValues("failed").Inc()
		case progress.StageAssetSaved:
			// Asset events arrive aggregated per item; Count carries the tally.
			s.assets.WithLabelValues("saved").Add(countOf(evt))
		case progress.StageAssetFailed:
			s.assets.WithLabelValues("failed").Add(countOf(evt))
		case progress.StageClassifyDone:
			s.classified.WithLabelValues("done").Inc()
			s.classifyTime.Observe(evt.Dur.Seconds())
		case progress.StageClassifySkip:
			s.classified.WithLabelValues("skipped").Inc()
		case progress.StageClassifyFail:
			s.classified.WithLabelValues("failed").Inc()
		}
	}
	return nil
}

func countOf(evt progress.Event) float64 {
	if evt.Count > 0 {
		return float64(evt.Count)
	}
	return 1
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
