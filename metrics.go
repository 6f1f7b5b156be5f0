package forwardindex

import (
	"sync/atomic"
	"time"
)

// MetricsObserver receives operational metrics of a ForwardIndex.
// Implement this interface to integrate with monitoring systems; the
// metrics/prometheus package provides a Prometheus implementation.
//
// Calls may come from several goroutines at once.
type MetricsObserver interface {
	// OnAddDocument is called after a document was added to one
	// annotation. positions is the number of token slots reserved.
	OnAddDocument(annotation string, positions int, duration time.Duration, err error)

	// OnDeleteDocument is called after a document was deleted from one
	// annotation.
	OnDeleteDocument(annotation string, err error)

	// OnRetrieve is called after a snippet retrieval. parts is the number
	// of ranges requested.
	OnRetrieve(annotation string, parts int, duration time.Duration, err error)

	// OnInitialize is called after an annotation index finished loading,
	// in the background or on first use.
	OnInitialize(annotation string, duration time.Duration, err error)

	// OnMerge is called after the segment term spaces of an annotation
	// were merged.
	OnMerge(annotation string, segments, terms int, duration time.Duration)
}

// NoopMetricsObserver is a no-op implementation of MetricsObserver.
type NoopMetricsObserver struct{}

func (NoopMetricsObserver) OnAddDocument(string, int, time.Duration, error) {}
func (NoopMetricsObserver) OnDeleteDocument(string, error)                  {}
func (NoopMetricsObserver) OnRetrieve(string, int, time.Duration, error)    {}
func (NoopMetricsObserver) OnInitialize(string, time.Duration, error)       {}
func (NoopMetricsObserver) OnMerge(string, int, int, time.Duration)         {}

// BasicMetricsObserver provides simple in-memory counters.
// Useful for debugging and tests without external dependencies.
type BasicMetricsObserver struct {
	AddCount         atomic.Int64
	AddErrors        atomic.Int64
	AddPositions     atomic.Int64
	AddTotalNanos    atomic.Int64
	DeleteCount      atomic.Int64
	DeleteErrors     atomic.Int64
	RetrieveCount    atomic.Int64
	RetrieveErrors   atomic.Int64
	RetrieveParts    atomic.Int64
	RetrieveNanos    atomic.Int64
	InitializeCount  atomic.Int64
	InitializeErrors atomic.Int64
	MergeCount       atomic.Int64
	MergedTerms      atomic.Int64
	MergeTotalNanos  atomic.Int64
}

// OnAddDocument implements MetricsObserver.
func (b *BasicMetricsObserver) OnAddDocument(_ string, positions int, duration time.Duration, err error) {
	b.AddCount.Add(1)
	b.AddTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.AddErrors.Add(1)
		return
	}
	b.AddPositions.Add(int64(positions))
}

// OnDeleteDocument implements MetricsObserver.
func (b *BasicMetricsObserver) OnDeleteDocument(_ string, err error) {
	b.DeleteCount.Add(1)
	if err != nil {
		b.DeleteErrors.Add(1)
	}
}

// OnRetrieve implements MetricsObserver.
func (b *BasicMetricsObserver) OnRetrieve(_ string, parts int, duration time.Duration, err error) {
	b.RetrieveCount.Add(1)
	b.RetrieveParts.Add(int64(parts))
	b.RetrieveNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.RetrieveErrors.Add(1)
	}
}

// OnInitialize implements MetricsObserver.
func (b *BasicMetricsObserver) OnInitialize(_ string, _ time.Duration, err error) {
	b.InitializeCount.Add(1)
	if err != nil {
		b.InitializeErrors.Add(1)
	}
}

// OnMerge implements MetricsObserver.
func (b *BasicMetricsObserver) OnMerge(_ string, _, terms int, duration time.Duration) {
	b.MergeCount.Add(1)
	b.MergedTerms.Add(int64(terms))
	b.MergeTotalNanos.Add(duration.Nanoseconds())
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsObserver) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		AddCount:         b.AddCount.Load(),
		AddErrors:        b.AddErrors.Load(),
		AddPositions:     b.AddPositions.Load(),
		AddAvgNanos:      avg(b.AddTotalNanos.Load(), b.AddCount.Load()),
		DeleteCount:      b.DeleteCount.Load(),
		DeleteErrors:     b.DeleteErrors.Load(),
		RetrieveCount:    b.RetrieveCount.Load(),
		RetrieveErrors:   b.RetrieveErrors.Load(),
		RetrieveParts:    b.RetrieveParts.Load(),
		RetrieveAvgNanos: avg(b.RetrieveNanos.Load(), b.RetrieveCount.Load()),
		InitializeCount:  b.InitializeCount.Load(),
		InitializeErrors: b.InitializeErrors.Load(),
		MergeCount:       b.MergeCount.Load(),
		MergedTerms:      b.MergedTerms.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsObserver state.
type BasicMetricsStats struct {
	AddCount         int64
	AddErrors        int64
	AddPositions     int64
	AddAvgNanos      int64
	DeleteCount      int64
	DeleteErrors     int64
	RetrieveCount    int64
	RetrieveErrors   int64
	RetrieveParts    int64
	RetrieveAvgNanos int64
	InitializeCount  int64
	InitializeErrors int64
	MergeCount       int64
	MergedTerms      int64
}
