package core

import (
	"sort"
	"sync"
	"time"
)

type Failure struct {
	Path string
	Err  error
}

// BatchMetrics accumulates per-file outcomes of one run. Safe for concurrent use.
type BatchMetrics struct {
	mutex sync.Mutex

	Succeeded    int
	Failed       int
	TrianglesIn  int
	TrianglesOut int
	Elapsed      time.Duration
	Failures     []Failure
}

func NewBatchMetrics() *BatchMetrics {
	return &BatchMetrics{}
}

func (bm *BatchMetrics) RecordSuccess(trianglesIn, trianglesOut int, elapsed time.Duration) {
	bm.mutex.Lock()
	defer bm.mutex.Unlock()

	bm.Succeeded++
	bm.TrianglesIn += trianglesIn
	bm.TrianglesOut += trianglesOut
	bm.Elapsed += elapsed
}

func (bm *BatchMetrics) RecordFailure(path string, err error) {
	bm.mutex.Lock()
	defer bm.mutex.Unlock()

	bm.Failed++
	bm.Failures = append(bm.Failures, Failure{Path: path, Err: err})
}

// BatchSummary is a point-in-time copy of BatchMetrics.
type BatchSummary struct {
	Succeeded    int
	Failed       int
	TrianglesIn  int
	TrianglesOut int
	Elapsed      time.Duration
	Failures     []Failure
}

// Snapshot returns a copy with failures sorted by path, so parallel runs report identically.
func (bm *BatchMetrics) Snapshot() BatchSummary {
	bm.mutex.Lock()
	defer bm.mutex.Unlock()

	failures := make([]Failure, len(bm.Failures))
	copy(failures, bm.Failures)
	sort.Slice(failures, func(i, j int) bool { return failures[i].Path < failures[j].Path })

	return BatchSummary{
		Succeeded:    bm.Succeeded,
		Failed:       bm.Failed,
		TrianglesIn:  bm.TrianglesIn,
		TrianglesOut: bm.TrianglesOut,
		Elapsed:      bm.Elapsed,
		Failures:     failures,
	}
}

func (bm *BatchMetrics) Total() int {
	bm.mutex.Lock()
	defer bm.mutex.Unlock()
	return bm.Succeeded + bm.Failed
}

// Reduction is the fraction of triangles kept across all succeeded files.
func (bm *BatchMetrics) Reduction() float64 {
	bm.mutex.Lock()
	defer bm.mutex.Unlock()
	if bm.TrianglesIn == 0 {
		return 0
	}
	return float64(bm.TrianglesOut) / float64(bm.TrianglesIn)
}

// LogSummary prints the end-of-run report. wall is the run's total duration,
// Elapsed the time spent inside simplifications.
func (bm *BatchMetrics) LogSummary(runID string, wall time.Duration) {
	s := bm.Snapshot()
	LogInfo("[%s] %d succeeded, %d failed, triangles %d -> %d (%.1f%% kept), %s total, %s simplifying",
		ShortID(runID), s.Succeeded, s.Failed, s.TrianglesIn, s.TrianglesOut, bm.Reduction()*100,
		wall.Round(time.Millisecond), s.Elapsed.Round(time.Millisecond))
	for _, f := range s.Failures {
		LogError("[%s]   failed: %s: %v", ShortID(runID), f.Path, f.Err)
	}
}
