package systems

import (
	"context"
	"fmt"
	"sync"

	"github.com/spaghettifunk/decimator/engine/core"
	"github.com/spaghettifunk/decimator/engine/metadata"
)

// JobSystem runs tasks on a fixed number of workers fed by a FIFO queue. With a
// single worker tasks complete strictly in submission order.
type JobSystem struct {
	numWorkers int
	jobQueue   chan metadata.JobTask
	wg         sync.WaitGroup
	pending    sync.WaitGroup
	closeOnce  sync.Once
}

var ErrNoWorkers = fmt.Errorf("attempting to create worker pool with less than 1 worker")
var ErrNegativeChannelSize = fmt.Errorf("attempting to create worker pool with a negative channel size")

func NewJobSystem(numWorkers int, channelSize int) (*JobSystem, error) {
	if numWorkers <= 0 {
		return nil, ErrNoWorkers
	}
	if channelSize < 0 {
		return nil, ErrNegativeChannelSize
	}

	jq := make(chan metadata.JobTask, channelSize)
	js := &JobSystem{
		numWorkers: numWorkers,
		jobQueue:   jq,
	}

	js.start()

	return js, nil
}

func (js *JobSystem) Workers() int {
	return js.numWorkers
}

func (js *JobSystem) start() {
	for i := 0; i < js.numWorkers; i++ {
		js.wg.Add(1)
		go func() {
			defer js.wg.Done()
			for job := range js.jobQueue {
				js.run(job)
			}
		}()
	}
}

func (js *JobSystem) run(job metadata.JobTask) {
	defer js.pending.Done()

	result, err := job.OnStart(job.InputParams)
	if err != nil {
		core.LogDebug("job %s failed: %v", job.ID, err)
		if job.OnFailure != nil {
			job.OnFailure(job.InputParams, err)
		}
	} else if job.OnComplete != nil {
		job.OnComplete(result)
	}

	if job.OnCompletionCallback != nil {
		job.OnCompletionCallback()
	}
}

// Submit queues the job, blocking while the queue is full. It gives up when ctx
// is done.
func (js *JobSystem) Submit(ctx context.Context, jt metadata.JobTask) error {
	js.pending.Add(1)
	select {
	case js.jobQueue <- jt:
		return nil
	case <-ctx.Done():
		js.pending.Done()
		return ctx.Err()
	}
}

// Wait blocks until every submitted job has finished.
func (js *JobSystem) Wait() {
	js.pending.Wait()
}

// Shutdown waits for queued jobs and stops the workers.
func (js *JobSystem) Shutdown() error {
	js.closeOnce.Do(func() {
		close(js.jobQueue)
	})
	js.wg.Wait()
	return nil
}
