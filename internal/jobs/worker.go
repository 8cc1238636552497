package jobs

import (
	"context"
	"log"
	"time"
)

// JobProcessor is one unit of background work, invoked once per poll.
// The embedding backfill is the current implementation.
type JobProcessor interface {
	ProcessJobs(ctx context.Context) error
}

// Worker drives a JobProcessor on a fixed poll interval until the server
// shuts down. Processor errors are logged and the loop keeps polling.
type Worker struct {
	processor    JobProcessor
	pollInterval time.Duration
	stopChan     chan struct{}
	doneChan     chan struct{}
}

func NewWorker(processor JobProcessor, pollInterval time.Duration) *Worker {
	return &Worker{
		processor:    processor,
		pollInterval: pollInterval,
		stopChan:     make(chan struct{}),
		doneChan:     make(chan struct{}),
	}
}

// Start runs the polling loop. It returns when ctx is cancelled or Stop
// is called.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	defer close(w.doneChan)

	log.Printf("background worker started, polling every %v", w.pollInterval)

	for {
		select {
		case <-ctx.Done():
			log.Println("background worker stopped: context cancelled")
			return
		case <-w.stopChan:
			log.Println("background worker stopped: stop requested")
			return
		case <-ticker.C:
			if err := w.processor.ProcessJobs(ctx); err != nil {
				log.Printf("background worker: processing failed: %v", err)
			}
		}
	}
}

// Stop signals the loop to exit and waits for the in-flight poll to finish.
func (w *Worker) Stop() {
	close(w.stopChan)
	<-w.doneChan
	log.Println("background worker shut down")
}
