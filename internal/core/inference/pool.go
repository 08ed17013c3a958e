// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// This file implements the worker pool that runs inference calls.
//
// Logic Flow:
//  1. NewWorkerPool starts a fixed number of worker goroutines, all reading
//     from one jobs channel.
//  2. Submit hands a job to the pool and waits for its result. The caller
//     stops waiting as soon as its context ends; the worker finishes the job
//     on its own and drops the result into a buffered channel nobody reads.
//  3. A worker that picks up a job whose context already ended skips it.
//  4. Close stops the workers once they finish their current job.
package inference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
)

// ErrPoolClosed is returned by Submit after Close.
var ErrPoolClosed = errors.New("worker pool closed")

type poolJob struct {
	ctx  context.Context
	fn   func(context.Context) error
	done chan error // Buffered, so a worker never blocks on an abandoned job.
}

// WorkerPool bounds the number of concurrent inference calls.
type WorkerPool struct {
	jobs      chan *poolJob
	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
	size      int
}

// NewWorkerPool starts size workers. A size of zero or less uses one worker
// per CPU.
func NewWorkerPool(size int) *WorkerPool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	p := &WorkerPool{
		jobs:   make(chan *poolJob),
		closed: make(chan struct{}),
		size:   size,
	}
	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

// Size returns the number of workers.
func (p *WorkerPool) Size() int {
	return p.size
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.closed:
			return
		case job := <-p.jobs:
			if err := job.ctx.Err(); err != nil {
				job.done <- err
				continue
			}
			job.done <- runJob(job)
		}
	}
}

func runJob(job *poolJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("inference job panicked", "panic", r)
			err = fmt.Errorf("inference job panicked: %v", r)
		}
	}()
	return job.fn(job.ctx)
}

// Submit runs fn on a worker and returns its error. It returns ctx.Err() as
// soon as ctx ends, whether or not fn has started.
func (p *WorkerPool) Submit(ctx context.Context, fn func(context.Context) error) error {
	job := &poolJob{ctx: ctx, fn: fn, done: make(chan error, 1)}
	select {
	case p.jobs <- job:
	case <-ctx.Done():
		return ctx.Err()
	case <-p.closed:
		return ErrPoolClosed
	}
	select {
	case err := <-job.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-p.closed:
		return ErrPoolClosed
	}
}

// Close stops the workers and waits for running jobs to return.
func (p *WorkerPool) Close() {
	p.closeOnce.Do(func() {
		close(p.closed)
	})
	p.wg.Wait()
}

// RunOnPool runs fn on the pool and returns its value.
func RunOnPool[T any](ctx context.Context, p *WorkerPool, fn func(context.Context) (T, error)) (T, error) {
	type outcome struct {
		value T
		err   error
	}
	results := make(chan outcome, 1)
	err := p.Submit(ctx, func(ctx context.Context) error {
		value, err := fn(ctx)
		results <- outcome{value: value, err: err}
		return err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	out := <-results
	return out.value, out.err
}
