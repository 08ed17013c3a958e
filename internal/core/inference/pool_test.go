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

package inference_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jaycherian/gcp-go-media-analyzer/internal/core/inference"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolBoundsConcurrency(t *testing.T) {
	pool := inference.NewWorkerPool(2)
	defer pool.Close()
	assert.Equal(t, 2, pool.Size())

	var running, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := pool.Submit(context.Background(), func(ctx context.Context) error {
				now := atomic.AddInt32(&running, 1)
				for {
					old := atomic.LoadInt32(&peak)
					if now <= old || atomic.CompareAndSwapInt32(&peak, old, now) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				atomic.AddInt32(&running, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestPoolReturnsJobError(t *testing.T) {
	pool := inference.NewWorkerPool(1)
	defer pool.Close()

	boom := errors.New("boom")
	assert.ErrorIs(t, pool.Submit(context.Background(), func(context.Context) error { return boom }), boom)
}

func TestPoolCancelledCallerReturnsPromptly(t *testing.T) {
	pool := inference.NewWorkerPool(1)
	defer pool.Close()

	release := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() {
		errs <- pool.Submit(ctx, func(context.Context) error {
			<-release
			return nil
		})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-errs:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Submit did not return after cancellation")
	}
	close(release)
}

func TestPoolRecoversPanics(t *testing.T) {
	pool := inference.NewWorkerPool(1)
	defer pool.Close()

	err := pool.Submit(context.Background(), func(context.Context) error { panic("bad frame") })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad frame")

	// The worker survived.
	assert.NoError(t, pool.Submit(context.Background(), func(context.Context) error { return nil }))
}

func TestRunOnPool(t *testing.T) {
	pool := inference.NewWorkerPool(1)

	value, err := inference.RunOnPool(context.Background(), pool, func(context.Context) (string, error) {
		return "done", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "done", value)

	pool.Close()
	_, err = inference.RunOnPool(context.Background(), pool, func(context.Context) (string, error) {
		return "late", nil
	})
	assert.ErrorIs(t, err, inference.ErrPoolClosed)
}
