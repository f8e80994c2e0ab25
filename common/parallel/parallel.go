// Copyright 2026 sorrel Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package parallel

import (
	"context"
	"sync"

	"github.com/juju/errors"

	"github.com/sorrel-io/sorrel/common/util"
)

const chanSize = 1024

/* Parallel Schedulers */

// Parallel schedules and runs jobs in parallel. nJobs is the number of jobs and
// nWorkers is the number of executors. The ctx argument allows callers to cancel
// outstanding work; cancellation is observed between jobs, never inside one.
func Parallel(ctx context.Context, nJobs, nWorkers int, worker func(workerId, jobId int) error) error {
	if nWorkers <= 1 {
		for i := 0; i < nJobs; i++ {
			if err := ctx.Err(); err != nil {
				return errors.Trace(err)
			}
			if err := worker(0, i); err != nil {
				return errors.Trace(err)
			}
		}
	} else {
		// the first worker error cancels the producer, so it never blocks on
		// a channel nobody drains anymore
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		c := make(chan int, chanSize)
		// producer
		go func() {
			defer close(c)
			for i := 0; i < nJobs; i++ {
				select {
				case <-ctx.Done():
					return
				case c <- i:
				}
			}
		}()
		// consumer
		var wg sync.WaitGroup
		errs := make([]error, nJobs)
		for j := 0; j < nWorkers; j++ {
			// start workers
			workerId := j
			wg.Go(func() {
				defer util.CheckPanic()
				for {
					select {
					case <-ctx.Done():
						return
					case jobId, ok := <-c:
						if !ok {
							return
						}
						if err := ctx.Err(); err != nil {
							errs[jobId] = err
							return
						}
						// run job
						if err := worker(workerId, jobId); err != nil {
							errs[jobId] = err
							cancel()
							return
						}
					}
				}
			})
		}
		wg.Wait()
		// check errors, preferring job failures over the cancellations they caused
		var firstErr error
		for _, err := range errs {
			if err != nil && !errors.Is(err, context.Canceled) {
				return errors.Trace(err)
			} else if err != nil && firstErr == nil {
				firstErr = err
			}
		}
		if firstErr != nil {
			return errors.Trace(firstErr)
		}
	}
	return errors.Trace(ctx.Err())
}
