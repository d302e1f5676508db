// Copyright 2024 phyg Project Authors
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

	"github.com/juju/errors"
	"golang.org/x/sync/errgroup"
)

// Parallel schedules and runs jobs in parallel. nJobs is the number of jobs and nWorkers
// is the number of concurrent executors. The first failing job cancels the jobs that
// have not started yet and its error is returned.
func Parallel(ctx context.Context, nJobs, nWorkers int, worker func(ctx context.Context, jobId int) error) error {
	if nWorkers <= 1 {
		for i := 0; i < nJobs; i++ {
			if err := ctx.Err(); err != nil {
				return errors.Trace(err)
			}
			if err := worker(ctx, i); err != nil {
				return errors.Trace(err)
			}
		}
		return nil
	}
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(nWorkers)
	for i := 0; i < nJobs; i++ {
		if groupCtx.Err() != nil {
			break
		}
		jobId := i
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			return worker(groupCtx, jobId)
		})
	}
	if err := group.Wait(); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(ctx.Err())
}

// Map runs mapper over [0, nJobs) in parallel and collects the results in job order.
func Map[T any](ctx context.Context, nJobs, nWorkers int, mapper func(ctx context.Context, jobId int) (T, error)) ([]T, error) {
	results := make([]T, nJobs)
	err := Parallel(ctx, nJobs, nWorkers, func(ctx context.Context, jobId int) error {
		result, err := mapper(ctx, jobId)
		if err != nil {
			return err
		}
		results[jobId] = result
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}
