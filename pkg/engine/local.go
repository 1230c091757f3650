// Package engine provides an in-process execution engine. Every bucket and
// member of a region is served by the local member, which makes it suitable
// for single-node deployments and tests.
package engine

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"slices"
	"strconv"
	"sync"

	"github.com/dukex/gridfn/pkg/models"
	"github.com/dukex/gridfn/pkg/protocol"
)

const defaultWorkers = 8

type Option func(*Local)

// WithWorkers bounds how many buckets run at once.
func WithWorkers(n int) Option {
	return func(l *Local) {
		if n > 0 {
			l.workers = n
		}
	}
}

// Local runs functions on the calling goroutine's member. It keeps no state
// between calls; a re-execution is scoped by the client through its
// excluded-member set and reaches the function as IsReExecute.
type Local struct {
	memberID string
	logger   *slog.Logger
	workers  int
}

func NewLocal(memberID string, logger *slog.Logger, opts ...Option) *Local {
	l := &Local{
		memberID: memberID,
		logger:   logger.With("module", "local_engine"),
		workers:  defaultWorkers,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

func (l *Local) Execute(ctx context.Context, region protocol.Region, fn models.Function, ec *models.ExecutionContext, results models.ResultSender) error {
	if ec.Timeout() > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, ec.Timeout())
		defer cancel()
	}

	if ec.Topology != models.TopologyPartitioned {
		return l.executeReplicated(ctx, fn, ec, results)
	}

	return l.executePartitioned(ctx, region, fn, ec, results)
}

func (l *Local) executeReplicated(ctx context.Context, fn models.Function, ec *models.ExecutionContext, results models.ResultSender) error {
	if ec.ExcludedMembers.Contains(l.memberID) {
		return models.NewInternalTargetInvocationError(
			fmt.Sprintf("no member left to execute %s on %s", ec.Function.ID, ec.RegionPath),
			[]string{l.memberID},
		)
	}

	return l.invoke(ctx, fn, ec, -1, ec.Filter, results)
}

func (l *Local) executePartitioned(ctx context.Context, region protocol.Region, fn models.Function, ec *models.ExecutionContext, results models.ResultSender) error {
	buckets, err := l.buckets(region, ec)
	if err != nil {
		return err
	}

	l.logger.DebugContext(ctx, "Dispatching buckets",
		"function", ec.Function.ID,
		"region", ec.RegionPath,
		"buckets", len(buckets),
		"reExecute", ec.IsReExecute,
	)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
		sem  = make(chan struct{}, l.workers)
		out  = bucketResults{results}
	)

	for _, bucket := range buckets {
		wg.Add(1)

		sem <- struct{}{}

		go func(bucket int) {
			defer wg.Done()
			defer func() { <-sem }()

			err := l.invoke(ctx, fn, ec, bucket, ec.Filter, out)
			if err == nil {
				return
			}

			mu.Lock()
			defer mu.Unlock()

			errs = append(errs, err)
		}(bucket)
	}

	wg.Wait()

	if len(errs) == 0 {
		return nil
	}

	return l.combine(ec, errs)
}

// buckets lists the buckets a partitioned call runs on, in ascending order.
func (l *Local) buckets(region protocol.Region, ec *models.ExecutionContext) ([]int, error) {
	count := region.BucketCount()
	if count <= 0 {
		return nil, fmt.Errorf("region %s has no buckets", region.FullPath())
	}

	set := make(map[int]struct{})

	switch ec.Scope {
	case models.ScopeBuckets:
		for _, b := range ec.Targets.Ints() {
			if b < 0 || b >= count {
				return nil, models.NewInternalTargetInvocationError(
					fmt.Sprintf("bucket %d is not hosted by region %s", b, region.FullPath()), nil)
			}

			set[b] = struct{}{}
		}
	case models.ScopeKeys:
		for _, k := range ec.Targets.Values() {
			set[BucketFor(k, count)] = struct{}{}
		}
	default:
		for b := range count {
			set[b] = struct{}{}
		}
	}

	buckets := make([]int, 0, len(set))

	for b := range set {
		owner := region.BucketOwner(b)
		if owner != "" && ec.ExcludedMembers.Contains(owner) {
			continue
		}

		if ec.Scope == models.ScopeAllBuckets && ec.ExcludedMembers.Contains(int64(b)) {
			continue
		}

		buckets = append(buckets, b)
	}

	slices.Sort(buckets)

	return buckets, nil
}

func (l *Local) invoke(ctx context.Context, fn models.Function, ec *models.ExecutionContext, bucket int, filter models.IDSet, results models.ResultSender) (err error) {
	// buckets run on their own goroutines
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("function %s panicked on bucket %d: %v", ec.Function.ID, bucket, r)
		}
	}()

	err = ctx.Err()
	if err != nil {
		return models.NewTargetInvocationError(fmt.Sprintf("function %s timed out", ec.Function.ID), err)
	}

	var args any = ec.Args
	if ec.MemberArgs != nil {
		args = ec.MemberArgs.ArgumentsFor(l.memberID)
	}

	err = fn.Execute(ctx, &models.FunctionContext{
		RegionName:  ec.RegionName,
		MemberID:    l.memberID,
		Bucket:      bucket,
		Args:        args,
		Filter:      filter,
		IsReExecute: ec.IsReExecute,
		Results:     results,
	})
	if err == nil {
		return nil
	}

	var execErr *models.ExecutionError
	if errors.As(err, &execErr) {
		return err
	}

	if errors.Is(err, protocol.ErrTargetInvocation) || errors.Is(err, context.DeadlineExceeded) {
		return models.NewTargetInvocationError(fmt.Sprintf("function %s failed on bucket %d", ec.Function.ID, bucket), err)
	}

	return err
}

// combine reports the first failure, preferring the one the client can act
// on.
func (l *Local) combine(ec *models.ExecutionContext, errs []error) error {
	for _, err := range errs {
		var execErr *models.ExecutionError
		if errors.As(err, &execErr) && execErr.Cause == models.CauseInternalTargetInvocation {
			return err
		}
	}

	if len(errs) > 1 {
		l.logger.Debug("Several buckets failed", "function", ec.Function.ID, "failures", len(errs))
	}

	return errs[0]
}

// bucketResults sends a bucket's last result as an ordinary chunk. The
// stream closes once every bucket finished.
type bucketResults struct {
	results models.ResultSender
}

func (b bucketResults) SendResult(v any) error {
	return b.results.SendResult(v)
}

func (b bucketResults) LastResult(v any) error {
	return b.results.SendResult(v)
}

// BucketFor hashes a routing key onto one of count buckets.
func BucketFor(key any, count int) int {
	h := fnv.New32a()

	switch k := models.NormalizeID(key).(type) {
	case string:
		_, _ = h.Write([]byte(k))
	case []byte:
		_, _ = h.Write(k)
	case int64:
		_, _ = h.Write([]byte(strconv.FormatInt(k, 10)))
	default:
		_, _ = fmt.Fprint(h, k)
	}

	return int(h.Sum32() % uint32(count))
}
