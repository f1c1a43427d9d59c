package stepup

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// reaper is the periodic storage-hygiene sweep: it transitions pending
// challenges past their deadline to expired. It is not needed for
// correctness, since VerifyCode and Authorize check expiry live, and never
// runs on a request path. Physical purge past the retention window is handled by
// the key TTLs.
type reaper struct {
	engine    *Engine
	store     *accessChallengeStore
	interval  time.Duration
	scanCount int64

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func newReaper(engine *Engine, store *accessChallengeStore, cfg ReaperConfig) *reaper {
	if !cfg.Enabled {
		return nil
	}

	r := &reaper{
		engine:    engine,
		store:     store,
		interval:  cfg.Interval,
		scanCount: cfg.ScanCount,
		done:      make(chan struct{}),
	}

	r.wg.Add(1)
	go r.run()

	return r
}

func (r *reaper) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.sweep()
		case <-r.done:
			return
		}
	}
}

func (r *reaper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), r.interval)
	defer cancel()

	expired, err := r.store.SweepExpired(ctx, r.scanCount)
	if err != nil {
		// The next tick retries; live expiry checks keep correctness either way.
		r.engine.emitAudit(ctx, auditEventReaperSweep, false, "", ResourceScope{}, "",
			mapChallengeStoreError(err), nil)
		return
	}
	if expired == 0 {
		return
	}

	for i := 0; i < expired; i++ {
		r.engine.metricInc(MetricReaperExpired)
	}
	r.engine.emitAudit(ctx, auditEventReaperSweep, true, "", ResourceScope{}, "", nil, func() map[string]string {
		return map[string]string{
			"expired": strconv.Itoa(expired),
		}
	})
}

// Close stops the sweep goroutine and waits for an in-flight sweep.
func (r *reaper) Close() {
	if r == nil {
		return
	}
	r.closeOnce.Do(func() {
		close(r.done)
		r.wg.Wait()
	})
}
