package sim

import (
	"log"
	"math/rand/v2"
	"sync"
	"time"
)

const (
	defaultSweepInterval = 13 * time.Second
	defaultSweepJitter   = 4 * time.Second
)

// Janitor evicts finished runs from the registry once they have been done
// for longer than the retention window, bounding memory for long-lived
// processes that start many runs.
type Janitor struct {
	runner      *Runner
	retention   time.Duration
	minInterval time.Duration
	jitterRange time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// test hook: called at the beginning of each sweep.
	sweepHook func()
}

func NewJanitor(runner *Runner, retention time.Duration) *Janitor {
	return newJanitorWithIntervals(runner, retention, defaultSweepInterval, defaultSweepJitter)
}

func newJanitorWithIntervals(runner *Runner, retention, minInterval, jitterRange time.Duration) *Janitor {
	if minInterval <= 0 {
		minInterval = time.Second
	}
	if jitterRange < 0 {
		jitterRange = 0
	}
	return &Janitor{
		runner:      runner,
		retention:   retention,
		minInterval: minInterval,
		jitterRange: jitterRange,
		stopCh:      make(chan struct{}),
	}
}

// Start launches the sweep loop. The interval is jittered so that several
// processes sharing a store do not sweep in lockstep.
func (j *Janitor) Start() {
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()

		timer := time.NewTimer(0)
		defer timer.Stop()
		<-timer.C // drain initial fire

		for {
			interval := j.minInterval
			if j.jitterRange > 0 {
				interval += time.Duration(rand.Int64N(int64(j.jitterRange)))
			}

			timer.Reset(interval)
			select {
			case <-j.stopCh:
				return
			case <-timer.C:
			}
			j.sweep()
		}
	}()
}

// Stop terminates the loop and waits for an in-flight sweep to finish.
func (j *Janitor) Stop() {
	j.stopOnce.Do(func() { close(j.stopCh) })
	j.wg.Wait()
}

func (j *Janitor) sweep() {
	if j.sweepHook != nil {
		j.sweepHook()
	}

	cutoffNs := time.Now().Add(-j.retention).UnixNano()
	j.runner.runs.Range(func(id string, run *Run) bool {
		select {
		case <-j.stopCh:
			return false
		default:
		}

		if run.done.Load() {
			doneAt := run.doneAtNs.Load()
			if doneAt > 0 && doneAt < cutoffNs {
				j.runner.runs.Delete(id)
				j.runner.metrics.RunEvicted()
				log.Printf("[sim] evicted finished run %s", id)
			}
		}
		return true
	})
}
