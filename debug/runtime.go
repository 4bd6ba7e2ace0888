package debug

// Runtime statistics logger, started by the CLI only when debug is enabled.
// Samples goroutine count, stack and heap usage, and the process resident
// set where the platform exposes it.

import (
	"runtime"
	"runtime/metrics"
	"sync"
	"time"

	"go.uber.org/zap"
)

// StartRuntimeLogger logs runtime statistics every interval until the
// returned stop function is called. stop waits for the logging goroutine to
// exit and may be called more than once.
func StartRuntimeLogger(interval time.Duration, logger *zap.Logger) (stop func()) {
	if interval <= 0 {
		interval = time.Second
	}
	log := logger.Named("runtime")
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		samples := []metrics.Sample{{Name: "/sched/goroutines:goroutines"}}
		var rssErrLogged bool
		for {
			select {
			case <-done:
				return
			case <-t.C:
			}
			metrics.Read(samples)
			var ms runtime.MemStats
			runtime.ReadMemStats(&ms)
			rss, err := residentSet()
			if err != nil && !rssErrLogged {
				log.Warn("resident set unavailable", zap.Error(err))
				rssErrLogged = true
			}
			log.Info("runtime-stats",
				zap.Uint64("goroutines", samples[0].Value.Uint64()),
				zap.Uint64("stack_inuse", ms.StackInuse),
				zap.Uint64("heap_alloc", ms.HeapAlloc),
				zap.Uint64("heap_inuse", ms.HeapInuse),
				zap.Uint64("heap_sys", ms.HeapSys),
				zap.Uint64("next_gc", ms.NextGC),
				zap.Uint32("num_gc", ms.NumGC),
				zap.Uint64("rss", rss),
			)
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
		wg.Wait()
	}
}
