package debug

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestStartRuntimeLogger(t *testing.T) {
	defer goleak.VerifyNone(t)

	core, logs := observer.New(zapcore.InfoLevel)
	stop := StartRuntimeLogger(5*time.Millisecond, zap.New(core))
	assert.Eventually(t, func() bool {
		return logs.FilterMessage("runtime-stats").Len() >= 2
	}, 2*time.Second, 5*time.Millisecond)
	stop()
	stop()

	entry := logs.FilterMessage("runtime-stats").All()[0]
	assert.Contains(t, entry.ContextMap(), "goroutines")
	assert.Contains(t, entry.ContextMap(), "heap_alloc")
}
