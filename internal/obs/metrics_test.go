package obs

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				m.Inc(MessagesIn)
			}
		}()
	}
	wg.Wait()
	m.Inc(Connects)
	m.Inc(counterCount)

	assert.Equal(t, uint64(800), m.Load(MessagesIn))
	assert.Equal(t, uint64(1), m.Load(Connects))
	assert.Zero(t, m.Load(counterCount))

	snap := m.Snapshot()
	assert.Len(t, snap.Counters, int(counterCount))
	assert.Equal(t, uint64(800), snap.Counters["messages_in"])
	assert.Equal(t, "unknown", Counter(-1).String())
}

func TestMetricsLatency(t *testing.T) {
	m := NewMetrics()
	m.ObserveHandshake(10 * time.Millisecond)
	m.ObserveHandshake(30 * time.Millisecond)
	m.ObserveHandshake(-time.Second)

	snap := m.Snapshot().HandshakeLatency
	assert.Equal(t, uint64(2), snap.Count)
	assert.Equal(t, 10*time.Millisecond, snap.Min)
	assert.Equal(t, 30*time.Millisecond, snap.Max)
	assert.Equal(t, 20*time.Millisecond, snap.Avg)
	assert.Zero(t, m.Snapshot().DispatchLatency.Count)
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.Inc(Connects)
	m.ObserveDispatch(time.Second)
	assert.Zero(t, m.Load(Connects))
	assert.Empty(t, m.Snapshot().Counters)
}
