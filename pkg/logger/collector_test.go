package logger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mu      sync.Mutex
	topics  []string
	batches [][]AggregatedLogEntry
	err     error
}

func (p *capturePublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.batches = append(p.batches, payload.([]AggregatedLogEntry))
	return p.err
}

func (p *capturePublisher) entries() []AggregatedLogEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []AggregatedLogEntry
	for _, b := range p.batches {
		out = append(out, b...)
	}
	return out
}

func TestCollectorAggregatesRepeats(t *testing.T) {
	pub := &capturePublisher{}
	l := Nop()
	l.AddCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 10, Topic: "logs", Publisher: pub})

	for i := 0; i < 3; i++ {
		l.Warn("source failed", String("source", "yahoo.GC=F"))
	}
	l.Info("not collected")
	l.Debug("not collected either")
	require.Equal(t, 1, l.collector.Pending())

	l.RemoveCollector()

	entries := pub.entries()
	require.Len(t, entries, 1)
	require.Equal(t, "warn", entries[0].Level)
	require.Equal(t, 3, entries[0].Count)
	require.Equal(t, "yahoo.GC=F", entries[0].Fields["source"])
	require.Contains(t, entries[0].Caller, "collector_test.go")
	require.Equal(t, []string{"logs"}, pub.topics)
}

func TestCollectorFlushesAtThreshold(t *testing.T) {
	pub := &capturePublisher{}
	c := NewLogCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 2, Topic: "logs", Publisher: pub})

	c.AddLog("error", "a", nil, "x.go:1")
	require.Equal(t, 1, c.Pending())
	c.AddLog("error", "b", nil, "x.go:2")
	require.Zero(t, c.Pending())

	c.Close()
	require.Len(t, pub.entries(), 2)
}

func TestCollectorChildLoggerSharesCollector(t *testing.T) {
	pub := &capturePublisher{}
	parent := Nop()
	parent.AddCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 10, Publisher: pub})

	child := parent.With(String("component", "cache"))
	child.Error("shared load failed", Error(errors.New("timeout")))
	require.Equal(t, 1, parent.collector.Pending())

	parent.RemoveCollector()
	require.Len(t, pub.entries(), 1)
}

func TestCollectorDefaults(t *testing.T) {
	c := NewLogCollector(&CollectionConfig{})
	defer c.Close()

	require.Equal(t, 30*time.Second, c.config.TimeInterval)
	require.Equal(t, 100, c.config.CountThreshold)
}

func TestCollectorPublishErrorDoesNotBlock(t *testing.T) {
	pub := &capturePublisher{err: errors.New("broker down")}
	c := NewLogCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 1, Publisher: pub})

	c.AddLog("error", "a", nil, "x.go:1")
	c.Close()
	require.Len(t, pub.entries(), 1)
}
