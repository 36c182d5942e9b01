// Package coordinator implements the pipeline coordinator: it owns
// the fusion queue and fusion processor, drives the fusion tick on its
// own schedule, and runs the consume, ingest, snapshot, encode loop
// that turns queued measurements into broadcast-ready track updates.
package coordinator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/banshee-data/mec-fusion/internal/corelog"
	"github.com/banshee-data/mec-fusion/internal/fusion"
	"github.com/banshee-data/mec-fusion/internal/fusionqueue"
	"github.com/banshee-data/mec-fusion/internal/heartbeatlog"
	"github.com/banshee-data/mec-fusion/internal/rsm"
)

// tickInterval is the fusion tick's period: 20 Hz.
const tickInterval = 50 * time.Millisecond

// popTimeout bounds how long the consumer loop waits for a message
// before falling through to heartbeat bookkeeping.
const popTimeout = 500 * time.Millisecond

// heartbeatInterval is the minimum spacing between heartbeat emissions.
const heartbeatInterval = 5 * time.Second

// EncodeSink receives a best-effort encoded RSM buffer once per
// non-empty snapshot. A production deployment would wire this to a
// broadcast transport; that transport is outside the fusion core.
type EncodeSink func(buf []byte)

// Coordinator owns C2 and C5 and runs their two dedicated loops.
type Coordinator struct {
	queue   *fusionqueue.Queue
	tracker *fusion.Tracker
	rsuID   uint32
	sink    EncodeSink
	heartbeats *heartbeatlog.Store

	encodeBuf     []byte
	lastHeartbeat time.Time

	wg sync.WaitGroup
}

// New creates a Coordinator. heartbeats and sink may both be nil (no
// metrics persistence, no downstream consumer of the encoded buffer).
func New(queue *fusionqueue.Queue, tracker *fusion.Tracker, rsuID uint32, sink EncodeSink, heartbeats *heartbeatlog.Store) *Coordinator {
	return &Coordinator{
		queue:      queue,
		tracker:    tracker,
		rsuID:      rsuID,
		sink:       sink,
		heartbeats: heartbeats,
	}
}

// Run starts the fusion tick loop and the consumer loop, and blocks
// until ctx is canceled or the consumer loop hits a non-recoverable
// error. It returns ctx.Err() on ordinary cancellation.
func (c *Coordinator) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.runTickLoop(ctx)
	}()

	err := c.runConsumeLoop(ctx)
	cancel()
	c.wg.Wait()
	return err
}

func (c *Coordinator) runTickLoop(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.tracker.Tick(time.Now())
		}
	}
}

func (c *Coordinator) runConsumeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		start := time.Now()
		msg, err := c.queue.Pop(popTimeout)
		if err != nil {
			if errors.Is(err, fusionqueue.ErrTimedOut) {
				c.maybeHeartbeat(start, 0)
				continue
			}
			return err
		}

		c.tracker.Ingest(msg.Batch)
		msg.Batch.Release()
		latencyMs := float64(time.Since(start).Microseconds()) / 1000.0

		snapshot := c.tracker.Snapshot()
		if len(snapshot) > 0 {
			c.encodeBestEffort(snapshot)
		}
		c.maybeHeartbeat(start, latencyMs)
	}
}

func (c *Coordinator) encodeBestEffort(snapshot []fusion.Snapshot) {
	need := rsm.RequiredLen(len(snapshot))
	if cap(c.encodeBuf) < need {
		c.encodeBuf = make([]byte, need)
	}
	buf := c.encodeBuf[:need]
	n, err := rsm.Encode(snapshot, c.rsuID, uint64(time.Now().UnixMilli()), buf)
	if err != nil {
		corelog.Logf("coordinator: rsm encode: %v", err)
		return
	}
	if c.sink != nil {
		c.sink(buf[:n])
	}
}

// maybeHeartbeat emits and optionally persists heartbeat metrics at
// most once per heartbeatInterval, regardless of how often the caller
// invokes it. latencyMs is the most recent pop-to-snapshot latency, or
// 0 when invoked from a timed-out pop.
func (c *Coordinator) maybeHeartbeat(now time.Time, latencyMs float64) {
	if now.Sub(c.lastHeartbeat) < heartbeatInterval {
		return
	}
	c.lastHeartbeat = now

	tracks := c.tracker.TrackCount()
	depth := c.queue.Size()
	corelog.Logf("coordinator: heartbeat tracks=%d queue_depth=%d last_latency_ms=%.2f", tracks, depth, latencyMs)

	if c.heartbeats == nil {
		return
	}
	if err := c.heartbeats.Record(now, tracks, depth, latencyMs); err != nil {
		corelog.Logf("coordinator: heartbeat persist: %v", err)
	}
}
