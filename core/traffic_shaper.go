package core

import (
	"context"
	"crypto/rand"
	"time"

	"github.com/veilnet/veilnet/log"
)

// TrafficShaper defeats passive timing and size correlation: random delay
// around every request and payload sizes normalized into fixed buckets.
type TrafficShaper struct {
	minPadding  int
	maxPadding  int
	minJitterMs int
	maxJitterMs int
}

func NewTrafficShaper(cfg NetworkConfig) *TrafficShaper {
	return &TrafficShaper{
		minPadding:  cfg.MinPaddingBytes(),
		maxPadding:  cfg.MaxPaddingBytes(),
		minJitterMs: cfg.MinJitterMs(),
		maxJitterMs: cfg.MaxJitterMs(),
	}
}

// Jitter suspends the caller for a uniform random duration in
// [minJitterMs, maxJitterMs]. A max of 0 returns immediately without arming
// a timer. Returns early if the context is cancelled.
func (ts *TrafficShaper) Jitter(ctx context.Context) {
	if ts.maxJitterMs == 0 {
		return
	}
	jitter_ms := randomIntRange(ts.minJitterMs, ts.maxJitterMs)
	if jitter_ms <= 0 {
		return
	}
	t := time.NewTimer(time.Duration(jitter_ms) * time.Millisecond)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
	log.Debug("applied %dms jitter", jitter_ms)
}

// PadLength computes how many padding bytes the transport should add for a
// body of the given length. Padding is applied at the transport cell level,
// never inside the HTTP payload, so this layer only decides the amount.
func (ts *TrafficShaper) PadLength(body_len int) int {
	padding := randomIntRange(ts.minPadding, ts.maxPadding)
	log.Debug("computed %d bytes padding for %d byte body", padding, body_len)
	return padding
}

var sizeBuckets = []int{512, 1024, 2048, 4096, 8192, 16384, 32768, 65536}

// NormalizeSize maps n to the smallest fixed bucket that holds it; sizes past
// the largest bucket round up to the next 64 KB multiple. Total, pure and
// idempotent: NormalizeSize(n) >= n for all n >= 0.
func NormalizeSize(n int) int {
	for _, bucket := range sizeBuckets {
		if n <= bucket {
			return bucket
		}
	}
	return ((n + 65535) / 65536) * 65536
}

// PaddingGenerator fills transport cells up to a fixed target size with
// random bytes.
type PaddingGenerator struct {
	targetSize int
}

// NewPaddingGenerator creates a generator for the given cell payload size.
// Pass 0 for the default 512 byte cell payload.
func NewPaddingGenerator(target_size int) *PaddingGenerator {
	if target_size <= 0 {
		target_size = 512
	}
	return &PaddingGenerator{targetSize: target_size}
}

// Generate returns the random bytes needed to bring current_size up to the
// target. Already-full cells get nothing.
func (pg *PaddingGenerator) Generate(current_size int) []byte {
	if current_size >= pg.targetSize {
		return []byte{}
	}
	padding := make([]byte, pg.targetSize-current_size)
	rand.Read(padding)
	return padding
}

// Pad appends generated padding to data. Data already at or past the target
// size is returned as a plain copy.
func (pg *PaddingGenerator) Pad(data []byte) []byte {
	result := append([]byte(nil), data...)
	return append(result, pg.Generate(len(data))...)
}
