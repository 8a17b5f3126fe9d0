package core

import (
	"context"
	"testing"
	"time"
)

func TestNormalizeSize(t *testing.T) {
	tests := []struct {
		name     string
		input    int
		expected int
	}{
		{"zero maps to smallest bucket", 0, 512},
		{"one byte", 1, 512},
		{"exact bucket boundary", 512, 512},
		{"just past a boundary", 513, 1024},
		{"mid range", 3000, 4096},
		{"largest bucket", 65536, 65536},
		{"past largest bucket rounds to 64k multiple", 65537, 131072},
		{"large payload", 200000, 262144},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeSize(tt.input)
			if got != tt.expected {
				t.Errorf("NormalizeSize(%d) = %d, expected %d", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNormalizeSizeNeverShrinks(t *testing.T) {
	for _, n := range []int{0, 1, 511, 512, 513, 65535, 65536, 65537, 1 << 20} {
		if got := NormalizeSize(n); got < n {
			t.Errorf("NormalizeSize(%d) = %d, smaller than input", n, got)
		}
	}
}

func TestNormalizeSizeIdempotent(t *testing.T) {
	for _, n := range []int{0, 100, 512, 5000, 65536, 70000, 1 << 20} {
		once := NormalizeSize(n)
		if twice := NormalizeSize(once); twice != once {
			t.Errorf("NormalizeSize not idempotent at %d: %d then %d", n, once, twice)
		}
	}
}

func TestPadLengthWithinBounds(t *testing.T) {
	ts := NewTrafficShaper(DefaultNetworkConfig())
	for i := 0; i < 100; i++ {
		pad := ts.PadLength(1000)
		if pad < minPaddingBytes || pad > maxPaddingBytes {
			t.Fatalf("padding %d outside [%d, %d]", pad, minPaddingBytes, maxPaddingBytes)
		}
	}
}

func TestJitterZeroMaxReturnsImmediately(t *testing.T) {
	ts := &TrafficShaper{minJitterMs: 0, maxJitterMs: 0}
	start := time.Now()
	ts.Jitter(context.Background())
	if elapsed := time.Since(start); elapsed > 5*time.Millisecond {
		t.Errorf("zero-jitter shaper slept for %v", elapsed)
	}
}

func TestJitterRespectsContextCancellation(t *testing.T) {
	ts := &TrafficShaper{minJitterMs: 5000, maxJitterMs: 5000}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	ts.Jitter(ctx)
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("jitter ignored cancelled context, slept %v", elapsed)
	}
}

func TestPaddingGeneratorDefaultCellSize(t *testing.T) {
	pg := NewPaddingGenerator(0)
	padding := pg.Generate(0)
	if len(padding) != 512 {
		t.Errorf("expected 512 byte default cell, got %d", len(padding))
	}
}

func TestPaddingGenerator(t *testing.T) {
	tests := []struct {
		name        string
		target      int
		currentSize int
		expectedLen int
	}{
		{"empty cell gets full padding", 512, 0, 512},
		{"partial cell topped up", 512, 100, 412},
		{"full cell gets nothing", 512, 512, 0},
		{"overfull cell gets nothing", 512, 600, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pg := NewPaddingGenerator(tt.target)
			padding := pg.Generate(tt.currentSize)
			if len(padding) != tt.expectedLen {
				t.Errorf("expected %d padding bytes, got %d", tt.expectedLen, len(padding))
			}
		})
	}
}

func TestPaddingGeneratorPadPreservesData(t *testing.T) {
	pg := NewPaddingGenerator(512)
	data := []byte("hello world")
	padded := pg.Pad(data)
	if len(padded) != 512 {
		t.Fatalf("expected padded length 512, got %d", len(padded))
	}
	if string(padded[:len(data)]) != string(data) {
		t.Error("padding corrupted the payload prefix")
	}
}

func TestPaddingGeneratorPadOversizedData(t *testing.T) {
	pg := NewPaddingGenerator(512)
	data := make([]byte, 600)
	for i := range data {
		data[i] = byte(i)
	}
	padded := pg.Pad(data)
	if len(padded) != 600 {
		t.Fatalf("oversized payload changed length: %d", len(padded))
	}
	for i := range data {
		if padded[i] != data[i] {
			t.Fatalf("byte %d corrupted", i)
		}
	}
	// Returned copy must not alias the caller's buffer.
	padded[0] ^= 0xff
	if data[0] == padded[0] {
		t.Error("Pad returned a view of the input slice")
	}
}

func TestRandomIntRangeInclusive(t *testing.T) {
	seen_min, seen_max := false, false
	for i := 0; i < 1000; i++ {
		v := randomIntRange(3, 5)
		if v < 3 || v > 5 {
			t.Fatalf("randomIntRange(3, 5) returned %d", v)
		}
		if v == 3 {
			seen_min = true
		}
		if v == 5 {
			seen_max = true
		}
	}
	if !seen_min || !seen_max {
		t.Error("randomIntRange never produced one of its bounds over 1000 draws")
	}
}
