package frame

import (
	"testing"
	"time"
)

func mkFrame(seq uint64) *Frame {
	return New(seq, time.Unix(0, 0).Add(time.Duration(seq)*time.Millisecond), 4, 4, Depth8, make([]byte, 16))
}

func TestRingBufferPushCountInvariant(t *testing.T) {
	rb := NewRingBuffer(4)
	for p := 1; p <= 10; p++ {
		rb.Push(mkFrame(uint64(p)))
		want := p
		if want > 4 {
			want = 4
		}
		if got := rb.Len(); got != want {
			t.Fatalf("after %d pushes: Len() = %d, want %d", p, got, want)
		}
	}
	latest := rb.Latest()
	if latest.Seq != 10 {
		t.Fatalf("Latest().Seq = %d, want 10", latest.Seq)
	}
}

func TestRingBufferSnapshotRangeTruncates(t *testing.T) {
	rb := NewRingBuffer(4)
	for p := uint64(1); p <= 6; p++ {
		rb.Push(mkFrame(p))
	}
	// Only seq 3..6 remain (capacity 4, 6 pushes).
	frames, missed := rb.SnapshotRange(1, 6)
	if missed != 2 {
		t.Fatalf("missed = %d, want 2", missed)
	}
	if len(frames) != 4 {
		t.Fatalf("len(frames) = %d, want 4", len(frames))
	}
	if frames[0].Seq != 3 {
		t.Fatalf("frames[0].Seq = %d, want 3", frames[0].Seq)
	}
}

func TestRingBufferOverflowCounter(t *testing.T) {
	rb := NewRingBuffer(2)
	rb.Push(mkFrame(1))
	rb.Push(mkFrame(2))
	rb.Push(mkFrame(3)) // evicts seq 1
	rb.Push(mkFrame(4)) // evicts seq 2
	if got := rb.Overflow(); got != 2 {
		t.Fatalf("Overflow() = %d, want 2", got)
	}
}

func TestRingBufferEmptySnapshot(t *testing.T) {
	rb := NewRingBuffer(4)
	frames, missed := rb.SnapshotRange(1, 5)
	if len(frames) != 0 || missed != 5 {
		t.Fatalf("got frames=%d missed=%d, want 0,5", len(frames), missed)
	}
}
