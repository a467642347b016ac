package bucketqueue

import (
	"math/rand"
	"testing"
)

// Shared Test Helpers
func expectError(t *testing.T, got, want error) {
	t.Helper()
	if got != want {
		t.Fatalf("want err %v, got %v", want, got)
	}
}

func borrowOrFatal(t *testing.T, q *Queue) Handle {
	t.Helper()
	h, err := q.Borrow()
	if err != nil {
		t.Fatalf("Borrow failed: %v", err)
	}
	return h
}

func pushOrFatal(t *testing.T, q *Queue, tick int, h Handle) {
	t.Helper()
	if err := q.Push(tick, h, int32(h)); err != nil {
		t.Fatalf("Push failed: %v", err)
	}
}

func expectSize(t *testing.T, q *Queue, want int) {
	t.Helper()
	if q.Size() != want {
		t.Fatalf("expected size=%d; got %d", want, q.Size())
	}
}

func TestNewPanicsOnBadBucketCount(t *testing.T) {
	for _, n := range []int{0, -1, maxBuckets + 1} {
		func() {
			defer func() {
				if recover() == nil {
					t.Fatalf("New(%d) should panic", n)
				}
			}()
			New(n, 4)
		}()
	}
}

func TestPushOutOfWindow(t *testing.T) {
	q := New(33, 4)
	h := borrowOrFatal(t, q)
	expectError(t, q.Push(33, h, 0), ErrBeyondWindow)
	expectError(t, q.Push(-1, h, 0), ErrPastWindow)
	expectError(t, q.Push(0, Handle(99), 0), ErrItemNotFound)
}

func TestBorrowExhaustion(t *testing.T) {
	q := New(8, 2)
	borrowOrFatal(t, q)
	borrowOrFatal(t, q)
	if _, err := q.Borrow(); err != ErrFull {
		t.Fatalf("want ErrFull, got %v", err)
	}
	expectError(t, q.Return(Handle(5)), ErrItemNotFound)
}

func TestPopMinOrder(t *testing.T) {
	q := New(33, 64)
	ticks := []int{32, 0, 17, 5, 5, 31}
	for _, tk := range ticks {
		pushOrFatal(t, q, tk, borrowOrFatal(t, q))
	}
	expectSize(t, q, len(ticks))
	last := -1
	for !q.Empty() {
		_, tk, _ := q.PopMin()
		if tk < last {
			t.Fatalf("tick %d after %d", tk, last)
		}
		last = tk
	}
}

func TestSameBucketLIFO(t *testing.T) {
	q := New(4, 4)
	for i := 0; i < 3; i++ {
		h := borrowOrFatal(t, q)
		if err := q.Push(2, h, int32(10+i)); err != nil {
			t.Fatal(err)
		}
	}
	for _, want := range []int32{12, 11, 10} {
		_, _, v := q.PopMin()
		if v != want {
			t.Fatalf("popped %d, want %d", v, want)
		}
	}
}

func TestPopMinKeepsNonEmptyBucketVisible(t *testing.T) {
	q := New(4, 4)
	a, b := borrowOrFatal(t, q), borrowOrFatal(t, q)
	pushOrFatal(t, q, 1, a)
	pushOrFatal(t, q, 1, b)
	q.PopMin()
	h, tk, _ := q.PeepMin()
	if h != a || tk != 1 {
		t.Fatalf("bucket lost its second node: h=%d tick=%d", h, tk)
	}
}

func TestUpdateMoves(t *testing.T) {
	q := New(8, 4)
	h := borrowOrFatal(t, q)
	pushOrFatal(t, q, 6, h)
	if err := q.Update(1, h, 77); err != nil {
		t.Fatal(err)
	}
	ph, tick, v := q.PeepMin()
	if ph != h || tick != 1 || v != 77 {
		t.Fatalf("PeepMin = %d,%d,%d", ph, tick, v)
	}
	other := borrowOrFatal(t, q)
	expectError(t, q.Update(2, other, 0), ErrItemNotFound)
}

func TestDuplicatePushCounts(t *testing.T) {
	q := New(8, 4)
	h := borrowOrFatal(t, q)
	pushOrFatal(t, q, 3, h)
	pushOrFatal(t, q, 3, h)
	expectSize(t, q, 2)
	q.PopMin()
	q.PopMin()
	if !q.Empty() {
		t.Fatal("queue should be empty")
	}
}

func TestClearRecyclesHandles(t *testing.T) {
	q := New(8, 2)
	pushOrFatal(t, q, 1, borrowOrFatal(t, q))
	pushOrFatal(t, q, 2, borrowOrFatal(t, q))
	q.Clear()
	expectSize(t, q, 0)
	borrowOrFatal(t, q)
	borrowOrFatal(t, q)
}

func TestRandomAgainstSort(t *testing.T) {
	const n = 1000
	q := New(4096, n)
	rng := rand.New(rand.NewSource(3))
	counts := make([]int, 4096)
	for i := 0; i < n; i++ {
		tk := rng.Intn(4096)
		counts[tk]++
		pushOrFatal(t, q, tk, borrowOrFatal(t, q))
	}
	for tk := 0; tk < 4096; tk++ {
		for c := 0; c < counts[tk]; c++ {
			_, got, _ := q.PopMin()
			if got != tk {
				t.Fatalf("popped tick %d, want %d", got, tk)
			}
		}
	}
}

func BenchmarkPushPop(b *testing.B) {
	q := New(33, 1024)
	for i := 0; i < b.N; i++ {
		h, _ := q.Borrow()
		_ = q.Push(i%33, h, 0)
		q.PopMin()
	}
}
