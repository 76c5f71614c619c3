package buffer

import "testing"

func TestRingBuffer_PushBackAt(t *testing.T) {
	r := NewRingBuffer[int](4, PolicyFail)

	for i := 0; i < 4; i++ {
		r.PushBack(i)
	}
	if r.Size() != 4 {
		t.Fatalf("expected size 4, got %d", r.Size())
	}
	for i := 0; i < 4; i++ {
		v, ok := r.At(i)
		if !ok || v != i {
			t.Fatalf("At(%d) = %v, %v; want %d, true", i, v, ok, i)
		}
	}
}

func TestRingBuffer_OverwritesOldestWhenFull(t *testing.T) {
	r := NewRingBuffer[int](3, PolicyFail)
	r.PushBack(1)
	r.PushBack(2)
	r.PushBack(3)
	r.PushBack(4) // overwrites 1

	if r.Size() != 3 {
		t.Fatalf("expected size to stay at capacity 3, got %d", r.Size())
	}
	want := []int{2, 3, 4}
	for i, w := range want {
		v, _ := r.At(i)
		if v != w {
			t.Fatalf("At(%d) = %d, want %d", i, v, w)
		}
	}
}

func TestRingBuffer_PopFrontOrder(t *testing.T) {
	r := NewRingBuffer[string](4, PolicyFail)
	r.PushBack("a")
	r.PushBack("b")
	r.PushBack("c")

	for _, want := range []string{"a", "b", "c"} {
		got, ok := r.PopFront()
		if !ok || got != want {
			t.Fatalf("PopFront() = %q, %v; want %q", got, ok, want)
		}
	}
	if !r.IsEmpty() {
		t.Fatalf("expected ring empty after popping all elements")
	}
}

func TestRingBuffer_PushFrontAndPopBack(t *testing.T) {
	r := NewRingBuffer[int](4, PolicyFail)
	r.PushFront(1)
	r.PushFront(2) // logical order: 2, 1

	v, _ := r.At(0)
	if v != 2 {
		t.Fatalf("At(0) = %d, want 2", v)
	}

	back, ok := r.PopBack()
	if !ok || back != 1 {
		t.Fatalf("PopBack() = %d, %v; want 1, true", back, ok)
	}
}

func TestRingBuffer_OutOfRangeFailPolicyPanics(t *testing.T) {
	r := NewRingBuffer[int](2, PolicyFail)
	r.PushBack(1)

	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on out-of-range access under PolicyFail")
		}
	}()
	r.At(5)
}

func TestRingBuffer_OutOfRangeIgnorePolicyReturnsFalse(t *testing.T) {
	r := NewRingBuffer[int](2, PolicyIgnore)
	r.PushBack(1)

	if _, ok := r.At(5); ok {
		t.Fatalf("expected ok=false for out-of-range access under PolicyIgnore")
	}
}

// Any interleaving of PushBack/PopFront must keep size <= capacity and
// ring[i] equal to the i-th oldest live element.
func TestRingBuffer_InterleavedPushPopInvariant(t *testing.T) {
	r := NewRingBuffer[int](5, PolicyFail)
	var model []int

	push := func(v int) {
		r.PushBack(v)
		model = append(model, v)
		if len(model) > 5 {
			model = model[1:]
		}
	}
	pop := func() {
		if len(model) == 0 {
			return
		}
		v, ok := r.PopFront()
		if !ok || v != model[0] {
			t.Fatalf("PopFront() = %d, %v; want %d", v, ok, model[0])
		}
		model = model[1:]
	}

	ops := []int{1, 2, 3, -1, 4, 5, 6, -1, -1, 7, 8, 9, 10, 11}
	for _, op := range ops {
		if op == -1 {
			pop()
		} else {
			push(op)
		}
		if r.Size() > r.Capacity() {
			t.Fatalf("size %d exceeds capacity %d", r.Size(), r.Capacity())
		}
		if r.Size() != len(model) {
			t.Fatalf("size mismatch: ring=%d model=%d", r.Size(), len(model))
		}
		for i, want := range model {
			got, ok := r.At(i)
			if !ok || got != want {
				t.Fatalf("At(%d) = %d, %v; want %d", i, got, ok, want)
			}
		}
	}
}
