package ring_test

import (
	"reflect"
	"testing"

	"github.com/valpere/infinitran/internal/ring"
)

func TestBuffer_EvictsOldest(t *testing.T) {
	b := ring.New[int](3)
	for i := 1; i <= 5; i++ {
		b.Push(i)
	}

	if b.Len() != 3 {
		t.Fatalf("expected len 3, got %d", b.Len())
	}
	if got := b.Items(); !reflect.DeepEqual(got, []int{3, 4, 5}) {
		t.Errorf("expected [3 4 5], got %v", got)
	}
}

func TestBuffer_Last(t *testing.T) {
	b := ring.New[string](10)
	for _, s := range []string{"a", "b", "c", "d"} {
		b.Push(s)
	}

	tests := []struct {
		n    int
		want []string
	}{
		{0, nil},
		{2, []string{"c", "d"}},
		{4, []string{"a", "b", "c", "d"}},
		{9, []string{"a", "b", "c", "d"}},
	}
	for _, tt := range tests {
		if got := b.Last(tt.n); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Last(%d) = %v, want %v", tt.n, got, tt.want)
		}
	}
}

func TestBuffer_LastAfterWrap(t *testing.T) {
	b := ring.New[int](4)
	for i := 0; i < 10; i++ {
		b.Push(i)
	}
	if got := b.Last(2); !reflect.DeepEqual(got, []int{8, 9}) {
		t.Errorf("expected [8 9], got %v", got)
	}
}

func TestBuffer_ZeroCapacity(t *testing.T) {
	b := ring.New[int](0)
	b.Push(1)
	if b.Len() != 0 || b.Items() != nil {
		t.Errorf("zero-capacity buffer kept %v", b.Items())
	}
}

func TestBuffer_ItemsIsCopy(t *testing.T) {
	b := ring.New[int](2)
	b.Push(1)
	items := b.Items()
	items[0] = 42
	if b.Items()[0] != 1 {
		t.Error("Items must not alias the internal storage")
	}
}

func TestBuffer_Reset(t *testing.T) {
	b := ring.New[int](2)
	b.Push(1)
	b.Push(2)
	b.Reset()
	if b.Len() != 0 || b.Cap() != 2 {
		t.Fatalf("after reset len=%d cap=%d", b.Len(), b.Cap())
	}
	b.Push(7)
	if got := b.Items(); !reflect.DeepEqual(got, []int{7}) {
		t.Errorf("expected [7], got %v", got)
	}
}
