package md

import (
	"reflect"
	"testing"
)

func TestWindowEvictsOldestFirst(t *testing.T) {
	window := NewWindow(3)
	for _, v := range []float64{1, 2, 3, 4, 5} {
		window.Add(v)
	}

	if got := window.Values(); !reflect.DeepEqual(got, []float64{3, 4, 5}) {
		t.Fatalf("expected [3 4 5], got %v", got)
	}
	last, ok := window.Last()
	if !ok || last != 5 {
		t.Fatalf("expected last 5, got %.2f ok=%v", last, ok)
	}
}

func TestWindowNeverExceedsBound(t *testing.T) {
	window := NewWindow(21)
	for i := 0; i < 100; i++ {
		window.Add(float64(i))
		if window.Len() > 21 {
			t.Fatalf("window length %d exceeds bound", window.Len())
		}
	}
	if window.Len() != 21 {
		t.Fatalf("expected full window, got %d", window.Len())
	}
}

func TestWindowPartial(t *testing.T) {
	window := NewWindow(5)
	if _, ok := window.Last(); ok {
		t.Fatalf("expected empty window to have no last price")
	}
	window.Add(1)
	window.Add(2)

	if got := window.Values(); !reflect.DeepEqual(got, []float64{1, 2}) {
		t.Fatalf("expected [1 2], got %v", got)
	}
}
