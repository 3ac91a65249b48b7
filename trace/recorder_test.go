package trace

import (
	"reflect"
	"testing"

	"tickos/kernel"
)

func TestRecorderKeepsNewestEvents(t *testing.T) {
	r := NewRecorder(3)
	for i := 1; i <= 5; i++ {
		r.OnPreempt(uint64(i), kernel.TaskID(i))
	}

	got := r.Events()
	if len(got) != 3 {
		t.Fatalf("len(Events()) = %d, want 3", len(got))
	}
	for i, e := range got {
		if want := uint64(i + 3); e.Seq != want || e.Tick != want {
			t.Fatalf("Events()[%d] = %+v, want seq and tick %d", i, e, want)
		}
	}
	if r.Total() != 5 {
		t.Fatalf("Total() = %d, want 5", r.Total())
	}
}

func TestRecorderRecentBeforeWrap(t *testing.T) {
	r := NewRecorder(8)
	r.OnSwitch(1, 0, 1)
	r.OnSwitch(2, 1, 2)

	if got := r.Recent(10); len(got) != 2 || got[0].To != 1 || got[1].To != 2 {
		t.Fatalf("Recent(10) = %+v, want two switches in order", got)
	}
	if got := r.Recent(1); len(got) != 1 || got[0].To != 2 {
		t.Fatalf("Recent(1) = %+v, want the newest switch", got)
	}
	if got := NewRecorder(4).Recent(3); got != nil {
		t.Fatalf("Recent() on empty recorder = %+v, want nil", got)
	}
}

func TestRecorderStats(t *testing.T) {
	r := NewRecorder(16)
	r.OnTick(1, 0, 1)
	r.OnTick(2, 0, 0)
	r.OnPreempt(2, 0)
	r.OnSwitch(2, 0, 0)
	r.OnSwitch(3, 0, 1)
	r.OnTick(3, 1, 4)

	if got, want := r.TaskStats(0), (TaskStats{Ticks: 2, Preemptions: 1}); got != want {
		t.Fatalf("TaskStats(0) = %+v, want %+v", got, want)
	}
	if got, want := r.TaskStats(1), (TaskStats{Ticks: 1, Dispatches: 1}); got != want {
		t.Fatalf("TaskStats(1) = %+v, want %+v", got, want)
	}

	kinds := []Kind{}
	for _, e := range r.Events() {
		kinds = append(kinds, e.Kind)
	}
	if want := []Kind{KindPreempt, KindSwitch}; !reflect.DeepEqual(kinds, want) {
		t.Fatalf("event kinds = %v, want %v", kinds, want)
	}
}

func TestRecorderTickEvents(t *testing.T) {
	r := NewRecorder(4, WithTickEvents())
	r.OnTick(7, 2, 3)

	want := []Event{{Seq: 1, Tick: 7, Kind: KindTick, From: 2, To: 2, Remaining: 3}}
	if got := r.Events(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Events() = %+v, want %+v", got, want)
	}
}

func TestParseKind(t *testing.T) {
	for _, k := range []Kind{KindTick, KindPreempt, KindSwitch} {
		got, ok := ParseKind(k.String())
		if !ok || got != k {
			t.Fatalf("ParseKind(%q) = %v, %v", k.String(), got, ok)
		}
	}
	if _, ok := ParseKind("bogus"); ok {
		t.Fatalf("ParseKind(bogus) ok = true")
	}
}
