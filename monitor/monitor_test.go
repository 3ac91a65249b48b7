package monitor

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"tickos/hal"
	"tickos/internal/logging"
	"tickos/kernel"
	"tickos/trace"
)

// runTarget boots two spinning tasks and an idle task until the machine
// halts after haltAfter ticks.
func runTarget(t *testing.T, haltAfter uint64) Target {
	t.Helper()
	m := hal.NewMachine(hal.MachineConfig{
		CoreClockHz:    kernel.TickRateHz * 100,
		HaltAfterTicks: haltAfter,
		Logger:         logging.Discard(),
	})
	rec := trace.NewRecorder(0)
	s := kernel.New(m, m, kernel.WithObserver(rec))
	s.Init()

	spin := func(uintptr) {
		for {
			m.Exec(10)
		}
	}
	for _, spec := range []struct {
		name  string
		prio  uint8
		slice uint32
	}{
		{"alpha", 1, 2},
		{"beta", 1, 2},
		{"idle", 255, 1},
	} {
		if _, err := s.Create(spin, 0, spec.prio, spec.slice, spec.name); err != nil {
			t.Fatalf("Create(%q) error = %v", spec.name, err)
		}
	}
	if err := m.Boot(s.Start); err != nil {
		t.Fatalf("Boot() error = %v", err)
	}
	return Target{Machine: m, Scheduler: s, Recorder: rec}
}

func get(t *testing.T, srv *Server, path string, data any) (int, Response) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	resp := Response{Data: data}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("GET %s: decode body %q: %v", path, w.Body.String(), err)
	}
	return w.Code, resp
}

func TestSampleHasOneCurrentTask(t *testing.T) {
	target := runTarget(t, 20)
	s := target.Sample()

	if s.Status.Ticks != 20 || !s.Status.Halted {
		t.Fatalf("Status = %+v, want 20 ticks and halted", s.Status)
	}
	current := 0
	for _, task := range s.Tasks {
		if task.Current {
			current++
			if task.State != "running" {
				t.Fatalf("current task %q state = %s, want running", task.Name, task.State)
			}
		}
	}
	if current != 1 {
		t.Fatalf("%d current tasks, want 1", current)
	}
	if s.Status.CurrentName == "idle" {
		t.Fatalf("idle task is current while higher priority tasks are ready")
	}
}

func TestStatusEndpoint(t *testing.T) {
	srv := NewServer(runTarget(t, 10), logging.Discard())

	var st Status
	code, resp := get(t, srv, "/api/v1/status", &st)
	if code != http.StatusOK || resp.Status != "ok" {
		t.Fatalf("GET /status = %d %q, want 200 ok", code, resp.Status)
	}
	if st.Phase != "started" || st.Ticks != 10 || st.Tasks != 3 {
		t.Fatalf("status = %+v", st)
	}
	if st.TickHz != kernel.TickRateHz || st.Cycles != 1000 {
		t.Fatalf("status tick_hz %d cycles %d, want %d and 1000", st.TickHz, st.Cycles, kernel.TickRateHz)
	}
}

func TestTasksEndpoint(t *testing.T) {
	srv := NewServer(runTarget(t, 10), logging.Discard())

	var tasks []TaskView
	code, _ := get(t, srv, "/api/v1/tasks", &tasks)
	if code != http.StatusOK {
		t.Fatalf("GET /tasks = %d, want 200", code)
	}
	if len(tasks) != 3 {
		t.Fatalf("got %d tasks, want 3", len(tasks))
	}
	if tasks[0].Name != "alpha" || tasks[2].Priority != 255 {
		t.Fatalf("tasks = %+v", tasks)
	}
	if tasks[0].Ticks+tasks[1].Ticks != 10 {
		t.Fatalf("alpha+beta ticks = %d, want 10", tasks[0].Ticks+tasks[1].Ticks)
	}
	if tasks[2].Ticks != 0 {
		t.Fatalf("idle ticks = %d, want 0", tasks[2].Ticks)
	}
}

func TestEventsEndpoint(t *testing.T) {
	srv := NewServer(runTarget(t, 10), logging.Discard())

	var events []trace.Event
	code, _ := get(t, srv, "/api/v1/events?limit=2", &events)
	if code != http.StatusOK {
		t.Fatalf("GET /events = %d, want 200", code)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Seq >= events[1].Seq {
		t.Fatalf("events out of order: %+v", events)
	}
}

func TestEventsRejectsBadLimit(t *testing.T) {
	srv := NewServer(runTarget(t, 2), logging.Discard())

	for _, q := range []string{"0", "-1", "many"} {
		code, resp := get(t, srv, "/api/v1/events?limit="+q, nil)
		if code != http.StatusBadRequest {
			t.Fatalf("limit=%s status = %d, want 400", q, code)
		}
		if resp.Status != "error" || resp.Error == nil || resp.Error.Code != "invalid_limit" {
			t.Fatalf("limit=%s response = %+v", q, resp)
		}
	}
}

func TestUnknownRoute(t *testing.T) {
	srv := NewServer(runTarget(t, 2), logging.Discard())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/nope", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("GET /nope = %d, want 404", w.Code)
	}
}

func TestRendererDrawsFrame(t *testing.T) {
	target := runTarget(t, 10)
	fb := hal.NewFramebuffer(240, 160)
	r := NewRenderer(target, fb)

	if err := r.Step(); err != nil {
		t.Fatalf("Step() error = %v", err)
	}

	// The header band and text both leave non-black pixels.
	lit := 0
	buf := fb.Buffer()
	for i := 0; i+1 < len(buf); i += 2 {
		if buf[i] != 0 || buf[i+1] != 0 {
			lit++
		}
	}
	if lit == 0 {
		t.Fatalf("Step() drew nothing")
	}

	// Rows below the table are background.
	last := buf[len(buf)-fb.StrideBytes():]
	for i, b := range last {
		if b != 0 {
			t.Fatalf("bottom row byte %d = %#x, want background", i, b)
		}
	}
}

func TestRecentSwitchesNewestFirst(t *testing.T) {
	rec := trace.NewRecorder(16)
	rec.OnSwitch(1, 0, 1)
	rec.OnPreempt(2, 1)
	rec.OnSwitch(2, 1, 0)
	rec.OnSwitch(3, 0, 1)

	got := recentSwitches(rec, 2)
	if len(got) != 2 || got[0].Tick != 3 || got[1].Tick != 2 {
		t.Fatalf("recentSwitches() = %+v, want ticks [3 2]", got)
	}
}
