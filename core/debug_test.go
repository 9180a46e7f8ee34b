package core

import (
	"sync"
	"testing"
)

func captureDebug(t *testing.T) *[]string {
	t.Helper()
	var lines []string
	SetDebugWriter(func(s string) { lines = append(lines, s) })
	t.Cleanup(func() {
		SetDebugWriter(nil)
		SetDebugEnabled(false)
	})
	return &lines
}

func TestMarkers(t *testing.T) {
	lines := captureDebug(t)

	OK("gpio up")
	Info("probing")
	Fail("no card")
	Debug("hidden")
	SetDebugEnabled(true)
	Debug("shown")

	want := []string{"[o] gpio up", "[i] probing", "[x] no card", "shown"}
	if len(*lines) != len(want) {
		t.Fatalf("got %d lines %q, want %d", len(*lines), *lines, len(want))
	}
	for i := range want {
		if (*lines)[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, (*lines)[i], want[i])
		}
	}
}

func TestTraceRingWraps(t *testing.T) {
	ClearTrace()
	defer ClearTrace()

	for i := 0; i < TraceRingSize+5; i++ {
		RecordEvent(EvtCommand, uint8(i%64), uint32(i), 0)
	}
	events := TraceEvents()
	if len(events) != TraceRingSize {
		t.Fatalf("got %d events, want %d", len(events), TraceRingSize)
	}
	if events[0].Arg != 5 {
		t.Errorf("oldest event arg = %d, want 5", events[0].Arg)
	}
	if last := events[len(events)-1]; last.Arg != TraceRingSize+4 {
		t.Errorf("newest event arg = %d, want %d", last.Arg, TraceRingSize+4)
	}
}

func TestDumpTrace(t *testing.T) {
	lines := captureDebug(t)
	ClearTrace()
	defer ClearTrace()

	SetClock(nil)
	SetTime(42)
	defer SetTime(0)
	RecordEvent(EvtResponse, 17, 0x200, 0x04)
	DumpTrace()

	if len(*lines) != 3 {
		t.Fatalf("got %d lines, want 3: %q", len(*lines), *lines)
	}
	if got, want := (*lines)[1], "[TRACE] t=42 R1 cmd=17 arg=0x00000200 val=0x04"; got != want {
		t.Errorf("dump line = %q, want %q", got, want)
	}
}

func TestNumberFormatting(t *testing.T) {
	cases := []struct {
		got, want string
	}{
		{itoa(0), "0"},
		{itoa(-42), "-42"},
		{Utoa(4294967295), "4294967295"},
		{Hex8(0x95), "0x95"},
		{Hex32(0x1AA), "0x000001aa"},
	}
	for _, c := range cases {
		if c.got != c.want {
			t.Errorf("got %q, want %q", c.got, c.want)
		}
	}
}

func TestTraceTimestamps(t *testing.T) {
	ClearTrace()
	defer ClearTrace()
	defer SetClock(nil)

	now := uint32(100)
	SetClock(func() uint32 { return now })
	RecordEvent(EvtCommand, 17, 0, 0)
	now = 250
	RecordEvent(EvtResponse, 17, 0, 0)

	events := TraceEvents()
	if len(events) != 2 || events[0].Time != 100 || events[1].Time != 250 {
		t.Fatalf("events = %+v, want stamps 100 and 250", events)
	}
	if got := Elapsed(200); got != 50 {
		t.Errorf("Elapsed(200) = %d, want 50", got)
	}
}

func TestManualClock(t *testing.T) {
	defer SetTime(0)
	SetClock(nil)
	SetTime(0xFFFFFFF0)
	start := GetTime()
	SetTime(0x10)
	if got := Elapsed(start); got != 0x20 {
		t.Errorf("Elapsed across wrap = %#x, want 0x20", got)
	}
}

func TestTraceConcurrentRecorders(t *testing.T) {
	ClearTrace()
	defer ClearTrace()

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(cmd uint8) {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				RecordEvent(EvtCommand, cmd, uint32(i), 0)
			}
		}(uint8(g))
	}
	wg.Wait()

	if got := len(TraceEvents()); got != TraceRingSize {
		t.Errorf("got %d events, want a full ring of %d", got, TraceRingSize)
	}
}
