package core

// BusEvent captures one SD command exchange step for post-mortem analysis
type BusEvent struct {
	Time      uint32 // GetTime() when recorded
	EventType uint8  // Event type code
	Cmd       uint8  // SD command index
	Arg       uint32 // Command argument or block address
	Value     uint8  // R1, token or data-response byte
}

// Event type codes
const (
	EvtCommand      = 1 // command frame sent
	EvtResponse     = 2 // R1 received
	EvtTimeout      = 3 // no response within the poll bound
	EvtDataToken    = 4 // data start or error token
	EvtDataResponse = 5 // write data-response byte
	EvtBusy         = 6 // card stayed busy past the poll bound
)

const (
	TraceRingSize = 32 // Keep last 32 events for post-mortem
)

var (
	traceRing     [TraceRingSize]BusEvent
	traceRingHead uint8        // Next write position
	traceEnabled  bool  = true // Always capture bus events
)

// SetTraceEnabled turns event capture on or off.
func SetTraceEnabled(enabled bool) {
	traceEnabled = enabled
}

// RecordEvent captures an event in the ring buffer. Safe to call from a
// card-detect interrupt while the bus is busy, and from several goroutines
// on the host.
func RecordEvent(eventType, cmd uint8, arg uint32, value uint8) {
	if !traceEnabled {
		return
	}
	state := disableInterrupts()
	defer restoreInterrupts(state)
	idx := traceRingHead
	traceRing[idx] = BusEvent{
		Time:      GetTime(),
		EventType: eventType,
		Cmd:       cmd,
		Arg:       arg,
		Value:     value,
	}
	traceRingHead = (idx + 1) % TraceRingSize
}

// TraceEvents returns the captured events, oldest first.
func TraceEvents() []BusEvent {
	state := disableInterrupts()
	defer restoreInterrupts(state)
	out := make([]BusEvent, 0, TraceRingSize)
	start := traceRingHead
	for i := uint8(0); i < TraceRingSize; i++ {
		evt := traceRing[(start+i)%TraceRingSize]
		if evt.EventType == 0 {
			continue // Empty slot
		}
		out = append(out, evt)
	}
	return out
}

// EventName returns the display name of an event type.
func EventName(eventType uint8) string {
	switch eventType {
	case EvtCommand:
		return "CMD"
	case EvtResponse:
		return "R1"
	case EvtTimeout:
		return "TIMEOUT!"
	case EvtDataToken:
		return "TOKEN"
	case EvtDataResponse:
		return "DATA_RESP"
	case EvtBusy:
		return "BUSY!"
	default:
		return "UNKNOWN"
	}
}

// DumpTrace writes the ring through the debug writer (call on error paths)
func DumpTrace() {
	debugPrintln("[TRACE] === Bus Event Dump ===")
	for _, evt := range TraceEvents() {
		debugPrintln("[TRACE] t=" + Utoa(evt.Time) + " " + EventName(evt.EventType) +
			" cmd=" + itoa(int(evt.Cmd)) +
			" arg=" + Hex32(evt.Arg) +
			" val=" + Hex8(evt.Value))
	}
	debugPrintln("[TRACE] === End Dump ===")
}

// ClearTrace clears the event buffer
func ClearTrace() {
	state := disableInterrupts()
	defer restoreInterrupts(state)
	for i := range traceRing {
		traceRing[i] = BusEvent{}
	}
	traceRingHead = 0
}
