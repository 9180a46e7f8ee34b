package mmio

import "sync"

// StoreHook observes a store to a simulated register.
type StoreHook func(addr uintptr, old, v uint32)

// LoadHook may replace the value returned for a simulated register.
type LoadHook func(addr uintptr, v uint32) uint32

// Sim is an in-memory register file. Unwritten registers read as zero.
// Hooks run on the caller's goroutine after the register lock is released,
// so they may call Poke and Peek.
type Sim struct {
	mu     sync.Mutex
	regs   map[uintptr]uint32
	stores map[uintptr]StoreHook
	loads  map[uintptr]LoadHook

	Loads  int // number of Load32 calls
	Writes int // number of Store32 calls
}

// NewSim returns an empty register file.
func NewSim() *Sim {
	return &Sim{
		regs:   make(map[uintptr]uint32),
		stores: make(map[uintptr]StoreHook),
		loads:  make(map[uintptr]LoadHook),
	}
}

func (s *Sim) Load32(addr uintptr) uint32 {
	s.mu.Lock()
	v := s.regs[addr]
	h := s.loads[addr]
	s.Loads++
	s.mu.Unlock()
	if h != nil {
		v = h(addr, v)
	}
	return v
}

func (s *Sim) Store32(addr uintptr, v uint32) {
	s.mu.Lock()
	old := s.regs[addr]
	s.regs[addr] = v
	h := s.stores[addr]
	s.Writes++
	s.mu.Unlock()
	if h != nil {
		h(addr, old, v)
	}
}

// Peek reads a register without running hooks or counting the access.
func (s *Sim) Peek(addr uintptr) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.regs[addr]
}

// Poke sets a register without running hooks or counting the access.
// Devices use it to drive input registers.
func (s *Sim) Poke(addr uintptr, v uint32) {
	s.mu.Lock()
	s.regs[addr] = v
	s.mu.Unlock()
}

// OnStore installs h for addr, replacing any previous hook.
func (s *Sim) OnStore(addr uintptr, h StoreHook) {
	s.mu.Lock()
	s.stores[addr] = h
	s.mu.Unlock()
}

// OnLoad installs h for addr, replacing any previous hook.
func (s *Sim) OnLoad(addr uintptr, h LoadHook) {
	s.mu.Lock()
	s.loads[addr] = h
	s.mu.Unlock()
}
