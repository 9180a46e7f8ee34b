package sdcard

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"sdstack/drivers/gpio"
	"sdstack/drivers/spi"
	"sdstack/errcode"
	"sdstack/internal/cardsim"
	"sdstack/mmio"
	"sdstack/protocol"
)

const gpioBase = 0x10060000

var testPins = gpio.NewSPIPins(gpio.NewPin(0, 2), gpio.NewPin(0, 3), gpio.NewPin(0, 4), gpio.NewPin(0, 5))

type rig struct {
	sim    *mmio.Sim
	card   *cardsim.Card
	dev    *Device
	sleeps int
}

func newRig(t *testing.T, card *cardsim.Card, opt func(*Options)) *rig {
	t.Helper()
	r := &rig{sim: mmio.NewSim(), card: card}
	card.Attach(r.sim, gpioBase, gpio.DefaultLayout, testPins)
	bus := spi.NewGPIO(gpio.NewController(r.sim, gpioBase, gpio.DefaultLayout), testPins)
	bus.SetDelay(func(uint32) {})

	opts := DefaultOptions()
	opts.Sleep = func(time.Duration) { r.sleeps++ }
	if opt != nil {
		opt(&opts)
	}
	r.dev = New(bus, opts)
	return r
}

func (r *rig) csHigh() bool {
	return r.sim.Peek(gpioBase+0x08)&(1<<testPins.CS.Pin) != 0
}

func mustInit(t *testing.T, r *rig) {
	t.Helper()
	if err := r.dev.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
}

func pattern(seed byte) *[protocol.BlockSize]byte {
	var b [protocol.BlockSize]byte
	for i := range b {
		b[i] = seed + byte(i*7)
	}
	return &b
}

func TestInitCardTypes(t *testing.T) {
	cases := []struct {
		kind    cardsim.Kind
		sectors uint32
		want    CardType
		blkLen  bool // CMD16 expected
	}{
		{cardsim.SDHC, 16384, SDHC, false},
		{cardsim.SDSCv2, 8192, SDSCv2, true},
		{cardsim.SDSCv1, 4096, SDSCv1, true},
	}
	for _, tc := range cases {
		r := newRig(t, cardsim.New(tc.kind, tc.sectors), nil)
		mustInit(t, r)

		info := r.dev.Info()
		if info.Type != tc.want {
			t.Errorf("%v: type %v, want %v", tc.kind, info.Type, tc.want)
		}
		if r.dev.Capacity() != tc.sectors {
			t.Errorf("%v: capacity %d, want %d", tc.kind, r.dev.Capacity(), tc.sectors)
		}
		if info.CSD != r.card.CSD() || info.CID != r.card.CID() {
			t.Errorf("%v: registers not captured", tc.kind)
		}
		if !r.dev.Ready() || r.dev.State() != Ready {
			t.Errorf("%v: state %v after Init", tc.kind, r.dev.State())
		}
		if !r.csHigh() {
			t.Errorf("%v: card left selected", tc.kind)
		}

		sawCMD16 := bytes.IndexByte(r.card.Commands(), protocol.CMD16) >= 0
		if sawCMD16 != tc.blkLen {
			t.Errorf("%v: CMD16 sent=%v, want %v", tc.kind, sawCMD16, tc.blkLen)
		}
	}
}

func TestInitSequence(t *testing.T) {
	r := newRig(t, cardsim.New(cardsim.SDHC, 8192), nil)
	mustInit(t, r)
	want := []uint8{
		protocol.CMD0, protocol.CMD8,
		protocol.CMD55, protocol.ACMD41,
		protocol.CMD58, protocol.CMD9, protocol.CMD10,
	}
	if got := r.card.Commands(); !bytes.Equal(got, want) {
		t.Errorf("commands %v, want %v", got, want)
	}
	if r.dev.Info().OCR&protocol.OCRCCS == 0 {
		t.Errorf("OCR %#x lacks CCS", r.dev.Info().OCR)
	}
}

func TestInitSwitchesToFastClock(t *testing.T) {
	sim := mmio.NewSim()
	card := cardsim.New(cardsim.SDHC, 8192)
	card.Attach(sim, gpioBase, gpio.DefaultLayout, testPins)
	bus := spi.NewGPIO(gpio.NewController(sim, gpioBase, gpio.DefaultLayout), testPins)
	bus.SetDelay(func(uint32) {})

	dev := New(bus, DefaultOptions())
	if err := dev.Init(); err != nil {
		t.Fatal(err)
	}
	if got := bus.Config().ClockRate; got != 25_000_000 {
		t.Errorf("clock after Init = %d, want 25 MHz", got)
	}
}

func TestInitWaitsForACMD41(t *testing.T) {
	card := cardsim.New(cardsim.SDHC, 8192)
	card.Faults.ACMD41Busy = 5
	r := newRig(t, card, nil)
	mustInit(t, r)
	if r.sleeps != 5 {
		t.Errorf("slept %d times, want 5", r.sleeps)
	}
}

func TestInitGivesUp(t *testing.T) {
	card := cardsim.New(cardsim.SDHC, 8192)
	card.Faults.ACMD41Busy = 1 << 20
	r := newRig(t, card, func(o *Options) { o.InitAttempts = 20 })

	err := r.dev.Init()
	if !errors.Is(err, errcode.InitializationFailed) {
		t.Fatalf("Init = %v, want InitializationFailed", err)
	}
	if r.sleeps != 20 {
		t.Errorf("attempts %d, want 20", r.sleeps)
	}
	if r.dev.State() != Failed || r.dev.Ready() {
		t.Errorf("state %v after failed Init", r.dev.State())
	}
	if !r.csHigh() {
		t.Error("card left selected after failure")
	}
}

func TestInitNoCard(t *testing.T) {
	card := cardsim.New(cardsim.SDHC, 8192)
	card.Faults.NoResponse = true
	r := newRig(t, card, nil)

	err := r.dev.Init()
	if !errors.Is(err, errcode.InitializationFailed) || !errors.Is(err, errcode.CommandTimeout) {
		t.Fatalf("Init = %v, want InitializationFailed caused by CommandTimeout", err)
	}
	if !r.csHigh() {
		t.Error("card left selected after timeout")
	}
}

func TestInitCardDetect(t *testing.T) {
	r := newRig(t, cardsim.New(cardsim.SDHC, 8192), func(o *Options) {
		o.CardDetect = func() bool { return false }
	})
	if err := r.dev.Init(); !errors.Is(err, errcode.CardNotPresent) {
		t.Fatalf("Init = %v, want CardNotPresent", err)
	}
	if len(r.card.Commands()) != 0 {
		t.Error("commands sent with no card inserted")
	}
}

func TestReadWriteRoundTrip(t *testing.T) {
	for _, kind := range []cardsim.Kind{cardsim.SDHC, cardsim.SDSCv2, cardsim.SDSCv1} {
		r := newRig(t, cardsim.New(kind, 8192), nil)
		mustInit(t, r)

		src := pattern(0x11)
		if err := r.dev.WriteBlock(42, src); err != nil {
			t.Fatalf("%v: WriteBlock: %v", kind, err)
		}
		if got := r.card.Sector(42); !bytes.Equal(got, src[:]) {
			t.Fatalf("%v: card sector 42 does not hold the written data", kind)
		}

		var dst [protocol.BlockSize]byte
		if err := r.dev.ReadBlock(42, &dst); err != nil {
			t.Fatalf("%v: ReadBlock: %v", kind, err)
		}
		if dst != *src {
			t.Errorf("%v: read back differs", kind)
		}
		if !r.csHigh() || r.dev.State() != Ready {
			t.Errorf("%v: bus not released after transfer", kind)
		}
	}
}

func TestReadPreloadedSector(t *testing.T) {
	card := cardsim.New(cardsim.SDSCv2, 8192)
	card.SetSector(7, []byte("hello sector seven"))
	r := newRig(t, card, nil)
	mustInit(t, r)

	var dst [protocol.BlockSize]byte
	if err := r.dev.ReadBlock(7, &dst); err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(dst[:], []byte("hello sector seven")) {
		t.Errorf("sector 7 = %q", dst[:18])
	}
}

func TestMultiBlock(t *testing.T) {
	r := newRig(t, cardsim.New(cardsim.SDHC, 8192), nil)
	mustInit(t, r)

	buf := make([]byte, 3*protocol.BlockSize)
	for i := range buf {
		buf[i] = byte(i / protocol.BlockSize)
	}
	if err := r.dev.WriteBlocks(100, buf); err != nil {
		t.Fatal(err)
	}
	for i := uint32(0); i < 3; i++ {
		if s := r.card.Sector(100 + i); s[0] != byte(i) || s[511] != byte(i) {
			t.Errorf("sector %d holds %#x", 100+i, s[0])
		}
	}

	got := make([]byte, len(buf))
	if err := r.dev.ReadBlocks(100, got); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, buf) {
		t.Error("ReadBlocks differs from WriteBlocks")
	}

	if err := r.dev.ReadBlocks(0, make([]byte, 100)); !errors.Is(err, errcode.InvalidSector) {
		t.Errorf("partial sector read = %v, want InvalidSector", err)
	}
	if err := r.dev.WriteBlocks(0, make([]byte, 513)); !errors.Is(err, errcode.InvalidSector) {
		t.Errorf("partial sector write = %v, want InvalidSector", err)
	}
}

func TestBlockBeforeInit(t *testing.T) {
	r := newRig(t, cardsim.New(cardsim.SDHC, 8192), nil)
	var b [protocol.BlockSize]byte
	if err := r.dev.ReadBlock(0, &b); !errors.Is(err, errcode.NotInitialized) {
		t.Errorf("ReadBlock = %v, want NotInitialized", err)
	}
	if err := r.dev.WriteBlock(0, &b); !errors.Is(err, errcode.NotInitialized) {
		t.Errorf("WriteBlock = %v, want NotInitialized", err)
	}
	if r.dev.Capacity() != 0 {
		t.Errorf("Capacity before Init = %d", r.dev.Capacity())
	}
}

func TestOutOfRange(t *testing.T) {
	r := newRig(t, cardsim.New(cardsim.SDHC, 8192), nil)
	mustInit(t, r)
	var b [protocol.BlockSize]byte
	if err := r.dev.ReadBlock(8192, &b); !errors.Is(err, errcode.InvalidSector) {
		t.Errorf("ReadBlock past end = %v, want InvalidSector", err)
	}
}

func TestRangeWithUnknownCapacity(t *testing.T) {
	tests := []struct {
		kind  cardsim.Kind
		start uint32
	}{
		{cardsim.SDHC, 0xFFFFFFFF},
		{cardsim.SDSCv2, 1<<23 - 1},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			card := cardsim.New(tt.kind, 8192)
			r := newRig(t, card, nil)
			mustInit(t, r)
			// As if CSD could not be read.
			r.dev.info.CapacitySectors = 0
			card.SetSector(0, pattern(9)[:])

			buf := make([]byte, 2*protocol.BlockSize)
			if err := r.dev.WriteBlocks(tt.start, buf); !errors.Is(err, errcode.InvalidSector) {
				t.Errorf("WriteBlocks wrapping = %v, want InvalidSector", err)
			}
			if err := r.dev.ReadBlocks(tt.start, buf); !errors.Is(err, errcode.InvalidSector) {
				t.Errorf("ReadBlocks wrapping = %v, want InvalidSector", err)
			}
			if !bytes.Equal(card.Sector(0), pattern(9)[:]) {
				t.Error("sector 0 overwritten")
			}
		})
	}
}

func TestMultiBlockPastEndTransfersNothing(t *testing.T) {
	card := cardsim.New(cardsim.SDHC, 8192)
	r := newRig(t, card, nil)
	mustInit(t, r)

	buf := bytes.Repeat([]byte{0x5A}, 2*protocol.BlockSize)
	if err := r.dev.WriteBlocks(8191, buf); !errors.Is(err, errcode.InvalidSector) {
		t.Fatalf("WriteBlocks past end = %v, want InvalidSector", err)
	}
	if card.Sector(8191)[0] != 0 {
		t.Error("first sector written before the range was rejected")
	}
}

func TestWriteRejected(t *testing.T) {
	card := cardsim.New(cardsim.SDHC, 8192)
	r := newRig(t, card, nil)
	mustInit(t, r)
	card.Faults.RejectWrites = true

	if err := r.dev.WriteBlock(1, pattern(3)); !errors.Is(err, errcode.WriteError) {
		t.Fatalf("WriteBlock = %v, want WriteError", err)
	}
	if !r.csHigh() {
		t.Error("card left selected")
	}
	// The driver recovers for the next command.
	card.Faults.RejectWrites = false
	if err := r.dev.WriteBlock(1, pattern(3)); err != nil {
		t.Errorf("WriteBlock after recovery: %v", err)
	}
}

func TestWriteProtected(t *testing.T) {
	r := newRig(t, cardsim.New(cardsim.SDHC, 8192), func(o *Options) {
		o.WriteProtect = func() bool { return true }
	})
	mustInit(t, r)
	if err := r.dev.WriteBlock(0, pattern(0)); !errors.Is(err, errcode.WriteProtected) {
		t.Fatalf("WriteBlock = %v, want WriteProtected", err)
	}
	if r.dev.State() != Ready {
		t.Errorf("state %v after refused write", r.dev.State())
	}
}

func TestVerifyCRC(t *testing.T) {
	card := cardsim.New(cardsim.SDHC, 8192)
	r := newRig(t, card, func(o *Options) { o.VerifyCRC = true })
	mustInit(t, r)
	if !card.CRCEnabled() {
		t.Fatal("CMD59 did not enable card CRC checking")
	}

	if err := r.dev.WriteBlock(5, pattern(9)); err != nil {
		t.Fatalf("WriteBlock with CRC on: %v", err)
	}
	var b [protocol.BlockSize]byte
	if err := r.dev.ReadBlock(5, &b); err != nil {
		t.Fatalf("ReadBlock with CRC on: %v", err)
	}

	card.Faults.BadReadCRC = true
	if err := r.dev.ReadBlock(5, &b); !errors.Is(err, errcode.CRCError) {
		t.Errorf("corrupted block = %v, want CRCError", err)
	}
}

func TestCRCIgnoredByDefault(t *testing.T) {
	card := cardsim.New(cardsim.SDHC, 8192)
	card.Faults.BadReadCRC = true
	r := newRig(t, card, nil)
	mustInit(t, r)
	var b [protocol.BlockSize]byte
	if err := r.dev.ReadBlock(0, &b); err != nil {
		t.Errorf("ReadBlock = %v with CRC checking off", err)
	}
}

// failingBus accepts configuration but every transfer fails.
type failingBus struct{ err error }

func (f failingBus) Init(spi.Config) error       { return nil }
func (f failingBus) Transfer(_, _ []byte) error { return f.err }
func (f failingBus) CSActive() error             { return nil }
func (f failingBus) CSInactive() error           { return nil }

func TestSPIErrorKeepsCause(t *testing.T) {
	dev := New(failingBus{err: errcode.TransferFailed}, DefaultOptions())
	err := dev.Init()
	if !errors.Is(err, errcode.SPIError) {
		t.Fatalf("Init = %v, want SPIError", err)
	}
	if !errors.Is(err, errcode.TransferFailed) {
		t.Errorf("cause lost: %v", err)
	}
}

func TestCapacityFromCSD(t *testing.T) {
	v2 := [16]byte{0: 0x40, 7: 0x00, 8: 0x3B, 9: 0x37} // C_SIZE 15159
	if got, want := CapacityFromCSD(v2), uint32(15160*1024); got != want {
		t.Errorf("v2 capacity %d, want %d", got, want)
	}
	// 2 GB card: C_SIZE 4095, C_SIZE_MULT 7, READ_BL_LEN 10.
	v1 := [16]byte{5: 0x0A, 6: 0x03, 7: 0xFF, 8: 0xC0, 9: 0x03, 10: 0x80}
	if got, want := CapacityFromCSD(v1), uint32(4096*512*1024/512); got != want {
		t.Errorf("v1 capacity %d, want %d", got, want)
	}
	if got := CapacityFromCSD([16]byte{0: 0x80}); got != 0 {
		t.Errorf("CSD v3 capacity %d, want 0", got)
	}
}

func TestParseCID(t *testing.T) {
	cid := ParseCID(cardsim.New(cardsim.SDHC, 1024).CID())
	if cid.ManufacturerID != 0x03 || cid.OEMID != "SD" || cid.Product != "SIM01" {
		t.Errorf("CID %+v", cid)
	}
	if cid.Year != 2022 || cid.Month != 10 {
		t.Errorf("date %d-%d, want 2022-10", cid.Year, cid.Month)
	}
	if cid.Serial != 0x12345678 {
		t.Errorf("serial %#x", cid.Serial)
	}
}
