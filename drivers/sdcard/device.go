package sdcard

import (
	"time"

	"tinygo.org/x/drivers"

	"sdstack/core"
	"sdstack/drivers/spi"
	"sdstack/errcode"
	"sdstack/protocol"
)

// Device is one card behind one bus. It is not safe for concurrent use;
// storage.Manager serializes callers.
type Device struct {
	bus  spi.Bus
	wire drivers.SPI
	opts Options

	state       State
	info        Info
	initialized bool

	ones    [protocol.BlockSize]byte // 0xFF fill clocked out while reading
	scratch [protocol.BlockSize]byte
}

// New returns a driver for the card on bus. It performs no I/O.
func New(bus spi.Bus, opts Options) *Device {
	opts.applyDefaults()
	d := &Device{
		bus:  bus,
		wire: spi.Driver(bus),
		opts: opts,
		info: Info{BlockSize: protocol.BlockSize},
	}
	for i := range d.ones {
		d.ones[i] = protocol.Idle
	}
	return d
}

// State returns the driver state.
func (d *Device) State() State { return d.state }

// Info returns what Init learned about the card.
func (d *Device) Info() Info { return d.info }

// Capacity returns the card size in 512-byte sectors, 0 before Init.
func (d *Device) Capacity() uint32 { return d.info.CapacitySectors }

// Ready reports whether blocks can be transferred.
func (d *Device) Ready() bool { return d.initialized && d.state == Ready }

// Init powers the card up and identifies it. On failure the card should be
// treated as absent.
func (d *Device) Init() error {
	d.initialized = false
	d.info = Info{BlockSize: protocol.BlockSize}
	d.state = Initializing

	if d.opts.CardDetect != nil && !d.opts.CardDetect() {
		d.state = Uninitialized
		return errcode.CardNotPresent
	}
	if err := d.bus.Init(d.opts.InitConfig); err != nil {
		d.state = Failed
		return errcode.Wrap(errcode.SPIError, "sdcard.init", err)
	}

	core.Info("initializing SD card")
	if err := d.powerUp(); err != nil {
		d.state = Failed
		core.Fail("SD card init: " + err.Error())
		core.DumpTrace()
		return err
	}

	if d.opts.FastClockRate != 0 {
		fast := d.opts.InitConfig.WithClockRate(d.opts.FastClockRate)
		if err := d.bus.Init(fast); err != nil {
			d.state = Failed
			return errcode.Wrap(errcode.SPIError, "sdcard.init", err)
		}
	}

	d.initialized = true
	d.state = Ready
	core.OK("SD card initialized: " + d.info.Type.String() +
		", " + core.Utoa(d.info.CapacitySectors) + " sectors")
	return nil
}

func (d *Device) powerUp() error {
	// At least 74 clocks with CS high put the card in native mode.
	if err := d.bus.CSInactive(); err != nil {
		return errcode.Wrap(errcode.SPIError, "sdcard.powerup", err)
	}
	if err := d.clock(PowerUpClocks); err != nil {
		return err
	}
	return d.selected("sdcard.init", d.identify)
}

func (d *Device) identify() error {
	if err := d.goIdle(); err != nil {
		return err
	}
	d.state = Idle

	v2, err := d.checkInterface()
	if err != nil {
		return err
	}

	if d.opts.VerifyCRC {
		r, err := d.command(protocol.CMD59, 1, 0)
		if err != nil {
			return err
		}
		if r.HasError() {
			return errcode.New(errcode.CommandError, "sdcard.crc_on", r1String(r))
		}
	}

	if err := d.waitReady(v2); err != nil {
		return err
	}

	r, err := d.command(protocol.CMD58, 0, 4)
	if err != nil {
		return err
	}
	if r.HasError() {
		return errcode.New(errcode.CommandError, "sdcard.read_ocr", r1String(r))
	}
	d.info.OCR = r.Payload()
	d.info.Type = cardType(v2, d.info.OCR)

	// Register reads are informational; a card that refuses them still
	// works at the default size.
	if csd, err := d.readRegister(protocol.CMD9); err == nil {
		d.info.CSD = csd
		d.info.CapacitySectors = CapacityFromCSD(csd)
		if d.info.Type == SDHC && d.info.CapacitySectors > sdhcMaxSectors {
			d.info.Type = SDXC
		}
	} else {
		core.Info("CSD unavailable: " + err.Error())
	}
	if cid, err := d.readRegister(protocol.CMD10); err == nil {
		d.info.CID = cid
	} else {
		core.Info("CID unavailable: " + err.Error())
	}

	if !d.info.Type.BlockAddressed() {
		r, err := d.command(protocol.CMD16, protocol.BlockSize, 0)
		if err != nil {
			return err
		}
		if r.HasError() {
			return errcode.New(errcode.InitializationFailed, "sdcard.set_blocklen", r1String(r))
		}
	}
	return nil
}

// goIdle sends CMD0 until the card reports idle.
func (d *Device) goIdle() error {
	var last error
	for i := 0; i < IdlePolls; i++ {
		r, err := d.command(protocol.CMD0, 0, 0)
		if err == nil && r.Idle() && !r.HasError() {
			return nil
		}
		if errcode.Of(err) == errcode.SPIError {
			return err
		}
		last = err
	}
	if last == nil {
		last = errcode.New(errcode.InitializationFailed, "sdcard.go_idle", "card not idle")
	}
	return errcode.Wrap(errcode.InitializationFailed, "sdcard.go_idle", last)
}

// checkInterface sends CMD8. Version 2 cards echo the check pattern,
// version 1 cards reject the command.
func (d *Device) checkInterface() (bool, error) {
	r, err := d.command(protocol.CMD8, protocol.IfCondPattern, 4)
	if err != nil {
		return false, err
	}
	if r.R1&protocol.R1IllegalCmd != 0 {
		return false, nil
	}
	if r.HasError() {
		return false, errcode.New(errcode.InitializationFailed, "sdcard.if_cond", r1String(r))
	}
	if r.Payload()&0xFFF != protocol.IfCondPattern {
		return false, errcode.New(errcode.CardNotSupported, "sdcard.if_cond",
			"voltage or pattern mismatch "+core.Hex32(r.Payload()))
	}
	return true, nil
}

// waitReady repeats CMD55+ACMD41 until the card leaves the idle state.
func (d *Device) waitReady(v2 bool) error {
	var arg uint32
	if v2 {
		arg = protocol.ArgHCS
	}
	for i := 0; i < d.opts.InitAttempts; i++ {
		r, err := d.command(protocol.CMD55, 0, 0)
		if err != nil {
			return err
		}
		if r.Valid() {
			r, err = d.command(protocol.ACMD41, arg, 0)
			if err != nil {
				return err
			}
			if r.R1&protocol.R1IllegalCmd != 0 {
				// MMC cards need CMD1, which is not supported.
				return errcode.New(errcode.CardNotSupported, "sdcard.op_cond", r1String(r))
			}
			if r.Valid() && !r.Idle() {
				return nil
			}
		}
		d.opts.Sleep(time.Millisecond)
	}
	return errcode.New(errcode.InitializationFailed, "sdcard.op_cond", "card stayed idle")
}

func cardType(v2 bool, ocr uint32) CardType {
	switch {
	case !v2:
		return SDSCv1
	case ocr&protocol.OCRCCS != 0:
		return SDHC
	default:
		return SDSCv2
	}
}

// sdhcMaxSectors is 32 GiB, the SDHC ceiling.
const sdhcMaxSectors = 32 << 21

func r1String(r protocol.Response) string {
	s := "r1=" + core.Hex8(r.R1)
	for _, e := range r.Errors() {
		s += " " + e
	}
	return s
}
