package main

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"

	"github.com/google/shlex"

	"sdstack/core"
	"sdstack/drivers/sdcard"
	"sdstack/storage"
)

// shell interprets one command line at a time.
type shell struct {
	st  *stack
	out io.Writer
}

func newShell(st *stack, out io.Writer) *shell {
	return &shell{st: st, out: out}
}

// Run executes line. It reports true when the user asked to leave.
func (sh *shell) Run(line string) (bool, error) {
	args, err := shlex.Split(line)
	if err != nil {
		return false, fmt.Errorf("parse: %w", err)
	}
	if len(args) == 0 {
		return false, nil
	}

	switch args[0] {
	case "quit", "exit", "q":
		fmt.Fprintln(sh.out, "Goodbye!")
		return true, nil
	case "help", "?":
		sh.help()
	case "info":
		sh.info()
	case "probe":
		return false, sh.st.Probe()
	case "read":
		return false, sh.read(args[1:])
	case "write":
		return false, sh.write(args[1:])
	case "fill":
		return false, sh.fill(args[1:])
	case "trace":
		sh.trace()
	case "clear":
		core.ClearTrace()
	default:
		return false, fmt.Errorf("unknown command %q (type 'help' for available commands)", args[0])
	}
	return false, nil
}

func (sh *shell) help() {
	fmt.Fprintln(sh.out, "\nAvailable commands:")
	fmt.Fprintln(sh.out, "  info                    - Show card type, capacity and registers")
	fmt.Fprintln(sh.out, "  probe                   - Re-run card detection and init")
	fmt.Fprintln(sh.out, "  read <lba> [count]      - Hex dump sectors")
	fmt.Fprintln(sh.out, "  write <lba> <text>      - Write text at the start of a sector")
	fmt.Fprintln(sh.out, "  fill <lba> <count> <b>  - Fill sectors with one byte value")
	fmt.Fprintln(sh.out, "  trace                   - Dump the bus event ring")
	fmt.Fprintln(sh.out, "  clear                   - Clear the bus event ring")
	fmt.Fprintln(sh.out, "  quit/exit/q             - Exit the program")
	fmt.Fprintln(sh.out)
}

func (sh *shell) info() {
	dev := sh.st.device
	if dev == nil || !dev.Ready() {
		fmt.Fprintln(sh.out, "no card")
		return
	}
	info := dev.Info()
	cid := sdcard.ParseCID(info.CID)
	fmt.Fprintf(sh.out, "type:     %v\n", info.Type)
	fmt.Fprintf(sh.out, "capacity: %d sectors (%d MiB)\n", info.CapacitySectors, info.CapacitySectors/2048)
	fmt.Fprintf(sh.out, "ocr:      %#08x\n", info.OCR)
	fmt.Fprintf(sh.out, "product:  %s (oem %s, mid %#02x, rev %d.%d)\n",
		cid.Product, cid.OEMID, cid.ManufacturerID, cid.Revision>>4, cid.Revision&0xF)
	fmt.Fprintf(sh.out, "serial:   %#08x, made %d-%02d\n", cid.Serial, cid.Year, cid.Month)
	fmt.Fprintf(sh.out, "csd:      %x\n", info.CSD)
	fmt.Fprintf(sh.out, "state:    %v\n", dev.State())
}

func parseUint(s, what string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("bad %s %q", what, s)
	}
	return uint32(v), nil
}

func (sh *shell) read(args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("usage: read <lba> [count]")
	}
	lba, err := parseUint(args[0], "lba")
	if err != nil {
		return err
	}
	count := uint32(1)
	if len(args) == 2 {
		if count, err = parseUint(args[1], "count"); err != nil {
			return err
		}
	}
	if err := sh.span(lba, count); err != nil {
		return err
	}
	buf := make([]byte, int(count)*storage.SectorSize)
	if err := sh.st.manager.ReadBlocks(lba, buf); err != nil {
		return fmt.Errorf("read %d: %w", lba, err)
	}
	for i := uint32(0); i < count; i++ {
		fmt.Fprintf(sh.out, "sector %d:\n", lba+i)
		fmt.Fprint(sh.out, hex.Dump(buf[int(i)*storage.SectorSize:int(i+1)*storage.SectorSize]))
	}
	return nil
}

// span rejects ranges that do not fit on the card, before anything is
// allocated for them.
func (sh *shell) span(lba, count uint32) error {
	capacity := sh.st.manager.Capacity()
	if count == 0 || lba >= capacity || count > capacity-lba {
		return fmt.Errorf("sectors %d+%d outside card of %d sectors", lba, count, capacity)
	}
	return nil
}

func (sh *shell) write(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: write <lba> <text>")
	}
	lba, err := parseUint(args[0], "lba")
	if err != nil {
		return err
	}
	if len(args[1]) > storage.SectorSize {
		return fmt.Errorf("text longer than one sector")
	}
	if _, err := sh.st.volume.WriteAt([]byte(args[1]), int64(lba)*storage.SectorSize); err != nil {
		return fmt.Errorf("write %d: %w", lba, err)
	}
	fmt.Fprintf(sh.out, "wrote %d bytes to sector %d\n", len(args[1]), lba)
	return nil
}

func (sh *shell) fill(args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("usage: fill <lba> <count> <byte>")
	}
	lba, err := parseUint(args[0], "lba")
	if err != nil {
		return err
	}
	count, err := parseUint(args[1], "count")
	if err != nil {
		return err
	}
	v, err := parseUint(args[2], "byte")
	if err != nil || v > 0xFF {
		return fmt.Errorf("bad byte %q", args[2])
	}
	if err := sh.span(lba, count); err != nil {
		return err
	}
	buf := bytes.Repeat([]byte{byte(v)}, int(count)*storage.SectorSize)
	if err := sh.st.manager.WriteBlocks(lba, buf); err != nil {
		return fmt.Errorf("fill %d: %w", lba, err)
	}
	fmt.Fprintf(sh.out, "filled %d sectors from %d with %#02x\n", count, lba, v)
	return nil
}

func (sh *shell) trace() {
	events := core.TraceEvents()
	if len(events) == 0 {
		fmt.Fprintln(sh.out, "trace empty")
		return
	}
	for _, e := range events {
		fmt.Fprintf(sh.out, "%10dus %-9s cmd=%-2d arg=%#08x val=%#02x\n", e.Time, core.EventName(e.EventType), e.Cmd, e.Arg, e.Value)
	}
}
