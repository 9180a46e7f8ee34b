// Command sdsim brings up the SD storage stack on the host, either against
// the bit-level card simulator or, on a Linux board, against the real GPIO
// block through /dev/mem, and offers a small shell for block I/O.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"time"

	"k8s.io/klog/v2"

	"sdstack/config"
	"sdstack/core"
	"sdstack/host/serial"
)

var (
	boardFile = flag.String("board", "", "Board description (JSON); built-in generic board if empty")
	devmem    = flag.Bool("devmem", false, "Drive the real GPIO block through /dev/mem instead of the simulator")
	cardKind  = flag.String("card", "sdhc", "Simulated card: sdhc, sdsc or sdsc1")
	sectors   = flag.Uint("sectors", 65536, "Simulated card size in sectors")
	console   = flag.String("console", "", "Serial device to mirror log output to")
	baud      = flag.Int("baud", 115200, "Console baud rate")
	crc       = flag.Bool("crc", false, "Enable CRC checking on commands and data")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	defer klog.Flush()

	var sink core.DebugWriter = func(s string) { klog.InfoDepth(2, s) }
	if *console != "" {
		cfg := serial.DefaultConfig(*console)
		cfg.Baud = *baud
		port, err := serial.Open(cfg)
		if err != nil {
			klog.Exitf("console: %v", err)
		}
		mirror := serial.NewMirror(port, sink)
		defer mirror.Close()
		sink = mirror.Writer()
	}
	start := time.Now()
	core.SetClock(func() uint32 { return uint32(time.Since(start).Microseconds()) })
	core.SetDebugWriter(sink)
	core.SetDebugEnabled(klog.V(2).Enabled())

	board, err := loadBoard(*boardFile)
	if err != nil {
		klog.Exitf("board: %v", err)
	}
	if *crc {
		board.VerifyCRC = true
	}

	st, err := newStack(board, stackOptions{
		devmem:  *devmem,
		kind:    *cardKind,
		sectors: uint32(*sectors),
	})
	if err != nil {
		klog.Exitf("setup: %v", err)
	}
	defer st.Close()

	if err := st.Probe(); err != nil {
		// The stack stays usable for inspection; I/O reports the card absent.
		klog.Warningf("no card: %v", err)
	}

	fmt.Printf("sdsim on board %q (%s)\n", board.Name, st.Describe())
	fmt.Println("Enter commands (type 'help' for available commands, 'quit' to exit):")

	sh := newShell(st, os.Stdout)
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		quit, err := sh.Run(scanner.Text())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		if quit {
			return
		}
	}
	if err := scanner.Err(); err != nil {
		klog.Exitf("reading input: %v", err)
	}
}

func loadBoard(path string) (*config.Board, error) {
	if path == "" {
		return config.LoadConfig([]byte("{}"))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return config.LoadConfig(data)
}
