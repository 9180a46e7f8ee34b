// Package protocol holds the SD card SPI-mode wire format: command frames,
// R1 responses, data tokens and the two CRCs that protect them. It does no
// I/O; drivers/sdcard moves the bytes.
package protocol
