//go:build !tinygo

package spi

// spinSink keeps the loop body observable to the compiler.
var spinSink uint32

func spin(loops uint32) {
	var n uint32
	for i := uint32(0); i < loops; i++ {
		n++
	}
	spinSink = n
}
