// Package rangecoding implements the entropy coder used by Opus per
// RFC 6716 Section 4.1: a byte-based range coder whose coded symbols
// grow from the front of the buffer while raw (uncoded) bits are packed
// backwards from the tail of the same buffer.
package rangecoding

// Constants from RFC 6716 Section 4.1.
const (
	// symBits is the number of bits read or written at a time.
	symBits = 8
	// codeBits is the total number of bits in each state register.
	codeBits = 32
	// symMax is the maximum symbol value (255).
	symMax = (1 << symBits) - 1
	// codeTop is the carry bit of the high-order range symbol.
	codeTop = uint32(1) << (codeBits - 1)
	// codeBot is the low-order bit of the high-order range symbol. The
	// range register always exceeds this bound after normalization.
	codeBot = codeTop >> symBits
	// codeShift moves a symbol into the high-order position.
	codeShift = codeBits - symBits - 1
	// codeExtra is the number of bits available for the last, partial
	// symbol in the code field (7).
	codeExtra = (codeBits-2)%symBits + 1
	// uintBits is the number of bits coded through the range coder for
	// unsigned integers; anything beyond goes through raw bits.
	uintBits = 8
	// windowSize is the size in bits of the raw-bit accumulation window.
	windowSize = 32
	// bitres scales Tell to fractional precision: 3 => 1/8 bits.
	bitres = 3
)

// Laplace ("two-sided geometric") model constants. The zero bucket is
// coded out of a total frequency space of 32768 and every tail bucket
// keeps at least minP of probability mass.
const (
	laplaceTotal   = 32768
	laplaceNMin    = 16
	laplaceLogMinP = 0
	laplaceMinP    = 1 << laplaceLogMinP
)
