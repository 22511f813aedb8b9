package rangecoding

import "math/bits"

// Decoder is the range decoder of RFC 6716 Section 4.1. Coded symbols
// are consumed from the front of the buffer while raw bits are consumed
// from the back; both directions share the same storage bound so the
// two streams cannot overlap.
type Decoder struct {
	buf        []byte
	storage    uint32 // usable length; ShrinkStorage lowers it mid-stream
	offs       uint32 // forward read offset
	endOffs    uint32 // bytes consumed from the tail
	endWindow  uint32 // raw-bit accumulation window
	nendBits   int    // valid bits in endWindow
	nbitsTotal int    // bits consumed, before the -ilog(rng) correction
	rng        uint32 // size of the current interval
	val        uint32 // difference between the top of the interval and the code
	ext        uint32 // scale factor saved between Decode and Update
	rem        int    // buffered partial byte
}

// Init resets the decoder over buf. The slice is retained, not copied.
func (d *Decoder) Init(buf []byte) {
	d.buf = buf
	d.storage = uint32(len(buf))
	d.offs = 0
	d.endOffs = 0
	d.endWindow = 0
	d.nendBits = 0

	d.rng = 1 << codeExtra
	d.rem = int(d.readByte())
	d.val = d.rng - 1 - uint32(d.rem>>(symBits-codeExtra))

	// Offset so that Tell reports 1 bit once the first normalization
	// completes, matching the reference initialization.
	d.nbitsTotal = codeBits + 1 - ((codeBits-codeExtra)/symBits)*symBits
	d.ext = 0
	d.normalize()
}

// readByte returns the next forward byte, or 0 past the end. Reading
// zeros past the end is well defined and required for short packets.
func (d *Decoder) readByte() byte {
	if d.offs < d.storage {
		b := d.buf[d.offs]
		d.offs++
		return b
	}
	return 0
}

// readByteFromEnd returns the next byte from the tail, or 0 once the
// tail meets the shrunken storage bound.
func (d *Decoder) readByteFromEnd() byte {
	if d.endOffs < d.storage {
		d.endOffs++
		return d.buf[d.storage-d.endOffs]
	}
	return 0
}

// normalize restores the invariant rng > codeBot, shifting one byte of
// code into val per iteration.
func (d *Decoder) normalize() {
	for d.rng <= codeBot {
		d.nbitsTotal += symBits
		d.rng <<= symBits

		sym := d.rem
		d.rem = int(d.readByte())
		sym = (sym<<symBits | d.rem) >> (symBits - codeExtra)

		d.val = ((d.val << symBits) + uint32(symMax&^sym)) & (codeTop - 1)
	}
}

// Decode returns the cumulative frequency the code falls under, for a
// model with total frequency ft. It does not advance the stream; the
// caller looks the symbol up and commits with Update.
func (d *Decoder) Decode(ft uint32) uint32 {
	d.ext = d.rng / ft
	s := d.val / d.ext
	if s+1 > ft {
		s = ft - 1
	}
	return ft - (s + 1)
}

// DecodeBin is Decode for ft = 1<<ftb, replacing the division by a shift.
func (d *Decoder) DecodeBin(ftb uint) uint32 {
	ft := uint32(1) << ftb
	d.ext = d.rng >> ftb
	s := d.val / d.ext
	if s+1 > ft {
		s = ft - 1
	}
	return ft - (s + 1)
}

// Update commits the symbol whose cumulative frequency range is
// [fl, fh) out of ft, then renormalizes. fl, fh and ft must be the
// values used to interpret the preceding Decode or DecodeBin.
func (d *Decoder) Update(fl, fh, ft uint32) {
	s := d.ext * (ft - fh)
	d.val -= s
	if fl > 0 {
		d.rng = d.ext * (fh - fl)
	} else {
		d.rng -= s
	}
	d.normalize()
}

// DecodeBit decodes one binary symbol where a 1 has probability
// 1/(1<<logp). Returns 0 or 1.
func (d *Decoder) DecodeBit(logp uint) int {
	r := d.rng
	v := d.val
	s := r >> logp

	ret := 0
	if v < s {
		ret = 1
		d.rng = s
	} else {
		d.val = v - s
		d.rng = r - s
	}
	d.normalize()
	return ret
}

// DecodeICDF decodes a symbol from an inverse CDF table. icdf holds
// (1<<ftb) minus the cumulative frequency, in decreasing order ending
// in 0. Returns the symbol index.
func (d *Decoder) DecodeICDF(icdf []uint8, ftb uint) int {
	t := d.rng
	v := d.val
	r := t >> ftb
	ret := -1
	s := t
	for {
		t = s
		ret++
		s = r * uint32(icdf[ret])
		if v >= s {
			break
		}
	}
	d.val = v - s
	d.rng = t - s
	d.normalize()
	return ret
}

// DecodeICDF16 is DecodeICDF over a uint16 table; cumulative values up
// to 256 do not fit in uint8.
func (d *Decoder) DecodeICDF16(icdf []uint16, ftb uint) int {
	t := d.rng
	v := d.val
	r := t >> ftb
	ret := -1
	s := t
	for {
		t = s
		ret++
		s = r * uint32(icdf[ret])
		if v >= s {
			break
		}
	}
	d.val = v - s
	d.rng = t - s
	d.normalize()
	return ret
}

// DecodeUint decodes a uniform value in [0, ft). Values needing more
// than uintBits go through the range coder for the high part and raw
// bits for the rest. A corrupt stream can only saturate the result to
// ft-1; DecodeUint never fails.
func (d *Decoder) DecodeUint(ft uint32) uint32 {
	if ft <= 1 {
		return 0
	}
	ft--
	ftb := uint(ilog(ft))
	if ftb > uintBits {
		ftb -= uintBits
		ft1 := (ft >> ftb) + 1
		s := d.Decode(ft1)
		d.Update(s, s+1, ft1)
		t := s<<ftb | d.DecodeRawBits(ftb)
		if t <= ft {
			return t
		}
		return ft
	}
	ft++
	s := d.Decode(ft)
	d.Update(s, s+1, ft)
	return s
}

// DecodeRawBits reads bits from the back of the buffer, LSB first
// within each byte.
func (d *Decoder) DecodeRawBits(bits uint) uint32 {
	window := d.endWindow
	available := d.nendBits
	for available < int(bits) {
		window |= uint32(d.readByteFromEnd()) << available
		available += symBits
	}
	ret := window & (1<<bits - 1)
	window >>= bits
	available -= int(bits)
	d.endWindow = window
	d.nendBits = available
	d.nbitsTotal += int(bits)
	return ret
}

// laplaceFreq1 is the frequency of the first non-zero bucket given the
// zero-bucket frequency fs0 and the per-step decay (Q14).
func laplaceFreq1(fs0 uint32, decay int) uint32 {
	ft := laplaceTotal - laplaceMinP*(2*laplaceNMin) - fs0
	return ft * uint32(16384-decay) >> 15
}

// DecodeLaplace decodes a signed value under a two-sided geometric
// model. fs is the frequency of zero and decay the Q14 decay factor;
// both come from the caller's energy model.
func (d *Decoder) DecodeLaplace(fs uint32, decay int) int {
	val := 0
	fl := uint32(0)
	fm := d.DecodeBin(15)
	if fm >= fs {
		val++
		fl = fs
		fs = laplaceFreq1(fs, decay) + laplaceMinP
		// Walk the decaying part of the PDF.
		for fs > laplaceMinP && fm >= fl+2*fs {
			fs *= 2
			fl += fs
			fs = (fs - 2*laplaceMinP) * uint32(decay) >> 15
			fs += laplaceMinP
			val++
		}
		// Everything beyond decays to the floor probability; the
		// remaining distance is a direct bucket count.
		if fs <= laplaceMinP {
			di := int(fm-fl) >> (laplaceLogMinP + 1)
			val += di
			fl += uint32(2 * di * laplaceMinP)
		}
		if fm < fl+fs {
			val = -val
		} else {
			fl += fs
		}
	}
	fh := fl + fs
	if fh > laplaceTotal {
		fh = laplaceTotal
	}
	d.Update(fl, fh, laplaceTotal)
	return val
}

// Tell returns the number of whole bits consumed so far. It can exceed
// the buffer size on a corrupt stream, which callers use to detect
// overruns.
func (d *Decoder) Tell() int {
	return d.nbitsTotal - ilog(d.rng)
}

// TellFrac returns the bits consumed in 1/8 bit units.
func (d *Decoder) TellFrac() int {
	return tellFrac(d.nbitsTotal, d.rng)
}

// Range returns the current range register, combined across streams to
// form the final-range checksum.
func (d *Decoder) Range() uint32 {
	return d.rng
}

// ShrinkStorage removes n bytes from the usable tail of the buffer,
// preserving decoder state. Used to carve trailing redundancy bytes
// out of the main stream.
func (d *Decoder) ShrinkStorage(n int) {
	if n <= 0 {
		return
	}
	if uint32(n) >= d.storage {
		d.storage = 0
	} else {
		d.storage -= uint32(n)
	}
	if d.offs > d.storage {
		d.offs = d.storage
	}
	if d.endOffs > d.storage {
		d.endOffs = d.storage
	}
}

// tellFracCorrection maps the top bits of rng onto the fractional bit
// estimate; shared by Decoder.TellFrac and Encoder.TellFrac.
var tellFracCorrection = [8]uint32{35733, 38967, 42495, 46340, 50535, 55109, 60097, 65535}

func tellFrac(nbitsTotal int, rng uint32) int {
	nbits := nbitsTotal << bitres
	l := ilog(rng)
	r := rng >> (uint(l) - 16)
	b := int(r>>12) - 8
	if r > tellFracCorrection[b] {
		b++
	}
	return nbits - (l<<bitres + b)
}

// ilog returns the position of the highest set bit plus one, 0 for 0.
func ilog(x uint32) int {
	return bits.Len32(x)
}
