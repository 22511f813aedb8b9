package rangecoding

// Encoder is the matching range encoder. It exists to exercise the
// decoder: every Decode* method has an inverse here, and the two sides
// must agree bit for bit and Tell for Tell.
type Encoder struct {
	buf        []byte
	storage    uint32
	offs       uint32 // forward write offset (range-coded bytes)
	endOffs    uint32 // bytes written at the tail (raw bits)
	endWindow  uint32
	nendBits   int
	nbitsTotal int
	rng        uint32
	val        uint32 // low end of the current interval
	rem        int    // buffered byte awaiting carry resolution, -1 if none
	ext        uint32 // count of pending 0xFF bytes behind rem
	err        int
}

// Init resets the encoder over buf, which must be pre-sized to the
// largest packet the caller will produce.
func (e *Encoder) Init(buf []byte) {
	e.buf = buf
	e.storage = uint32(len(buf))
	e.offs = 0
	e.endOffs = 0
	e.endWindow = 0
	e.nendBits = 0
	e.nbitsTotal = codeBits + 1
	e.rng = codeTop
	e.val = 0
	e.rem = -1
	e.ext = 0
	e.err = 0
}

func (e *Encoder) writeByte(b byte) {
	if e.offs+e.endOffs >= e.storage {
		e.err = -1
		return
	}
	e.buf[e.offs] = b
	e.offs++
}

func (e *Encoder) writeEndByte(b byte) {
	if e.offs+e.endOffs >= e.storage {
		e.err = -1
		return
	}
	e.endOffs++
	e.buf[e.storage-e.endOffs] = b
}

// carryOut emits one symbol through the carry buffer. A 0xFF symbol
// cannot be written yet since a later carry could still ripple through
// it, so it is counted in ext until a non-0xFF symbol resolves the run.
func (e *Encoder) carryOut(c int) {
	if c != symMax {
		carry := c >> symBits
		if e.rem >= 0 {
			e.writeByte(byte(e.rem + carry))
		}
		if e.ext > 0 {
			sym := byte((symMax + carry) & symMax)
			for ; e.ext > 0; e.ext-- {
				e.writeByte(sym)
			}
		}
		e.rem = c & symMax
	} else {
		e.ext++
	}
}

func (e *Encoder) normalize() {
	for e.rng <= codeBot {
		e.carryOut(int(e.val >> codeShift))
		e.val = e.val << symBits & (codeTop - 1)
		e.rng <<= symBits
		e.nbitsTotal += symBits
	}
}

// Encode narrows the interval to the symbol whose cumulative frequency
// range is [fl, fh) out of ft.
func (e *Encoder) Encode(fl, fh, ft uint32) {
	r := e.rng / ft
	if fl > 0 {
		e.val += e.rng - r*(ft-fl)
		e.rng = r * (fh - fl)
	} else {
		e.rng -= r * (ft - fh)
	}
	e.normalize()
}

// EncodeBin is Encode for ft = 1<<ftb.
func (e *Encoder) EncodeBin(fl, fh uint32, ftb uint) {
	r := e.rng >> ftb
	if fl > 0 {
		e.val += e.rng - r*(uint32(1)<<ftb-fl)
		e.rng = r * (fh - fl)
	} else {
		e.rng -= r * (uint32(1)<<ftb - fh)
	}
	e.normalize()
}

// EncodeBit encodes one binary symbol where a 1 has probability
// 1/(1<<logp).
func (e *Encoder) EncodeBit(bit int, logp uint) {
	r := e.rng
	s := r >> logp
	if bit != 0 {
		e.val += r - s
		e.rng = s
	} else {
		e.rng = r - s
	}
	e.normalize()
}

// EncodeICDF encodes symbol s against an inverse CDF table.
func (e *Encoder) EncodeICDF(s int, icdf []uint8, ftb uint) {
	r := e.rng >> ftb
	if s > 0 {
		e.val += e.rng - r*uint32(icdf[s-1])
		e.rng = r * uint32(icdf[s-1]-icdf[s])
	} else {
		e.rng -= r * uint32(icdf[s])
	}
	e.normalize()
}

// EncodeUint encodes a uniform value in [0, ft), splitting into a
// range-coded high part and raw low bits exactly as DecodeUint expects.
func (e *Encoder) EncodeUint(fl, ft uint32) {
	if ft <= 1 {
		return
	}
	ft--
	ftb := uint(ilog(ft))
	if ftb > uintBits {
		ftb -= uintBits
		ft1 := (ft >> ftb) + 1
		fl1 := fl >> ftb
		e.Encode(fl1, fl1+1, ft1)
		e.EncodeRawBits(fl&(1<<ftb-1), ftb)
		return
	}
	e.Encode(fl, fl+1, ft+1)
}

// EncodeRawBits appends bits to the raw stream at the tail of the
// buffer, LSB first within each byte.
func (e *Encoder) EncodeRawBits(fl uint32, bits uint) {
	window := e.endWindow
	used := e.nendBits
	if used+int(bits) > windowSize {
		for used >= symBits {
			e.writeEndByte(byte(window & symMax))
			window >>= symBits
			used -= symBits
		}
	}
	window |= fl << used
	used += int(bits)
	e.endWindow = window
	e.nendBits = used
	e.nbitsTotal += int(bits)
}

// EncodeLaplace encodes a signed value under the two-sided geometric
// model of DecodeLaplace. Values past the representable tail are
// clamped; the value actually coded is returned so the caller can keep
// its state consistent with the decoder's.
func (e *Encoder) EncodeLaplace(value int, fs uint32, decay int) int {
	val := value
	fl := uint32(0)
	if val != 0 {
		s := 0
		if val < 0 {
			s = -1
		}
		val = (val + s) ^ s
		fl = fs
		fs = laplaceFreq1(fs, decay)
		i := 1
		for ; fs > 0 && i < val; i++ {
			fs *= 2
			fl += fs + 2*laplaceMinP
			fs = fs * uint32(decay) >> 15
		}
		if fs == 0 {
			ndiMax := (laplaceTotal - int(fl) + laplaceMinP - 1) >> laplaceLogMinP
			ndiMax = (ndiMax - s) >> 1
			di := val - i
			if di > ndiMax-1 {
				di = ndiMax - 1
			}
			fl += uint32((2*di + 1 + s) * laplaceMinP)
			fs = laplaceMinP
			if laplaceTotal-fl < fs {
				fs = laplaceTotal - fl
			}
			value = (i + di + s) ^ s
		} else {
			fs += laplaceMinP
			if s == 0 {
				fl += fs
			}
		}
	}
	e.EncodeBin(fl, fl+fs, 15)
	return value
}

// Shrink caps the usable buffer at size bytes, relocating any tail
// bytes already written. Fails (sets the error flag) if more than size
// bytes are already committed.
func (e *Encoder) Shrink(size uint32) {
	if e.offs+e.endOffs > size || size > e.storage {
		e.err = -1
		return
	}
	if e.endOffs > 0 {
		copy(e.buf[size-e.endOffs:size], e.buf[e.storage-e.endOffs:e.storage])
	}
	e.storage = size
}

// Done flushes the final interval and pending raw bits, zero-fills the
// gap between the two streams, and returns the finished buffer. The
// encoder must be re-initialized before reuse.
func (e *Encoder) Done() []byte {
	// Emit the fewest high bits that pin every value in [val, val+rng)
	// to the same decode path regardless of trailing bits.
	l := codeBits - ilog(e.rng)
	msk := (codeTop - 1) >> uint(l)
	end := (e.val + msk) &^ msk
	if end|msk >= e.val+e.rng {
		l++
		msk >>= 1
		end = (e.val + msk) &^ msk
	}
	for l > 0 {
		e.carryOut(int(end >> codeShift))
		end = end << symBits & (codeTop - 1)
		l -= symBits
	}
	if e.rem >= 0 || e.ext > 0 {
		e.carryOut(0)
	}

	window := e.endWindow
	used := e.nendBits
	for used >= symBits {
		e.writeEndByte(byte(window & symMax))
		window >>= symBits
		used -= symBits
	}

	if e.err == 0 {
		for i := e.offs; i < e.storage-e.endOffs; i++ {
			e.buf[i] = 0
		}
		if used > 0 {
			// Leftover raw bits share the last tail byte with the final
			// range symbol when space ran out; favor the range data.
			if e.endOffs >= e.storage {
				e.err = -1
			} else {
				l = -l
				if e.offs+e.endOffs >= e.storage && l < used {
					window &= uint32(1)<<uint(l) - 1
					e.err = -1
				}
				e.buf[e.storage-e.endOffs-1] |= byte(window)
			}
		}
	}
	return e.buf[:e.storage]
}

// Tell returns the number of whole bits committed so far.
func (e *Encoder) Tell() int {
	return e.nbitsTotal - ilog(e.rng)
}

// TellFrac returns the bits committed in 1/8 bit units.
func (e *Encoder) TellFrac() int {
	return tellFrac(e.nbitsTotal, e.rng)
}

// RangeBytes returns the number of range-coded bytes written at the
// front of the buffer.
func (e *Encoder) RangeBytes() int {
	return int(e.offs)
}

// Range returns the current range register.
func (e *Encoder) Range() uint32 {
	return e.rng
}

// Error reports whether the buffer overflowed; non-zero means the
// output is unusable.
func (e *Encoder) Error() int {
	return e.err
}
