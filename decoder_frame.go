package opusdec

import (
	"math"

	"github.com/trellick/opusdec/rangecoding"
)

// celtSilence is a coded CELT silence frame, decoded during
// hybrid-to-SILK transitions so the MDCT overlap fades out.
var celtSilence = [2]byte{0xFF, 0xFF}

// smoothFade crossfades in1 into in2 over the first overlap samples
// per channel, writing to out (which may alias either input). The
// blend weight is the squared overlap window, sampled at 48 kHz and
// strided down to the decoder rate.
func smoothFade(in1, in2, out []float32, overlap, channels int, window []float32, rate int) {
	inc := 48000 / rate
	if overlap <= 0 || inc <= 0 || len(window) < (overlap-1)*inc+1 {
		return
	}
	for c := 0; c < channels; c++ {
		for i := 0; i < overlap; i++ {
			w := window[i*inc]
			w *= w
			idx := i*channels + c
			out[idx] = w*in2[idx] + (1-w)*in1[idx]
		}
	}
}

// decodeFrame decodes or conceals a single frame into out, returning
// the samples per channel produced. data nil (or a 1-byte payload)
// means concealment. The packet* parameters carry the TOC-derived
// values for this packet; they are ignored while concealing, when the
// decoder's own history applies instead.
func (d *Decoder) decodeFrame(data []byte, out []float32, frameSize int, decodeFEC bool,
	packetMode Mode, packetBandwidth Bandwidth, packetFrameSize, streamChannels int) (int, error) {
	fs := d.sampleRate
	F20 := fs / 50
	F10 := F20 >> 1
	F5 := F10 >> 1
	F2_5 := F5 >> 1

	if frameSize < F2_5 {
		return 0, ErrBufferTooSmall
	}
	// 120 ms is the largest legal span for one call.
	frameSize = min(frameSize, fs/25*3)

	// Payloads of 0 or 1 byte trigger concealment, bounded by the last
	// known frame duration.
	if len(data) <= 1 {
		data = nil
		frameSize = min(frameSize, d.frameSize)
	}

	mode := packetMode
	bandwidth := packetBandwidth
	var audiosize int
	if data != nil {
		audiosize = packetFrameSize
	} else {
		audiosize = frameSize
		if d.prevRedundancy {
			// The last 2.5 ms were produced by the redundant CELT
			// frame, so conceal with CELT regardless of prev mode.
			mode = ModeCELT
		} else {
			mode = d.prevMode
		}
		bandwidth = BandwidthAuto
		streamChannels = d.streamChannels

		if !d.haveDecoded {
			// No history at all: silence is the only option.
			clear(out[:audiosize*d.channels])
			return audiosize, nil
		}

		if audiosize > F20 {
			// Conceal in 20 ms chunks.
			offset := 0
			for audiosize > 0 {
				n, err := d.decodeFrame(nil, out[offset*d.channels:], min(audiosize, F20),
					false, 0, BandwidthAuto, 0, streamChannels)
				if err != nil {
					return 0, err
				}
				offset += n
				audiosize -= n
			}
			return frameSize, nil
		} else if audiosize < F20 {
			// Snap to a duration the sub-codecs can conceal: 10 ms, or
			// 5 ms when the previous mode has a CELT component.
			if audiosize > F10 {
				audiosize = F10
			} else if mode != ModeSILK && audiosize > F5 && audiosize < F10 {
				audiosize = F5
			}
		}
	}

	// CELT<->non-CELT transitions need a short concealment buffer in
	// the outgoing mode for the crossfade.
	transition := false
	var pcmTransition []float32
	if data != nil && d.haveDecoded &&
		((mode == ModeCELT && d.prevMode != ModeCELT && !d.prevRedundancy) ||
			(mode != ModeCELT && d.prevMode == ModeCELT)) {
		transition = true
		if mode == ModeCELT {
			// Into CELT: conceal in the old mode now, before the CELT
			// state is touched.
			n, err := d.decodeFrame(nil, d.transitionScratch(F5), min(F5, audiosize),
				false, 0, BandwidthAuto, 0, streamChannels)
			if err != nil {
				return 0, err
			}
			pcmTransition = d.transitionBuf[:n*d.channels]
		}
	}

	if audiosize > frameSize {
		return 0, ErrBufferTooSmall
	}
	frameSize = audiosize
	out = out[:frameSize*d.channels]

	if data != nil {
		d.rd.Init(data)
	}

	redundancy := false
	celtToSilk := false
	redundancyBytes := 0
	length := len(data)
	var redundantRng uint32

	if mode != ModeCELT {
		if d.haveDecoded && d.prevMode == ModeCELT {
			d.silk.Reset()
		}

		// The SILK PLC cannot produce frames under 10 ms.
		payloadMs := 1000 * audiosize / fs
		if payloadMs < 10 {
			payloadMs = 10
		}
		d.silk.SetPayloadSizeMs(payloadMs)

		if data != nil {
			d.silk.SetStreamChannels(streamChannels)
			rate := 16000
			if mode == ModeSILK {
				switch bandwidth {
				case BandwidthNarrowband:
					rate = 8000
				case BandwidthMediumband:
					rate = 12000
				default:
					rate = 16000
				}
			}
			d.silk.SetInternalSampleRate(rate)
		}

		lossFlag := SilkDecodeNormal
		if data == nil {
			lossFlag = SilkPacketLost
		} else if decodeFEC {
			lossFlag = SilkDecodeLBRR
		}

		need := max(F10, frameSize) * d.channels
		if cap(d.silkBuf) < need {
			d.silkBuf = make([]int16, need)
		}
		silkOut := d.silkBuf[:need]
		var rd *rangecoding.Decoder
		if data != nil {
			rd = &d.rd
		}
		decoded := 0
		for decoded < frameSize {
			n, err := d.silk.Decode(rd, silkOut[decoded*d.channels:], lossFlag, decoded == 0)
			if err != nil {
				if lossFlag == SilkDecodeNormal {
					return 0, ErrInternal
				}
				// Concealment must never abort the stream.
				n = frameSize - decoded
				clear(silkOut[decoded*d.channels : frameSize*d.channels])
			}
			decoded += n
		}
	}

	startBand := 0
	if !decodeFEC && mode != ModeCELT && data != nil {
		extra := 0
		if mode == ModeHybrid {
			extra = 20
		}
		if d.rd.Tell()+17+extra <= 8*len(data) {
			// A redundant 0-8 kHz band may follow the main frame. In
			// hybrid mode its presence is coded; in SILK-only mode any
			// leftover bytes imply it.
			if mode == ModeHybrid {
				redundancy = d.rd.DecodeBit(12) == 1
			} else {
				redundancy = true
			}
			if redundancy {
				celtToSilk = d.rd.DecodeBit(1) == 1
				if mode == ModeHybrid {
					redundancyBytes = int(d.rd.DecodeUint(256)) + 2
				} else {
					redundancyBytes = len(data) - ((d.rd.Tell() + 7) >> 3)
				}
				length -= redundancyBytes
				// Sanity check: never hit by a valid packet, so the
				// behavior is not normative. Drop the redundancy
				// instead of failing the frame.
				if length*8 < d.rd.Tell() {
					length = 0
					redundancyBytes = 0
					redundancy = false
				}
				d.rd.ShrinkStorage(redundancyBytes)
			}
		}
	}
	if mode != ModeCELT {
		startBand = 17
	}

	if redundancy {
		transition = false
		pcmTransition = nil
	}
	if transition && mode != ModeCELT {
		// Out of CELT: conceal after the SILK decode so the recursion
		// sees the right history.
		n, err := d.decodeFrame(nil, d.transitionScratch(F5), min(F5, audiosize),
			false, 0, BandwidthAuto, 0, streamChannels)
		if err != nil {
			return 0, err
		}
		pcmTransition = d.transitionBuf[:n*d.channels]
	}

	if bandwidth != BandwidthAuto {
		endBand := 21
		switch bandwidth {
		case BandwidthNarrowband:
			endBand = 13
		case BandwidthMediumband, BandwidthWideband:
			endBand = 17
		case BandwidthSuperwideband:
			endBand = 19
		}
		d.celt.SetEndBand(endBand)
	}
	d.celt.SetStreamChannels(streamChannels)

	var redundantAudio []float32
	if redundancy {
		need := F5 * d.channels
		if cap(d.redundantBuf) < need {
			d.redundantBuf = make([]float32, need)
		}
		redundantAudio = d.redundantBuf[:need]
	}

	// Going CELT->SILK the redundant frame precedes the main CELT
	// state changes, so decode it first.
	if redundancy && celtToSilk {
		d.celt.SetStartBand(0)
		d.celt.Decode(data[length:length+redundancyBytes], redundantAudio, F5, nil)
		redundantRng = d.celt.FinalRange()
	}
	d.celt.SetStartBand(startBand)

	if mode != ModeSILK {
		celtFrameSize := min(F20, frameSize)
		// Discard stale CELT state on a mode change.
		if d.haveDecoded && mode != d.prevMode && !d.prevRedundancy {
			d.celt.Reset()
		}
		var celtData []byte
		if !decodeFEC && data != nil {
			celtData = data[:length]
		}
		var rd *rangecoding.Decoder
		if data != nil {
			rd = &d.rd
		}
		if err := d.celt.Decode(celtData, out[:celtFrameSize*d.channels], celtFrameSize, rd); err != nil {
			if celtData != nil {
				return 0, ErrInternal
			}
			clear(out[:celtFrameSize*d.channels])
		}
		if celtFrameSize < frameSize {
			clear(out[celtFrameSize*d.channels:])
		}
	} else {
		clear(out)
		// For hybrid->SILK transitions, let the CELT MDCT fade out by
		// decoding a silence frame.
		if d.haveDecoded && d.prevMode == ModeHybrid &&
			!(redundancy && celtToSilk && d.prevRedundancy) {
			d.celt.SetStartBand(0)
			d.celt.Decode(celtSilence[:], out[:F2_5*d.channels], F2_5, nil)
		}
	}

	if mode != ModeCELT {
		for i := 0; i < frameSize*d.channels; i++ {
			out[i] += float32(d.silkBuf[i]) * (1.0 / 32768.0)
		}
	}

	window := d.celt.Window()

	// Going SILK->CELT the redundant frame trails the main frame and
	// fades the end of it out.
	if redundancy && !celtToSilk {
		d.celt.Reset()
		d.celt.SetStartBand(0)
		d.celt.Decode(data[length:length+redundancyBytes], redundantAudio, F5, nil)
		redundantRng = d.celt.FinalRange()
		smoothFade(out[(frameSize-F2_5)*d.channels:], redundantAudio[F2_5*d.channels:],
			out[(frameSize-F2_5)*d.channels:], F2_5, d.channels, window, fs)
	}
	if redundancy && celtToSilk {
		copy(out[:F2_5*d.channels], redundantAudio[:F2_5*d.channels])
		smoothFade(redundantAudio[F2_5*d.channels:], out[F2_5*d.channels:],
			out[F2_5*d.channels:], F2_5, d.channels, window, fs)
	}

	if transition && len(pcmTransition) > 0 {
		if audiosize >= F5 {
			copy(out[:F2_5*d.channels], pcmTransition[:F2_5*d.channels])
			smoothFade(pcmTransition[F2_5*d.channels:], out[F2_5*d.channels:],
				out[F2_5*d.channels:], F2_5, d.channels, window, fs)
		} else {
			// Not enough room for a clean handover; blend what there is.
			smoothFade(pcmTransition, out, out, F2_5, d.channels, window, fs)
		}
	}

	if d.gain != 0 {
		g := float32(math.Exp2(6.48814081e-4 * float64(d.gain)))
		for i := range out {
			out[i] *= g
		}
	}

	if length <= 1 {
		d.finalRange = 0
	} else {
		d.finalRange = d.rd.Range() ^ redundantRng
	}

	d.prevMode = mode
	d.prevRedundancy = redundancy && !celtToSilk
	d.haveDecoded = true

	return audiosize, nil
}

// transitionScratch returns the 5 ms transition buffer, growing it on
// first use.
func (d *Decoder) transitionScratch(f5 int) []float32 {
	need := f5 * d.channels
	if cap(d.transitionBuf) < need {
		d.transitionBuf = make([]float32, need)
	}
	d.transitionBuf = d.transitionBuf[:need]
	return d.transitionBuf
}
