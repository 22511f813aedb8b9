// decoder.go implements the public decoder surface and the packet-level
// decode path; decoder_frame.go holds the per-frame machine.

package opusdec

import (
	"github.com/trellick/opusdec/rangecoding"
)

// Config carries the decoder construction parameters.
type Config struct {
	// SampleRate of the output in Hz: 8000, 12000, 16000, 24000 or
	// 48000.
	SampleRate int
	// Channels of the output: 1 or 2. Packets of either channel count
	// decode to this layout.
	Channels int
	// Gain applied to decoded output, in Q8 dB (256 = +1 dB).
	Gain int
}

// Decoder turns Opus packets into PCM. It owns all cross-packet state;
// one instance decodes one stream and must not be used concurrently.
type Decoder struct {
	sampleRate int
	channels   int
	gain       int

	silk SilkDecoder
	celt CeltDecoder

	// Cross-packet state. The TOC-derived fields are committed only
	// after a packet fully decodes, so a rejected packet leaves them
	// untouched.
	haveDecoded        bool
	prevMode           Mode
	prevRedundancy     bool
	bandwidth          Bandwidth
	frameSize          int // duration of the last packet's frames
	streamChannels     int
	lastPacketDuration int
	finalRange         uint32
	softclipMem        [2]float32

	// Scratch, reused across calls.
	rd            rangecoding.Decoder
	frameSizes    [maxFrameCount]int
	silkBuf       []int16
	redundantBuf  []float32
	transitionBuf []float32
	floatBuf      []float32
}

// NewDecoder creates a decoder for one stream. The two sub-codecs are
// supplied by the caller and must already be configured for
// cfg.SampleRate and cfg.Channels.
func NewDecoder(cfg Config, silk SilkDecoder, celt CeltDecoder) (*Decoder, error) {
	if !validSampleRate(cfg.SampleRate) {
		return nil, ErrInvalidSampleRate
	}
	if cfg.Channels != 1 && cfg.Channels != 2 {
		return nil, ErrInvalidChannels
	}
	if silk == nil || celt == nil {
		return nil, ErrBadArgument
	}
	d := &Decoder{
		sampleRate: cfg.SampleRate,
		channels:   cfg.Channels,
		gain:       cfg.Gain,
		silk:       silk,
		celt:       celt,
	}
	d.streamChannels = d.channels
	d.frameSize = d.sampleRate / 400
	return d, nil
}

// Reset returns the decoder to its freshly-created state, dropping all
// cross-packet history. Configuration (rate, channels, gain) survives.
func (d *Decoder) Reset() {
	d.haveDecoded = false
	d.prevMode = 0
	d.prevRedundancy = false
	d.bandwidth = BandwidthAuto
	d.frameSize = d.sampleRate / 400
	d.streamChannels = d.channels
	d.lastPacketDuration = 0
	d.finalRange = 0
	d.softclipMem[0] = 0
	d.softclipMem[1] = 0
	d.silk.Reset()
	d.celt.Reset()
}

// SampleRate returns the configured output rate in Hz.
func (d *Decoder) SampleRate() int { return d.sampleRate }

// Channels returns the configured output channel count.
func (d *Decoder) Channels() int { return d.channels }

// Gain returns the configured output gain in Q8 dB.
func (d *Decoder) Gain() int { return d.gain }

// Bandwidth returns the bandwidth of the last decoded packet, or
// BandwidthAuto before any packet has been decoded.
func (d *Decoder) Bandwidth() Bandwidth { return d.bandwidth }

// Pitch returns the pitch lag of the last decoded frame, from
// whichever sub-codec handled it, or 0 before any frame.
func (d *Decoder) Pitch() int {
	if !d.haveDecoded {
		return 0
	}
	if d.prevMode == ModeCELT {
		return d.celt.Pitch()
	}
	return d.silk.Pitch()
}

// LastPacketDuration returns the samples per channel produced by the
// most recent successful decode, including concealment.
func (d *Decoder) LastPacketDuration() int { return d.lastPacketDuration }

// FinalRange returns the entropy-coder range checksum of the last
// decoded frame, used to verify bit-exactness against an encoder.
func (d *Decoder) FinalRange() uint32 { return d.finalRange }

// Decode decodes one packet (or conceals a lost one when packet is
// nil) into int16 PCM, returning the samples produced per channel.
// frameSize is the capacity of pcm in samples per channel; it must be
// a multiple of SampleRate/400 and cover the whole packet. decodeFEC
// requests the in-band redundancy for the previous, lost frame. Output
// is soft-clipped to [-1, 1] before conversion.
func (d *Decoder) Decode(packet []byte, pcm []int16, frameSize int, decodeFEC bool) (int, error) {
	if frameSize <= 0 || frameSize%(d.sampleRate/400) != 0 {
		return 0, ErrBadArgument
	}
	if packet != nil && !decodeFEC {
		n, err := PacketSampleCount(packet, d.sampleRate)
		if err != nil {
			return 0, err
		}
		if n < frameSize {
			frameSize = n
		}
	}
	if len(pcm) < frameSize*d.channels {
		return 0, ErrBufferTooSmall
	}
	need := frameSize * d.channels
	if cap(d.floatBuf) < need {
		d.floatBuf = make([]float32, need)
	}
	out := d.floatBuf[:need]
	n, err := d.decodeNative(packet, out, frameSize, decodeFEC, false, true)
	if err != nil {
		return 0, err
	}
	for i := 0; i < n*d.channels; i++ {
		pcm[i] = float32ToInt16(out[i])
	}
	return n, nil
}

// DecodeFloat is Decode with float32 output and no clipping.
func (d *Decoder) DecodeFloat(packet []byte, pcm []float32, frameSize int, decodeFEC bool) (int, error) {
	if frameSize <= 0 {
		return 0, ErrBadArgument
	}
	if len(pcm) < frameSize*d.channels {
		return 0, ErrBufferTooSmall
	}
	return d.decodeNative(packet, pcm, frameSize, decodeFEC, false, false)
}

// decodeNative is the packet-level decode path: parse, dispatch frames,
// and commit TOC-derived state only after every frame has succeeded.
func (d *Decoder) decodeNative(packet []byte, pcm []float32, frameSize int, decodeFEC, selfDelimited, softClip bool) (int, error) {
	if frameSize%(d.sampleRate/400) != 0 {
		return 0, ErrBadArgument
	}

	if packet == nil {
		// Declared loss: conceal in bounded chunks until the request
		// is filled.
		count := 0
		for count < frameSize {
			n, err := d.decodeFrame(nil, pcm[count*d.channels:], frameSize-count, false, 0, BandwidthAuto, 0, d.streamChannels)
			if err != nil {
				return 0, err
			}
			count += n
		}
		d.lastPacketDuration = count
		return count, nil
	}
	if len(packet) == 0 {
		return 0, ErrBadArgument
	}

	packetMode := PacketMode(packet)
	packetBandwidth := PacketBandwidth(packet)
	packetFrameSize := PacketSamplesPerFrame(packet, d.sampleRate)
	packetStreamChannels := PacketChannels(packet)

	count, payloadOffset, _, _, err := parsePacketImpl(packet, selfDelimited, &d.frameSizes)
	if err != nil {
		return 0, err
	}
	data := packet[payloadOffset:]

	if decodeFEC {
		// No redundancy can exist if the packet is too long for the
		// request or either side of the transition is CELT-only.
		if frameSize < packetFrameSize || packetMode == ModeCELT ||
			(d.haveDecoded && d.prevMode == ModeCELT) {
			return d.decodeNative(nil, pcm, frameSize, false, false, softClip)
		}
		// Conceal the leading span the redundancy does not cover.
		durationCopy := d.lastPacketDuration
		if frameSize-packetFrameSize != 0 {
			_, err := d.decodeNative(nil, pcm, frameSize-packetFrameSize, false, false, softClip)
			if err != nil {
				d.lastPacketDuration = durationCopy
				return 0, err
			}
		}
		_, err := d.decodeFrame(data[:d.frameSizes[0]], pcm[(frameSize-packetFrameSize)*d.channels:],
			packetFrameSize, true, packetMode, packetBandwidth, packetFrameSize, packetStreamChannels)
		if err != nil {
			return 0, err
		}
		d.bandwidth = packetBandwidth
		d.frameSize = packetFrameSize
		d.streamChannels = packetStreamChannels
		d.lastPacketDuration = frameSize
		return frameSize, nil
	}

	if count*packetFrameSize > frameSize {
		return 0, ErrFrameSizeTooSmall
	}

	nbSamples := 0
	offset := 0
	for i := 0; i < count; i++ {
		n, err := d.decodeFrame(data[offset:offset+d.frameSizes[i]], pcm[nbSamples*d.channels:],
			frameSize-nbSamples, false, packetMode, packetBandwidth, packetFrameSize, packetStreamChannels)
		if err != nil {
			return 0, err
		}
		offset += d.frameSizes[i]
		nbSamples += n
	}
	d.bandwidth = packetBandwidth
	d.frameSize = packetFrameSize
	d.streamChannels = packetStreamChannels
	d.lastPacketDuration = nbSamples

	if softClip {
		PCMSoftClip(pcm[:nbSamples*d.channels], d.channels, d.softclipMem[:])
	} else {
		d.softclipMem[0] = 0
		d.softclipMem[1] = 0
	}
	return nbSamples, nil
}
