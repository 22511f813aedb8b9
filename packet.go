// packet.go implements TOC parsing and packet framing per RFC 6716 Section 3.

package opusdec

import (
	"github.com/trellick/opusdec/types"
)

// Mode is an alias for types.Mode representing the Opus coding mode.
type Mode = types.Mode

// Bandwidth is an alias for types.Bandwidth representing the audio bandwidth.
type Bandwidth = types.Bandwidth

// Re-export mode constants for convenience.
const (
	ModeSILK   = types.ModeSILK   // SILK-only mode (configs 0-11)
	ModeHybrid = types.ModeHybrid // Hybrid SILK+CELT (configs 12-15)
	ModeCELT   = types.ModeCELT   // CELT-only mode (configs 16-31)
)

// Re-export bandwidth constants for convenience.
const (
	BandwidthAuto          = types.BandwidthAuto
	BandwidthNarrowband    = types.BandwidthNarrowband
	BandwidthMediumband    = types.BandwidthMediumband
	BandwidthWideband      = types.BandwidthWideband
	BandwidthSuperwideband = types.BandwidthSuperwideband
	BandwidthFullband      = types.BandwidthFullband
)

// Framing limits from RFC 6716 Section 3.
const (
	// maxFrameBytes caps any frame whose length is not explicitly
	// coded; explicit lengths can never exceed it either (4*255+251).
	maxFrameBytes = 1275
	// maxFrameCount is the most frames a code 3 packet may carry.
	maxFrameCount = 48
	// maxPacketSamples caps a packet at 120 ms of audio at 48 kHz.
	maxPacketSamples = 5760
)

// TOC is the parsed table-of-contents byte leading every Opus packet.
type TOC struct {
	Config    uint8 // configuration index 0-31
	Mode      Mode
	Bandwidth Bandwidth
	FrameSize int // samples per frame at 48 kHz
	Stereo    bool
	FrameCode uint8 // frame count code 0-3
}

type configEntry struct {
	Mode      Mode
	Bandwidth Bandwidth
	FrameSize int // at 48 kHz
}

// configTable maps configuration indices to their properties, per the
// table in RFC 6716 Section 3.1.
var configTable = [32]configEntry{
	// SILK-only NB, 10/20/40/60 ms
	{ModeSILK, BandwidthNarrowband, 480},
	{ModeSILK, BandwidthNarrowband, 960},
	{ModeSILK, BandwidthNarrowband, 1920},
	{ModeSILK, BandwidthNarrowband, 2880},
	// SILK-only MB
	{ModeSILK, BandwidthMediumband, 480},
	{ModeSILK, BandwidthMediumband, 960},
	{ModeSILK, BandwidthMediumband, 1920},
	{ModeSILK, BandwidthMediumband, 2880},
	// SILK-only WB
	{ModeSILK, BandwidthWideband, 480},
	{ModeSILK, BandwidthWideband, 960},
	{ModeSILK, BandwidthWideband, 1920},
	{ModeSILK, BandwidthWideband, 2880},
	// Hybrid SWB/FB, 10/20 ms
	{ModeHybrid, BandwidthSuperwideband, 480},
	{ModeHybrid, BandwidthSuperwideband, 960},
	{ModeHybrid, BandwidthFullband, 480},
	{ModeHybrid, BandwidthFullband, 960},
	// CELT NB, 2.5/5/10/20 ms
	{ModeCELT, BandwidthNarrowband, 120},
	{ModeCELT, BandwidthNarrowband, 240},
	{ModeCELT, BandwidthNarrowband, 480},
	{ModeCELT, BandwidthNarrowband, 960},
	// CELT WB
	{ModeCELT, BandwidthWideband, 120},
	{ModeCELT, BandwidthWideband, 240},
	{ModeCELT, BandwidthWideband, 480},
	{ModeCELT, BandwidthWideband, 960},
	// CELT SWB
	{ModeCELT, BandwidthSuperwideband, 120},
	{ModeCELT, BandwidthSuperwideband, 240},
	{ModeCELT, BandwidthSuperwideband, 480},
	{ModeCELT, BandwidthSuperwideband, 960},
	// CELT FB
	{ModeCELT, BandwidthFullband, 120},
	{ModeCELT, BandwidthFullband, 240},
	{ModeCELT, BandwidthFullband, 480},
	{ModeCELT, BandwidthFullband, 960},
}

// ParseTOC decodes a TOC byte.
func ParseTOC(b byte) TOC {
	config := b >> 3
	entry := configTable[config]
	return TOC{
		Config:    config,
		Mode:      entry.Mode,
		Bandwidth: entry.Bandwidth,
		FrameSize: entry.FrameSize,
		Stereo:    b&0x04 != 0,
		FrameCode: b & 0x03,
	}
}

// GenerateTOC builds a TOC byte from its fields. Used by tests and by
// encoder-side packetization.
func GenerateTOC(config uint8, stereo bool, frameCode uint8) byte {
	toc := (config & 0x1F) << 3
	if stereo {
		toc |= 0x04
	}
	return toc | frameCode&0x03
}

// PacketBandwidth returns the bandwidth of a packet. The packet must
// hold at least one byte.
func PacketBandwidth(packet []byte) Bandwidth {
	return configTable[packet[0]>>3].Bandwidth
}

// PacketChannels returns 1 or 2 from the packet's stereo bit. The
// packet must hold at least one byte.
func PacketChannels(packet []byte) int {
	if packet[0]&0x04 != 0 {
		return 2
	}
	return 1
}

// PacketMode returns the coding mode of a packet. The packet must hold
// at least one byte.
func PacketMode(packet []byte) Mode {
	if packet[0]&0x80 != 0 {
		return ModeCELT
	}
	if packet[0]&0x60 == 0x60 {
		return ModeHybrid
	}
	return ModeSILK
}

// PacketFrameCount returns the number of frames in a packet, without
// validating the framing further.
func PacketFrameCount(packet []byte) (int, error) {
	if len(packet) < 1 {
		return 0, ErrBadArgument
	}
	switch packet[0] & 0x03 {
	case 0:
		return 1, nil
	case 1, 2:
		return 2, nil
	}
	if len(packet) < 2 {
		return 0, ErrInvalidPacket
	}
	return int(packet[1] & 0x3F), nil
}

// PacketSamplesPerFrame returns the frame duration of a packet in
// samples at the given rate, straight from the TOC bit patterns. The
// packet must hold at least one byte.
func PacketSamplesPerFrame(packet []byte, rate int) int {
	if packet[0]&0x80 != 0 {
		// CELT-only: 2.5 ms << (config & 3)
		shift := uint(packet[0]>>3) & 0x03
		return (rate << shift) / 400
	}
	if packet[0]&0x60 == 0x60 {
		// Hybrid: 10 or 20 ms
		if packet[0]&0x08 != 0 {
			return rate / 50
		}
		return rate / 100
	}
	// SILK-only: 10 ms << (config & 3), capped at 60 ms
	shift := uint(packet[0]>>3) & 0x03
	if shift == 3 {
		return rate * 60 / 1000
	}
	return (rate << shift) / 100
}

// PacketSampleCount returns the duration of a packet in samples at the
// given rate, rejecting packets longer than 120 ms.
func PacketSampleCount(packet []byte, rate int) (int, error) {
	count, err := PacketFrameCount(packet)
	if err != nil {
		return 0, err
	}
	samples := count * PacketSamplesPerFrame(packet, rate)
	if samples*25 > rate*3 {
		return 0, ErrInvalidPacket
	}
	return samples, nil
}

// PacketInfo describes the framing of a parsed packet. Frame payloads
// are referenced by offset into the original packet, never copied.
type PacketInfo struct {
	TOC           TOC
	FrameCount    int
	FrameSizes    []int // length of each frame in bytes
	FrameOffsets  []int // start of each frame within the packet
	PayloadOffset int   // first byte past the header and padding lengths
	PacketOffset  int   // start of the next packet (self-delimited streams)
	Padding       int   // code 3 padding byte count
}

// ParsePacket validates a packet's framing and locates its frames.
// With selfDelimited set, the packet carries one extra length for its
// last frame and PacketOffset points past it, per RFC 6716 Appendix B.
// On error no partial information is returned.
func ParsePacket(packet []byte, selfDelimited bool) (PacketInfo, error) {
	var sizes [maxFrameCount]int
	count, payloadOffset, packetOffset, pad, err := parsePacketImpl(packet, selfDelimited, &sizes)
	if err != nil {
		return PacketInfo{}, err
	}
	info := PacketInfo{
		TOC:           ParseTOC(packet[0]),
		FrameCount:    count,
		FrameSizes:    make([]int, count),
		FrameOffsets:  make([]int, count),
		PayloadOffset: payloadOffset,
		PacketOffset:  packetOffset,
		Padding:       pad,
	}
	offset := payloadOffset
	for i := 0; i < count; i++ {
		info.FrameSizes[i] = sizes[i]
		info.FrameOffsets[i] = offset
		offset += sizes[i]
	}
	return info, nil
}

// parsePacketImpl is the allocation-free core of ParsePacket; the
// decoder calls it directly with its own frame-size table.
func parsePacketImpl(packet []byte, selfDelimited bool, sizes *[maxFrameCount]int) (count, payloadOffset, packetOffset, pad int, err error) {
	if packet == nil {
		return 0, 0, 0, 0, ErrBadArgument
	}
	if len(packet) == 0 {
		return 0, 0, 0, 0, ErrInvalidPacket
	}

	frameSamples := PacketSamplesPerFrame(packet, 48000)
	offset := 1
	length := len(packet) - offset
	lastSize := length
	cbr := false

	switch packet[0] & 0x03 {
	case 0:
		count = 1

	case 1:
		// Two frames, equal size.
		count = 2
		cbr = true
		if !selfDelimited {
			if length&0x1 == 1 {
				return 0, 0, 0, 0, ErrInvalidPacket
			}
			lastSize = length / 2
			sizes[0] = lastSize
		}

	case 2:
		// Two frames, explicit first length.
		count = 2
		bytes, err := parseSize(packet[offset:], &sizes[0])
		if err != nil {
			return 0, 0, 0, 0, err
		}
		length -= bytes
		if sizes[0] > length {
			return 0, 0, 0, 0, ErrInvalidPacket
		}
		offset += bytes
		lastSize = length - sizes[0]

	case 3:
		// Arbitrary frame count with optional padding.
		if length < 1 {
			return 0, 0, 0, 0, ErrInvalidPacket
		}
		ch := int(packet[offset])
		offset++
		length--

		count = ch & 0x3F
		if count <= 0 || frameSamples*count > maxPacketSamples {
			return 0, 0, 0, 0, ErrInvalidPacket
		}

		if ch&0x40 != 0 {
			// Padding length: 255 means 254 bytes plus another length
			// byte.
			for p := 255; p == 255; {
				if length <= 0 {
					return 0, 0, 0, 0, ErrInvalidPacket
				}
				p = int(packet[offset])
				offset++
				length--
				tmp := p
				if p == 255 {
					tmp = 254
				}
				length -= tmp
				pad += tmp
			}
		}
		if length < 0 {
			return 0, 0, 0, 0, ErrInvalidPacket
		}

		cbr = ch&0x80 == 0
		if !cbr {
			// VBR: every length but the last is explicit.
			lastSize = length
			for i := 0; i < count-1; i++ {
				bytes, err := parseSize(packet[offset:], &sizes[i])
				if err != nil {
					return 0, 0, 0, 0, err
				}
				length -= bytes
				if sizes[i] > length {
					return 0, 0, 0, 0, ErrInvalidPacket
				}
				offset += bytes
				lastSize -= bytes + sizes[i]
			}
			if lastSize < 0 {
				return 0, 0, 0, 0, ErrInvalidPacket
			}
		} else if !selfDelimited {
			// CBR: remaining bytes divide evenly.
			lastSize = length / count
			if lastSize*count != length {
				return 0, 0, 0, 0, ErrInvalidPacket
			}
			for i := 0; i < count-1; i++ {
				sizes[i] = lastSize
			}
		}
	}

	if selfDelimited {
		// The last frame's length is always explicit.
		bytes, err := parseSize(packet[offset:], &sizes[count-1])
		if err != nil {
			return 0, 0, 0, 0, err
		}
		length -= bytes
		if sizes[count-1] > length {
			return 0, 0, 0, 0, ErrInvalidPacket
		}
		offset += bytes
		if cbr {
			if sizes[count-1]*count > length {
				return 0, 0, 0, 0, ErrInvalidPacket
			}
			for i := 0; i < count-1; i++ {
				sizes[i] = sizes[count-1]
			}
		} else if bytes+sizes[count-1] > lastSize {
			return 0, 0, 0, 0, ErrInvalidPacket
		}
	} else {
		// An implicit last length can exceed the hard frame cap that
		// explicit lengths cannot encode; reject it here.
		if lastSize > maxFrameBytes {
			return 0, 0, 0, 0, ErrInvalidPacket
		}
		sizes[count-1] = lastSize
	}

	payloadOffset = offset
	for i := 0; i < count; i++ {
		offset += sizes[i]
	}
	return count, payloadOffset, pad + offset, pad, nil
}

// parseSize reads one frame length: values below 252 take one byte,
// the rest take two with length = 4*second + first.
func parseSize(data []byte, size *int) (int, error) {
	if len(data) == 0 {
		return 0, ErrInvalidPacket
	}
	if data[0] < 252 {
		*size = int(data[0])
		return 1, nil
	}
	if len(data) < 2 {
		return 0, ErrInvalidPacket
	}
	*size = 4*int(data[1]) + int(data[0])
	return 2, nil
}
