// Package types defines shared types used by opusdec and by external
// sub-codec implementations. It exists so that a SILK or CELT decoder
// can be written against these enums without importing the root package.
package types

// Mode represents the Opus coding mode carried in the TOC byte.
type Mode uint8

const (
	ModeSILK   Mode = iota // SILK-only mode (configs 0-11)
	ModeHybrid             // Hybrid SILK+CELT (configs 12-15)
	ModeCELT               // CELT-only mode (configs 16-31)
)

// Bandwidth represents the audio bandwidth. The zero value BandwidthAuto
// means "not yet determined": a decoder reports it until the first packet
// has been decoded.
type Bandwidth uint8

const (
	BandwidthAuto          Bandwidth = iota // No packet seen yet
	BandwidthNarrowband                     // 4kHz audio, 8kHz sample rate
	BandwidthMediumband                     // 6kHz audio, 12kHz sample rate
	BandwidthWideband                       // 8kHz audio, 16kHz sample rate
	BandwidthSuperwideband                  // 12kHz audio, 24kHz sample rate
	BandwidthFullband                       // 20kHz audio, 48kHz sample rate
)
