// codec.go declares the interfaces the two sub-codecs plug into. The
// orchestrator drives them; their synthesis internals live elsewhere.

package opusdec

import (
	"github.com/trellick/opusdec/rangecoding"
)

// SilkLossFlag tells the LP decoder how to treat the current frame.
type SilkLossFlag int

const (
	// SilkDecodeNormal decodes the frame from the entropy stream.
	SilkDecodeNormal SilkLossFlag = iota
	// SilkPacketLost conceals a missing frame from decoder state.
	SilkPacketLost
	// SilkDecodeLBRR decodes the low-bitrate redundancy copy embedded
	// for the previous frame.
	SilkDecodeLBRR
)

// SilkDecoder is the linear-prediction sub-codec. It decodes the low
// band of SILK-only and hybrid frames and conceals lost ones.
//
// Decode consumes symbols from rd (nil when concealing), writes
// interleaved int16 samples at the decoder's output rate and channel
// count into out, and returns the number of samples per channel
// produced. One call covers at most 20 ms; the orchestrator loops for
// longer frames, with firstFrame set on the first iteration only.
type SilkDecoder interface {
	Decode(rd *rangecoding.Decoder, out []int16, lossFlag SilkLossFlag, firstFrame bool) (int, error)

	// SetInternalSampleRate selects the rate SILK runs at internally
	// (8000, 12000 or 16000), derived from the packet bandwidth.
	SetInternalSampleRate(hz int)
	// SetStreamChannels sets the coded channel count of the packet,
	// which can differ from the output channel count.
	SetStreamChannels(channels int)
	// SetPayloadSizeMs sets the frame duration being decoded (10-60).
	SetPayloadSizeMs(ms int)
	Reset()
	// Pitch returns the most recent pitch lag, for the pitch getter.
	Pitch() int
}

// CeltDecoder is the MDCT sub-codec. It decodes CELT-only frames, the
// high band of hybrid frames, and the 5 ms redundancy frames used
// around mode transitions.
//
// Decode reads len(data) bytes of frame payload, writing frameSize
// samples per channel of interleaved float32 into out. A nil or empty
// data slice conceals from decoder state instead; implementations must
// treat the two the same way. When rd is non-nil the frame shares its
// entropy stream with a preceding SILK decode and data only bounds the
// coded length.
type CeltDecoder interface {
	Decode(data []byte, out []float32, frameSize int, rd *rangecoding.Decoder) error

	// SetStartBand and SetEndBand bound the coded spectrum: hybrid
	// frames start at band 17, redundancy frames at 0; the end band
	// follows the packet bandwidth.
	SetStartBand(band int)
	SetEndBand(band int)
	SetStreamChannels(channels int)
	Reset()
	// Window returns the overlap window at 48 kHz, used for the
	// transition and redundancy crossfades.
	Window() []float32
	// FinalRange returns the entropy range register after the last
	// Decode, for the final-range checksum.
	FinalRange() uint32
	Pitch() int
}
