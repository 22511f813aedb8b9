// errors.go defines the public error values for the opusdec package.

package opusdec

import "errors"

// Errors returned by the decoder and the packet helpers. All are
// sentinel values suitable for errors.Is.
var (
	// ErrBadArgument indicates a caller mistake: nil or empty buffers,
	// misaligned frame sizes, or invalid configuration fields.
	ErrBadArgument = errors.New("opusdec: bad argument")

	// ErrInvalidPacket indicates the packet violates the framing rules
	// of RFC 6716 Section 3 and cannot be decoded.
	ErrInvalidPacket = errors.New("opusdec: invalid packet")

	// ErrFrameSizeTooSmall indicates the caller's frame size holds
	// fewer samples than the packet carries. Opus never splits a
	// packet across calls.
	ErrFrameSizeTooSmall = errors.New("opusdec: frame size too small for packet")

	// ErrBufferTooSmall indicates the output buffer cannot hold
	// frameSize*channels samples.
	ErrBufferTooSmall = errors.New("opusdec: output buffer too small")

	// ErrInternal indicates a sub-decoder failed in a way that should
	// not happen on any input; it signals a bug, not bad data.
	ErrInternal = errors.New("opusdec: internal error")

	// ErrInvalidSampleRate indicates an unsupported sample rate.
	// Valid sample rates are 8000, 12000, 16000, 24000 and 48000.
	ErrInvalidSampleRate = errors.New("opusdec: invalid sample rate (must be 8000, 12000, 16000, 24000, or 48000)")

	// ErrInvalidChannels indicates an unsupported channel count.
	// Valid channel counts are 1 (mono) and 2 (stereo).
	ErrInvalidChannels = errors.New("opusdec: invalid channels (must be 1 or 2)")
)

// validSampleRate reports whether rate is one of the Opus rates.
func validSampleRate(rate int) bool {
	switch rate {
	case 8000, 12000, 16000, 24000, 48000:
		return true
	default:
		return false
	}
}
