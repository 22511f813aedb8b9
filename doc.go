// Package opusdec implements the decoder side of the Opus audio codec
// front-end in pure Go: packet framing, the shared range (entropy)
// decoder, and the decode orchestration that handles packet loss
// concealment, in-band redundancy and mode transitions.
//
// The two sub-codecs that synthesize audio (the SILK linear-prediction
// decoder and the CELT MDCT decoder) are external: they plug in through
// the SilkDecoder and CeltDecoder interfaces and receive the shared
// entropy decoder plus frame bounds from the orchestrator.
//
// # Packet Structure
//
// Each Opus packet starts with a TOC (Table of Contents) byte:
//   - Bits 7-3: Configuration (0-31)
//   - Bit 2: Stereo flag
//   - Bits 1-0: Frame count code (0-3)
//
// Use ParseTOC to extract these fields, and ParsePacket to determine
// the frame boundaries within a packet, per RFC 6716 Section 3.
//
// # Decoding
//
// Construct a Decoder with NewDecoder and feed it one packet per call
// to Decode or DecodeFloat. Passing a nil packet declares a lost
// packet and produces concealment audio; setting decodeFEC recovers
// the in-band redundancy a packet carries for its lost predecessor.
package opusdec
