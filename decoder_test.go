package opusdec

import (
	"errors"
	"testing"

	"github.com/trellick/opusdec/rangecoding"
)

// stubSilk is a SilkDecoder that fills its output with a constant and
// records every knob the orchestrator turns.
type stubSilk struct {
	rate     int // output rate, for chunk sizing
	channels int
	fill     int16
	fail     bool

	internalRate   int
	streamChannels int
	payloadMs      int
	resets         int
	pitch          int
	lossCalls      []SilkLossFlag
}

func (s *stubSilk) Decode(rd *rangecoding.Decoder, out []int16, loss SilkLossFlag, first bool) (int, error) {
	s.lossCalls = append(s.lossCalls, loss)
	if s.fail {
		return 0, errors.New("silk failure")
	}
	// One call produces at most 10 ms, like the real thing.
	n := s.rate / 100
	if m := len(out) / s.channels; n > m {
		n = m
	}
	for i := 0; i < n*s.channels; i++ {
		out[i] = s.fill
	}
	return n, nil
}

func (s *stubSilk) SetInternalSampleRate(hz int)   { s.internalRate = hz }
func (s *stubSilk) SetStreamChannels(channels int) { s.streamChannels = channels }
func (s *stubSilk) SetPayloadSizeMs(ms int)        { s.payloadMs = ms }
func (s *stubSilk) Reset()                         { s.resets++ }
func (s *stubSilk) Pitch() int                     { return s.pitch }

// stubCelt fills its output with a constant and records the band and
// payload bounds of every decode.
type stubCelt struct {
	fill       float32
	window     []float32
	finalRange uint32
	pitch      int
	fail       bool

	startBands     []int
	endBand        int
	streamChannels int
	resets         int
	dataLens       []int // -1 records a conceal call
	frameSizes     []int
	lastData       []byte
}

func (c *stubCelt) Decode(data []byte, out []float32, frameSize int, rd *rangecoding.Decoder) error {
	c.frameSizes = append(c.frameSizes, frameSize)
	if data == nil {
		c.dataLens = append(c.dataLens, -1)
	} else {
		c.dataLens = append(c.dataLens, len(data))
		c.lastData = append(c.lastData[:0], data...)
	}
	if c.fail {
		return errors.New("celt failure")
	}
	for i := range out {
		out[i] = c.fill
	}
	return nil
}

func (c *stubCelt) SetStartBand(band int)          { c.startBands = append(c.startBands, band) }
func (c *stubCelt) SetEndBand(band int)            { c.endBand = band }
func (c *stubCelt) SetStreamChannels(channels int) { c.streamChannels = channels }
func (c *stubCelt) Reset()                         { c.resets++ }
func (c *stubCelt) Window() []float32              { return c.window }
func (c *stubCelt) FinalRange() uint32             { return c.finalRange }
func (c *stubCelt) Pitch() int                     { return c.pitch }

// fadeWindow is a 48 kHz overlap ramp long enough for a 2.5 ms fade.
func fadeWindow() []float32 {
	w := make([]float32, 120)
	for i := range w {
		w[i] = float32(i) / float32(len(w))
	}
	return w
}

// fadeMix mirrors the crossfade weighting: the squared window blends
// from into to.
func fadeMix(w, from, to float32) float32 {
	w *= w
	return w*to + (1-w)*from
}

func near(a, b float32) bool {
	d := a - b
	return d < 1e-6 && d > -1e-6
}

func newTestDecoder(t *testing.T, rate, channels int) (*Decoder, *stubSilk, *stubCelt) {
	t.Helper()
	silk := &stubSilk{rate: rate, channels: channels, fill: 3277} // ~0.1
	celt := &stubCelt{fill: 0.25, window: fadeWindow()}
	d, err := NewDecoder(Config{SampleRate: rate, Channels: channels}, silk, celt)
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}
	return d, silk, celt
}

// celtPacket is a one-frame CELT FB 20 ms packet (config 31).
func celtPacket(n int) []byte {
	return append([]byte{GenerateTOC(31, false, 0)}, payload(n, 0x42)...)
}

// silkPacket is a one-frame SILK NB 20 ms packet (config 1). The
// payload is kept short so no implied redundancy is detected.
func silkPacket() []byte {
	return []byte{GenerateTOC(1, false, 0), 0xAB, 0xCD}
}

func TestNewDecoderValidation(t *testing.T) {
	silk := &stubSilk{rate: 48000, channels: 1}
	celt := &stubCelt{}
	if _, err := NewDecoder(Config{SampleRate: 44100, Channels: 1}, silk, celt); !errors.Is(err, ErrInvalidSampleRate) {
		t.Errorf("rate 44100: err = %v, want ErrInvalidSampleRate", err)
	}
	if _, err := NewDecoder(Config{SampleRate: 48000, Channels: 3}, silk, celt); !errors.Is(err, ErrInvalidChannels) {
		t.Errorf("3 channels: err = %v, want ErrInvalidChannels", err)
	}
	if _, err := NewDecoder(Config{SampleRate: 48000, Channels: 1}, nil, celt); !errors.Is(err, ErrBadArgument) {
		t.Errorf("nil silk: err = %v, want ErrBadArgument", err)
	}
	if _, err := NewDecoder(Config{SampleRate: 48000, Channels: 1}, silk, nil); !errors.Is(err, ErrBadArgument) {
		t.Errorf("nil celt: err = %v, want ErrBadArgument", err)
	}
}

// TestDecodeFreshLoss conceals on a decoder with no history: the output
// is silence, never an error.
func TestDecodeFreshLoss(t *testing.T) {
	d, _, _ := newTestDecoder(t, 48000, 1)
	pcm := make([]int16, 960)
	for i := range pcm {
		pcm[i] = -1
	}
	n, err := d.Decode(nil, pcm, 960, false)
	if err != nil {
		t.Fatalf("Decode(nil): %v", err)
	}
	if n != 960 {
		t.Fatalf("n = %d, want 960", n)
	}
	for i, v := range pcm {
		if v != 0 {
			t.Fatalf("pcm[%d] = %d, want silence", i, v)
		}
	}
	if d.LastPacketDuration() != 960 {
		t.Errorf("LastPacketDuration() = %d, want 960", d.LastPacketDuration())
	}
}

func TestDecodeMisalignedFrameSize(t *testing.T) {
	d, _, _ := newTestDecoder(t, 48000, 1)
	pcm := make([]int16, 960)
	for _, frameSize := range []int{0, -120, 100, 961} {
		if _, err := d.Decode(celtPacket(10), pcm, frameSize, false); !errors.Is(err, ErrBadArgument) {
			t.Errorf("frameSize %d: err = %v, want ErrBadArgument", frameSize, err)
		}
	}
	if d.LastPacketDuration() != 0 {
		t.Errorf("rejected calls changed LastPacketDuration to %d", d.LastPacketDuration())
	}
}

func TestDecodeCELT(t *testing.T) {
	d, _, celt := newTestDecoder(t, 48000, 1)
	celt.pitch = 123
	pcm := make([]int16, 960)
	n, err := d.Decode(celtPacket(10), pcm, 960, false)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if n != 960 {
		t.Fatalf("n = %d, want 960", n)
	}
	// 0.25 scaled to int16.
	if pcm[0] != 8192 || pcm[959] != 8192 {
		t.Errorf("pcm = [%d ... %d], want 8192 throughout", pcm[0], pcm[959])
	}
	if d.Bandwidth() != BandwidthFullband {
		t.Errorf("Bandwidth() = %v, want fullband", d.Bandwidth())
	}
	if d.LastPacketDuration() != 960 {
		t.Errorf("LastPacketDuration() = %d, want 960", d.LastPacketDuration())
	}
	if d.FinalRange() == 0 {
		t.Error("FinalRange() = 0 after a multi-byte frame")
	}
	if d.Pitch() != 123 {
		t.Errorf("Pitch() = %d, want 123", d.Pitch())
	}
	if celt.endBand != 21 {
		t.Errorf("end band = %d, want 21 for fullband", celt.endBand)
	}
	if len(celt.startBands) == 0 || celt.startBands[len(celt.startBands)-1] != 0 {
		t.Errorf("start bands = %v, want last 0 for CELT-only", celt.startBands)
	}
	if celt.streamChannels != 1 {
		t.Errorf("stream channels = %d, want 1", celt.streamChannels)
	}
}

func TestDecodeSILK(t *testing.T) {
	d, silk, _ := newTestDecoder(t, 48000, 1)
	silk.pitch = 77
	pcm := make([]int16, 960)
	n, err := d.Decode(silkPacket(), pcm, 960, false)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if n != 960 {
		t.Fatalf("n = %d, want 960", n)
	}
	// 3277/32768 survives the float round trip exactly.
	if pcm[0] != 3277 || pcm[959] != 3277 {
		t.Errorf("pcm = [%d ... %d], want 3277 throughout", pcm[0], pcm[959])
	}
	if silk.internalRate != 8000 {
		t.Errorf("internal rate = %d, want 8000 for narrowband", silk.internalRate)
	}
	if silk.payloadMs != 20 {
		t.Errorf("payload ms = %d, want 20", silk.payloadMs)
	}
	if silk.streamChannels != 1 {
		t.Errorf("stream channels = %d, want 1", silk.streamChannels)
	}
	for _, loss := range silk.lossCalls {
		if loss != SilkDecodeNormal {
			t.Errorf("loss flag = %v, want SilkDecodeNormal", loss)
		}
	}
	if d.Bandwidth() != BandwidthNarrowband {
		t.Errorf("Bandwidth() = %v, want narrowband", d.Bandwidth())
	}
	if d.Pitch() != 77 {
		t.Errorf("Pitch() = %d, want 77", d.Pitch())
	}
}

func TestDecodeStereoStream(t *testing.T) {
	d, silk, celt := newTestDecoder(t, 48000, 2)
	packet := append([]byte{GenerateTOC(1, true, 0)}, 0xAB, 0xCD)
	pcm := make([]int16, 2*960)
	n, err := d.Decode(packet, pcm, 960, false)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if n != 960 {
		t.Fatalf("n = %d, want 960 per channel", n)
	}
	if silk.streamChannels != 2 || celt.streamChannels != 2 {
		t.Errorf("stream channels = (%d, %d), want (2, 2)", silk.streamChannels, celt.streamChannels)
	}
}

// TestDecodeHybridRedundancy builds a hybrid packet whose trailing
// bytes carry a coded redundancy frame and checks the orchestrator
// carves it out and decodes it at band 0.
func TestDecodeHybridRedundancy(t *testing.T) {
	d, silk, celt := newTestDecoder(t, 48000, 1)

	// The stub SILK decoder consumes no symbols, so the redundancy
	// fields follow immediately: present=1, celtToSilk=0, 4 bytes.
	buf := make([]byte, 10)
	var enc rangecoding.Encoder
	enc.Init(buf)
	enc.EncodeBit(1, 12)
	enc.EncodeBit(0, 1)
	enc.EncodeUint(4-2, 256)
	body := enc.Done()
	if enc.Error() != 0 {
		t.Fatalf("encoder error = %d", enc.Error())
	}
	packet := append([]byte{GenerateTOC(15, false, 0)}, body...) // hybrid FB 20 ms

	pcm := make([]float32, 960)
	n, err := d.DecodeFloat(packet, pcm, 960, false)
	if err != nil {
		t.Fatalf("DecodeFloat: %v", err)
	}
	if n != 960 {
		t.Fatalf("n = %d, want 960", n)
	}
	if silk.internalRate != 16000 {
		t.Errorf("internal rate = %d, want 16000 for hybrid", silk.internalRate)
	}
	// Main hybrid frame at band 17 over the first 6 bytes, then the
	// 4-byte redundancy frame at band 0.
	if want := []int{6, 4}; len(celt.dataLens) != 2 || celt.dataLens[0] != want[0] || celt.dataLens[1] != want[1] {
		t.Errorf("celt payload lengths = %v, want %v", celt.dataLens, want)
	}
	bands := celt.startBands
	if len(bands) < 2 || bands[len(bands)-2] != 17 || bands[len(bands)-1] != 0 {
		t.Errorf("start bands = %v, want ... 17, 0", bands)
	}
	// The redundant frame fades the last 2.5 ms of the main frame out.
	silkVal := float32(3277) / 32768
	main := 0.25 + silkVal
	if pcm[839] != main {
		t.Errorf("pcm[839] = %g, want unfaded %g", pcm[839], main)
	}
	for i := 0; i < 120; i++ {
		want := fadeMix(celt.window[i], main, 0.25)
		if !near(pcm[840+i], want) {
			t.Fatalf("pcm[%d] = %g, want blended %g", 840+i, pcm[840+i], want)
		}
	}
}

// TestSmoothFade checks the crossfade weighting directly: the blend
// weight is the squared window, strided down to the decoder rate.
func TestSmoothFade(t *testing.T) {
	window := fadeWindow()

	t.Run("mono 48k", func(t *testing.T) {
		const overlap = 120
		in1 := make([]float32, overlap)
		in2 := make([]float32, overlap)
		out := make([]float32, overlap)
		for i := range in1 {
			in1[i] = 1
			in2[i] = -0.5
		}
		smoothFade(in1, in2, out, overlap, 1, window, 48000)
		for i := range out {
			want := fadeMix(window[i], 1, -0.5)
			if !near(out[i], want) {
				t.Fatalf("out[%d] = %g, want %g", i, out[i], want)
			}
		}
		if out[0] != 1 {
			t.Errorf("out[0] = %g, want in1 at zero weight", out[0])
		}
	})

	t.Run("stereo strided", func(t *testing.T) {
		const overlap = 60 // 2.5 ms at 24 kHz, window sampled at stride 2
		in1 := make([]float32, 2*overlap)
		in2 := make([]float32, 2*overlap)
		out := make([]float32, 2*overlap)
		for i := range in1 {
			in1[i] = 0.5
			in2[i] = -1
		}
		smoothFade(in1, in2, out, overlap, 2, window, 24000)
		for i := 0; i < overlap; i++ {
			want := fadeMix(window[i*2], 0.5, -1)
			for c := 0; c < 2; c++ {
				if !near(out[i*2+c], want) {
					t.Fatalf("out[%d] = %g, want %g", i*2+c, out[i*2+c], want)
				}
			}
		}
	})

	t.Run("short window is a no-op", func(t *testing.T) {
		const overlap = 120
		in1 := make([]float32, overlap)
		in2 := make([]float32, overlap)
		out := make([]float32, overlap)
		for i := range in1 {
			in1[i] = 1
			in2[i] = -0.5
			out[i] = 1
		}
		smoothFade(in1, in2, out, overlap, 1, window[:overlap-1], 48000)
		for i, v := range out {
			if v != 1 {
				t.Fatalf("out[%d] = %g, want untouched", i, v)
			}
		}
	})
}

// TestDecodeSILKImpliedRedundancy checks that leftover bytes after a
// SILK-only frame are treated as a redundancy frame without any
// presence bit.
func TestDecodeSILKImpliedRedundancy(t *testing.T) {
	d, _, celt := newTestDecoder(t, 48000, 1)

	// All-ones bits decode the direction flag as 1 (celt-to-silk). The
	// stub SILK decoder consumes nothing, so after the one-bit flag the
	// remaining 7 bytes are the redundancy frame.
	packet := append([]byte{GenerateTOC(1, false, 0)}, payload(8, 0xFF)...)
	pcm := make([]float32, 960)
	n, err := d.DecodeFloat(packet, pcm, 960, false)
	if err != nil {
		t.Fatalf("DecodeFloat: %v", err)
	}
	if n != 960 {
		t.Fatalf("n = %d, want 960", n)
	}
	if want := []int{7}; len(celt.dataLens) != 1 || celt.dataLens[0] != want[0] {
		t.Errorf("celt payload lengths = %v, want %v", celt.dataLens, want)
	}
	bands := celt.startBands
	if len(bands) < 2 || bands[len(bands)-2] != 0 || bands[len(bands)-1] != 17 {
		t.Errorf("start bands = %v, want ... 0, 17", bands)
	}
	// The redundant frame leads the output; SILK fills the rest.
	if pcm[0] != 0.25 {
		t.Errorf("pcm[0] = %g, want redundant 0.25", pcm[0])
	}
	silkVal := float32(3277) / 32768
	if pcm[500] != silkVal {
		t.Errorf("pcm[500] = %g, want silk %g", pcm[500], silkVal)
	}
	// The 2.5 ms after the copied span crossfade redundant into SILK.
	for i := 0; i < 120; i++ {
		want := fadeMix(celt.window[i], 0.25, silkVal)
		if !near(pcm[120+i], want) {
			t.Fatalf("pcm[%d] = %g, want blended %g", 120+i, pcm[120+i], want)
		}
	}
	// A one-byte main frame reports no range checksum.
	if d.FinalRange() != 0 {
		t.Errorf("FinalRange() = %#x, want 0", d.FinalRange())
	}
}

// TestDecodeHybridBogusRedundancy feeds a hybrid frame whose redundancy
// length field points past the packet; the redundancy is dropped, not
// fatal.
func TestDecodeHybridBogusRedundancy(t *testing.T) {
	d, _, celt := newTestDecoder(t, 48000, 1)
	// All-ones payload decodes every bit as 1 and every length as max,
	// so the claimed redundancy exceeds the packet.
	packet := append([]byte{GenerateTOC(15, false, 0)}, payload(8, 0xFF)...)
	pcm := make([]float32, 960)
	n, err := d.DecodeFloat(packet, pcm, 960, false)
	if err != nil {
		t.Fatalf("DecodeFloat: %v", err)
	}
	if n != 960 {
		t.Fatalf("n = %d, want 960", n)
	}
	for _, l := range celt.dataLens {
		if l == -1 {
			continue
		}
		if l > len(packet)-1 {
			t.Errorf("celt fed %d bytes from an %d-byte payload", l, len(packet)-1)
		}
	}
}

func TestDecodeFEC(t *testing.T) {
	t.Run("exact frame", func(t *testing.T) {
		d, silk, _ := newTestDecoder(t, 48000, 1)
		pcm := make([]int16, 960)
		n, err := d.Decode(silkPacket(), pcm, 960, true)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if n != 960 {
			t.Fatalf("n = %d, want 960", n)
		}
		if len(silk.lossCalls) == 0 {
			t.Fatal("silk decoder never called")
		}
		for _, loss := range silk.lossCalls {
			if loss != SilkDecodeLBRR {
				t.Errorf("loss flag = %v, want SilkDecodeLBRR", loss)
			}
		}
		if pcm[0] != 3277 {
			t.Errorf("pcm[0] = %d, want 3277", pcm[0])
		}
	})

	t.Run("leading span concealed", func(t *testing.T) {
		d, _, _ := newTestDecoder(t, 48000, 1)
		pcm := make([]int16, 1920)
		n, err := d.Decode(silkPacket(), pcm, 1920, true)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if n != 1920 {
			t.Fatalf("n = %d, want 1920", n)
		}
		// A fresh decoder conceals the first 20 ms as silence; the
		// recovered frame fills the second 20 ms.
		if pcm[0] != 0 || pcm[959] != 0 {
			t.Errorf("leading span = [%d ... %d], want silence", pcm[0], pcm[959])
		}
		if pcm[960] != 3277 {
			t.Errorf("pcm[960] = %d, want 3277", pcm[960])
		}
		if d.LastPacketDuration() != 1920 {
			t.Errorf("LastPacketDuration() = %d, want 1920", d.LastPacketDuration())
		}
	})

	t.Run("celt packet falls back to concealment", func(t *testing.T) {
		d, _, _ := newTestDecoder(t, 48000, 1)
		pcm := make([]int16, 960)
		n, err := d.Decode(celtPacket(10), pcm, 960, true)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if n != 960 {
			t.Fatalf("n = %d, want 960", n)
		}
		for i, v := range pcm {
			if v != 0 {
				t.Fatalf("pcm[%d] = %d, want silence from a fresh decoder", i, v)
			}
		}
	})
}

func TestDecodeErrors(t *testing.T) {
	t.Run("frame size too small", func(t *testing.T) {
		d, _, _ := newTestDecoder(t, 48000, 1)
		pcm := make([]int16, 480)
		if _, err := d.Decode(celtPacket(10), pcm, 480, false); !errors.Is(err, ErrFrameSizeTooSmall) {
			t.Errorf("err = %v, want ErrFrameSizeTooSmall", err)
		}
	})

	t.Run("buffer too small", func(t *testing.T) {
		d, _, _ := newTestDecoder(t, 48000, 1)
		pcm := make([]int16, 100)
		if _, err := d.Decode(celtPacket(10), pcm, 960, false); !errors.Is(err, ErrBufferTooSmall) {
			t.Errorf("err = %v, want ErrBufferTooSmall", err)
		}
	})

	t.Run("invalid packet leaves state", func(t *testing.T) {
		d, _, _ := newTestDecoder(t, 48000, 1)
		pcm := make([]int16, 960)
		if _, err := d.Decode(celtPacket(10), pcm, 960, false); err != nil {
			t.Fatalf("Decode: %v", err)
		}
		bad := append([]byte{0x81}, payload(9, 0x00)...)
		if _, err := d.Decode(bad, pcm, 960, false); !errors.Is(err, ErrInvalidPacket) {
			t.Fatalf("err = %v, want ErrInvalidPacket", err)
		}
		if d.Bandwidth() != BandwidthFullband || d.LastPacketDuration() != 960 {
			t.Errorf("rejected packet changed state: bandwidth %v, duration %d",
				d.Bandwidth(), d.LastPacketDuration())
		}
	})

	t.Run("sub-decoder failure", func(t *testing.T) {
		d, _, celt := newTestDecoder(t, 48000, 1)
		celt.fail = true
		pcm := make([]int16, 960)
		if _, err := d.Decode(celtPacket(10), pcm, 960, false); !errors.Is(err, ErrInternal) {
			t.Errorf("err = %v, want ErrInternal", err)
		}
	})
}

// TestDecodeTransition switches from SILK to CELT and checks the
// orchestrator conceals a bridge frame in the outgoing mode and resets
// the incoming one.
func TestDecodeTransition(t *testing.T) {
	d, silk, celt := newTestDecoder(t, 48000, 1)
	pcm := make([]int16, 960)
	if _, err := d.Decode(silkPacket(), pcm, 960, false); err != nil {
		t.Fatalf("silk packet: %v", err)
	}
	silk.lossCalls = nil
	resets := celt.resets

	if _, err := d.Decode(celtPacket(10), pcm, 960, false); err != nil {
		t.Fatalf("celt packet: %v", err)
	}
	conceals := 0
	for _, loss := range silk.lossCalls {
		if loss == SilkPacketLost {
			conceals++
		}
	}
	if conceals == 0 {
		t.Error("no concealment bridge decoded in the outgoing mode")
	}
	if celt.resets <= resets {
		t.Error("celt state not reset on mode change")
	}
	// The bridge is copied over the first 2.5 ms, then crossfaded into
	// the CELT output over the next 2.5 ms.
	silkVal := float32(3277) / 32768
	if pcm[0] != 3277 || pcm[119] != 3277 {
		t.Errorf("pcm head = [%d ... %d], want bridge 3277", pcm[0], pcm[119])
	}
	for i := 0; i < 120; i++ {
		want := float32ToInt16(fadeMix(celt.window[i], silkVal, 0.25))
		got := pcm[120+i]
		if got < want-1 || got > want+1 {
			t.Fatalf("pcm[%d] = %d, want blended %d", 120+i, got, want)
		}
	}
	if pcm[240] != 8192 {
		t.Errorf("pcm[240] = %d, want celt 8192 past the fade", pcm[240])
	}
}

// TestDecodeHybridToSILKSilence checks the MDCT fade-out when a hybrid
// packet is followed by a SILK-only one: a coded silence frame decodes
// at band 0 over the first 2.5 ms.
func TestDecodeHybridToSILKSilence(t *testing.T) {
	d, _, celt := newTestDecoder(t, 48000, 1)
	// Short payload so no implied redundancy is detected.
	hybrid := append([]byte{GenerateTOC(15, false, 0)}, payload(4, 0x5A)...)
	pcm := make([]float32, 960)
	if _, err := d.DecodeFloat(hybrid, pcm, 960, false); err != nil {
		t.Fatalf("hybrid packet: %v", err)
	}
	if _, err := d.DecodeFloat(silkPacket(), pcm, 960, false); err != nil {
		t.Fatalf("silk packet: %v", err)
	}
	if len(celt.lastData) != 2 || celt.lastData[0] != 0xFF || celt.lastData[1] != 0xFF {
		t.Errorf("last celt payload = %#x, want the 2-byte silence frame", celt.lastData)
	}
	if n := len(celt.frameSizes); n == 0 || celt.frameSizes[n-1] != 120 {
		t.Errorf("celt frame sizes = %v, want last 120", celt.frameSizes)
	}
	bands := celt.startBands
	if len(bands) < 2 || bands[len(bands)-2] != 17 || bands[len(bands)-1] != 0 {
		t.Errorf("start bands = %v, want ... 17, 0", bands)
	}
	// The silence decode covers the first 2.5 ms on top of the SILK
	// output; the rest is SILK alone.
	silkVal := float32(3277) / 32768
	if want := 0.25 + silkVal; pcm[0] != want {
		t.Errorf("pcm[0] = %g, want %g", pcm[0], want)
	}
	if pcm[500] != silkVal {
		t.Errorf("pcm[500] = %g, want %g", pcm[500], silkVal)
	}
}

// TestConcealAfterDecode checks loss after history uses the previous
// mode's concealment rather than silence.
func TestConcealAfterDecode(t *testing.T) {
	d, silk, _ := newTestDecoder(t, 48000, 1)
	pcm := make([]int16, 960)
	if _, err := d.Decode(silkPacket(), pcm, 960, false); err != nil {
		t.Fatalf("silk packet: %v", err)
	}
	silk.lossCalls = nil
	n, err := d.Decode(nil, pcm, 960, false)
	if err != nil {
		t.Fatalf("Decode(nil): %v", err)
	}
	if n != 960 {
		t.Fatalf("n = %d, want 960", n)
	}
	if len(silk.lossCalls) == 0 {
		t.Fatal("concealment never reached the silk decoder")
	}
	for _, loss := range silk.lossCalls {
		if loss != SilkPacketLost {
			t.Errorf("loss flag = %v, want SilkPacketLost", loss)
		}
	}
	// The stub conceals with its fill value, so output is not silence.
	if pcm[0] != 3277 {
		t.Errorf("pcm[0] = %d, want concealed audio", pcm[0])
	}
}

func TestDecodeGain(t *testing.T) {
	silk := &stubSilk{rate: 48000, channels: 1}
	celt := &stubCelt{fill: 0.5}
	d, err := NewDecoder(Config{SampleRate: 48000, Channels: 1, Gain: 256}, silk, celt)
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}
	pcm := make([]float32, 960)
	if _, err := d.DecodeFloat(celtPacket(10), pcm, 960, false); err != nil {
		t.Fatalf("DecodeFloat: %v", err)
	}
	// +1 dB is a factor of about 1.122.
	want := float32(0.5 * 1.12202)
	if diff := pcm[0] - want; diff < -1e-3 || diff > 1e-3 {
		t.Errorf("pcm[0] = %g, want about %g", pcm[0], want)
	}
}

// TestDecodeClipping checks int16 output is soft-clipped while float
// output is left alone.
func TestDecodeClipping(t *testing.T) {
	d, _, celt := newTestDecoder(t, 48000, 1)
	celt.fill = 1.5

	fpcm := make([]float32, 960)
	if _, err := d.DecodeFloat(celtPacket(10), fpcm, 960, false); err != nil {
		t.Fatalf("DecodeFloat: %v", err)
	}
	if fpcm[0] != 1.5 {
		t.Errorf("float output = %g, want unclipped 1.5", fpcm[0])
	}

	d.Reset()
	pcm := make([]int16, 960)
	if _, err := d.Decode(celtPacket(10), pcm, 960, false); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	for i, v := range pcm {
		if v < 32000 {
			t.Fatalf("pcm[%d] = %d, want soft-clipped near full scale", i, v)
		}
	}
}

func TestReset(t *testing.T) {
	d, silk, celt := newTestDecoder(t, 48000, 1)
	pcm := make([]int16, 960)
	if _, err := d.Decode(celtPacket(10), pcm, 960, false); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	silkResets, celtResets := silk.resets, celt.resets
	d.Reset()
	if d.Bandwidth() != BandwidthAuto {
		t.Errorf("Bandwidth() = %v after Reset, want auto", d.Bandwidth())
	}
	if d.LastPacketDuration() != 0 || d.FinalRange() != 0 || d.Pitch() != 0 {
		t.Errorf("Reset left state: duration %d, range %#x, pitch %d",
			d.LastPacketDuration(), d.FinalRange(), d.Pitch())
	}
	if silk.resets <= silkResets || celt.resets <= celtResets {
		t.Error("Reset did not reach the sub-decoders")
	}
	if d.SampleRate() != 48000 || d.Channels() != 1 {
		t.Error("Reset dropped configuration")
	}
}
