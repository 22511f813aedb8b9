package opusdec

// PCMSoftClip brings out-of-range float samples smoothly into [-1, 1]
// in place. Samples already in range are untouched. pcm holds
// interleaved samples; mem carries one continuation value per channel
// across calls and starts zeroed.
func PCMSoftClip(pcm []float32, channels int, mem []float32) {
	if channels < 1 || len(pcm) == 0 || len(mem) < channels {
		return
	}
	n := len(pcm) / channels

	// The non-linearity below only behaves on [-2, 2]; saturate first.
	for i, v := range pcm[:n*channels] {
		if v > 2 {
			pcm[i] = 2
		} else if v < -2 {
			pcm[i] = -2
		}
	}

	for c := 0; c < channels; c++ {
		a := mem[c]

		// Continue the correction started in the previous frame until
		// the signal crosses zero.
		for i := 0; i < n; i++ {
			v := pcm[i*channels+c]
			if v*a >= 0 {
				break
			}
			pcm[i*channels+c] = v + a*v*v
		}

		curr := 0
		x0 := pcm[c]
		for {
			i := curr
			for ; i < n; i++ {
				v := pcm[i*channels+c]
				if v > 1 || v < -1 {
					break
				}
			}
			if i == n {
				a = 0
				break
			}

			// Grow the clipped segment outward to the surrounding zero
			// crossings and find its peak.
			peakPos := i
			start, end := i, i
			vref := pcm[i*channels+c]
			maxval := abs32(vref)
			for start > 0 && vref*pcm[(start-1)*channels+c] >= 0 {
				start--
			}
			for end < n && vref*pcm[end*channels+c] >= 0 {
				if v := abs32(pcm[end*channels+c]); v > maxval {
					maxval = v
					peakPos = end
				}
				end++
			}
			// Detect segments spanning the frame start whose polarity
			// never flipped; they need the ramp fixup below.
			special := start == 0 && vref*pcm[c] >= 0

			// Choose a so that maxval maps exactly onto 1; the nudge
			// keeps rounding from leaving it a hair above.
			a = (maxval - 1) / (maxval * maxval)
			a += a * 2.4e-7
			if vref > 0 {
				a = -a
			}
			for i = start; i < end; i++ {
				v := pcm[i*channels+c]
				pcm[i*channels+c] = v + a*v*v
			}

			if special && peakPos >= 2 {
				// Add a linear ramp from the frame boundary to the peak
				// to avoid a discontinuity against the previous frame.
				offset := x0 - pcm[c]
				delta := offset / float32(peakPos)
				for i = curr; i < peakPos; i++ {
					offset -= delta
					v := pcm[i*channels+c] + offset
					if v > 1 {
						v = 1
					} else if v < -1 {
						v = -1
					}
					pcm[i*channels+c] = v
				}
			}

			curr = end
			if curr == n {
				break
			}
		}

		mem[c] = a
	}
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
