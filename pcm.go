package opusdec

import "math"

// float32ToInt16 converts one sample with round-to-even and clamping,
// matching the reference float-to-short conversion.
func float32ToInt16(sample float32) int16 {
	scaled := float64(sample) * 32768.0
	if scaled > 32767.0 {
		return 32767
	}
	if scaled < -32768.0 {
		return -32768
	}
	return int16(math.RoundToEven(scaled))
}
