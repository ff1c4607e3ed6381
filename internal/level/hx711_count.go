package level

// signExtend24 converts the HX711's 24-bit two's complement word.
func signExtend24(raw uint32) int32 {
	raw &= 0xFFFFFF
	if raw&0x800000 != 0 {
		raw |= 0xFF000000
	}
	return int32(raw)
}

func countsToUnits(raw uint32, scale float64) float64 {
	return float64(signExtend24(raw)) / scale
}
