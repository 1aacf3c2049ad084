package audio

// resample converts mono PCM between rates with linear interpolation.
func resample(input []int16, inputRate, outputRate uint32) []int16 {
	if inputRate == 0 || outputRate == 0 || inputRate == outputRate || len(input) == 0 {
		return input
	}

	in, out := uint64(inputRate), uint64(outputRate)
	output := make([]int16, uint64(len(input))*out/in)

	for i := range output {
		pos := uint64(i) * in
		idx := int(pos / out)
		frac := float64(pos%out) / float64(out)

		if idx+1 >= len(input) {
			output[i] = input[len(input)-1]
			continue
		}
		a, b := float64(input[idx]), float64(input[idx+1])
		output[i] = int16(a + (b-a)*frac)
	}
	return output
}
