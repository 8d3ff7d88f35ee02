package features

import "math"

// hannWindow generates a periodic Hann window of length n.
func hannWindow(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n))
	}
	return w
}

func hzToMel(hz float64) float64 {
	return 2595.0 * math.Log10(1.0+hz/700.0)
}

func melToHz(mel float64) float64 {
	return 700.0 * (math.Pow(10.0, mel/2595.0) - 1.0)
}

// melFilterBank returns [numMels][fftSize/2+1] triangular filters with
// centers equally spaced on the mel scale.
func melFilterBank(numMels, fftSize, sampleRate int, lowFreq, highFreq float64) [][]float64 {
	half := fftSize/2 + 1
	lowMel, highMel := hzToMel(lowFreq), hzToMel(highFreq)

	// Edge frequencies in fractional FFT bins.
	edges := make([]float64, numMels+2)
	step := (highMel - lowMel) / float64(numMels+1)
	for i := range edges {
		edges[i] = melToHz(lowMel+float64(i)*step) * float64(fftSize) / float64(sampleRate)
	}

	bank := make([][]float64, numMels)
	for m := range bank {
		left, center, right := edges[m], edges[m+1], edges[m+2]
		filter := make([]float64, half)
		for k := range filter {
			x := float64(k)
			switch {
			case x > left && x <= center:
				filter[k] = (x - left) / (center - left)
			case x > center && x < right:
				filter[k] = (right - x) / (right - center)
			}
		}
		// Narrow low bands can fall between bins; give them the nearest bin.
		if allZero(filter) {
			k := int(math.Round(center))
			if k >= half {
				k = half - 1
			}
			filter[k] = 1
		}
		bank[m] = filter
	}
	return bank
}

func allZero(v []float64) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
