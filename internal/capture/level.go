package capture

// BarCount is the number of bars in the level meter
const BarCount = 7

// barScale compresses thresholds so normal speech lights most bars
const barScale = 0.6

// Level converts an analyser byte-frequency frame into a level in [0,1]:
// the mean bin value over 255. Values outside 0..255 are clamped.
func Level(frequencyData []int) float64 {
	if len(frequencyData) == 0 {
		return 0
	}

	sum := 0
	for _, v := range frequencyData {
		switch {
		case v < 0:
			v = 0
		case v > 255:
			v = 255
		}
		sum += v
	}

	return float64(sum) / float64(len(frequencyData)) / 255
}

// Bars returns which meter bars are lit. Bar i is lit when listening and
// level exceeds (i+1)/BarCount scaled by 0.6.
func Bars(level float64, listening bool) []bool {
	bars := make([]bool, BarCount)
	if !listening {
		return bars
	}
	for i := range bars {
		threshold := float64(i+1) / BarCount
		bars[i] = level > threshold*barScale
	}
	return bars
}
