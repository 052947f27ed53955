package trend

// Linear fits an ordinary least-squares line through values, with the index
// position as the independent variable, and returns one fitted value per input.
// Callers exclude missing samples before calling.
func Linear(values []float64) []float64 {
	if len(values) == 0 {
		return []float64{}
	}
	if len(values) == 1 {
		return []float64{values[0]}
	}

	n := float64(len(values))
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range values {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}

	slope := (n*sumXY - sumX*sumY) / (n*sumXX - sumX*sumX)
	intercept := (sumY - slope*sumX) / n

	fitted := make([]float64, len(values))
	for i := range values {
		fitted[i] = slope*float64(i) + intercept
	}
	return fitted
}
