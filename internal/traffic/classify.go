package traffic

import "strconv"

// Upper bounds (inclusive) of each label band. A value strictly above a bound
// moves to the next label.
const (
	lowMaxVehicles      = 200
	moderateMaxVehicles = 300
	highMaxVehicles     = 400

	safeMaxProb    = 0.3
	cautionMaxProb = 0.5
	dangerMaxProb  = 0.8
)

// ClassifyDensity maps a vehicle count to a density label.
func ClassifyDensity(vehicles int) Density {
	switch {
	case vehicles > highMaxVehicles:
		return DensitySevere
	case vehicles > moderateMaxVehicles:
		return DensityHigh
	case vehicles > lowMaxVehicles:
		return DensityModerate
	default:
		return DensityLow
	}
}

// ClassifyRisk maps an accident probability to a risk label. Values outside
// [0, 1] are classified as they are.
func ClassifyRisk(prob float64) Risk {
	switch {
	case prob > dangerMaxProb:
		return RiskHighArea
	case prob > cautionMaxProb:
		return RiskDanger
	case prob > safeMaxProb:
		return RiskCaution
	default:
		return RiskSafe
	}
}

// Likelihood converts a probability to a percentage rounded to one decimal.
// Rounding is done on the exact binary value with ties to even.
func Likelihood(prob float64) float64 {
	pct, _ := strconv.ParseFloat(strconv.FormatFloat(prob*100, 'f', 1, 64), 64)
	return pct
}

// Assess labels a raw prediction.
func Assess(p Prediction) Assessment {
	return Assessment{
		VehicleCount:       p.VehicleCount,
		TrafficDensity:     ClassifyDensity(p.VehicleCount),
		AccidentLikelihood: Likelihood(p.AccidentProb),
		RiskLabel:          ClassifyRisk(p.AccidentProb),
	}
}
