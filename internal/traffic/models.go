package traffic

// Density is a traffic density label.
type Density string

const (
	DensityLow      Density = "Low"
	DensityModerate Density = "Moderate"
	DensityHigh     Density = "High"
	DensitySevere   Density = "Severe Congestion"
)

// Risk is an accident risk label.
type Risk string

const (
	RiskSafe     Risk = "Safe"
	RiskCaution  Risk = "Caution"
	RiskDanger   Risk = "Danger"
	RiskHighArea Risk = "High Risk Area"
)

// Scenario is a coerced prediction request.
type Scenario struct {
	Hour    int     `json:"hour"`
	Day     int     `json:"day"` // day of week, Monday = 0
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Speed   float64 `json:"speed"` // km/h
	Road    string  `json:"road"`
	Weather string  `json:"weather"`
}

// Prediction is the raw model output for one scenario.
type Prediction struct {
	VehicleCount int
	AccidentProb float64
}

// Assessment is the labelled result returned to callers.
type Assessment struct {
	VehicleCount       int     `json:"vehicle_count"`
	TrafficDensity     Density `json:"traffic_density"`
	AccidentLikelihood float64 `json:"accident_likelihood"` // percent, one decimal
	RiskLabel          Risk    `json:"risk_label"`
}
