// Package risk maps calibrated probabilities onto the discrete risk scale
// reported to callers and stored with every evaluation.
package risk

// Level buckets a risk probability into the coarse category exposed by the API.
type Level string

const (
	// LevelLow covers probabilities below the medium threshold.
	LevelLow Level = "Low"
	// LevelMedium covers probabilities from the medium threshold up to the high threshold.
	LevelMedium Level = "Medium"
	// LevelHigh covers probabilities at or above the high threshold.
	LevelHigh Level = "High"
)

// Thresholds separating the three risk levels. Boundary values belong to the
// upper band: 0.3 is Medium, 0.7 is High.
const (
	MediumThreshold = 0.3
	HighThreshold   = 0.7
)

// Prediction is the scoring outcome for a single submission: the positive-class
// probability, its coarse level, the classifier's confidence (maximum per-class
// probability) and the descriptive interpretation band.
type Prediction struct {
	Probability    float64 `json:"probability"`
	Level          Level   `json:"risk_level"`
	Confidence     float64 `json:"confidence"`
	Interpretation string  `json:"interpretation"`
}

// interpretationBands are finer grained than the levels: five half-open bands
// with fixed descriptive phrases carried over from the trained artifact's
// documentation. The final band is unbounded above.
var interpretationBands = []struct {
	upper float64
	text  string
}{
	{0.2, "Muy bajo riesgo de trastornos del neurodesarrollo"},
	{0.4, "Riesgo bajo de trastornos del neurodesarrollo"},
	{0.6, "Riesgo moderado de trastornos del neurodesarrollo"},
	{0.8, "Riesgo alto de trastornos del neurodesarrollo"},
}

const interpretationVeryHigh = "Riesgo muy alto de trastornos del neurodesarrollo"

// LevelFor returns the risk level for a probability. It is total over [0, 1]
// and pure: the three levels partition the range with no gaps or overlaps.
func LevelFor(probability float64) Level {
	switch {
	case probability < MediumThreshold:
		return LevelLow
	case probability < HighThreshold:
		return LevelMedium
	default:
		return LevelHigh
	}
}

// Interpretation returns the descriptive phrase for a probability using the
// five-band scale. Boundary values fall into the upper band.
func Interpretation(probability float64) string {
	for _, band := range interpretationBands {
		if probability < band.upper {
			return band.text
		}
	}
	return interpretationVeryHigh
}

// Stratify resolves both the level and the interpretation for a probability.
func Stratify(probability float64) (Level, string) {
	return LevelFor(probability), Interpretation(probability)
}
