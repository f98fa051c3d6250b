// Package features encodes validated questionnaire submissions into the
// numeric vectors consumed by the classifier.
package features

// Layout identifies which feature encoding a vector carries. Two layouts
// exist because deployed artifacts have been trained both with and without
// the demographic columns; the scoring pipeline tries Compact first and
// falls back to Extended exactly once on a shape mismatch.
type Layout string

const (
	// LayoutCompact encodes the 40 questionnaire responses only.
	LayoutCompact Layout = "compact"
	// LayoutExtended appends age and sex to the compact encoding.
	LayoutExtended Layout = "extended"
)

// ResponseCount is the fixed number of questionnaire items.
const ResponseCount = 40

// Width reports the number of values a vector with this layout carries.
func (l Layout) Width() int {
	if l == LayoutExtended {
		return ResponseCount + 2
	}
	return ResponseCount
}

// Vector is a numeric encoding of a submission ready for classification.
// Values are position significant: the first 40 entries mirror the
// questionnaire item order, with true encoded as 1.0 and false as 0.0.
type Vector struct {
	Layout Layout
	Values []float64
}

// Build encodes a validated submission using the requested layout. The
// extended layout places age at index 40 and sex at index 41, with male
// encoded as 1.0 and female as 0.0. Build never fails for input that passed
// validation; shape mismatches against the artifact are detected by the
// classifier, not here.
func Build(responses []bool, age int, sex string, layout Layout) Vector {
	values := make([]float64, 0, layout.Width())
	for _, response := range responses {
		if response {
			values = append(values, 1.0)
		} else {
			values = append(values, 0.0)
		}
	}

	if layout == LayoutExtended {
		values = append(values, float64(age))
		if sex == "M" {
			values = append(values, 1.0)
		} else {
			values = append(values, 0.0)
		}
	}

	return Vector{Layout: layout, Values: values}
}
