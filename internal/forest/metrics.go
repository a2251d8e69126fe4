package forest

import "fmt"

// MeanAbsoluteError returns mean(|want - got|).
func MeanAbsoluteError(want, got []float64) (float64, error) {
	if err := sameLen(want, got); err != nil {
		return 0, err
	}
	sum := 0.0
	for i := range want {
		d := want[i] - got[i]
		if d < 0 {
			d = -d
		}
		sum += d
	}
	return sum / float64(len(want)), nil
}

// Accuracy returns the fraction of exact label matches.
func Accuracy(want, got []float64) (float64, error) {
	if err := sameLen(want, got); err != nil {
		return 0, err
	}
	hits := 0
	for i := range want {
		if want[i] == got[i] {
			hits++
		}
	}
	return float64(hits) / float64(len(want)), nil
}

func sameLen(want, got []float64) error {
	if len(want) != len(got) {
		return fmt.Errorf("metrics: %d targets but %d predictions", len(want), len(got))
	}
	if len(want) == 0 {
		return fmt.Errorf("metrics: empty evaluation set")
	}
	return nil
}
