package workflow

// Calibration classifies how the agent's confidence moved relative to its
// uncertainty between PREFLIGHT and POSTFLIGHT.
type Calibration string

const (
	WellCalibrated Calibration = "well-calibrated"
	Overconfident  Calibration = "overconfident"
	Underconfident Calibration = "underconfident"
)

// calibrationTolerance is the smallest change treated as a direction.
const calibrationTolerance = 0.05

// Classify compares the direction of the confidence change against the
// direction of the uncertainty change. Confidence rising while uncertainty
// also rises is overconfidence; confidence falling while uncertainty falls
// is underconfidence; anything else is consistent.
func Classify(baseline, final Vectors) Calibration {
	dConf := direction(final.Get(Confidence) - baseline.Get(Confidence))
	dUnc := direction(final.Get(Uncertainty) - baseline.Get(Uncertainty))

	switch {
	case dConf > 0 && dUnc > 0:
		return Overconfident
	case dConf < 0 && dUnc < 0:
		return Underconfident
	default:
		return WellCalibrated
	}
}

func direction(delta float64) int {
	switch {
	case delta > calibrationTolerance:
		return 1
	case delta < -calibrationTolerance:
		return -1
	default:
		return 0
	}
}
