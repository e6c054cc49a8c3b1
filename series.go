package reliability

import "strconv"

// Point is one (x, y) pair of a series.
type Point struct {
	X, Y float64
}

// Series is plain plotting data. Names, when set, labels Points one to one.
type Series struct {
	Label  string
	XLabel string
	YLabel string
	Points []Point
	Names  []string
}

// ImportanceFactorSeries returns the importance factors as pie data.
func (r *Result) ImportanceFactorSeries() Series {
	s := Series{Label: "Importance factors", XLabel: "component", YLabel: "α²", Names: r.Names()}
	for i, f := range r.ImportanceFactors() {
		s.Points = append(s.Points, Point{X: float64(i), Y: f})
	}
	return s
}

// HasoferSensitivitySeries returns two series: [0] the marginal parameters
// and [1] the dependence parameters.
func (r *Result) HasoferSensitivitySeries() ([]Series, error) {
	s, err := r.HasoferReliabilityIndexSensitivity()
	if err != nil {
		return nil, err
	}
	return sensitivitySeries(s, "Hasofer-Lind index sensitivity", "dβ/dθ"), nil
}

// EventProbabilitySensitivitySeries is HasoferSensitivitySeries for dPf/dθ.
func (r *Result) EventProbabilitySensitivitySeries() ([]Series, error) {
	s, err := r.EventProbabilitySensitivity()
	if err != nil {
		return nil, err
	}
	return sensitivitySeries(s, "Event probability sensitivity", "dPf/dθ"), nil
}

func sensitivitySeries(s Sensitivity, label, ylabel string) []Series {
	marginal := Series{Label: label + " (marginal)", XLabel: "parameter", YLabel: ylabel}
	for _, g := range s.Marginals {
		for p, v := range g.Values {
			marginal.Points = append(marginal.Points, Point{X: float64(len(marginal.Points)), Y: v})
			marginal.Names = append(marginal.Names, g.Group+"."+g.Names[p])
		}
	}
	other := Series{Label: label + " (other)", XLabel: "parameter", YLabel: ylabel}
	for p, v := range s.Dependence.Values {
		other.Points = append(other.Points, Point{X: float64(p), Y: v})
		other.Names = append(other.Names, s.Dependence.Names[p])
	}
	return []Series{marginal, other}
}

// ErrorHistorySeries returns the absolute, relative, residual and constraint
// errors against the iteration index.
func (r *Result) ErrorHistorySeries() []Series {
	out := []Series{
		{Label: "absolute error"},
		{Label: "relative error"},
		{Label: "residual error"},
		{Label: "constraint error"},
	}
	for _, it := range r.history {
		x := float64(it.Index)
		for k, y := range []float64{it.AbsoluteError, it.RelativeError, it.ResidualError, it.ConstraintError} {
			out[k].Points = append(out[k].Points, Point{X: x, Y: y})
		}
	}
	for k := range out {
		out[k].XLabel = "iteration"
		out[k].YLabel = "error"
	}
	return out
}

func (s Series) String() string {
	return s.Label + " (" + strconv.Itoa(len(s.Points)) + " points)"
}
