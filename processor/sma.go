package processor

import "marketpulse/models"

// SMAWindows are the trailing windows attached to every index point.
var SMAWindows = [...]int{20, 60, 120}

// CalculateSMAs attaches the 20, 60 and 120 point trailing means to an
// ascending series. Every call recomputes all windows over the whole input.
func CalculateSMAs(obs []models.Observation) []models.IndexPoint {
	out := make([]models.IndexPoint, len(obs))
	for i, o := range obs {
		out[i] = models.IndexPoint{
			Observation: o,
			SMA20:       trailingMean(obs, i, SMAWindows[0]),
			SMA60:       trailingMean(obs, i, SMAWindows[1]),
			SMA120:      trailingMean(obs, i, SMAWindows[2]),
		}
	}
	return out
}

// trailingMean returns the mean of obs[i-window+1 : i+1], or nil when fewer
// than window points are available up to i.
func trailingMean(obs []models.Observation, i, window int) *float64 {
	if window <= 0 || i < window-1 {
		return nil
	}
	sum := 0.0
	for _, o := range obs[i-window+1 : i+1] {
		sum += o.Value
	}
	mean := sum / float64(window)
	return &mean
}

// Observations strips the derived fields from an index series.
func Observations(points []models.IndexPoint) []models.Observation {
	out := make([]models.Observation, len(points))
	for i, p := range points {
		out[i] = p.Observation
	}
	return out
}
