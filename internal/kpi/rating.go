package kpi

import "math"

// Rating is the ordinal band derived from an overall score.
type Rating string

const (
	RatingOutstanding     Rating = "Outstanding"
	RatingExcellent       Rating = "Excellent"
	RatingSatisfactory    Rating = "Satisfactory"
	RatingNeedImprovement Rating = "Need Improvement"
	RatingUnsatisfactory  Rating = "Unsatisfactory"
)

// ratingFloors lists the lowest score of each band above Unsatisfactory, highest first.
var ratingFloors = []struct {
	min    float64
	rating Rating
}{
	{85, RatingOutstanding},
	{70, RatingExcellent},
	{50, RatingSatisfactory},
	{40, RatingNeedImprovement},
}

// RatingFor maps an overall score to its band. Boundaries belong to the higher band.
func RatingFor(score float64) Rating {
	if math.IsNaN(score) {
		return RatingUnsatisfactory
	}
	for _, floor := range ratingFloors {
		if score >= floor.min {
			return floor.rating
		}
	}
	return RatingUnsatisfactory
}

// RatingBoundaries returns the band floors score rules must use, highest first.
func RatingBoundaries() []float64 {
	out := make([]float64, len(ratingFloors))
	for i, floor := range ratingFloors {
		out[i] = floor.min
	}
	return out
}

// Category classifies a rating for timeline purposes.
func (r Rating) Category() string {
	switch r {
	case RatingOutstanding, RatingExcellent:
		return "positive"
	case RatingSatisfactory:
		return "neutral"
	default:
		return "negative"
	}
}
