package matching

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/jusmatch/jusmatch-backend/pkg/models"
)

// Weights parameterise the compatibility score. The exact numbers are a
// product decision, not a law of nature; they can be tuned without touching
// the scoring logic as long as the sum of the maximum path stays within 100.
type Weights struct {
	SpecialtyMatch     int // exact specialty overlap, the dominant factor
	SameCity           int
	SameState          int
	OtherLocation      int
	VerifiedOAB        int
	OnlineConsultation int
}

// DefaultWeights: specialty dominates, proximity second, small trust bonuses.
func DefaultWeights() Weights {
	return Weights{
		SpecialtyMatch:     55,
		SameCity:           25,
		SameState:          15,
		OtherLocation:      5,
		VerifiedOAB:        10,
		OnlineConsultation: 5,
	}
}

// Scorer computes a compatibility score in [0,100] between a caso and a
// lawyer profile. It is deterministic and side-effect free.
type Scorer struct {
	w Weights
}

func NewScorer(w Weights) *Scorer { return &Scorer{w: w} }

// Score returns the compatibility of the lawyer for the caso.
//
// A caso without a specialty tag awards the full specialty weight to every
// candidate: with no signal to discriminate on, proximity and trust decide.
func (s *Scorer) Score(caso *models.Caso, lawyer *models.LawyerProfile) (int, error) {
	if caso == nil || lawyer == nil {
		return 0, fmt.Errorf("%w: caso and lawyer are required", ErrInvalidInput)
	}
	if caso.ID == uuid.Nil || lawyer.ID == uuid.Nil {
		return 0, fmt.Errorf("%w: caso and lawyer must be persisted records", ErrInvalidInput)
	}

	score := 0

	if caso.Specialty == nil || *caso.Specialty == "" {
		score += s.w.SpecialtyMatch
	} else if hasSpecialty(lawyer, *caso.Specialty) {
		score += s.w.SpecialtyMatch
	}

	switch {
	case sameCity(caso, lawyer):
		score += s.w.SameCity
	case strings.EqualFold(caso.State, lawyer.State) && caso.State != "":
		score += s.w.SameState
	default:
		score += s.w.OtherLocation
	}

	if lawyer.Verified {
		score += s.w.VerifiedOAB
	}
	if lawyer.OnlineConsultation {
		score += s.w.OnlineConsultation
	}

	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	return score, nil
}

func hasSpecialty(lawyer *models.LawyerProfile, specialty string) bool {
	for _, s := range lawyer.Specialties {
		if strings.EqualFold(s.Specialty, specialty) {
			return true
		}
	}
	return false
}

func sameCity(caso *models.Caso, lawyer *models.LawyerProfile) bool {
	return caso.City != "" &&
		strings.EqualFold(caso.City, lawyer.City) &&
		strings.EqualFold(caso.State, lawyer.State)
}
