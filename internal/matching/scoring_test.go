package matching

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/jusmatch/jusmatch-backend/pkg/models"
)

func strPtr(s string) *string { return &s }

func testCaso(specialty, city, state string) *models.Caso {
	c := &models.Caso{
		ID:     uuid.New(),
		City:   city,
		State:  state,
		Status: models.CasoAberto,
	}
	if specialty != "" {
		c.Specialty = strPtr(specialty)
	}
	return c
}

func testLawyer(city, state string, verified, online bool, specialties ...string) *models.LawyerProfile {
	p := &models.LawyerProfile{
		ID:                 uuid.New(),
		City:               city,
		State:              state,
		Verified:           verified,
		OnlineConsultation: online,
	}
	for _, s := range specialties {
		p.Specialties = append(p.Specialties, models.LawyerSpecialty{Specialty: s})
	}
	return p
}

func Test_Score_SpecialtyAndLocationTiers(t *testing.T) {
	s := NewScorer(DefaultWeights())

	caso := testCaso("Trabalhista", "São Paulo", "SP")

	cases := []struct {
		name   string
		lawyer *models.LawyerProfile
		want   int
	}{
		{
			// 55 specialty + 25 same city + 10 verified
			name:   "specialty same city verified",
			lawyer: testLawyer("São Paulo", "SP", true, false, "Trabalhista"),
			want:   90,
		},
		{
			// 55 specialty + 5 other location + 10 verified
			name:   "specialty other state verified",
			lawyer: testLawyer("Curitiba", "PR", true, false, "Trabalhista"),
			want:   70,
		},
		{
			// 55 specialty + 15 same state, different city
			name:   "specialty same state",
			lawyer: testLawyer("Campinas", "SP", false, false, "Trabalhista"),
			want:   70,
		},
		{
			// no specialty overlap: 0 + 25 same city + 10 verified
			name:   "wrong specialty same city",
			lawyer: testLawyer("São Paulo", "SP", true, false, "Tributário"),
			want:   35,
		},
		{
			// everything: 55 + 25 + 10 + 5
			name:   "full house",
			lawyer: testLawyer("São Paulo", "SP", true, true, "Trabalhista"),
			want:   95,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := s.Score(caso, tc.lawyer)
			if err != nil {
				t.Fatalf("score: %v", err)
			}
			if got != tc.want {
				t.Fatalf("want %d, got %d", tc.want, got)
			}
		})
	}
}

func Test_Score_NoSpecialtyOnCaso_AwardsFullWeight(t *testing.T) {
	s := NewScorer(DefaultWeights())

	caso := testCaso("", "São Paulo", "SP")
	lawyer := testLawyer("São Paulo", "SP", false, false, "Família")

	got, err := s.Score(caso, lawyer)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	// 55 (no tag to discriminate on) + 25 same city
	if got != 80 {
		t.Fatalf("want 80, got %d", got)
	}
}

func Test_Score_CaseInsensitiveMatching(t *testing.T) {
	s := NewScorer(DefaultWeights())

	caso := testCaso("trabalhista", "são paulo", "sp")
	lawyer := testLawyer("SÃO PAULO", "SP", false, false, "TRABALHISTA")

	got, err := s.Score(caso, lawyer)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if got != 80 {
		t.Fatalf("want 80, got %d", got)
	}
}

func Test_Score_CappedAt100(t *testing.T) {
	s := NewScorer(Weights{
		SpecialtyMatch: 80,
		SameCity:       40,
		VerifiedOAB:    20,
	})

	caso := testCaso("Civil", "Recife", "PE")
	lawyer := testLawyer("Recife", "PE", true, false, "Civil")

	got, err := s.Score(caso, lawyer)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if got != 100 {
		t.Fatalf("want cap at 100, got %d", got)
	}
}

func Test_Score_InvalidInput(t *testing.T) {
	s := NewScorer(DefaultWeights())

	if _, err := s.Score(nil, testLawyer("X", "SP", false, false)); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("nil caso: want ErrInvalidInput, got %v", err)
	}
	if _, err := s.Score(testCaso("", "X", "SP"), nil); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("nil lawyer: want ErrInvalidInput, got %v", err)
	}

	unsaved := &models.LawyerProfile{} // zero ID
	if _, err := s.Score(testCaso("", "X", "SP"), unsaved); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("unsaved lawyer: want ErrInvalidInput, got %v", err)
	}
}

func Test_Score_Deterministic(t *testing.T) {
	s := NewScorer(DefaultWeights())
	caso := testCaso("Previdenciário", "Salvador", "BA")
	lawyer := testLawyer("Salvador", "BA", true, true, "Previdenciário", "Trabalhista")

	first, err := s.Score(caso, lawyer)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	for i := 0; i < 50; i++ {
		again, _ := s.Score(caso, lawyer)
		if again != first {
			t.Fatalf("run %d: score changed %d -> %d", i, first, again)
		}
	}
}
