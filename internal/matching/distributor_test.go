package matching

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jusmatch/jusmatch-backend/pkg/models"
)

func matchesForCaso(t *testing.T, db *gorm.DB, casoID uuid.UUID) []models.Match {
	t.Helper()
	var rows []models.Match
	if err := db.Where("caso_id = ?", casoID).Order("score DESC").Find(&rows).Error; err != nil {
		t.Fatal(err)
	}
	return rows
}

func Test_DistributeCaso_RanksAndFilters(t *testing.T) {
	db := openTestDB(t)
	_, _, _, dist := newTestEngine(db)
	ctx := context.Background()

	cid := seedCidadao(t, db)
	casoID := seedCaso(t, db, cid, "Trabalhista", "São Paulo", "SP", models.CasoAberto)

	// Specialty + same city + verified: 90.
	strong := defaultLawyerOpts()
	strong.verified = true
	strong.specialties = []string{"Trabalhista"}
	strongID := seedLawyer(t, db, strong)

	// Specialty + other state + verified: 70.
	medium := defaultLawyerOpts()
	medium.verified = true
	medium.city, medium.state = "Curitiba", "PR"
	medium.specialties = []string{"Trabalhista"}
	mediumID := seedLawyer(t, db, medium)

	// Wrong specialty: filtered out of the candidate pool entirely.
	wrong := defaultLawyerOpts()
	wrong.specialties = []string{"Tributário"}
	seedLawyer(t, db, wrong)

	created, err := dist.DistributeCaso(ctx, casoID)
	if err != nil {
		t.Fatalf("distribute: %v", err)
	}
	if created != 2 {
		t.Fatalf("want 2 matches, got %d", created)
	}

	rows := matchesForCaso(t, db, casoID)
	if len(rows) != 2 {
		t.Fatalf("want 2 rows, got %d", len(rows))
	}
	if rows[0].LawyerProfileID != strongID || rows[0].Score != 90 {
		t.Fatalf("best row wrong: %+v", rows[0])
	}
	if rows[1].LawyerProfileID != mediumID || rows[1].Score != 70 {
		t.Fatalf("second row wrong: %+v", rows[1])
	}
	for _, m := range rows {
		if m.Status != models.MatchPendente {
			t.Fatalf("match not PENDENTE: %+v", m)
		}
	}
}

func Test_DistributeCaso_ThresholdCutsLowScores(t *testing.T) {
	db := openTestDB(t)
	_, _, _, dist := newTestEngine(db)
	ctx := context.Background()

	cid := seedCidadao(t, db)
	// No specialty on the caso: everyone gets the specialty weight, so the
	// location tier decides who clears min_match_score (60).
	casoID := seedCaso(t, db, cid, "", "São Paulo", "SP", models.CasoAberto)

	near := defaultLawyerOpts() // 55 + 25 = 80
	nearID := seedLawyer(t, db, near)

	far := defaultLawyerOpts() // 55 + 5 = 60, still in
	far.city, far.state = "Porto Alegre", "RS"
	seedLawyer(t, db, far)

	created, err := dist.DistributeCaso(ctx, casoID)
	if err != nil {
		t.Fatalf("distribute: %v", err)
	}
	if created != 2 {
		t.Fatalf("want 2 (60 is on the threshold), got %d", created)
	}

	// Raise the bar and redistribute a fresh caso: only same-city survives.
	if err := db.Create(&models.SystemSetting{
		Key: "min_match_score", Value: "75", Type: models.SettingNumber,
	}).Error; err != nil {
		t.Fatal(err)
	}
	store, _, _, dist2 := newTestEngine(db)
	store.Invalidate("min_match_score")

	caso2 := seedCaso(t, db, cid, "", "São Paulo", "SP", models.CasoAberto)
	created, err = dist2.DistributeCaso(ctx, caso2)
	if err != nil {
		t.Fatalf("distribute 2: %v", err)
	}
	if created != 1 {
		t.Fatalf("want 1 above raised threshold, got %d", created)
	}
	rows := matchesForCaso(t, db, caso2)
	if rows[0].LawyerProfileID != nearID {
		t.Fatalf("wrong lawyer above threshold: %+v", rows[0])
	}
}

func Test_DistributeCaso_CapsAtMaxMatches(t *testing.T) {
	db := openTestDB(t)
	_, _, _, dist := newTestEngine(db)
	ctx := context.Background()

	cid := seedCidadao(t, db)
	casoID := seedCaso(t, db, cid, "", "São Paulo", "SP", models.CasoAberto)

	// Eight eligible candidates, default cap is five.
	for i := 0; i < 8; i++ {
		seedLawyer(t, db, defaultLawyerOpts())
	}

	created, err := dist.DistributeCaso(ctx, casoID)
	if err != nil {
		t.Fatalf("distribute: %v", err)
	}
	if created != 5 {
		t.Fatalf("want cap of 5, got %d", created)
	}
}

func Test_DistributeCaso_SkipsCandidatesAtQuota(t *testing.T) {
	db := openTestDB(t)
	_, _, _, dist := newTestEngine(db)
	ctx := context.Background()

	cid := seedCidadao(t, db)
	casoID := seedCaso(t, db, cid, "", "São Paulo", "SP", models.CasoAberto)

	exhausted := defaultLawyerOpts()
	exhausted.quota = 1
	exhausted.received = 1
	exhaustedID := seedLawyer(t, db, exhausted)

	freshID := seedLawyer(t, db, defaultLawyerOpts())

	created, err := dist.DistributeCaso(ctx, casoID)
	if err != nil {
		t.Fatalf("distribute: %v", err)
	}
	if created != 1 {
		t.Fatalf("want 1 (exhausted candidate skipped), got %d", created)
	}
	rows := matchesForCaso(t, db, casoID)
	if rows[0].LawyerProfileID != freshID {
		t.Fatalf("match went to the wrong lawyer: %+v", rows[0])
	}

	// The skipped candidate's counter must be untouched.
	var p models.LawyerProfile
	if err := db.First(&p, "id = ?", exhaustedID).Error; err != nil {
		t.Fatal(err)
	}
	if p.LeadsReceived != 1 {
		t.Fatalf("exhausted counter moved: %d", p.LeadsReceived)
	}
}

func Test_DistributeCaso_RerunIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	_, _, _, dist := newTestEngine(db)
	ctx := context.Background()

	cid := seedCidadao(t, db)
	casoID := seedCaso(t, db, cid, "", "São Paulo", "SP", models.CasoAberto)
	lawyerID := seedLawyer(t, db, defaultLawyerOpts())

	if _, err := dist.DistributeCaso(ctx, casoID); err != nil {
		t.Fatalf("first run: %v", err)
	}
	created, err := dist.DistributeCaso(ctx, casoID)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if created != 0 {
		t.Fatalf("second run created %d matches", created)
	}

	// One lead consumed in total: the duplicate rolled its increment back.
	var p models.LawyerProfile
	if err := db.First(&p, "id = ?", lawyerID).Error; err != nil {
		t.Fatal(err)
	}
	if p.LeadsReceived != 1 {
		t.Fatalf("lead counter drifted on rerun: %d", p.LeadsReceived)
	}
}

func Test_DistributeCaso_IgnoresNonOpenCaso(t *testing.T) {
	db := openTestDB(t)
	_, _, _, dist := newTestEngine(db)
	ctx := context.Background()

	cid := seedCidadao(t, db)
	seedLawyer(t, db, defaultLawyerOpts())

	for _, st := range []models.CasoStatus{
		models.CasoPendenteAtivacao,
		models.CasoEmAndamento,
		models.CasoFechado,
		models.CasoCancelado,
	} {
		casoID := seedCaso(t, db, cid, "", "São Paulo", "SP", st)
		created, err := dist.DistributeCaso(ctx, casoID)
		if err != nil {
			t.Fatalf("status %s: %v", st, err)
		}
		if created != 0 {
			t.Fatalf("status %s: created %d matches", st, created)
		}
	}
}

func Test_DistributeCaso_UnknownCaso(t *testing.T) {
	db := openTestDB(t)
	_, _, _, dist := newTestEngine(db)

	_, err := dist.DistributeCaso(context.Background(), uuid.New())
	if !errors.Is(err, ErrCasoNotFound) {
		t.Fatalf("want ErrCasoNotFound, got %v", err)
	}
}

func Test_RedistributeOrphans_PicksOnlyMatchlessOpenCases(t *testing.T) {
	db := openTestDB(t)
	_, _, _, dist := newTestEngine(db)
	ctx := context.Background()

	cid := seedCidadao(t, db)

	// Orphan: open, old enough, no matches — but no lawyers yet either.
	orphanID := seedCaso(t, db, cid, "", "São Paulo", "SP", models.CasoAberto)
	if err := db.Model(&models.Caso{}).Where("id = ?", orphanID).
		Update("created_at", gorm.Expr("now() - interval '2 hours'")).Error; err != nil {
		t.Fatal(err)
	}

	// Covered: open and old, but already has a match.
	coveredID := seedCaso(t, db, cid, "", "São Paulo", "SP", models.CasoAberto)
	if err := db.Model(&models.Caso{}).Where("id = ?", coveredID).
		Update("created_at", gorm.Expr("now() - interval '2 hours'")).Error; err != nil {
		t.Fatal(err)
	}
	lawyerID := seedLawyer(t, db, defaultLawyerOpts())
	_, _, lc, _ := newTestEngine(db)
	createMatch(t, db, lc, coveredID, lawyerID, 80)

	// Fresh: open, matchless, but inside the grace period.
	seedCaso(t, db, cid, "", "São Paulo", "SP", models.CasoAberto)

	created, err := dist.RedistributeOrphans(ctx, time.Hour)
	if err != nil {
		t.Fatalf("redistribute: %v", err)
	}
	// The orphan gets the (single) lawyer; covered and fresh are untouched.
	if created != 1 {
		t.Fatalf("want 1 match created, got %d", created)
	}
	rows := matchesForCaso(t, db, orphanID)
	if len(rows) != 1 {
		t.Fatalf("orphan not redistributed, %d matches", len(rows))
	}
}
