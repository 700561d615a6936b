// Shared database helpers for the matching tests. These tests run against a
// real Postgres (TEST_DATABASE_URL) because the quota and duplicate-match
// guarantees live in conditional UPDATEs and a unique index, which sqlite
// mocks would not exercise.
package matching

import (
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/jusmatch/jusmatch-backend/internal/settings"
	"github.com/jusmatch/jusmatch-backend/pkg/logger"
	"github.com/jusmatch/jusmatch-backend/pkg/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	_ = godotenv.Load()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL is empty")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(
		&models.User{}, &models.Caso{}, &models.LawyerProfile{}, &models.LawyerSpecialty{},
		&models.Match{}, &models.SystemSetting{}, &models.Plan{}, &models.Subscription{},
		&models.CasoEvent{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	t.Cleanup(func() {
		sql := `
TRUNCATE TABLE
	caso_events,
	matches,
	subscriptions,
	plans,
	lawyer_specialties,
	lawyer_profiles,
	casos,
	system_settings,
	users
RESTART IDENTITY CASCADE`
		if err := db.Exec(sql).Error; err != nil {
			t.Logf("truncate failed (ignored): %v", err)
		}
	})

	return db
}

func testLogger() *logger.Logger {
	return logger.New("test")
}

func seedCidadao(t *testing.T, db *gorm.DB) uuid.UUID {
	t.Helper()
	u := models.User{
		ID:    uuid.New(),
		Email: fmt.Sprintf("c+%s@test.local", uuid.NewString()),
		Role:  models.RoleCidadao,
	}
	if err := db.Create(&u).Error; err != nil {
		t.Fatal(err)
	}
	return u.ID
}

type lawyerOpts struct {
	approved    bool
	onboarded   bool
	verified    bool
	online      bool
	plan        string
	quota       int
	received    int
	city, state string
	specialties []string
}

func defaultLawyerOpts() lawyerOpts {
	return lawyerOpts{
		approved:  true,
		onboarded: true,
		quota:     10,
		city:      "São Paulo",
		state:     "SP",
	}
}

func seedLawyer(t *testing.T, db *gorm.DB, o lawyerOpts) uuid.UUID {
	t.Helper()
	u := models.User{
		ID:    uuid.New(),
		Email: fmt.Sprintf("l+%s@test.local", uuid.NewString()),
		Role:  models.RoleAdvogado,
	}
	if err := db.Create(&u).Error; err != nil {
		t.Fatal(err)
	}
	plan := o.plan
	if plan == "" {
		plan = models.FreePlanCode
	}
	p := models.LawyerProfile{
		ID:                 uuid.New(),
		UserID:             u.ID,
		OABNumber:          "123456/SP",
		OABState:           "SP",
		Approved:           o.approved,
		OnboardingDone:     o.onboarded,
		Verified:           o.verified,
		OnlineConsultation: o.online,
		PlanCode:           plan,
		MonthlyLeadQuota:   o.quota,
		LeadsReceived:      o.received,
		QuotaResetAt:       time.Now(),
		City:               o.city,
		State:              o.state,
	}
	if err := db.Create(&p).Error; err != nil {
		t.Fatal(err)
	}
	for _, s := range o.specialties {
		if err := db.Create(&models.LawyerSpecialty{
			LawyerProfileID: p.ID,
			Specialty:       s,
		}).Error; err != nil {
			t.Fatal(err)
		}
	}
	return p.ID
}

func seedSubscription(t *testing.T, db *gorm.DB, profileID uuid.UUID, status models.SubscriptionStatus, periodEnd time.Time) {
	t.Helper()
	s := models.Subscription{
		ID:               uuid.New(),
		LawyerProfileID:  profileID,
		PlanCode:         "pro",
		Status:           status,
		CurrentPeriodEnd: &periodEnd,
	}
	if err := db.Create(&s).Error; err != nil {
		t.Fatal(err)
	}
}

func seedCaso(t *testing.T, db *gorm.DB, cidadaoID uuid.UUID, specialty, city, state string, status models.CasoStatus) uuid.UUID {
	t.Helper()
	c := models.Caso{
		ID:          uuid.New(),
		CidadaoID:   cidadaoID,
		Title:       "Demissão sem justa causa",
		Description: "Fui demitido sem receber as verbas rescisórias.",
		City:        city,
		State:       state,
		Status:      status,
	}
	if specialty != "" {
		c.Specialty = &specialty
	}
	if err := db.Create(&c).Error; err != nil {
		t.Fatal(err)
	}
	return c.ID
}

func newTestEngine(db *gorm.DB) (*settings.Store, *QuotaGuard, *Lifecycle, *Distributor) {
	store := settings.NewStore(db)
	scorer := NewScorer(DefaultWeights())
	quota := NewQuotaGuard(db)
	lifecycle := NewLifecycle(db, store, testLogger())
	dist := NewDistributor(db, store, scorer, quota, lifecycle, nil, testLogger())
	return store, quota, lifecycle, dist
}
