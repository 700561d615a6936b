package matches

import (
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/jusmatch/jusmatch-backend/internal/auth"
	"github.com/jusmatch/jusmatch-backend/internal/matching"
	"github.com/jusmatch/jusmatch-backend/internal/settings"
	"github.com/jusmatch/jusmatch-backend/pkg/logger"
	"github.com/jusmatch/jusmatch-backend/pkg/models"
)

/* ===== helpers ===== */

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
		&models.Match{}, &models.SystemSetting{}, &models.CasoEvent{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	t.Cleanup(func() {
		sql := `
TRUNCATE TABLE
	caso_events,
	matches,
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

type seedOut struct {
	CidadaoID uuid.UUID
	LawyerUID uuid.UUID
	ProfileID uuid.UUID
	CasoID    uuid.UUID
	MatchID   uuid.UUID
}

// seedMatch creates a cidadão, an advogado, a caso with contact details in
// the description and one PENDENTE match between them.
func seedMatch(t *testing.T, db *gorm.DB) seedOut {
	t.Helper()

	cidadao := models.User{
		ID:    uuid.New(),
		Email: fmt.Sprintf("c+%s@test.local", uuid.NewString()),
		Role:  models.RoleCidadao,
	}
	if err := db.Create(&cidadao).Error; err != nil {
		t.Fatal(err)
	}
	lawyer := models.User{
		ID:    uuid.New(),
		Email: fmt.Sprintf("l+%s@test.local", uuid.NewString()),
		Role:  models.RoleAdvogado,
	}
	if err := db.Create(&lawyer).Error; err != nil {
		t.Fatal(err)
	}
	profile := models.LawyerProfile{
		ID:               uuid.New(),
		UserID:           lawyer.ID,
		Approved:         true,
		OnboardingDone:   true,
		MonthlyLeadQuota: 10,
		QuotaResetAt:     time.Now(),
		City:             "São Paulo",
		State:            "SP",
	}
	if err := db.Create(&profile).Error; err != nil {
		t.Fatal(err)
	}

	caso := models.Caso{
		ID:          uuid.New(),
		CidadaoID:   cidadao.ID,
		Title:       "Rescisão indevida",
		Description: "Fui demitido. Meu contato: joao@exemplo.com ou (11) 91234-5678.",
		Status:      models.CasoAberto,
		City:        "São Paulo",
		State:       "SP",
	}
	if err := db.Create(&caso).Error; err != nil {
		t.Fatal(err)
	}

	match := models.Match{
		ID:              uuid.New(),
		CasoID:          caso.ID,
		LawyerProfileID: profile.ID,
		Score:           80,
		Status:          models.MatchPendente,
		SentAt:          time.Now(),
		ExpiresAt:       time.Now().Add(48 * time.Hour),
	}
	if err := db.Create(&match).Error; err != nil {
		t.Fatal(err)
	}

	return seedOut{
		CidadaoID: cidadao.ID,
		LawyerUID: lawyer.ID,
		ProfileID: profile.ID,
		CasoID:    caso.ID,
		MatchID:   match.ID,
	}
}

func injectAuth(userID uuid.UUID, role models.Role) fiber.Handler {
	id := userID.String()
	return func(c *fiber.Ctx) error {
		c.Locals("userID", id)
		c.Locals("role", string(role))
		return c.Next()
	}
}

func newTestApp(db *gorm.DB, userID uuid.UUID, role models.Role) *fiber.App {
	store := settings.NewStore(db)
	log := logger.New("test")
	lifecycle := matching.NewLifecycle(db, store, log)
	h := NewHandler(db, lifecycle)

	app := fiber.New(fiber.Config{ErrorHandler: auth.ErrorHandler})
	app.Use(injectAuth(userID, role))
	app.Get("/api/matches/mine", h.ListMine)
	app.Post("/api/matches/:id/viewed", h.MarkViewed)
	app.Post("/api/matches/:id/respond", h.Respond)
	app.Post("/api/matches/:id/contract", h.Contract)
	return app
}

type listOut struct {
	Items []struct {
		ID      string `json:"id"`
		Preview string `json:"preview"`
		Status  string `json:"status"`
	} `json:"items"`
}

/* ================== TESTS ================== */

func Test_ListMine_RedactsContactUntilAccepted(t *testing.T) {
	db := openTestDB(t)
	seed := seedMatch(t, db)
	app := newTestApp(db, seed.LawyerUID, models.RoleAdvogado)

	req := httptest.NewRequest("GET", "/api/matches/mine", nil)
	resp, _ := app.Test(req)
	if resp.StatusCode != 200 {
		t.Fatalf("got %d", resp.StatusCode)
	}

	var out listOut
	_ = json.NewDecoder(resp.Body).Decode(&out)
	if len(out.Items) != 1 {
		t.Fatalf("want 1 item, got %d", len(out.Items))
	}
	preview := out.Items[0].Preview
	if strings.Contains(preview, "joao@exemplo.com") || strings.Contains(preview, "91234-5678") {
		t.Fatalf("contact leaked before acceptance: %q", preview)
	}

	// Accept, then the full description is visible.
	respReq := httptest.NewRequest("POST", "/api/matches/"+seed.MatchID.String()+"/respond",
		strings.NewReader(`{"accepted":true}`))
	respReq.Header.Set("Content-Type", "application/json")
	acceptResp, _ := app.Test(respReq)
	if acceptResp.StatusCode != 200 {
		t.Fatalf("accept got %d", acceptResp.StatusCode)
	}

	resp2, _ := app.Test(httptest.NewRequest("GET", "/api/matches/mine", nil))
	var out2 listOut
	_ = json.NewDecoder(resp2.Body).Decode(&out2)
	if !strings.Contains(out2.Items[0].Preview, "joao@exemplo.com") {
		t.Fatalf("contact still hidden after acceptance: %q", out2.Items[0].Preview)
	}
}

func Test_ListMine_RejectsUnknownStatusFilter(t *testing.T) {
	db := openTestDB(t)
	seed := seedMatch(t, db)
	app := newTestApp(db, seed.LawyerUID, models.RoleAdvogado)

	resp, _ := app.Test(httptest.NewRequest("GET", "/api/matches/mine?status=WHATEVER", nil))
	if resp.StatusCode != 400 {
		t.Fatalf("want 400, got %d", resp.StatusCode)
	}
}

func Test_MarkViewed_ThenRespondFlow(t *testing.T) {
	db := openTestDB(t)
	seed := seedMatch(t, db)
	app := newTestApp(db, seed.LawyerUID, models.RoleAdvogado)

	viewResp, _ := app.Test(httptest.NewRequest("POST", "/api/matches/"+seed.MatchID.String()+"/viewed", nil))
	if viewResp.StatusCode != 200 {
		t.Fatalf("viewed got %d", viewResp.StatusCode)
	}

	var m models.Match
	if err := db.First(&m, "id = ?", seed.MatchID).Error; err != nil {
		t.Fatal(err)
	}
	if m.Status != models.MatchVisualizado {
		t.Fatalf("want VISUALIZADO, got %s", m.Status)
	}

	rejReq := httptest.NewRequest("POST", "/api/matches/"+seed.MatchID.String()+"/respond",
		strings.NewReader(`{"accepted":false}`))
	rejReq.Header.Set("Content-Type", "application/json")
	rejResp, _ := app.Test(rejReq)
	if rejResp.StatusCode != 200 {
		t.Fatalf("reject got %d", rejResp.StatusCode)
	}

	// Responding a second time conflicts.
	again := httptest.NewRequest("POST", "/api/matches/"+seed.MatchID.String()+"/respond",
		strings.NewReader(`{"accepted":true}`))
	again.Header.Set("Content-Type", "application/json")
	againResp, _ := app.Test(again)
	if againResp.StatusCode != 409 {
		t.Fatalf("want 409 on second respond, got %d", againResp.StatusCode)
	}
}

func Test_Respond_ForbiddenForOtherLawyer(t *testing.T) {
	db := openTestDB(t)
	seed := seedMatch(t, db)
	other := seedMatch(t, db) // second lawyer with their own match

	app := newTestApp(db, other.LawyerUID, models.RoleAdvogado)

	req := httptest.NewRequest("POST", "/api/matches/"+seed.MatchID.String()+"/respond",
		strings.NewReader(`{"accepted":true}`))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(req)
	if resp.StatusCode != 403 {
		t.Fatalf("want 403, got %d", resp.StatusCode)
	}
}

func Test_Contract_OnlyOwnerAndOnlyAccepted(t *testing.T) {
	db := openTestDB(t)
	seed := seedMatch(t, db)

	ownerApp := newTestApp(db, seed.CidadaoID, models.RoleCidadao)

	// Not accepted yet: conflict.
	resp, _ := ownerApp.Test(httptest.NewRequest("POST", "/api/matches/"+seed.MatchID.String()+"/contract", nil))
	if resp.StatusCode != 409 {
		t.Fatalf("want 409 before accept, got %d", resp.StatusCode)
	}

	lawyerApp := newTestApp(db, seed.LawyerUID, models.RoleAdvogado)
	accept := httptest.NewRequest("POST", "/api/matches/"+seed.MatchID.String()+"/respond",
		strings.NewReader(`{"accepted":true}`))
	accept.Header.Set("Content-Type", "application/json")
	if r, _ := lawyerApp.Test(accept); r.StatusCode != 200 {
		t.Fatalf("accept got %d", r.StatusCode)
	}

	// A stranger cannot contract.
	stranger := seedMatch(t, db)
	strangerApp := newTestApp(db, stranger.CidadaoID, models.RoleCidadao)
	resp, _ = strangerApp.Test(httptest.NewRequest("POST", "/api/matches/"+seed.MatchID.String()+"/contract", nil))
	if resp.StatusCode != 403 {
		t.Fatalf("want 403 for stranger, got %d", resp.StatusCode)
	}

	// The owner can.
	resp, _ = ownerApp.Test(httptest.NewRequest("POST", "/api/matches/"+seed.MatchID.String()+"/contract", nil))
	if resp.StatusCode != 200 {
		t.Fatalf("contract got %d", resp.StatusCode)
	}

	var caso models.Caso
	if err := db.First(&caso, "id = ?", seed.CasoID).Error; err != nil {
		t.Fatal(err)
	}
	if caso.Status != models.CasoEmAndamento {
		t.Fatalf("caso not moved to EM_ANDAMENTO: %s", caso.Status)
	}
}
