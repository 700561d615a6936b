// @title           JusMatch API
// @version         1.0
// @description     API for a legal-services marketplace: cidadãos post cases, the matching engine distributes them to compatible advogados, lawyers accept and get hired.
// @BasePath        /api
// @schemes         http
// @securityDefinitions.apikey BearerAuth
// @in              header
// @name            Authorization
// @description     Format: Bearer <token>
package main

import (
	"log"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"
	"gorm.io/gorm"

	"github.com/jusmatch/jusmatch-backend/pkg/database"
	"github.com/jusmatch/jusmatch-backend/pkg/logger"
	"github.com/jusmatch/jusmatch-backend/pkg/models"

	"github.com/jusmatch/jusmatch-backend/internal/auth"
	"github.com/jusmatch/jusmatch-backend/internal/billing"
	"github.com/jusmatch/jusmatch-backend/internal/cases"
	"github.com/jusmatch/jusmatch-backend/internal/chat"
	"github.com/jusmatch/jusmatch-backend/internal/lawyers"
	"github.com/jusmatch/jusmatch-backend/internal/matches"
	"github.com/jusmatch/jusmatch-backend/internal/matching"
	"github.com/jusmatch/jusmatch-backend/internal/scheduler"
	"github.com/jusmatch/jusmatch-backend/internal/settings"
)

func main() {
	_ = godotenv.Load()

	logg := logger.New(os.Getenv("APP_ENV"))

	db := database.Init()
	if err := db.AutoMigrate(
		&models.User{}, &models.Caso{}, &models.LawyerProfile{}, &models.LawyerSpecialty{},
		&models.Match{}, &models.SystemSetting{}, &models.Plan{}, &models.Subscription{},
		&models.ChatMessage{}, &models.CasoEvent{},
	); err != nil {
		log.Fatal("migration failed:", err)
	}
	seedPlans(db, logg)

	// Matching engine wiring. Without Redis the API still works; match
	// notifications just aren't delivered.
	store := settings.NewStore(db)
	scorer := matching.NewScorer(matching.DefaultWeights())
	quota := matching.NewQuotaGuard(db)
	lifecycle := matching.NewLifecycle(db, store, logg.WithComponent("lifecycle"))

	var notifier matching.Notifier
	if tasks, err := scheduler.NewClient(); err != nil {
		logg.Warn("task queue unavailable, match notifications disabled", "error", err)
	} else {
		defer tasks.Close()
		notifier = tasks
	}
	dist := matching.NewDistributor(db, store, scorer, quota, lifecycle, notifier, logg.WithComponent("distributor"))

	app := fiber.New(fiber.Config{
		ErrorHandler: auth.ErrorHandler,
	})

	app.Get("/health", func(c *fiber.Ctx) error { return c.JSON(fiber.Map{"status": "ok"}) })

	api := app.Group("/api")

	// Auth
	authH := auth.NewHandler(db)
	api.Post("/signup", authH.Signup)
	api.Post("/login", authH.Login)
	api.Get("/me", auth.RequireAuth(), authH.Me)

	// Cases (cidadão)
	caseH := cases.NewHandler(db, dist, logg.WithComponent("cases"))
	api.Post("/casos", auth.RequireAuth(), auth.RequireRole(string(models.RoleCidadao)), caseH.Create)
	api.Post("/casos/convert-chat", auth.RequireAuth(), auth.RequireRole(string(models.RoleCidadao)), caseH.ConvertChat)
	api.Post("/casos/:id/activate", auth.RequireAuth(), auth.RequireRole(string(models.RoleCidadao)), caseH.Activate)
	api.Get("/casos/mine", auth.RequireAuth(), auth.RequireRole(string(models.RoleCidadao)), caseH.ListMine)
	api.Get("/casos/:id", auth.RequireAuth(), auth.RequireRole(string(models.RoleCidadao)), caseH.GetDetail)
	api.Post("/casos/:id/cancel", auth.RequireAuth(), auth.RequireRole(string(models.RoleCidadao)), caseH.Cancel)

	// Matches
	matchH := matches.NewHandler(db, lifecycle)
	api.Get("/matches/mine", auth.RequireAuth(), auth.RequireRole(string(models.RoleAdvogado)), matchH.ListMine)
	api.Post("/matches/:id/viewed", auth.RequireAuth(), auth.RequireRole(string(models.RoleAdvogado)), matchH.MarkViewed)
	api.Post("/matches/:id/respond", auth.RequireAuth(), auth.RequireRole(string(models.RoleAdvogado)), matchH.Respond)
	api.Post("/matches/:id/contract", auth.RequireAuth(), auth.RequireRole(string(models.RoleCidadao)), matchH.Contract)

	// Chat inside a match (both participants)
	chatH := chat.NewHandler(db, store)
	api.Post("/matches/:id/messages", auth.RequireAuth(), chatH.Send)
	api.Get("/matches/:id/messages", auth.RequireAuth(), chatH.List)

	// Lawyer profile
	lawyerH := lawyers.NewHandler(db, quota)
	api.Get("/lawyers/me", auth.RequireAuth(), auth.RequireRole(string(models.RoleAdvogado)), lawyerH.GetMine)
	api.Put("/lawyers/me", auth.RequireAuth(), auth.RequireRole(string(models.RoleAdvogado)), lawyerH.UpdateMine)
	api.Get("/lawyers/me/quota", auth.RequireAuth(), auth.RequireRole(string(models.RoleAdvogado)), lawyerH.Quota)

	// Billing
	billH := billing.NewHandler(db, logg.WithComponent("billing"))
	api.Get("/plans", billH.ListPlans)
	api.Post("/billing/checkout/:planCode", auth.RequireAuth(), auth.RequireRole(string(models.RoleAdvogado)), billH.CreateCheckout)
	api.Post("/billing/subscription/cancel", auth.RequireAuth(), auth.RequireRole(string(models.RoleAdvogado)), billH.CancelSubscription)
	api.Post("/billing/stripe/webhook", billH.StripeWebhook)
	if os.Getenv("APP_ENV") == "dev" && os.Getenv("PAYMENT_PROVIDER") != "stripe" {
		api.Post("/billing/mock/complete", billH.MockComplete) // Protected by X-Dev-Secret
	}

	// Admin
	settingsH := settings.NewHandler(db, store)
	admin := api.Group("/admin", auth.RequireAuth(), auth.RequireRole(string(models.RoleAdmin)))
	admin.Get("/settings", settingsH.List)
	admin.Put("/settings/:key", settingsH.Upsert)
	admin.Delete("/settings/:key", settingsH.Delete)
	admin.Patch("/lawyers/:id", lawyerH.Moderate)

	port := os.Getenv("PORT")
	if port == "" {
		port = "3000"
	}
	logg.Info("server listening", "port", port)
	log.Fatal(app.Listen(":" + port))
}

// seedPlans inserts the default plan catalogue on first boot. Existing rows
// win, so prices edited in the database survive restarts.
func seedPlans(db *gorm.DB, logg *logger.Logger) {
	defaults := []models.Plan{
		{Code: models.FreePlanCode, Name: "Gratuito", MonthlyLeadQuota: models.FreeMonthlyLeadQuota, PriceCents: 0},
		{Code: "pro", Name: "Profissional", MonthlyLeadQuota: 30, PriceCents: 14900},
		{Code: "unlimited", Name: "Ilimitado", MonthlyLeadQuota: models.QuotaUnlimited, PriceCents: 39900},
	}
	for _, p := range defaults {
		if err := db.Where("code = ?", p.Code).FirstOrCreate(&p).Error; err != nil {
			logg.Warn("plan seed failed", "plan", p.Code, "error", err)
		}
	}
}
