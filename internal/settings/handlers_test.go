package settings

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/jusmatch/jusmatch-backend/internal/auth"
	"github.com/jusmatch/jusmatch-backend/pkg/models"
)

func newTestApp(db *gorm.DB, store *Store) *fiber.App {
	h := NewHandler(db, store)
	app := fiber.New(fiber.Config{ErrorHandler: auth.ErrorHandler})
	app.Get("/api/admin/settings", h.List)
	app.Put("/api/admin/settings/:key", h.Upsert)
	app.Delete("/api/admin/settings/:key", h.Delete)
	return app
}

func putJSON(t *testing.T, app *fiber.App, path, body string) (int, string) {
	t.Helper()
	req := httptest.NewRequest("PUT", path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	raw, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(raw)
}

func Test_Upsert_WritesKeyFromPath(t *testing.T) {
	db := openTestDB(t)
	store := NewStore(db)
	app := newTestApp(db, store)

	status, body := putJSON(t, app, "/api/admin/settings/"+KeyMinMatchScore,
		`{"value":"70","type":"NUMBER","category":"matching"}`)
	if status != 200 {
		t.Fatalf("got %d: %s", status, body)
	}

	var row models.SystemSetting
	if err := db.First(&row, "key = ?", KeyMinMatchScore).Error; err != nil {
		t.Fatalf("setting not stored under path key: %v", err)
	}
	if row.Value != "70" || row.Type != models.SettingNumber {
		t.Fatalf("stored %+v", row)
	}
}

func Test_Upsert_PathKeyWinsOverBody(t *testing.T) {
	db := openTestDB(t)
	store := NewStore(db)
	app := newTestApp(db, store)

	// A stray key field in the body must not redirect the write.
	status, body := putJSON(t, app, "/api/admin/settings/"+KeyMaxMatchesPerCaso,
		`{"key":"some_other_key","value":"7","type":"NUMBER"}`)
	if status != 200 {
		t.Fatalf("got %d: %s", status, body)
	}

	var n int64
	if err := db.Model(&models.SystemSetting{}).
		Where("key = ?", "some_other_key").Count(&n).Error; err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatal("body key was written instead of the path key")
	}

	var row models.SystemSetting
	if err := db.First(&row, "key = ?", KeyMaxMatchesPerCaso).Error; err != nil {
		t.Fatalf("path key missing: %v", err)
	}
	if row.Value != "7" {
		t.Fatalf("stored value %q", row.Value)
	}
}

func Test_Upsert_UpdatesExistingAndInvalidatesCache(t *testing.T) {
	db := openTestDB(t)
	store := NewStore(db)
	app := newTestApp(db, store)
	ctx := context.Background()

	putSetting(t, db, KeyMatchExpirationHours, "48", models.SettingNumber)
	if got := store.GetNumber(ctx, KeyMatchExpirationHours, 0); got != 48 {
		t.Fatalf("prime: got %d", got)
	}

	status, body := putJSON(t, app, "/api/admin/settings/"+KeyMatchExpirationHours,
		`{"value":"24","type":"NUMBER"}`)
	if status != 200 {
		t.Fatalf("got %d: %s", status, body)
	}

	if got := store.GetNumber(ctx, KeyMatchExpirationHours, 0); got != 24 {
		t.Fatalf("cache not invalidated, got %d", got)
	}
}

func Test_Upsert_RejectsUnparsableTypedValues(t *testing.T) {
	db := openTestDB(t)
	store := NewStore(db)
	app := newTestApp(db, store)

	cases := []struct {
		name string
		body string
	}{
		{"number", `{"value":"abc","type":"NUMBER"}`},
		{"boolean", `{"value":"maybe","type":"BOOLEAN"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, body := putJSON(t, app, "/api/admin/settings/bad_"+tc.name, tc.body)
			if status != 400 {
				t.Fatalf("want 400, got %d: %s", status, body)
			}
			var out struct {
				Errors map[string][]string `json:"errors"`
			}
			_ = json.Unmarshal([]byte(body), &out)
			if len(out.Errors["value"]) == 0 {
				t.Fatalf("want value error, got %s", body)
			}
		})
	}
}
