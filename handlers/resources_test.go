package handlers_test

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"nhexserver/handlers"
	"nhexserver/models"
	"nhexserver/testutil"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func resourcesRouter(db *gorm.DB, cfg *models.Config, user *models.User) *gin.Engine {
	router := gin.New()
	router.POST("/armies/:id/resources/", asUser(user), func(c *gin.Context) {
		handlers.Resources(c, db, zap.NewNop(), cfg)
	})
	return router
}

func uploadFiles(t *testing.T, router http.Handler, armyID string,
	files map[string][]byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, content := range files {
		part, err := mw.CreateFormFile("file_field", name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := part.Write(content); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/armies/"+armyID+"/resources/", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func countResources(t *testing.T, db *gorm.DB, armyID string) int64 {
	t.Helper()
	var count int64
	if err := db.Model(&models.Resource{}).Where("army_id = ?", armyID).Count(&count).Error; err != nil {
		t.Fatal(err)
	}
	return count
}

func TestUploadResource(t *testing.T) {
	db := testutil.NewDB(t)
	cfg := &models.Config{MediaRoot: t.TempDir()}
	alice := testutil.NewUser(t, db, "alice", 1<<20)
	army := testutil.NewArmy(t, db, alice, "A", true)

	router := resourcesRouter(db, cfg, alice)
	w := uploadFiles(t, router, army.ID, map[string][]byte{"unit.png": []byte("png data")})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if countResources(t, db, army.ID) != 1 {
		t.Error("resource row not created")
	}

	var res models.Resource
	if err := db.First(&res, "army_id = ?", army.ID).Error; err != nil {
		t.Fatal(err)
	}
	if res.Name != "unit" {
		t.Errorf("resource name = %q, want %q", res.Name, "unit")
	}
	if !res.IsValid(cfg.MediaRoot) {
		t.Error("uploaded file missing on disk")
	}
}

func TestUploadRejectsOversizedFile(t *testing.T) {
	db := testutil.NewDB(t)
	cfg := &models.Config{MediaRoot: t.TempDir()}
	alice := testutil.NewUser(t, db, "alice", 100<<20)
	army := testutil.NewArmy(t, db, alice, "A", true)

	router := resourcesRouter(db, cfg, alice)
	w := uploadFiles(t, router, army.ID, map[string][]byte{
		"huge.png":  make([]byte, (1<<20)+1),
		"small.png": []byte("ok"),
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}

	// 1件でも違反があれば何も保存されない
	if countResources(t, db, army.ID) != 0 {
		t.Error("rows were created despite the rejected upload")
	}
	if _, err := os.Stat(army.MediaDir(cfg.MediaRoot)); !os.IsNotExist(err) {
		t.Error("files were saved despite the rejected upload")
	}
}

func TestUploadRejectsOversizedRequest(t *testing.T) {
	db := testutil.NewDB(t)
	cfg := &models.Config{MediaRoot: t.TempDir()}
	alice := testutil.NewUser(t, db, "alice", 100<<20)
	army := testutil.NewArmy(t, db, alice, "A", true)

	// 各ファイルは上限内でも合計が10MiBを超えるリクエストは拒否
	files := map[string][]byte{}
	for _, name := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k"} {
		files[name+".png"] = make([]byte, 1<<20)
	}
	router := resourcesRouter(db, cfg, alice)
	w := uploadFiles(t, router, army.ID, files)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	found := false
	for _, msg := range nonFieldErrors(t, w) {
		if s, ok := msg.(string); ok && strings.Contains(s, "Total size") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a total-size error, got %s", w.Body.String())
	}
	if countResources(t, db, army.ID) != 0 {
		t.Error("rows were created despite the rejected upload")
	}
}

func TestUploadRejectsQuotaOverflow(t *testing.T) {
	db := testutil.NewDB(t)
	cfg := &models.Config{MediaRoot: t.TempDir()}
	alice := testutil.NewUser(t, db, "alice", 1000)
	army := testutil.NewArmy(t, db, alice, "A", true)
	testutil.AddResource(t, db, cfg.MediaRoot, army, "existing.png", make([]byte, 900))

	router := resourcesRouter(db, cfg, alice)
	w := uploadFiles(t, router, army.ID, map[string][]byte{"more.png": make([]byte, 500)})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	found := false
	for _, msg := range nonFieldErrors(t, w) {
		if s, ok := msg.(string); ok && strings.Contains(s, "storage quota") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a quota error, got %s", w.Body.String())
	}
	if countResources(t, db, army.ID) != 1 {
		t.Error("row count changed despite the rejected upload")
	}
}

func TestUploadForbiddenForOtherUsers(t *testing.T) {
	db := testutil.NewDB(t)
	cfg := &models.Config{MediaRoot: t.TempDir()}
	alice := testutil.NewUser(t, db, "alice", 1<<20)
	bob := testutil.NewUser(t, db, "bob", 1<<20)
	army := testutil.NewArmy(t, db, alice, "A", true)

	router := resourcesRouter(db, cfg, bob)
	w := uploadFiles(t, router, army.ID, map[string][]byte{"x.png": []byte("x")})
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
}
