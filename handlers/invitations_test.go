package handlers_test

import (
	"net/http"
	"strings"
	"testing"

	"nhexserver/handlers"
	"nhexserver/models"
	"nhexserver/testutil"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func invitationsRouter(db *gorm.DB, user *models.User) *gin.Engine {
	router := gin.New()
	router.POST("/tables/:id/invitations/", asUser(user), func(c *gin.Context) {
		handlers.Invitations(c, db, zap.NewNop())
	})
	return router
}

func TestCreateInvitation(t *testing.T) {
	db := testutil.NewDB(t)
	alice := testutil.NewUser(t, db, "alice", 1<<20)
	testutil.NewUser(t, db, "bob", 1<<20)
	table := &models.Table{ID: "tbl_inv", Name: "T", OwnerID: &alice.ID}
	if err := db.Create(table).Error; err != nil {
		t.Fatal(err)
	}
	chair := &models.Chair{Name: "Players", TableID: table.ID, Arity: 2, Kind: models.ChairKindPlayer}
	if err := db.Create(chair).Error; err != nil {
		t.Fatal(err)
	}

	router := invitationsRouter(db, alice)
	w := postJSON(t, router, "/tables/tbl_inv/invitations/", gin.H{
		"user": "bob", "chair": chair.ID,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	// (user, chair) の重複は件数を変えずにエラー
	w = postJSON(t, router, "/tables/tbl_inv/invitations/", gin.H{
		"user": "bob", "chair": chair.ID,
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("duplicate status = %d, want 400", w.Code)
	}
	found := false
	for _, msg := range nonFieldErrors(t, w) {
		if s, ok := msg.(string); ok && strings.Contains(s, "already exists") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a duplicate error, got %s", w.Body.String())
	}
	var count int64
	if err := db.Model(&models.NamedInvitation{}).
		Where("chair_id = ?", chair.ID).Count(&count).Error; err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("invitation count = %d, want 1", count)
	}
}

func TestCreateInvitationValidation(t *testing.T) {
	db := testutil.NewDB(t)
	alice := testutil.NewUser(t, db, "alice", 1<<20)
	table := &models.Table{ID: "tbl_val", Name: "T", OwnerID: &alice.ID}
	if err := db.Create(table).Error; err != nil {
		t.Fatal(err)
	}
	chair := &models.Chair{Name: "Players", TableID: table.ID, Kind: models.ChairKindPlayer}
	if err := db.Create(chair).Error; err != nil {
		t.Fatal(err)
	}
	otherTable := &models.Table{ID: "tbl_val2", Name: "T2", OwnerID: &alice.ID}
	if err := db.Create(otherTable).Error; err != nil {
		t.Fatal(err)
	}
	foreignChair := &models.Chair{Name: "Players", TableID: otherTable.ID, Kind: models.ChairKindPlayer}
	if err := db.Create(foreignChair).Error; err != nil {
		t.Fatal(err)
	}

	router := invitationsRouter(db, alice)

	// 存在しないユーザー
	w := postJSON(t, router, "/tables/tbl_val/invitations/", gin.H{
		"user": "nobody", "chair": chair.ID,
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing user: status = %d, want 400", w.Code)
	}
	body := decodeBody(t, w)
	if errs, _ := body["errors"].(map[string]interface{}); errs["user"] == nil {
		t.Errorf("expected a user field error, got %s", w.Body.String())
	}

	// 別テーブルの椅子は選べない
	w = postJSON(t, router, "/tables/tbl_val/invitations/", gin.H{
		"user": "alice", "chair": foreignChair.ID,
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("foreign chair: status = %d, want 400", w.Code)
	}
	body = decodeBody(t, w)
	if errs, _ := body["errors"].(map[string]interface{}); errs["chair"] == nil {
		t.Errorf("expected a chair field error, got %s", w.Body.String())
	}
}

func TestCreateInvitationRequiresTableOwner(t *testing.T) {
	db := testutil.NewDB(t)
	alice := testutil.NewUser(t, db, "alice", 1<<20)
	bob := testutil.NewUser(t, db, "bob", 1<<20)
	table := &models.Table{ID: "tbl_own", Name: "T", OwnerID: &alice.ID}
	if err := db.Create(table).Error; err != nil {
		t.Fatal(err)
	}
	chair := &models.Chair{Name: "Players", TableID: table.ID, Kind: models.ChairKindPlayer}
	if err := db.Create(chair).Error; err != nil {
		t.Fatal(err)
	}

	w := postJSON(t, invitationsRouter(db, bob), "/tables/tbl_own/invitations/", gin.H{
		"user": "bob", "chair": chair.ID,
	})
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
}
