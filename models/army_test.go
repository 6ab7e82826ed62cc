package models_test

import (
	"errors"
	"os"
	"testing"

	"nhexserver/models"
	"nhexserver/testutil"

	"gorm.io/gorm"
)

func TestGetUserArmies(t *testing.T) {
	db := testutil.NewDB(t)
	alice := testutil.NewUser(t, db, "alice", 1<<20)
	bob := testutil.NewUser(t, db, "bob", 1<<20)

	public := testutil.NewArmy(t, db, bob, "Public", false)
	alicePrivate := testutil.NewArmy(t, db, alice, "Mine", true)
	testutil.NewArmy(t, db, bob, "Bob's", true)
	alicePublic := testutil.NewArmy(t, db, alice, "Shared", false)

	armies, err := models.GetUserArmies(db, alice)
	if err != nil {
		t.Fatal(err)
	}
	got := map[string]int{}
	for _, a := range armies {
		got[a.ID]++
	}
	for _, want := range []*models.Army{public, alicePrivate, alicePublic} {
		if got[want.ID] != 1 {
			t.Errorf("army %s appears %d times, want 1", want.Name, got[want.ID])
		}
	}
	if len(armies) != 3 {
		t.Errorf("got %d armies, want 3", len(armies))
	}

	// 匿名ユーザーには公開アーミーだけが見える
	anonymous, err := models.GetUserArmies(db, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(anonymous) != 2 {
		t.Errorf("anonymous sees %d armies, want 2", len(anonymous))
	}
	for _, a := range anonymous {
		if a.Private {
			t.Errorf("anonymous sees private army %s", a.Name)
		}
	}
}

func TestArmyMyOrderAutoAssign(t *testing.T) {
	db := testutil.NewDB(t)
	alice := testutil.NewUser(t, db, "alice", 1<<20)

	first := testutil.NewArmy(t, db, alice, "First", true)
	second := testutil.NewArmy(t, db, alice, "Second", true)
	if second.MyOrder != first.MyOrder+1 {
		t.Errorf("second.MyOrder = %d, want %d", second.MyOrder, first.MyOrder+1)
	}
}

func TestArmyClone(t *testing.T) {
	db := testutil.NewDB(t)
	mediaRoot := t.TempDir()
	alice := testutil.NewUser(t, db, "alice", 1<<20)
	army := testutil.NewArmy(t, db, alice, "Original", true)

	front := testutil.AddResource(t, db, mediaRoot, army, "front.png", []byte("front"))
	back := testutil.AddResource(t, db, mediaRoot, army, "back.png", []byte("back"))
	token := models.Token{
		Name:         "Soldier",
		Multiplicity: 3,
		ArmyID:       army.ID,
		FrontImageID: front.ID,
		BackImageID:  back.ID,
		Kind:         models.KindUnit,
	}
	if err := db.Create(&token).Error; err != nil {
		t.Fatal(err)
	}

	clone, err := army.Clone(db, mediaRoot, "Original (clone)")
	if err != nil {
		t.Fatal(err)
	}
	if clone.ID == army.ID {
		t.Fatal("clone got the same id as the original")
	}
	if clone.Name != "Original (clone)" {
		t.Errorf("clone name = %q", clone.Name)
	}

	// トークンは複製側のリソースを指す
	var clonedTokens []models.Token
	if err := db.Preload("FrontImage").Preload("BackImage").
		Where("army_id = ?", clone.ID).Find(&clonedTokens).Error; err != nil {
		t.Fatal(err)
	}
	if len(clonedTokens) != 1 {
		t.Fatalf("got %d cloned tokens, want 1", len(clonedTokens))
	}
	ct := clonedTokens[0]
	if ct.ID == token.ID {
		t.Error("cloned token reuses original token id")
	}
	if ct.FrontImage.ArmyID != clone.ID || ct.BackImage.ArmyID != clone.ID {
		t.Error("cloned token references resources outside the clone")
	}
	if ct.FrontImage.Basename() != "front.png" || ct.BackImage.Basename() != "back.png" {
		t.Errorf("cloned token images = %s/%s", ct.FrontImage.Basename(), ct.BackImage.Basename())
	}

	// ファイルもコピーされている
	if !ct.FrontImage.IsValid(mediaRoot) {
		t.Error("cloned front image file missing")
	}

	// 複製の削除は元に影響しない
	if err := clone.Delete(db, mediaRoot); err != nil {
		t.Fatal(err)
	}
	if !front.IsValid(mediaRoot) {
		t.Error("deleting the clone removed the original's file")
	}
	var count int64
	if err := db.Model(&models.Token{}).Where("army_id = ?", army.ID).Count(&count).Error; err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("original has %d tokens after clone deletion, want 1", count)
	}
}

func TestArmyDeleteCascades(t *testing.T) {
	db := testutil.NewDB(t)
	mediaRoot := t.TempDir()
	alice := testutil.NewUser(t, db, "alice", 1<<20)
	army := testutil.NewArmy(t, db, alice, "Doomed", true)
	res := testutil.AddResource(t, db, mediaRoot, army, "img.png", []byte("img"))
	token := models.Token{
		Name: "T", Multiplicity: 1, ArmyID: army.ID,
		FrontImageID: res.ID, BackImageID: res.ID, Kind: models.KindUnit,
	}
	if err := db.Create(&token).Error; err != nil {
		t.Fatal(err)
	}

	if err := army.Delete(db, mediaRoot); err != nil {
		t.Fatal(err)
	}

	for _, model := range []interface{}{&models.Token{}, &models.Resource{}} {
		var count int64
		if err := db.Model(model).Where("army_id = ?", army.ID).Count(&count).Error; err != nil {
			t.Fatal(err)
		}
		if count != 0 {
			t.Errorf("%T rows remain after army deletion", model)
		}
	}
	if _, err := os.Stat(army.MediaDir(mediaRoot)); !os.IsNotExist(err) {
		t.Error("media directory remains after army deletion")
	}
}

func TestArmyDeleteRefusesInsideTransaction(t *testing.T) {
	db := testutil.NewDB(t)
	mediaRoot := t.TempDir()
	alice := testutil.NewUser(t, db, "alice", 1<<20)
	army := testutil.NewArmy(t, db, alice, "Guarded", true)

	err := db.Transaction(func(tx *gorm.DB) error {
		return army.Delete(tx, mediaRoot)
	})
	if !errors.Is(err, models.ErrInsideTransaction) {
		t.Fatalf("got %v, want ErrInsideTransaction", err)
	}

	// 削除は拒否され、アーミーは無傷
	var count int64
	if err := db.Model(&models.Army{}).Where("id = ?", army.ID).Count(&count).Error; err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Error("army was deleted despite the guard")
	}
}
