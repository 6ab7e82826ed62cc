package models_test

import (
	"testing"

	"nhexserver/models"
	"nhexserver/testutil"

	"gorm.io/gorm"
)

func loadQuota(t *testing.T, db *gorm.DB, userID string) *models.UserDiskQuota {
	t.Helper()
	var quota models.UserDiskQuota
	if err := db.Where("user_id = ?", userID).First(&quota).Error; err != nil {
		t.Fatalf("quota row missing: %v", err)
	}
	return &quota
}

func TestCreateUserCreatesQuota(t *testing.T) {
	db := testutil.NewDB(t)
	user := testutil.NewUser(t, db, "alice", 12345)
	quota := loadQuota(t, db, user.ID)
	if quota.Value != 12345 {
		t.Errorf("quota value = %d, want 12345", quota.Value)
	}
}

func TestQuotaUsedAndFreeSpace(t *testing.T) {
	db := testutil.NewDB(t)
	mediaRoot := t.TempDir()
	alice := testutil.NewUser(t, db, "alice", 1000)
	army := testutil.NewArmy(t, db, alice, "A", true)
	testutil.AddResource(t, db, mediaRoot, army, "a.png", make([]byte, 300))

	quota := loadQuota(t, db, alice.ID)
	used, err := quota.Used(db, mediaRoot)
	if err != nil {
		t.Fatal(err)
	}
	if used != 300 {
		t.Errorf("used = %d, want 300", used)
	}
	free, err := quota.FreeSpace(db, mediaRoot)
	if err != nil {
		t.Fatal(err)
	}
	if free != 700 {
		t.Errorf("free = %d, want 700", free)
	}
}

func TestQuotaIgnoresBrokenResources(t *testing.T) {
	db := testutil.NewDB(t)
	mediaRoot := t.TempDir()
	alice := testutil.NewUser(t, db, "alice", 1000)
	army := testutil.NewArmy(t, db, alice, "A", true)

	// 裏付けファイルの無いリソース行は使用量0として扱う
	broken := models.Resource{Name: "ghost", ArmyID: army.ID, File: "armies/" + army.ID + "/ghost.png"}
	if err := db.Create(&broken).Error; err != nil {
		t.Fatal(err)
	}
	testutil.AddResource(t, db, mediaRoot, army, "real.png", make([]byte, 100))

	quota := loadQuota(t, db, alice.ID)
	used, err := quota.Used(db, mediaRoot)
	if err != nil {
		t.Fatal(err)
	}
	if used != 100 {
		t.Errorf("used = %d, want 100", used)
	}
}

func TestQuotaFreeSpaceFloorsAtZero(t *testing.T) {
	db := testutil.NewDB(t)
	mediaRoot := t.TempDir()
	alice := testutil.NewUser(t, db, "alice", 100)
	army := testutil.NewArmy(t, db, alice, "A", true)
	testutil.AddResource(t, db, mediaRoot, army, "big.png", make([]byte, 300))

	quota := loadQuota(t, db, alice.ID)
	free, err := quota.FreeSpace(db, mediaRoot)
	if err != nil {
		t.Fatal(err)
	}
	if free != 0 {
		t.Errorf("free = %d, want 0", free)
	}
}

func TestQuotaOnlyCountsOwnArmies(t *testing.T) {
	db := testutil.NewDB(t)
	mediaRoot := t.TempDir()
	alice := testutil.NewUser(t, db, "alice", 1000)
	bob := testutil.NewUser(t, db, "bob", 1000)
	bobArmy := testutil.NewArmy(t, db, bob, "B", true)
	testutil.AddResource(t, db, mediaRoot, bobArmy, "b.png", make([]byte, 500))

	quota := loadQuota(t, db, alice.ID)
	used, err := quota.Used(db, mediaRoot)
	if err != nil {
		t.Fatal(err)
	}
	if used != 0 {
		t.Errorf("used = %d, want 0", used)
	}
}
