// Package testutil はテスト用のインメモリDBとフィクスチャを提供する。
package testutil

import (
	"os"
	"path"
	"path/filepath"
	"testing"

	"nhexserver/database"
	"nhexserver/models"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB はインメモリSQLiteに全スキーマを適用して返す。
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

// NewUser はクォータ付きのユーザーを作成する。
func NewUser(t *testing.T, db *gorm.DB, username string, quota int64) *models.User {
	t.Helper()
	user, err := models.CreateUser(db, username, "hash", quota)
	if err != nil {
		t.Fatalf("failed to create user %s: %v", username, err)
	}
	return user
}

// NewArmy は指定ユーザー所有のアーミーを作成する。
func NewArmy(t *testing.T, db *gorm.DB, owner *models.User, name string, private bool) *models.Army {
	t.Helper()
	army := &models.Army{Name: name, OwnerID: owner.ID, Custom: true, Private: private}
	if err := db.Create(army).Error; err != nil {
		t.Fatalf("failed to create army %s: %v", name, err)
	}
	return army
}

// AddResource はメディアルート配下にファイルを書き、対応する
// リソース行を作成する。
func AddResource(t *testing.T, db *gorm.DB, mediaRoot string, army *models.Army,
	filename string, content []byte) *models.Resource {
	t.Helper()
	dir := army.MediaDir(mediaRoot)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("failed to create media dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, filename), content, 0o644); err != nil {
		t.Fatalf("failed to write resource file: %v", err)
	}
	res := &models.Resource{
		Name:   filename,
		ArmyID: army.ID,
		File:   path.Join("armies", army.ID, filename),
	}
	if err := db.Create(res).Error; err != nil {
		t.Fatalf("failed to create resource row: %v", err)
	}
	return res
}
