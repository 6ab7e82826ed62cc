package models

import (
	"os"
	"path"
	"time"

	"gorm.io/gorm"
)

// Resource はアーミーが所有するアップロード済み画像ファイル。
// File はメディアルートからの相対パス（armies/<armyID>/<filename>）。
type Resource struct {
	ID        string `gorm:"primaryKey;size:21"`
	Name      string `gorm:"not null;size:100"`
	ArmyID    string `gorm:"not null;index"`
	Army      Army
	File      string `gorm:"not null"`
	CreatedAt time.Time
}

func (r *Resource) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = NewID()
	}
	return nil
}

func (r *Resource) Path(mediaRoot string) string {
	return MediaPath(mediaRoot, r.File)
}

func (r *Resource) URL() string {
	return "/media/" + r.File
}

func (r *Resource) Basename() string {
	return path.Base(r.File)
}

// IsValid は裏付けファイルがディスク上に存在するかを返す。
func (r *Resource) IsValid(mediaRoot string) bool {
	if r.File == "" {
		return false
	}
	_, err := os.Stat(r.Path(mediaRoot))
	return err == nil
}

// Size はファイルサイズを返す。壊れたリソースはエラーではなく0。
func (r *Resource) Size(mediaRoot string) int64 {
	fi, err := os.Stat(r.Path(mediaRoot))
	if err != nil {
		return 0
	}
	return fi.Size()
}

// Delete はリソース行を削除し、コミット後に自分の裏付けファイルだけを消す。
// トランザクション内から呼んではならない。
func (r *Resource) Delete(db *gorm.DB, mediaRoot string) error {
	if err := NotInTransaction(db); err != nil {
		return err
	}
	if err := db.Delete(r).Error; err != nil {
		return err
	}
	os.Remove(r.Path(mediaRoot))
	return nil
}
