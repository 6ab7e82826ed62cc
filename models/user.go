package models

import (
	"time"

	"github.com/dustin/go-humanize"
	"gorm.io/gorm"
)

// User モデルの定義
type User struct {
	ID           string `gorm:"primaryKey;size:21"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Username     string `gorm:"uniqueIndex;not null;size:150"`
	PasswordHash string `gorm:"not null"`
	IsStaff      bool   `gorm:"not null;default:false"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = NewID()
	}
	return nil
}

// CreateUser はユーザーとディスククォータを同一トランザクションで作成する。
// クォータの自動作成はアカウント作成時の明示的なフックであり、
// 暗黙のイベントディスパッチには依存しない。
func CreateUser(db *gorm.DB, username, passwordHash string, quota int64) (*User, error) {
	user := &User{Username: username, PasswordHash: passwordHash}
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(user).Error; err != nil {
			return err
		}
		return tx.Create(&UserDiskQuota{UserID: user.ID, Value: quota}).Error
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// UserDiskQuota モデルの定義。ユーザーごとのバイト数上限を保持する。
type UserDiskQuota struct {
	ID        string `gorm:"primaryKey;size:21"`
	UserID    string `gorm:"uniqueIndex;not null"`
	User      User
	Value     int64 `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (q *UserDiskQuota) BeforeCreate(tx *gorm.DB) error {
	if q.ID == "" {
		q.ID = NewID()
	}
	return nil
}

// Used はユーザーが所有する全リソースのサイズ合計を毎回集計する。
// キャッシュもロックも持たない。裏付けファイルが無いリソースは0として扱う。
func (q *UserDiskQuota) Used(db *gorm.DB, mediaRoot string) (int64, error) {
	var resources []Resource
	err := db.Joins("JOIN armies ON armies.id = resources.army_id").
		Where("armies.owner_id = ?", q.UserID).
		Find(&resources).Error
	if err != nil {
		return 0, err
	}
	var total int64
	for _, res := range resources {
		total += res.Size(mediaRoot)
	}
	return total, nil
}

// FreeSpace は max(上限 - 使用量, 0) を返す。
func (q *UserDiskQuota) FreeSpace(db *gorm.DB, mediaRoot string) (int64, error) {
	used, err := q.Used(db, mediaRoot)
	if err != nil {
		return 0, err
	}
	free := q.Value - used
	if free < 0 {
		free = 0
	}
	return free, nil
}

func (q *UserDiskQuota) QuotaString() string {
	return humanize.Bytes(uint64(q.Value))
}

// SessionToken モデルの定義
type SessionToken struct {
	ID         uint      `gorm:"primaryKey"`
	UserID     string    `gorm:"not null;index"`
	Token      string    `gorm:"not null;uniqueIndex"`
	ExpiresAt  time.Time `gorm:"not null"`
	CreatedAt  time.Time
	DeviceInfo string // デバイス情報
}
