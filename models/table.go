package models

import (
	"time"

	"gorm.io/gorm"
)

// Table モデルの定義。IDはテーブルセッションサーバーが発行したものを使う。
type Table struct {
	ID        string  `gorm:"primaryKey;size:21"`
	Name      string  `gorm:"not null;size:100"`
	OwnerID   *string `gorm:"index"` // nilの場合は未クレームのテーブル
	Owner     *User
	BoardID   *string
	Board     *Board
	CreatedAt time.Time
	UpdatedAt time.Time
	Chairs    []Chair `gorm:"foreignKey:TableID"`
}

func (t *Table) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = NewID()
	}
	return nil
}

// HasWritePermission は未クレームのテーブルなら誰でも、
// クレーム済みなら所有者のみ書き込みを許可する。
func (t *Table) HasWritePermission(user *User) bool {
	if t.OwnerID == nil {
		return true
	}
	return user != nil && *t.OwnerID == user.ID
}

// Claim は未クレームのテーブルを認証済みユーザーの所有にする。
// 別ユーザーが所有するテーブルはクレームできない。
func (t *Table) Claim(db *gorm.DB, user *User) error {
	if !t.HasWritePermission(user) {
		return ErrPermissionDenied
	}
	t.OwnerID = &user.ID
	return db.Save(t).Error
}

// RegisterVisit は認証済みユーザーの訪問を記録する。
func (t *Table) RegisterVisit(db *gorm.DB, user *User) error {
	if user == nil {
		return nil
	}
	return db.Create(&TableVisit{UserID: user.ID, TableID: t.ID}).Error
}

// Delete はテーブルと椅子・招待をまとめて削除する。
func (t *Table) Delete(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		var chairIDs []string
		if err := tx.Model(&Chair{}).Where("table_id = ?", t.ID).
			Pluck("id", &chairIDs).Error; err != nil {
			return err
		}
		if len(chairIDs) > 0 {
			if err := tx.Where("chair_id IN ?", chairIDs).
				Delete(&NamedInvitation{}).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("table_id = ?", t.ID).Delete(&Chair{}).Error; err != nil {
			return err
		}
		if err := tx.Where("table_id = ?", t.ID).Delete(&TableVisit{}).Error; err != nil {
			return err
		}
		return tx.Delete(t).Error
	})
}

// TableVisit はユーザーのテーブル訪問履歴。
type TableVisit struct {
	ID        uint      `gorm:"primaryKey"`
	UserID    string    `gorm:"not null;index"`
	TableID   string    `gorm:"not null;index"`
	VisitedAt time.Time `gorm:"autoUpdateTime"`
}

// Chair の種別
const (
	ChairKindPlayer    = "p"
	ChairKindSpectator = "s"
)

// Chair モデルの定義。テーブル上の席（役割＋定員）を表す。
type Chair struct {
	ID             string `gorm:"primaryKey;size:21"`
	Name           string `gorm:"not null;size:100"`
	TableID        string `gorm:"not null;index"`
	Table          Table
	Arity          int     `gorm:"not null;default:1"`
	Kind           string  `gorm:"size:1;not null;default:'p'"`
	LinkInvitation *string `gorm:"index"` // リンク招待が有効な間だけトークンを保持
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (ch *Chair) BeforeCreate(tx *gorm.DB) error {
	if ch.ID == "" {
		ch.ID = NewID()
	}
	return nil
}

// Role は席種別をロール名に変換する。
func (ch *Chair) Role() string {
	if ch.Kind == ChairKindSpectator {
		return "spectator"
	}
	return "player"
}

// EnableLinkInvitation は新しいランダムトークンを割り当てる。
// トークン自体が公開の参加資格（ベアラ credential）として機能する。
func (ch *Chair) EnableLinkInvitation() {
	token := NewInvitationToken()
	ch.LinkInvitation = &token
}

func (ch *Chair) DisableLinkInvitation() {
	ch.LinkInvitation = nil
}

func (ch *Chair) HasWritePermission(user *User) bool {
	return ch.Table.HasWritePermission(user)
}

// NamedInvitation は特定ユーザーと席の結びつき。(user, chair)は一意。
type NamedInvitation struct {
	ID        string `gorm:"primaryKey;size:21"`
	UserID    string `gorm:"not null;uniqueIndex:idx_invitation_user_chair"`
	User      User
	ChairID   string `gorm:"not null;uniqueIndex:idx_invitation_user_chair"`
	Chair     Chair
	CreatedAt time.Time
}

func (inv *NamedInvitation) BeforeCreate(tx *gorm.DB) error {
	if inv.ID == "" {
		inv.ID = NewID()
	}
	return nil
}

func (inv *NamedInvitation) HasReadPermission(user *User) bool {
	if user != nil && inv.UserID == user.ID {
		return true
	}
	return inv.HasWritePermission(user)
}

func (inv *NamedInvitation) HasWritePermission(user *User) bool {
	return inv.Chair.Table.HasWritePermission(user)
}
