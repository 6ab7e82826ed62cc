package models

import (
	"errors"
	"net/url"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Board モデルの定義。盤面画像と自由形式の情報を持つ。
type Board struct {
	ID              string  `gorm:"primaryKey;size:21"`
	Name            string  `gorm:"not null;size:100"`
	Image           string  `gorm:"not null"` // メディアルートからの相対パス boards/<filename>
	Info            JSONMap `gorm:"serializer:json"`
	DefaultPriority uint    `gorm:"uniqueIndex;not null"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (b *Board) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = NewID()
	}
	return nil
}

func (b *Board) URL() string {
	return "/media/" + b.Image
}

// GetInfo は info ブロブに画像URLを加えて返す。
func (b *Board) GetInfo() map[string]interface{} {
	res := make(map[string]interface{}, len(b.Info)+1)
	for k, v := range b.Info {
		res[k] = v
	}
	res["image"] = b.URL()
	return res
}

// DefaultBoard は defaultPriority が最小のボードを返す。無ければnil。
func DefaultBoard(db *gorm.DB) (*Board, error) {
	var board Board
	err := db.Order("default_priority").First(&board).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &board, nil
}

// Emote モデルの定義
type Emote struct {
	ID           string                  `gorm:"primaryKey;size:21"`
	Name         string                  `gorm:"not null;size:100"`
	Image        string                  `gorm:"not null"` // メディアルートからの相対パス emojis/<filename>
	Keyshortcut  *string                 `gorm:"size:100"`
	Alternatives []EmoteAlternativeImage `gorm:"foreignKey:EmoteID"`
	CreatedAt    time.Time
}

func (e *Emote) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = NewID()
	}
	return nil
}

// GetInfo はメイン画像と代替画像をまとめて返す。
func (e *Emote) GetInfo() map[string]interface{} {
	images := []string{e.Image}
	for _, alt := range e.Alternatives {
		images = append(images, alt.Image)
	}
	return map[string]interface{}{
		"id":          e.ID,
		"name":        e.Name,
		"image":       images,
		"keyshortcut": e.Keyshortcut,
	}
}

type EmoteAlternativeImage struct {
	ID      string `gorm:"primaryKey;size:21"`
	EmoteID string `gorm:"not null;index"`
	Image   string `gorm:"not null"`
}

func (img *EmoteAlternativeImage) BeforeCreate(tx *gorm.DB) error {
	if img.ID == "" {
		img.ID = NewID()
	}
	return nil
}

// Link モデルの定義。表示順は初回保存時に最大値+1が自動で振られる。
type Link struct {
	ID      string `gorm:"primaryKey;size:21"`
	Name    string `gorm:"not null;size:100"`
	URL     string `gorm:"not null"`
	MyOrder uint   `gorm:"not null;default:0;index"`
}

func (l *Link) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = NewID()
	}
	if l.MyOrder == 0 {
		var max uint
		if err := tx.Model(&Link{}).
			Select("COALESCE(MAX(my_order), 0)").Scan(&max).Error; err != nil {
			return err
		}
		l.MyOrder = max + 1
	}
	return nil
}

// FooterLink は絶対URLに加えて相対パスも許可する。
type FooterLink struct {
	ID      string `gorm:"primaryKey;size:21"`
	Name    string `gorm:"not null;size:100"`
	URL     string `gorm:"not null;size:200"`
	MyOrder uint   `gorm:"not null;default:0;index"`
}

func (l *FooterLink) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = NewID()
	}
	if l.MyOrder == 0 {
		var max uint
		if err := tx.Model(&FooterLink{}).
			Select("COALESCE(MAX(my_order), 0)").Scan(&max).Error; err != nil {
			return err
		}
		l.MyOrder = max + 1
	}
	return nil
}

// Validate は絶対URLか、サイト内相対パス("/"始まり)であることを検証する。
func (l *FooterLink) Validate() error {
	raw := l.URL
	if strings.HasPrefix(raw, "/") {
		raw = "http://example.com" + raw
	}
	u, err := url.ParseRequestURI(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("invalid URL or relative path")
	}
	return nil
}
