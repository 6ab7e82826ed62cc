package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// Token の種別
const (
	KindHQ     = "h"
	KindUnit   = "u"
	KindMarker = "m"
)

// MaxMultiplicity はトークン1種あたりの最大枚数。
const MaxMultiplicity = 35

// 配置矩形のスケール計算に使う基準サイズ。マーカーは77×77、それ以外は192×167。
const (
	markerRefSize = 77.0
	tokenRefW     = 192.0
	tokenRefH     = 167.0
)

// Rect は配置矩形（x, y, w, h など）を保持するJSONフィールド。
type Rect map[string]interface{}

// JSONMap は自由形式のJSONフィールド。
type JSONMap map[string]interface{}

// Token モデルの定義。表裏の画像リソースと配置矩形を持つゲーム駒。
type Token struct {
	ID             string `gorm:"primaryKey;size:21"`
	Name           string `gorm:"not null;size:100"`
	Multiplicity   int    `gorm:"not null;default:1"`
	ArmyID         string `gorm:"not null;index"`
	Army           Army
	FrontImageID   string   `gorm:"not null"`
	FrontImage     Resource `gorm:"foreignKey:FrontImageID"`
	FrontImageRect Rect     `gorm:"serializer:json"`
	BackImageID    string   `gorm:"not null"`
	BackImage      Resource `gorm:"foreignKey:BackImageID"`
	BackImageRect  Rect     `gorm:"serializer:json"`
	Kind           string   `gorm:"size:1;not null;default:'u'"`
	AdditionalInfo JSONMap  `gorm:"serializer:json"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (t *Token) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = NewID()
	}
	return nil
}

// CheckImages は表裏のリソースがトークンと同じアーミーに属すことを検証する。
func (t *Token) CheckImages(db *gorm.DB) error {
	for _, id := range []string{t.FrontImageID, t.BackImageID} {
		var res Resource
		if err := db.First(&res, "id = ?", id).Error; err != nil {
			return err
		}
		if res.ArmyID != t.ArmyID {
			return errors.New("token's army doesn't match its image's army")
		}
	}
	return nil
}

func (t *Token) HasWritePermission(user *User) bool {
	return t.Army.HasWritePermission(user)
}

// GetRect は矩形に scaleX/scaleY を付加して返す。
// scaleX = 基準幅 / rect.w、scaleY = 基準高さ / rect.h。
// 矩形が未設定ならnilを返す。入力は変更しない。
func GetRect(rect Rect, kind string) Rect {
	if rect == nil {
		return nil
	}
	out := make(Rect, len(rect)+2)
	for k, v := range rect {
		out[k] = v
	}
	w, okW := rectNumber(rect["w"])
	h, okH := rectNumber(rect["h"])
	if okW && okH && w != 0 && h != 0 {
		if kind == KindMarker {
			out["scaleX"] = markerRefSize / w
			out["scaleY"] = markerRefSize / h
		} else {
			out["scaleX"] = tokenRefW / w
			out["scaleY"] = tokenRefH / h
		}
	}
	return out
}

func rectNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	}
	return 0, false
}

func (t *Token) GetFrontRect() Rect {
	return GetRect(t.FrontImageRect, t.Kind)
}

func (t *Token) GetBackRect() Rect {
	return GetRect(t.BackImageRect, t.Kind)
}

// GetData はマニフェストや公開JSONに使うトークンの表現を返す。
// 画像はファイル名のベースネームで参照する。
func (t *Token) GetData() map[string]interface{} {
	res := map[string]interface{}{
		"name":    t.Name,
		"q":       t.Multiplicity,
		"img":     t.FrontImage.Basename(),
		"backImg": t.BackImage.Basename(),
		"id":      t.ID,
	}
	for k, v := range t.AdditionalInfo {
		res[k] = v
	}
	if t.FrontImageRect != nil {
		res["imgRect"] = t.FrontImageRect
	}
	if t.BackImageRect != nil {
		res["backImgRect"] = t.BackImageRect
	}
	return res
}
