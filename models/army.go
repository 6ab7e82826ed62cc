package models

import (
	"os"
	"path"
	"path/filepath"
	"time"

	"gorm.io/gorm"
)

// Army モデルの定義。トークンとリソースを束ねる所有物。
type Army struct {
	ID          string `gorm:"primaryKey;size:21"`
	Name        string `gorm:"not null;size:100"`
	OwnerID     string `gorm:"not null;index"`
	Owner       User
	Custom      bool    `gorm:"not null;default:true"`
	Private     bool    `gorm:"not null;default:true"`
	Readonly    bool    `gorm:"not null;default:false"`
	Utility     bool    `gorm:"not null;default:false"`
	Keyshortcut *string `gorm:"size:100"`
	MyOrder     uint    `gorm:"not null;default:0;index"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (a *Army) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = NewID()
	}
	// 表示順が未設定なら現在の最大値+1を割り当てる
	if a.MyOrder == 0 {
		var max uint
		if err := tx.Model(&Army{}).
			Select("COALESCE(MAX(my_order), 0)").Scan(&max).Error; err != nil {
			return err
		}
		a.MyOrder = max + 1
	}
	return nil
}

func (a *Army) HasWritePermission(user *User) bool {
	return user != nil && (a.OwnerID == user.ID || user.IsStaff)
}

func (a *Army) MediaDir(mediaRoot string) string {
	return ArmyMediaDir(mediaRoot, a.ID)
}

// GetUserArmies は公開アーミーとユーザー自身のアーミーの和集合を返す。
// userがnil（匿名）の場合は公開アーミーのみ。重複は発生しない。
func GetUserArmies(db *gorm.DB, user *User) ([]Army, error) {
	var armies []Army
	q := db.Where("private = ?", false)
	if user != nil {
		q = db.Where("private = ? OR owner_id = ?", false, user.ID)
	}
	if err := q.Order("my_order").Find(&armies).Error; err != nil {
		return nil, err
	}
	return armies, nil
}

// Clone はアーミーの複製を作成する。メディアディレクトリをコピーし、
// 旧リソースID→新リソースの対応表を作ってからトークンを複製することで、
// トークンとリソースの対応関係を正確に保つ。行の複製は単一トランザクション。
func (a *Army) Clone(db *gorm.DB, mediaRoot, newName string) (*Army, error) {
	newArmy := &Army{
		ID:       NewID(),
		Name:     newName,
		OwnerID:  a.OwnerID,
		Custom:   a.Custom,
		Private:  a.Private,
		Readonly: a.Readonly,
	}
	dstDir := newArmy.MediaDir(mediaRoot)
	if err := CopyDir(a.MediaDir(mediaRoot), dstDir); err != nil {
		return nil, err
	}
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(newArmy).Error; err != nil {
			return err
		}
		var resources []Resource
		if err := tx.Where("army_id = ?", a.ID).Find(&resources).Error; err != nil {
			return err
		}
		mapping := make(map[string]string, len(resources))
		newResources := make([]Resource, 0, len(resources))
		for _, res := range resources {
			nr := Resource{
				ID:     NewID(),
				Name:   res.Name,
				ArmyID: newArmy.ID,
				File:   path.Join("armies", newArmy.ID, path.Base(res.File)),
			}
			mapping[res.ID] = nr.ID
			newResources = append(newResources, nr)
		}
		if len(newResources) > 0 {
			if err := tx.Create(&newResources).Error; err != nil {
				return err
			}
		}
		var tokens []Token
		if err := tx.Where("army_id = ?", a.ID).Find(&tokens).Error; err != nil {
			return err
		}
		newTokens := make([]Token, 0, len(tokens))
		for _, token := range tokens {
			newTokens = append(newTokens, Token{
				ID:             NewID(),
				Name:           token.Name,
				Multiplicity:   token.Multiplicity,
				ArmyID:         newArmy.ID,
				FrontImageID:   mapping[token.FrontImageID],
				FrontImageRect: token.FrontImageRect,
				BackImageID:    mapping[token.BackImageID],
				BackImageRect:  token.BackImageRect,
				Kind:           token.Kind,
				AdditionalInfo: token.AdditionalInfo,
			})
		}
		if len(newTokens) > 0 {
			return tx.Create(&newTokens).Error
		}
		return nil
	})
	if err != nil {
		os.RemoveAll(dstDir)
		return nil, err
	}
	return newArmy, nil
}

// GetInfo はアーミーの構造化された説明を返す。公開JSON APIと
// エクスポートの両方で使われる。トークンは種別ごとに分けられる。
func (a *Army) GetInfo(db *gorm.DB) (map[string]interface{}, error) {
	var tokens []Token
	err := db.Preload("FrontImage").Preload("BackImage").
		Where("army_id = ?", a.ID).Find(&tokens).Error
	if err != nil {
		return nil, err
	}
	units := []map[string]interface{}{}
	hqs := []map[string]interface{}{}
	markers := []map[string]interface{}{}
	for i := range tokens {
		switch tokens[i].Kind {
		case KindHQ:
			hqs = append(hqs, tokens[i].GetData())
		case KindMarker:
			markers = append(markers, tokens[i].GetData())
		default:
			units = append(units, tokens[i].GetData())
		}
	}
	return map[string]interface{}{
		"name":    a.Name,
		"tokens":  units,
		"bases":   hqs,
		"markers": markers,
	}, nil
}

// Delete はアーミーと配下のトークン・リソース行を削除し、コミット後に
// メディアディレクトリを消す。トランザクション内から呼んではならない。
func (a *Army) Delete(db *gorm.DB, mediaRoot string) error {
	if err := NotInTransaction(db); err != nil {
		return err
	}
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("army_id = ?", a.ID).Delete(&Token{}).Error; err != nil {
			return err
		}
		if err := tx.Where("army_id = ?", a.ID).Delete(&Resource{}).Error; err != nil {
			return err
		}
		if err := tx.Model(&PublicationRequest{}).
			Where("replace_if_successful_id = ?", a.ID).
			Update("replace_if_successful_id", nil).Error; err != nil {
			return err
		}
		if err := tx.Where("source_army_id = ?", a.ID).
			Delete(&PublicationRequest{}).Error; err != nil {
			return err
		}
		return tx.Delete(a).Error
	})
	if err != nil {
		return err
	}
	// ファイル削除はDBコミット確定後。失敗してもクーロンの掃除が回収する。
	os.RemoveAll(filepath.Clean(a.MediaDir(mediaRoot)))
	return nil
}

// PublicationRequest は非公開アーミーの公開申請。
// 公開時に置き換える既存の公開アーミーを任意で指すことができる。
type PublicationRequest struct {
	ID                    string `gorm:"primaryKey;size:21"`
	SourceArmyID          string `gorm:"not null;index"`
	SourceArmy            Army
	ReplaceIfSuccessfulID *string
	ReplaceIfSuccessful   *Army `gorm:"foreignKey:ReplaceIfSuccessfulID"`
	CreatedAt             time.Time
}

func (pr *PublicationRequest) BeforeCreate(tx *gorm.DB) error {
	if pr.ID == "" {
		pr.ID = NewID()
	}
	return nil
}

// 閲覧は申請元アーミーの所有者かスタッフ、承認はスタッフのみ。
func (pr *PublicationRequest) HasReadPermission(user *User) bool {
	return user != nil && (pr.SourceArmy.OwnerID == user.ID || user.IsStaff)
}

func (pr *PublicationRequest) HasWritePermission(user *User) bool {
	return user != nil && user.IsStaff
}
