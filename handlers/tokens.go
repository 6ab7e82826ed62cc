package handlers

import (
	"errors"
	"net/http"

	"nhexserver/middlewares"
	"nhexserver/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type tokenRequest struct {
	Kind           string      `json:"kind" binding:"required,oneof=h u m"`
	Name           string      `json:"name" binding:"required,max=100"`
	Multiplicity   int         `json:"multiplicity" binding:"required,min=1,max=35"`
	FrontImage     string      `json:"front_image" binding:"required"`
	BackImage      string      `json:"back_image" binding:"required"`
	FrontImageRect models.Rect `json:"front_image_rect"`
	BackImageRect  models.Rect `json:"back_image_rect"`
}

func tokenJSON(t *models.Token) gin.H {
	return gin.H{
		"id":           t.ID,
		"name":         t.Name,
		"kind":         t.Kind,
		"multiplicity": t.Multiplicity,
		"front_image":  gin.H{"id": t.FrontImageID, "url": t.FrontImage.URL()},
		"back_image":   gin.H{"id": t.BackImageID, "url": t.BackImage.URL()},
		"front_rect":   t.GetFrontRect(),
		"back_rect":    t.GetBackRect(),
	}
}

// applyTokenRequest はリクエスト内容をトークンに反映し、
// 表裏のリソースがトークンのアーミーに属すことを検証する。
func applyTokenRequest(db *gorm.DB, token *models.Token, request *tokenRequest) *formErrors {
	token.Kind = request.Kind
	token.Name = request.Name
	token.Multiplicity = request.Multiplicity
	token.FrontImageID = request.FrontImage
	token.BackImageID = request.BackImage
	token.FrontImageRect = request.FrontImageRect
	token.BackImageRect = request.BackImageRect

	fe := newFormErrors()
	if err := token.CheckImages(db); err != nil {
		fe.addNonField("Select images belonging to this army.")
	}
	return fe
}

// Tokens はアーミーのトークン一覧の取得と追加を処理する。所有者限定。
func Tokens(c *gin.Context, db *gorm.DB, logger *zap.Logger) {
	army, ok := getArmy(c, db)
	if !ok {
		return
	}
	user := middlewares.CurrentUser(c)
	if user == nil || army.OwnerID != user.ID {
		forbidden(c)
		return
	}

	if c.Request.Method == http.MethodPost {
		var request tokenRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			bindError(c, err)
			return
		}
		token := models.Token{ArmyID: army.ID}
		if fe := applyTokenRequest(db, &token, &request); !fe.empty() {
			fe.render(c)
			return
		}
		if err := db.Create(&token).Error; err != nil {
			internalError(c, logger, "Failed to create token", err)
			return
		}
		if err := db.Preload("FrontImage").Preload("BackImage").
			First(&token, "id = ?", token.ID).Error; err != nil {
			internalError(c, logger, "Failed to load token", err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"token": tokenJSON(&token)})
		return
	}

	var tokens []models.Token
	err := db.Preload("FrontImage").Preload("BackImage").
		Where("army_id = ?", army.ID).Order("kind").Find(&tokens).Error
	if err != nil {
		internalError(c, logger, "Failed to load tokens", err)
		return
	}
	list := make([]gin.H, 0, len(tokens))
	for i := range tokens {
		list = append(list, tokenJSON(&tokens[i]))
	}
	c.JSON(http.StatusOK, gin.H{"army": armyJSON(army), "tokens": list})
}

func getToken(c *gin.Context, db *gorm.DB) (*models.Token, bool) {
	var token models.Token
	err := db.Preload("Army").Preload("FrontImage").Preload("BackImage").
		First(&token, "id = ?", c.Param("id")).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		notFound(c, "Token")
		return nil, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load token"})
		return nil, false
	}
	return &token, true
}

// TokenDetails はトークン詳細の取得と更新を処理する。
func TokenDetails(c *gin.Context, db *gorm.DB, logger *zap.Logger) {
	token, ok := getToken(c, db)
	if !ok {
		return
	}
	if !token.HasWritePermission(middlewares.CurrentUser(c)) {
		forbidden(c)
		return
	}

	if c.Request.Method == http.MethodPost {
		var request tokenRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			bindError(c, err)
			return
		}
		if fe := applyTokenRequest(db, token, &request); !fe.empty() {
			fe.render(c)
			return
		}
		if err := db.Save(token).Error; err != nil {
			internalError(c, logger, "Failed to update token", err)
			return
		}
		if err := db.Preload("FrontImage").Preload("BackImage").
			First(token, "id = ?", token.ID).Error; err != nil {
			internalError(c, logger, "Failed to load token", err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"token": tokenJSON(token)})
}

// TokenDelete はトークンを削除する。
func TokenDelete(c *gin.Context, db *gorm.DB, logger *zap.Logger) {
	token, ok := getToken(c, db)
	if !ok {
		return
	}
	if !token.HasWritePermission(middlewares.CurrentUser(c)) {
		forbidden(c)
		return
	}
	if err := db.Delete(token).Error; err != nil {
		internalError(c, logger, "Failed to delete token", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted", "army": token.ArmyID})
}
