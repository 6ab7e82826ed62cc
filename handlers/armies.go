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

func armyJSON(a *models.Army) gin.H {
	return gin.H{
		"id":          a.ID,
		"name":        a.Name,
		"owner":       a.OwnerID,
		"custom":      a.Custom,
		"private":     a.Private,
		"readonly":    a.Readonly,
		"utility":     a.Utility,
		"keyshortcut": a.Keyshortcut,
		"my_order":    a.MyOrder,
	}
}

type armyNameRequest struct {
	Name string `json:"name" binding:"required,max=100"`
}

// Armies は自分のアーミー一覧の取得と新規アーミーの作成を処理する。
func Armies(c *gin.Context, db *gorm.DB, logger *zap.Logger) {
	user := middlewares.CurrentUser(c)

	if c.Request.Method == http.MethodPost {
		var request armyNameRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			bindError(c, err)
			return
		}
		army := models.Army{
			Name:    request.Name,
			OwnerID: user.ID,
			Custom:  true,
			Private: true,
		}
		if err := db.Create(&army).Error; err != nil {
			internalError(c, logger, "Failed to create army", err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"army": armyJSON(&army)})
		return
	}

	var armies []models.Army
	if err := paginated(db, c).Where("owner_id = ?", user.ID).
		Order("my_order").Find(&armies).Error; err != nil {
		internalError(c, logger, "Failed to load armies", err)
		return
	}
	list := make([]gin.H, 0, len(armies))
	for i := range armies {
		list = append(list, armyJSON(&armies[i]))
	}
	c.JSON(http.StatusOK, gin.H{"armies": list})
}

func getArmy(c *gin.Context, db *gorm.DB) (*models.Army, bool) {
	var army models.Army
	err := db.First(&army, "id = ?", c.Param("id")).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		notFound(c, "Army")
		return nil, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load army"})
		return nil, false
	}
	return &army, true
}

// ArmyDetails はアーミー詳細の取得と名前の変更を処理する。
func ArmyDetails(c *gin.Context, db *gorm.DB, logger *zap.Logger) {
	army, ok := getArmy(c, db)
	if !ok {
		return
	}
	if !army.HasWritePermission(middlewares.CurrentUser(c)) {
		forbidden(c)
		return
	}

	if c.Request.Method == http.MethodPost {
		var request armyNameRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			bindError(c, err)
			return
		}
		army.Name = request.Name
		if err := db.Save(army).Error; err != nil {
			internalError(c, logger, "Failed to update army", err)
			return
		}
	}

	var tokenCount int64
	if err := db.Model(&models.Token{}).Where("army_id = ?", army.ID).
		Count(&tokenCount).Error; err != nil {
		internalError(c, logger, "Failed to load tokens", err)
		return
	}
	var pubReqs []models.PublicationRequest
	if err := db.Where("source_army_id = ?", army.ID).Find(&pubReqs).Error; err != nil {
		internalError(c, logger, "Failed to load publication requests", err)
		return
	}
	pubReqList := make([]gin.H, 0, len(pubReqs))
	for i := range pubReqs {
		pubReqList = append(pubReqList, gin.H{
			"id":                    pubReqs[i].ID,
			"replace_if_successful": pubReqs[i].ReplaceIfSuccessfulID,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"army":        armyJSON(army),
		"token_count": tokenCount,
		"pub_reqs":    pubReqList,
	})
}

// ArmyDelete はアーミーを配下のリソース・トークンごと削除し、
// コミット後にメディアディレクトリを消す。
func ArmyDelete(c *gin.Context, db *gorm.DB, logger *zap.Logger, cfg *models.Config) {
	army, ok := getArmy(c, db)
	if !ok {
		return
	}
	if !army.HasWritePermission(middlewares.CurrentUser(c)) {
		forbidden(c)
		return
	}
	if err := army.Delete(db, cfg.MediaRoot); err != nil {
		internalError(c, logger, "Failed to delete army", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// ArmyClone はアーミーの複製を作成する。GETは確認用データを返す。
func ArmyClone(c *gin.Context, db *gorm.DB, logger *zap.Logger, cfg *models.Config) {
	army, ok := getArmy(c, db)
	if !ok {
		return
	}
	if !army.HasWritePermission(middlewares.CurrentUser(c)) {
		forbidden(c)
		return
	}
	if c.Request.Method == http.MethodGet {
		c.JSON(http.StatusOK, gin.H{"army": armyJSON(army)})
		return
	}
	newArmy, err := army.Clone(db, cfg.MediaRoot, army.Name+" (clone)")
	if err != nil {
		internalError(c, logger, "Failed to clone army", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"army": armyJSON(newArmy)})
}

// ArmyInfo はアーミーのマニフェストJSONを返す。プレイクライアントと
// エクスポートが同じ表現を共有する。
func ArmyInfo(c *gin.Context, db *gorm.DB, logger *zap.Logger) {
	var army models.Army
	err := db.First(&army, "id = ?", c.Param("id")).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Army not found"})
		return
	}
	if err != nil {
		internalError(c, logger, "Failed to load army", err)
		return
	}
	info, err := army.GetInfo(db)
	if err != nil {
		internalError(c, logger, "Failed to build army info", err)
		return
	}
	c.JSON(http.StatusOK, info)
}
