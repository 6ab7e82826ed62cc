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

type createChairRequest struct {
	Name  string `json:"name" binding:"required,max=100"`
	Arity int    `json:"arity" binding:"omitempty,min=1"`
	Kind  string `json:"kind" binding:"omitempty,oneof=p s"`
}

// Chairs はテーブルの席一覧の取得と席の追加を処理する。
func Chairs(c *gin.Context, db *gorm.DB, logger *zap.Logger) {
	table, ok := getTable(c, db)
	if !ok {
		return
	}
	if !table.HasWritePermission(middlewares.CurrentUser(c)) {
		forbidden(c)
		return
	}

	if c.Request.Method == http.MethodPost {
		var request createChairRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			bindError(c, err)
			return
		}
		if request.Arity == 0 {
			request.Arity = 1
		}
		if request.Kind == "" {
			request.Kind = models.ChairKindPlayer
		}
		chair := models.Chair{
			Name:    request.Name,
			TableID: table.ID,
			Arity:   request.Arity,
			Kind:    request.Kind,
		}
		if err := db.Create(&chair).Error; err != nil {
			internalError(c, logger, "Failed to create chair", err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"chair": chairJSON(&chair)})
		return
	}

	chairs := make([]gin.H, 0, len(table.Chairs))
	for i := range table.Chairs {
		chairs = append(chairs, chairJSON(&table.Chairs[i]))
	}
	c.JSON(http.StatusOK, gin.H{"table": gin.H{"id": table.ID, "name": table.Name}, "chairs": chairs})
}

func getChair(c *gin.Context, db *gorm.DB) (*models.Chair, bool) {
	var chair models.Chair
	err := db.Preload("Table").First(&chair, "id = ?", c.Param("id")).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		notFound(c, "Chair")
		return nil, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load chair"})
		return nil, false
	}
	return &chair, true
}

// ChairDelete は席と、席に紐づく指名招待を削除する。
func ChairDelete(c *gin.Context, db *gorm.DB, logger *zap.Logger) {
	chair, ok := getChair(c, db)
	if !ok {
		return
	}
	if !chair.HasWritePermission(middlewares.CurrentUser(c)) {
		forbidden(c)
		return
	}
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("chair_id = ?", chair.ID).
			Delete(&models.NamedInvitation{}).Error; err != nil {
			return err
		}
		return tx.Delete(chair).Error
	})
	if err != nil {
		internalError(c, logger, "Failed to delete chair", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted", "table": chair.TableID})
}

// ManageLinkInvitation は席のリンク招待を有効化・無効化する。
// action は "Enable" または "Disable"。
func ManageLinkInvitation(c *gin.Context, db *gorm.DB, logger *zap.Logger) {
	chair, ok := getChair(c, db)
	if !ok {
		return
	}
	if !chair.HasWritePermission(middlewares.CurrentUser(c)) {
		forbidden(c)
		return
	}
	switch c.PostForm("action") {
	case "Enable":
		chair.EnableLinkInvitation()
	case "Disable":
		chair.DisableLinkInvitation()
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid action"})
		return
	}
	if err := db.Save(chair).Error; err != nil {
		internalError(c, logger, "Failed to update chair", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chair": chairJSON(chair)})
}
