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

func pubReqJSON(pr *models.PublicationRequest) gin.H {
	return gin.H{
		"id":                    pr.ID,
		"source_army":           gin.H{"id": pr.SourceArmyID, "name": pr.SourceArmy.Name},
		"replace_if_successful": pr.ReplaceIfSuccessfulID,
	}
}

type createPubReqRequest struct {
	RulesAcknowledgement string `json:"rules_acknowledgement" binding:"required,eq=yes"`
	ReplaceIfSuccessful  string `json:"replace_if_successful"`
}

// CreatePubReq は非公開アーミーの公開申請を作成する。
// 置き換え対象には公開アーミーのみ指定できる。
func CreatePubReq(c *gin.Context, db *gorm.DB, logger *zap.Logger) {
	army, ok := getArmy(c, db)
	if !ok {
		return
	}
	if !army.HasWritePermission(middlewares.CurrentUser(c)) {
		forbidden(c)
		return
	}

	if c.Request.Method == http.MethodGet {
		var publicArmies []models.Army
		if err := db.Where("private = ?", false).Find(&publicArmies).Error; err != nil {
			internalError(c, logger, "Failed to load armies", err)
			return
		}
		choices := make([]gin.H, 0, len(publicArmies))
		for i := range publicArmies {
			choices = append(choices, gin.H{"id": publicArmies[i].ID, "name": publicArmies[i].Name})
		}
		c.JSON(http.StatusOK, gin.H{"army": armyJSON(army), "replace_choices": choices})
		return
	}

	var request createPubReqRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		bindError(c, err)
		return
	}
	pubReq := models.PublicationRequest{SourceArmyID: army.ID}
	if request.ReplaceIfSuccessful != "" {
		var target models.Army
		err := db.Where("id = ? AND private = ?", request.ReplaceIfSuccessful, false).
			First(&target).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			fe := newFormErrors()
			fe.addField("replace_if_successful", "Select a valid choice.")
			fe.render(c)
			return
		}
		if err != nil {
			internalError(c, logger, "Failed to load army", err)
			return
		}
		pubReq.ReplaceIfSuccessfulID = &target.ID
	}
	if err := db.Create(&pubReq).Error; err != nil {
		internalError(c, logger, "Failed to create publication request", err)
		return
	}
	pubReq.SourceArmy = *army
	c.JSON(http.StatusCreated, gin.H{"pub_req": pubReqJSON(&pubReq)})
}

// PubReqs は全公開申請の一覧。スタッフ限定。
func PubReqs(c *gin.Context, db *gorm.DB, logger *zap.Logger) {
	user := middlewares.CurrentUser(c)
	if user == nil || !user.IsStaff {
		forbidden(c)
		return
	}
	var pubReqs []models.PublicationRequest
	if err := db.Preload("SourceArmy").Find(&pubReqs).Error; err != nil {
		internalError(c, logger, "Failed to load publication requests", err)
		return
	}
	list := make([]gin.H, 0, len(pubReqs))
	for i := range pubReqs {
		list = append(list, pubReqJSON(&pubReqs[i]))
	}
	c.JSON(http.StatusOK, gin.H{"pub_reqs": list})
}

func getPubReq(c *gin.Context, db *gorm.DB) (*models.PublicationRequest, bool) {
	var pubReq models.PublicationRequest
	err := db.Preload("SourceArmy").First(&pubReq, "id = ?", c.Param("id")).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		notFound(c, "Publication request")
		return nil, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load publication request"})
		return nil, false
	}
	return &pubReq, true
}

// PubReqDetails は申請の詳細。申請元アーミーの所有者かスタッフが閲覧できる。
func PubReqDetails(c *gin.Context, db *gorm.DB, logger *zap.Logger) {
	pubReq, ok := getPubReq(c, db)
	if !ok {
		return
	}
	if !pubReq.HasReadPermission(middlewares.CurrentUser(c)) {
		forbidden(c)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pub_req": pubReqJSON(pubReq)})
}

// PubReqAccept は公開申請の承認。業務上の効果は未定義のため、
// 明示的な未実装の拡張ポイントとして残してある。
func PubReqAccept(c *gin.Context, db *gorm.DB, logger *zap.Logger) {
	pubReq, ok := getPubReq(c, db)
	if !ok {
		return
	}
	if !pubReq.HasWritePermission(middlewares.CurrentUser(c)) {
		forbidden(c)
		return
	}
	c.JSON(http.StatusNotImplemented, gin.H{"error": "Accepting publication requests is not implemented"})
}
