package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"nhexserver/middlewares"
	"nhexserver/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type createInvitationRequest struct {
	User  string `json:"user" binding:"required"`
	Chair string `json:"chair" binding:"required"`
}

// Invitations はテーブルの招待一覧の取得と指名招待の作成を処理する。
func Invitations(c *gin.Context, db *gorm.DB, logger *zap.Logger) {
	table, ok := getTable(c, db)
	if !ok {
		return
	}
	if !table.HasWritePermission(middlewares.CurrentUser(c)) {
		forbidden(c)
		return
	}

	if c.Request.Method == http.MethodPost {
		createInvitation(c, db, logger, table)
		return
	}

	chairs := make([]gin.H, 0, len(table.Chairs))
	for i := range table.Chairs {
		ch := &table.Chairs[i]
		var invitations []models.NamedInvitation
		if err := db.Preload("User").Where("chair_id = ?", ch.ID).
			Find(&invitations).Error; err != nil {
			internalError(c, logger, "Failed to load invitations", err)
			return
		}
		invitationList := make([]gin.H, 0, len(invitations))
		for j := range invitations {
			invitationList = append(invitationList, gin.H{
				"id":   invitations[j].ID,
				"user": invitations[j].User.Username,
			})
		}
		entry := chairJSON(ch)
		entry["invitations"] = invitationList
		chairs = append(chairs, entry)
	}
	c.JSON(http.StatusOK, gin.H{
		"table":  gin.H{"id": table.ID, "name": table.Name},
		"chairs": chairs,
	})
}

// createInvitation は指名招待を作成する。(user, chair)の組は一意で、
// 重複時は招待数を変えずにフォームエラーを返す。
func createInvitation(c *gin.Context, db *gorm.DB, logger *zap.Logger, table *models.Table) {
	var request createInvitationRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		bindError(c, err)
		return
	}

	fe := newFormErrors()

	var chair models.Chair
	err := db.Where("id = ? AND table_id = ?", request.Chair, table.ID).First(&chair).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		fe.addField("chair", "Select a valid choice.")
	} else if err != nil {
		internalError(c, logger, "Failed to load chair", err)
		return
	}

	var user models.User
	err = db.Where("username = ?", request.User).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		fe.addField("user", "User does not exist.")
	} else if err != nil {
		internalError(c, logger, "Failed to load user", err)
		return
	}

	if fe.empty() {
		var count int64
		if err := db.Model(&models.NamedInvitation{}).
			Where("user_id = ? AND chair_id = ?", user.ID, chair.ID).
			Count(&count).Error; err != nil {
			internalError(c, logger, "Failed to check invitations", err)
			return
		}
		if count > 0 {
			fe.addNonField(fmt.Sprintf(
				"Invitation for %s to %s chair already exists.", user.Username, chair.Name))
		}
	}
	if !fe.empty() {
		fe.render(c)
		return
	}

	invitation := models.NamedInvitation{UserID: user.ID, ChairID: chair.ID}
	if err := db.Create(&invitation).Error; err != nil {
		internalError(c, logger, "Failed to create invitation", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"invitation": gin.H{
		"id":    invitation.ID,
		"user":  user.Username,
		"chair": chair.Name,
	}})
}

func getInvitation(c *gin.Context, db *gorm.DB) (*models.NamedInvitation, bool) {
	var invitation models.NamedInvitation
	err := db.Preload("User").Preload("Chair.Table").
		First(&invitation, "id = ?", c.Param("id")).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		notFound(c, "Invitation")
		return nil, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load invitation"})
		return nil, false
	}
	return &invitation, true
}

// InvitationDelete は指名招待を削除する。
func InvitationDelete(c *gin.Context, db *gorm.DB, logger *zap.Logger) {
	invitation, ok := getInvitation(c, db)
	if !ok {
		return
	}
	if !invitation.HasWritePermission(middlewares.CurrentUser(c)) {
		forbidden(c)
		return
	}
	if err := db.Delete(invitation).Error; err != nil {
		internalError(c, logger, "Failed to delete invitation", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted", "table": invitation.Chair.TableID})
}

func namedInvitationJSON(inv *models.NamedInvitation) gin.H {
	owner := ""
	if inv.Chair.Table.Owner != nil {
		owner = inv.Chair.Table.Owner.Username
	}
	return gin.H{
		"id":    inv.ID,
		"user":  inv.User.Username,
		"chair": gin.H{"id": inv.ChairID, "name": inv.Chair.Name, "role": inv.Chair.Role()},
		"table": gin.H{"id": inv.Chair.TableID, "name": inv.Chair.Table.Name, "owner": owner},
	}
}

// NamedInvitation は招待の詳細を返す。招待されたユーザー本人か
// テーブルの所有者だけが閲覧できる。
func NamedInvitation(c *gin.Context, db *gorm.DB, logger *zap.Logger) {
	invitation, ok := getInvitation(c, db)
	if !ok {
		return
	}
	var owner models.User
	if invitation.Chair.Table.OwnerID != nil {
		if err := db.First(&owner, "id = ?", *invitation.Chair.Table.OwnerID).Error; err == nil {
			invitation.Chair.Table.Owner = &owner
		}
	}
	if !invitation.HasReadPermission(middlewares.CurrentUser(c)) {
		forbidden(c)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invitation": namedInvitationJSON(invitation)})
}

// NamedInvitationPlay は指名招待経由でのプレイ開始データを返す。
func NamedInvitationPlay(c *gin.Context, db *gorm.DB, logger *zap.Logger) {
	invitation, ok := getInvitation(c, db)
	if !ok {
		return
	}
	if !invitation.HasReadPermission(middlewares.CurrentUser(c)) {
		forbidden(c)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"table":       gin.H{"id": invitation.Chair.TableID, "name": invitation.Chair.Table.Name},
		"roleRequest": gin.H{"namedInvitation": invitation.ID, "role": invitation.Chair.Role()},
	})
}

func getChairByLinkInvitation(c *gin.Context, db *gorm.DB) (*models.Chair, bool) {
	var chair models.Chair
	err := db.Preload("Table").Where("link_invitation = ?", c.Param("token")).
		First(&chair).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		notFound(c, "Invitation")
		return nil, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load invitation"})
		return nil, false
	}
	return &chair, true
}

// LinkInvitation はリンク招待のランディングデータを返す。
// トークンを知っていれば誰でも参照できる。
func LinkInvitation(c *gin.Context, db *gorm.DB, logger *zap.Logger) {
	chair, ok := getChairByLinkInvitation(c, db)
	if !ok {
		return
	}
	user := middlewares.CurrentUser(c)
	nick := ""
	if user != nil {
		nick = user.Username
	}
	c.JSON(http.StatusOK, gin.H{
		"chair":           gin.H{"id": chair.ID, "name": chair.Name, "role": chair.Role()},
		"table":           gin.H{"id": chair.TableID, "name": chair.Table.Name},
		"link_invitation": c.Param("token"),
		"nick":            suggestedNick(nick),
	})
}

// LinkInvitationPlay はリンク招待経由でのプレイ開始データを返す。
func LinkInvitationPlay(c *gin.Context, db *gorm.DB, logger *zap.Logger) {
	chair, ok := getChairByLinkInvitation(c, db)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"table":       gin.H{"id": chair.TableID, "name": chair.Table.Name},
		"roleRequest": gin.H{"linkInvitation": c.Param("token"), "role": chair.Role()},
	})
}
