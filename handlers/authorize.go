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

type roleRequest struct {
	Role            string `json:"role"`
	NamedInvitation string `json:"namedInvitation"`
	LinkInvitation  string `json:"linkInvitation"`
}

type authorizeRequest struct {
	TableID     string      `json:"tableId" binding:"required"`
	RoleRequest roleRequest `json:"roleRequest"`
}

func denyRoleRequest(c *gin.Context) {
	c.JSON(http.StatusUnauthorized, gin.H{"result": false, "reason": "Unauthorized"})
}

// AuthorizeRoleRequest はテーブルセッションサーバーからの着席可否の照会。
// 所有者・指名招待・リンク招待のいずれかの資格が確認できればロールを返す。
// リンク招待はトークン自体が資格なので、ユーザー認証は要求しない。
func AuthorizeRoleRequest(c *gin.Context, db *gorm.DB, logger *zap.Logger) {
	var request authorizeRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		bindError(c, err)
		return
	}

	var table models.Table
	err := db.First(&table, "id = ?", request.TableID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		notFound(c, "Table")
		return
	}
	if err != nil {
		internalError(c, logger, "Failed to load table", err)
		return
	}

	user := middlewares.CurrentUser(c)

	// 招待系の照会は role と併記されるので、招待の有無を先に見る。
	// 所有者の照会は {"role": "owner"} だけが載る。
	switch {
	case request.RoleRequest.NamedInvitation != "":
		var invitation models.NamedInvitation
		err := db.Preload("Chair").
			First(&invitation, "id = ?", request.RoleRequest.NamedInvitation).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			notFound(c, "Invitation")
			return
		}
		if err != nil {
			internalError(c, logger, "Failed to load invitation", err)
			return
		}
		if user == nil || invitation.UserID != user.ID ||
			invitation.Chair.TableID != table.ID {
			denyRoleRequest(c)
			return
		}
		c.JSON(http.StatusOK, gin.H{"result": true, "role": invitation.Chair.Role()})

	case request.RoleRequest.LinkInvitation != "":
		var chair models.Chair
		err := db.First(&chair, "link_invitation = ?", request.RoleRequest.LinkInvitation).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			notFound(c, "Chair")
			return
		}
		if err != nil {
			internalError(c, logger, "Failed to load chair", err)
			return
		}
		if chair.TableID != table.ID {
			denyRoleRequest(c)
			return
		}
		c.JSON(http.StatusOK, gin.H{"result": true, "role": chair.Role()})

	case request.RoleRequest.Role == "owner":
		if user == nil || table.OwnerID == nil || *table.OwnerID != user.ID {
			denyRoleRequest(c)
			return
		}
		c.JSON(http.StatusOK, gin.H{"result": true, "role": "owner"})

	default:
		denyRoleRequest(c)
	}
}
