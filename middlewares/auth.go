package middlewares

import (
	"net/http"
	"strings"
	"time"

	"nhexserver/auth"
	"nhexserver/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const userKey = "user"

// currentUserFromRequest はAuthorizationヘッダーのトークンを検証し、
// セッショントークンの存在確認を経てユーザーを取得する。
func currentUserFromRequest(c *gin.Context, db *gorm.DB, logger *zap.Logger) *models.User {
	header := c.GetHeader("Authorization")
	tokenString := strings.TrimPrefix(header, "Bearer ")
	if tokenString == "" {
		return nil
	}

	claims, err := auth.ParseToken(tokenString)
	if err != nil {
		logger.Warn("トークンのパースに失敗", zap.Error(err))
		return nil
	}

	var sessionToken models.SessionToken
	if err := db.Where("token = ? AND expires_at > ?", tokenString, time.Now()).
		First(&sessionToken).Error; err != nil {
		logger.Warn("トークンがデータベースに存在しない", zap.Error(err))
		return nil
	}

	var user models.User
	if err := db.First(&user, "id = ?", claims.UserID).Error; err != nil {
		logger.Warn("ユーザーIDがデータベースに存在しない", zap.Error(err))
		return nil
	}
	return &user
}

// AuthRequired は認証必須のエンドポイント用ミドルウェア。
func AuthRequired(db *gorm.DB, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUserFromRequest(c, db, logger)
		if user == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Set(userKey, user)
		c.Next()
	}
}

// AuthOptional は匿名アクセスも受け付けるエンドポイント用。
// 有効なトークンがあればユーザーをコンテキストに載せる。
func AuthOptional(db *gorm.DB, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if user := currentUserFromRequest(c, db, logger); user != nil {
			c.Set(userKey, user)
		}
		c.Next()
	}
}

// CurrentUser はコンテキストからユーザーを取り出す。未認証ならnil。
func CurrentUser(c *gin.Context) *models.User {
	v, ok := c.Get(userKey)
	if !ok {
		return nil
	}
	user, _ := v.(*models.User)
	return user
}
