package handlers

import (
	"errors"
	"net/http"
	"strings"

	"nhexserver/auth"
	"nhexserver/middlewares"
	"nhexserver/models"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type registerRequest struct {
	Username string `json:"username" binding:"required,min=3,max=150"`
	Password string `json:"password" binding:"required,min=8"`
}

// Register は新規ユーザーを登録する。ディスククォータはこの時点で
// 既定値で作成される。成功するとそのままログイン状態になる。
func Register(c *gin.Context, db *gorm.DB, logger *zap.Logger, cfg *models.Config) {
	var request registerRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		bindError(c, err)
		return
	}

	var count int64
	if err := db.Model(&models.User{}).Where("username = ?", request.Username).
		Count(&count).Error; err != nil {
		internalError(c, logger, "Failed to create user", err)
		return
	}
	if count > 0 {
		fe := newFormErrors()
		fe.addField("username", "A user with that username already exists.")
		fe.render(c)
		return
	}

	hash, err := auth.HashPassword(request.Password)
	if err != nil {
		internalError(c, logger, "Failed to create user", err)
		return
	}
	user, err := models.CreateUser(db, request.Username, hash, cfg.DefaultDiskQuota)
	if err != nil {
		internalError(c, logger, "Failed to create user", err)
		return
	}

	token, err := auth.GenerateToken(db, user, c.Request.UserAgent())
	if err != nil {
		internalError(c, logger, "トークン生成に失敗しました", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"token": token,
		"user":  gin.H{"id": user.ID, "username": user.Username},
	})
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login はユーザー名とパスワードを検証してトークンを発行する。
func Login(c *gin.Context, db *gorm.DB, logger *zap.Logger) {
	var request loginRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		bindError(c, err)
		return
	}

	var user models.User
	err := db.Where("username = ?", request.Username).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && !auth.CheckPassword(user.PasswordHash, request.Password)) {
		logger.Warn("認証失敗", zap.String("username", request.Username))
		unauthorized(c)
		return
	}
	if err != nil {
		internalError(c, logger, "Failed to log in", err)
		return
	}

	token, err := auth.GenerateToken(db, &user, c.Request.UserAgent())
	if err != nil {
		internalError(c, logger, "トークン生成に失敗しました", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"user":  gin.H{"id": user.ID, "username": user.Username},
	})
}

// Logout は提示されたセッショントークンを失効させる。
func Logout(c *gin.Context, db *gorm.DB, logger *zap.Logger) {
	tokenString := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	if err := auth.RevokeToken(db, tokenString); err != nil {
		internalError(c, logger, "Failed to log out", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "logged_out"})
}

// Me は現在のユーザーとディスククォータの状況を返す。
func Me(c *gin.Context, db *gorm.DB, logger *zap.Logger, cfg *models.Config) {
	user := middlewares.CurrentUser(c)

	var quota models.UserDiskQuota
	if err := db.Where("user_id = ?", user.ID).First(&quota).Error; err != nil {
		internalError(c, logger, "Failed to load disk quota", err)
		return
	}
	used, err := quota.Used(db, cfg.MediaRoot)
	if err != nil {
		internalError(c, logger, "Failed to compute disk usage", err)
		return
	}
	free, err := quota.FreeSpace(db, cfg.MediaRoot)
	if err != nil {
		internalError(c, logger, "Failed to compute disk usage", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":       user.ID,
		"username": user.Username,
		"is_staff": user.IsStaff,
		"disk_quota": gin.H{
			"value":      quota.Value,
			"value_str":  quota.QuotaString(),
			"used":       used,
			"used_str":   humanize.Bytes(uint64(used)),
			"free_space": free,
		},
	})
}
