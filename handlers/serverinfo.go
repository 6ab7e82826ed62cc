package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"nhexserver/middlewares"
	"nhexserver/models"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// グローバル部分（エモート・リンク・ボード）のキャッシュ設定
const (
	serverInfoCacheKey = "serverinfo:global"
	serverInfoCacheTTL = 60 * time.Second
)

type serverInfoGlobal struct {
	Emotes []map[string]interface{} `json:"emotes"`
	Links  []map[string]interface{} `json:"links"`
	Boards []map[string]interface{} `json:"boards"`
}

func buildServerInfoGlobal(db *gorm.DB) (*serverInfoGlobal, error) {
	var emotes []models.Emote
	if err := db.Preload("Alternatives").Find(&emotes).Error; err != nil {
		return nil, err
	}
	var links []models.Link
	if err := db.Order("my_order").Find(&links).Error; err != nil {
		return nil, err
	}
	var boards []models.Board
	if err := db.Order("default_priority").Find(&boards).Error; err != nil {
		return nil, err
	}

	global := &serverInfoGlobal{
		Emotes: make([]map[string]interface{}, 0, len(emotes)),
		Links:  make([]map[string]interface{}, 0, len(links)),
		Boards: make([]map[string]interface{}, 0, len(boards)),
	}
	for i := range emotes {
		global.Emotes = append(global.Emotes, emotes[i].GetInfo())
	}
	for i := range links {
		global.Links = append(global.Links, map[string]interface{}{
			"name": links[i].Name,
			"url":  links[i].URL,
		})
	}
	for i := range boards {
		global.Boards = append(global.Boards, map[string]interface{}{
			"id":   boards[i].ID,
			"name": boards[i].Name,
		})
	}
	return global, nil
}

// cachedServerInfoGlobal はグローバル部分をRedisから読み、
// 無ければ組み立ててTTL付きで保存する。Redisが無い場合は素通し。
func cachedServerInfoGlobal(ctx context.Context, db *gorm.DB, rdb *redis.Client, logger *zap.Logger) (*serverInfoGlobal, error) {
	if rdb == nil {
		return buildServerInfoGlobal(db)
	}
	if data, err := rdb.Get(ctx, serverInfoCacheKey).Bytes(); err == nil {
		var global serverInfoGlobal
		if err := json.Unmarshal(data, &global); err == nil {
			return &global, nil
		}
	}
	global, err := buildServerInfoGlobal(db)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(global); err == nil {
		if err := rdb.Set(ctx, serverInfoCacheKey, data, serverInfoCacheTTL).Err(); err != nil {
			logger.Warn("serverInfoキャッシュの保存に失敗", zap.Error(err))
		}
	}
	return global, nil
}

// GetServerInfo はプレイクライアントが起動時に読むサーバー情報を組み立てる。
// アーミーは閲覧者ごとに異なるため、ユーザー単位で毎回取得する。
func GetServerInfo(ctx context.Context, db *gorm.DB, rdb *redis.Client, logger *zap.Logger, cfg *models.Config, user *models.User) (gin.H, error) {
	armies, err := models.GetUserArmies(db, user)
	if err != nil {
		return nil, err
	}
	armyList := make([]gin.H, 0, len(armies))
	for i := range armies {
		armyList = append(armyList, gin.H{
			"id":          armies[i].ID,
			"name":        armies[i].Name,
			"custom":      armies[i].Custom,
			"private":     armies[i].Private,
			"utility":     armies[i].Utility,
			"keyshortcut": armies[i].Keyshortcut,
		})
	}

	global, err := cachedServerInfoGlobal(ctx, db, rdb, logger)
	if err != nil {
		return nil, err
	}
	return gin.H{
		"serverName":    cfg.ServerName,
		"serverVersion": cfg.ServerVersion,
		"res": gin.H{
			"armies":    armyList,
			"emotes":    global.Emotes,
			"utilities": []interface{}{},
			"links":     global.Links,
			"boards":    global.Boards,
		},
		"tss_url":    cfg.TSSURL,
		"tss_ws_url": cfg.TSSWSURL,
	}, nil
}

// ServerInfo は GET /serverInfo/ のハンドラー。
func ServerInfo(c *gin.Context, db *gorm.DB, rdb *redis.Client, logger *zap.Logger, cfg *models.Config) {
	info, err := GetServerInfo(c.Request.Context(), db, rdb, logger, cfg, middlewares.CurrentUser(c))
	if err != nil {
		internalError(c, logger, "Failed to build server info", err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// BoardInfo はボードの情報ブロブを返す。
func BoardInfo(c *gin.Context, db *gorm.DB, logger *zap.Logger) {
	var board models.Board
	err := db.First(&board, "id = ?", c.Param("id")).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		notFound(c, "Board")
		return
	}
	if err != nil {
		internalError(c, logger, "Failed to load board", err)
		return
	}
	c.JSON(http.StatusOK, board.GetInfo())
}
