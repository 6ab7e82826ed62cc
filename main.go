package main

import (
	"time"

	"nhexserver/auth"
	"nhexserver/database"
	"nhexserver/handlers"
	"nhexserver/middlewares"
	"nhexserver/models"
	"nhexserver/tss"
	"nhexserver/utils"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func main() {
	// ロガーの初期化
	logger, err := utils.InitLogger()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// 設定ファイルのロード
	config, err := database.LoadConfig("config.json")
	if err != nil {
		logger.Fatal("設定のロードに失敗しました", zap.Error(err))
	}
	auth.SetKey(config.JWTSecret)

	var db *gorm.DB
	var rdb *redis.Client

	// データベースとRedisの初期化は起動をブロックしないよう並行で行い、
	// 完了を待ってからルーターを起動する。
	done := make(chan bool)
	go func() {
		var err error
		db, err = database.InitPostgreSQL(config, logger)
		if err != nil {
			logger.Fatal("データベースの初期化に失敗しました", zap.Error(err))
		}
		rdb, err = database.InitRedis(logger)
		if err != nil {
			logger.Fatal("Redisの初期化に失敗しました", zap.Error(err))
		}
		done <- true
	}()
	<-done

	// 期限切れセッションと孤児メディアの定期清掃
	utils.CronCleaner(db, logger, config.MediaRoot)

	router := setupRouter(db, rdb, logger, &config)
	if err := router.Run(config.ListenAddr); err != nil {
		logger.Fatal("サーバーの起動に失敗しました", zap.Error(err))
	}
}

func setupRouter(db *gorm.DB, rdb *redis.Client, logger *zap.Logger, config *models.Config) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(utils.RequestLogger(logger))

	allowOrigins := config.AllowOrigins
	if len(allowOrigins) == 0 {
		allowOrigins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.Static("/media", config.MediaRoot)

	tssc := tss.New(config.InternalTSSURL)

	optional := router.Group("/", middlewares.AuthOptional(db, logger))
	{
		optional.GET("/", func(c *gin.Context) {
			handlers.Index(c, db, logger)
		})
		optional.GET("/tables/", func(c *gin.Context) {
			handlers.Tables(c, db, logger, tssc)
		})
		optional.POST("/tables/", func(c *gin.Context) {
			handlers.Tables(c, db, logger, tssc)
		})
		optional.GET("/tables/:id/", func(c *gin.Context) {
			handlers.TableDetails(c, db, logger)
		})
		optional.GET("/tables/:id/info/", func(c *gin.Context) {
			handlers.TableInfo(c, db, logger)
		})
		optional.POST("/tables/:id/del/", func(c *gin.Context) {
			handlers.DelTable(c, db, logger)
		})
		optional.GET("/invitations/:id/play/", func(c *gin.Context) {
			handlers.NamedInvitationPlay(c, db, logger)
		})
		optional.GET("/link_invitations/:token/", func(c *gin.Context) {
			handlers.LinkInvitation(c, db, logger)
		})
		optional.GET("/link_invitations/:token/play/", func(c *gin.Context) {
			handlers.LinkInvitationPlay(c, db, logger)
		})
		optional.GET("/serverInfo/", func(c *gin.Context) {
			handlers.ServerInfo(c, db, rdb, logger, config)
		})
		optional.GET("/boards/:id/info/", func(c *gin.Context) {
			handlers.BoardInfo(c, db, logger)
		})
		optional.GET("/armies/:id/info/", func(c *gin.Context) {
			handlers.ArmyInfo(c, db, logger)
		})
		optional.GET("/army/:id/info/", func(c *gin.Context) {
			handlers.ArmyInfo(c, db, logger)
		})
		optional.POST("/authorizeRoleRequest/", func(c *gin.Context) {
			handlers.AuthorizeRoleRequest(c, db, logger)
		})

		optional.POST("/register/", func(c *gin.Context) {
			handlers.Register(c, db, logger, config)
		})
		optional.POST("/login/", func(c *gin.Context) {
			handlers.Login(c, db, logger)
		})
	}

	required := router.Group("/", middlewares.AuthRequired(db, logger))
	{
		required.POST("/logout/", func(c *gin.Context) {
			handlers.Logout(c, db, logger)
		})
		required.GET("/me/", func(c *gin.Context) {
			handlers.Me(c, db, logger, config)
		})

		required.POST("/tables/:id/claim/", func(c *gin.Context) {
			handlers.ClaimTable(c, db, logger)
		})
		required.GET("/tables/:id/chairs/", func(c *gin.Context) {
			handlers.Chairs(c, db, logger)
		})
		required.POST("/tables/:id/chairs/", func(c *gin.Context) {
			handlers.Chairs(c, db, logger)
		})
		required.POST("/chairs/:id/delete/", func(c *gin.Context) {
			handlers.ChairDelete(c, db, logger)
		})
		required.POST("/chairs/:id/link_invitation/", func(c *gin.Context) {
			handlers.ManageLinkInvitation(c, db, logger)
		})
		required.GET("/tables/:id/invitations/", func(c *gin.Context) {
			handlers.Invitations(c, db, logger)
		})
		required.POST("/tables/:id/invitations/", func(c *gin.Context) {
			handlers.Invitations(c, db, logger)
		})
		required.GET("/invitations/:id/", func(c *gin.Context) {
			handlers.NamedInvitation(c, db, logger)
		})
		required.POST("/invitations/:id/delete/", func(c *gin.Context) {
			handlers.InvitationDelete(c, db, logger)
		})

		required.GET("/armies/", func(c *gin.Context) {
			handlers.Armies(c, db, logger)
		})
		required.POST("/armies/", func(c *gin.Context) {
			handlers.Armies(c, db, logger)
		})
		required.GET("/armies/:id/", func(c *gin.Context) {
			handlers.ArmyDetails(c, db, logger)
		})
		required.POST("/armies/:id/", func(c *gin.Context) {
			handlers.ArmyDetails(c, db, logger)
		})
		required.POST("/armies/:id/delete/", func(c *gin.Context) {
			handlers.ArmyDelete(c, db, logger, config)
		})
		required.GET("/armies/:id/clone/", func(c *gin.Context) {
			handlers.ArmyClone(c, db, logger, config)
		})
		required.POST("/armies/:id/clone/", func(c *gin.Context) {
			handlers.ArmyClone(c, db, logger, config)
		})

		required.GET("/armies/:id/tokens/", func(c *gin.Context) {
			handlers.Tokens(c, db, logger)
		})
		required.POST("/armies/:id/tokens/", func(c *gin.Context) {
			handlers.Tokens(c, db, logger)
		})
		required.GET("/tokens/:id/", func(c *gin.Context) {
			handlers.TokenDetails(c, db, logger)
		})
		required.POST("/tokens/:id/", func(c *gin.Context) {
			handlers.TokenDetails(c, db, logger)
		})
		required.POST("/tokens/:id/delete/", func(c *gin.Context) {
			handlers.TokenDelete(c, db, logger)
		})

		required.GET("/armies/:id/resources/", func(c *gin.Context) {
			handlers.Resources(c, db, logger, config)
		})
		required.POST("/armies/:id/resources/", func(c *gin.Context) {
			handlers.Resources(c, db, logger, config)
		})
		required.POST("/resources/:id/del/", func(c *gin.Context) {
			handlers.DelRes(c, db, logger, config)
		})
		required.POST("/armies/:id/resources/del_many/", func(c *gin.Context) {
			handlers.ResBulkDel(c, db, logger, config)
		})

		required.GET("/armies/:id/pub_req/", func(c *gin.Context) {
			handlers.CreatePubReq(c, db, logger)
		})
		required.POST("/armies/:id/pub_req/", func(c *gin.Context) {
			handlers.CreatePubReq(c, db, logger)
		})
		required.GET("/pub_reqs/", func(c *gin.Context) {
			handlers.PubReqs(c, db, logger)
		})
		required.GET("/pub_reqs/:id/", func(c *gin.Context) {
			handlers.PubReqDetails(c, db, logger)
		})
		required.POST("/pub_reqs/:id/accept/", func(c *gin.Context) {
			handlers.PubReqAccept(c, db, logger)
		})
	}

	return router
}
