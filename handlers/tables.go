package handlers

import (
	"errors"
	"net/http"

	"nhexserver/middlewares"
	"nhexserver/models"
	"nhexserver/tss"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Index はテーブル作成画面の初期データを返す。
func Index(c *gin.Context, db *gorm.DB, logger *zap.Logger) {
	board, err := models.DefaultBoard(db)
	if err != nil {
		internalError(c, logger, "Failed to load boards", err)
		return
	}
	var boardID interface{}
	if board != nil {
		boardID = board.ID
	}
	var footerLinks []models.FooterLink
	if err := db.Order("my_order").Find(&footerLinks).Error; err != nil {
		internalError(c, logger, "Failed to load links", err)
		return
	}
	footer := make([]gin.H, 0, len(footerLinks))
	for i := range footerLinks {
		footer = append(footer, gin.H{"name": footerLinks[i].Name, "url": footerLinks[i].URL})
	}
	c.JSON(http.StatusOK, gin.H{
		"form": gin.H{
			"name":                              RandomTableName(),
			"board":                             boardID,
			"add_chair_for_players":             2,
			"generate_join_link_for_players":    true,
			"add_chair_for_spectators":          0,
			"generate_join_link_for_spectators": false,
		},
		"footer_links": footer,
	})
}

type createTableRequest struct {
	Name                          string `json:"name" binding:"required,max=100"`
	Board                         string `json:"board"`
	AddChairForPlayers            int    `json:"add_chair_for_players" binding:"omitempty,min=0"`
	GenerateJoinLinkForPlayers    bool   `json:"generate_join_link_for_players"`
	AddChairForSpectators         int    `json:"add_chair_for_spectators" binding:"omitempty,min=0"`
	GenerateJoinLinkForSpectators bool   `json:"generate_join_link_for_spectators"`
}

func chairJSON(ch *models.Chair) gin.H {
	return gin.H{
		"id":              ch.ID,
		"name":            ch.Name,
		"arity":           ch.Arity,
		"kind":            ch.Kind,
		"role":            ch.Role(),
		"link_invitation": ch.LinkInvitation,
	}
}

func tableJSON(t *models.Table) gin.H {
	chairs := make([]gin.H, 0, len(t.Chairs))
	for i := range t.Chairs {
		chairs = append(chairs, chairJSON(&t.Chairs[i]))
	}
	return gin.H{
		"id":         t.ID,
		"name":       t.Name,
		"owner":      t.OwnerID,
		"board":      t.BoardID,
		"created_at": t.CreatedAt,
		"updated_at": t.UpdatedAt,
		"chairs":     chairs,
	}
}

// Tables は自分のテーブル一覧の取得と、新規テーブルの作成を処理する。
// 作成はまずセッションサーバーにテーブルIDの発行を依頼し、
// 成功した場合のみ行を永続化する。匿名ユーザーは未クレームのテーブルを作る。
func Tables(c *gin.Context, db *gorm.DB, logger *zap.Logger, tssc *tss.Client) {
	user := middlewares.CurrentUser(c)

	if c.Request.Method == http.MethodPost {
		createTable(c, db, logger, tssc, user)
		return
	}

	tables := []models.Table{}
	invitations := []models.NamedInvitation{}
	if user != nil {
		if err := paginated(db, c).Preload("Chairs").Where("owner_id = ?", user.ID).
			Order("created_at").Find(&tables).Error; err != nil {
			internalError(c, logger, "Failed to load tables", err)
			return
		}
		if err := db.Preload("Chair.Table").Where("user_id = ?", user.ID).
			Find(&invitations).Error; err != nil {
			internalError(c, logger, "Failed to load invitations", err)
			return
		}
	}

	tableList := make([]gin.H, 0, len(tables))
	for i := range tables {
		tableList = append(tableList, tableJSON(&tables[i]))
	}
	invitationList := make([]gin.H, 0, len(invitations))
	for i := range invitations {
		inv := &invitations[i]
		invitationList = append(invitationList, gin.H{
			"id":    inv.ID,
			"chair": inv.Chair.Name,
			"table": gin.H{"id": inv.Chair.Table.ID, "name": inv.Chair.Table.Name},
			"role":  inv.Chair.Role(),
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"tables":      tableList,
		"invitations": invitationList,
	})
}

func createTable(c *gin.Context, db *gorm.DB, logger *zap.Logger, tssc *tss.Client, user *models.User) {
	var request createTableRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		bindError(c, err)
		return
	}

	fe := newFormErrors()
	var board *models.Board
	if request.Board != "" {
		board = &models.Board{}
		if err := db.First(board, "id = ?", request.Board).Error; err != nil {
			fe.addField("board", "Select a valid choice.")
			board = nil
		}
	} else {
		var err error
		board, err = models.DefaultBoard(db)
		if err != nil {
			internalError(c, logger, "Failed to load boards", err)
			return
		}
		if board == nil {
			fe.addField("board", "This field is required.")
		}
	}
	if !fe.empty() {
		fe.render(c)
		return
	}

	// テーブルIDはセッションサーバーが発行する。これが返るまで行は作らない。
	tableID, err := tssc.CreateTable(c.Request.Context(), board.ID)
	if err != nil {
		logger.Error("セッションサーバーからテーブルIDを取得できませんでした", zap.Error(err))
		fe.addNonField("Failed to create table")
		fe.render(c)
		return
	}

	table := models.Table{ID: tableID, Name: request.Name, BoardID: &board.ID}
	if user != nil {
		table.OwnerID = &user.ID
	}
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&table).Error; err != nil {
			return err
		}
		if request.AddChairForPlayers > 0 {
			chair := models.Chair{
				Name:    "Players",
				TableID: table.ID,
				Arity:   request.AddChairForPlayers,
				Kind:    models.ChairKindPlayer,
			}
			if request.GenerateJoinLinkForPlayers {
				chair.EnableLinkInvitation()
			}
			if err := tx.Create(&chair).Error; err != nil {
				return err
			}
			table.Chairs = append(table.Chairs, chair)
		}
		if request.AddChairForSpectators > 0 {
			chair := models.Chair{
				Name:    "Spectators",
				TableID: table.ID,
				Arity:   request.AddChairForSpectators,
				Kind:    models.ChairKindSpectator,
			}
			if request.GenerateJoinLinkForSpectators {
				chair.EnableLinkInvitation()
			}
			if err := tx.Create(&chair).Error; err != nil {
				return err
			}
			table.Chairs = append(table.Chairs, chair)
		}
		return nil
	})
	if err != nil {
		internalError(c, logger, "Failed to create table", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"table": tableJSON(&table)})
}

func getTable(c *gin.Context, db *gorm.DB) (*models.Table, bool) {
	var table models.Table
	err := db.Preload("Chairs").First(&table, "id = ?", c.Param("id")).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		notFound(c, "Table")
		return nil, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load table"})
		return nil, false
	}
	return &table, true
}

// TableDetails はテーブル詳細を返し、認証済みユーザーの訪問を記録する。
func TableDetails(c *gin.Context, db *gorm.DB, logger *zap.Logger) {
	table, ok := getTable(c, db)
	if !ok {
		return
	}
	user := middlewares.CurrentUser(c)
	if !table.HasWritePermission(user) {
		forbidden(c)
		return
	}
	if err := table.RegisterVisit(db, user); err != nil {
		logger.Warn("訪問の記録に失敗しました", zap.Error(err))
	}
	nick := ""
	if user != nil {
		nick = user.Username
	}
	c.JSON(http.StatusOK, gin.H{
		"table":       tableJSON(table),
		"nick":        suggestedNick(nick),
		"roleRequest": gin.H{"role": "owner"},
	})
}

// ClaimTable は未クレームのテーブルを認証済みユーザーの所有にする。
func ClaimTable(c *gin.Context, db *gorm.DB, logger *zap.Logger) {
	table, ok := getTable(c, db)
	if !ok {
		return
	}
	user := middlewares.CurrentUser(c)
	if err := table.Claim(db, user); err != nil {
		if errors.Is(err, models.ErrPermissionDenied) {
			forbidden(c)
			return
		}
		internalError(c, logger, "Failed to claim table", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"table": tableJSON(table)})
}

// DelTable はテーブルと椅子・招待を削除する。
func DelTable(c *gin.Context, db *gorm.DB, logger *zap.Logger) {
	table, ok := getTable(c, db)
	if !ok {
		return
	}
	if !table.HasWritePermission(middlewares.CurrentUser(c)) {
		forbidden(c)
		return
	}
	if err := table.Delete(db); err != nil {
		internalError(c, logger, "Failed to delete table", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// TableInfo はプレイクライアント向けのテーブル情報JSON。
func TableInfo(c *gin.Context, db *gorm.DB, logger *zap.Logger) {
	table, ok := getTable(c, db)
	if !ok {
		return
	}
	chairs := make([]gin.H, 0, len(table.Chairs))
	for i := range table.Chairs {
		ch := &table.Chairs[i]
		chairs = append(chairs, gin.H{
			"id":    ch.ID,
			"name":  ch.Name,
			"arity": ch.Arity,
			"kind":  ch.Kind,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"id":              table.ID,
		"name":            table.Name,
		"defNumOfPlayers": 2,
		"board":           table.BoardID,
		"owner":           table.OwnerID,
		"chairs":          chairs,
	})
}
