package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"nhexserver/middlewares"
	"nhexserver/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// アップロードの上限。1ファイルあたりと1リクエストあたり。
const (
	maxFileSize    = 1 << 20  // 1 MiB
	maxRequestSize = 10 << 20 // 10 MiB
)

func resourceJSON(r *models.Resource) gin.H {
	return gin.H{"id": r.ID, "name": r.Name, "url": r.URL()}
}

// Resources はアーミーのリソース一覧の取得とアップロードを処理する。
// アップロードはファイルサイズ上限・リクエスト上限・空き容量を
// すべて検証してから保存する。1件でも違反があれば何も永続化しない。
func Resources(c *gin.Context, db *gorm.DB, logger *zap.Logger, cfg *models.Config) {
	army, ok := getArmy(c, db)
	if !ok {
		return
	}
	user := middlewares.CurrentUser(c)
	if !army.HasWritePermission(user) {
		forbidden(c)
		return
	}

	if c.Request.Method == http.MethodPost {
		uploadResources(c, db, logger, cfg, army, user)
		return
	}

	resources, ok := listResources(c, db, logger, army)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"army": armyJSON(army), "resources": resources})
}

func listResources(c *gin.Context, db *gorm.DB, logger *zap.Logger, army *models.Army) ([]gin.H, bool) {
	var resources []models.Resource
	if err := db.Where("army_id = ?", army.ID).Find(&resources).Error; err != nil {
		internalError(c, logger, "Failed to load resources", err)
		return nil, false
	}
	list := make([]gin.H, 0, len(resources))
	for i := range resources {
		list = append(list, resourceJSON(&resources[i]))
	}
	return list, true
}

func uploadResources(c *gin.Context, db *gorm.DB, logger *zap.Logger, cfg *models.Config, army *models.Army, user *models.User) {
	form, err := c.MultipartForm()
	if err != nil {
		bindError(c, err)
		return
	}
	files := form.File["file_field"]

	fe := newFormErrors()
	if len(files) == 0 {
		fe.addField("file_field", "This field is required.")
		fe.render(c)
		return
	}

	var totalSize int64
	for _, file := range files {
		if file.Size > maxFileSize {
			fe.addField("file_field", "File is too large.")
		}
		totalSize += file.Size
	}
	if totalSize > maxRequestSize {
		fe.addNonField("Total size of files is too large.")
	}

	var quota models.UserDiskQuota
	if err := db.Where("user_id = ?", user.ID).First(&quota).Error; err != nil {
		internalError(c, logger, "Failed to load disk quota", err)
		return
	}
	freeSpace, err := quota.FreeSpace(db, cfg.MediaRoot)
	if err != nil {
		internalError(c, logger, "Failed to compute disk usage", err)
		return
	}
	if diff := totalSize - freeSpace; diff > 0 {
		fe.addNonField(fmt.Sprintf(
			"Selected files exceeds user storage quota by %.1f KB.", float64(diff)/1024))
	}
	if !fe.empty() {
		fe.render(c)
		return
	}

	dir := army.MediaDir(cfg.MediaRoot)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		internalError(c, logger, "Failed to save uploaded files", err)
		return
	}

	added := make([]gin.H, 0, len(files))
	for _, file := range files {
		filename := filepath.Base(file.Filename)
		if err := c.SaveUploadedFile(file, filepath.Join(dir, filename)); err != nil {
			internalError(c, logger, "Failed to save uploaded files", err)
			return
		}
		res := models.Resource{
			Name:   strings.TrimSuffix(filename, path.Ext(filename)),
			ArmyID: army.ID,
			File:   path.Join("armies", army.ID, filename),
		}
		if err := db.Create(&res).Error; err != nil {
			internalError(c, logger, "Failed to save uploaded files", err)
			return
		}
		added = append(added, resourceJSON(&res))
	}

	resources, ok := listResources(c, db, logger, army)
	if !ok {
		return
	}
	c.JSON(http.StatusCreated, gin.H{"added": added, "resources": resources})
}

// DelRes は単一リソースを削除する。消えるのは自分の裏付けファイルだけ。
func DelRes(c *gin.Context, db *gorm.DB, logger *zap.Logger, cfg *models.Config) {
	var res models.Resource
	err := db.Preload("Army").First(&res, "id = ?", c.Param("id")).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		notFound(c, "Resource")
		return
	}
	if err != nil {
		internalError(c, logger, "Failed to load resource", err)
		return
	}
	if !res.Army.HasWritePermission(middlewares.CurrentUser(c)) {
		forbidden(c)
		return
	}
	if err := res.Delete(db, cfg.MediaRoot); err != nil {
		internalError(c, logger, "Failed to delete resource", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

type bulkDeleteRequest struct {
	Res []string `json:"res" binding:"required"`
}

// ResBulkDel はアーミー配下のリソースをまとめて削除する。
func ResBulkDel(c *gin.Context, db *gorm.DB, logger *zap.Logger, cfg *models.Config) {
	army, ok := getArmy(c, db)
	if !ok {
		return
	}
	if !army.HasWritePermission(middlewares.CurrentUser(c)) {
		forbidden(c)
		return
	}
	var request bulkDeleteRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		bindError(c, err)
		return
	}
	var resources []models.Resource
	if err := db.Where("army_id = ? AND id IN ?", army.ID, request.Res).
		Find(&resources).Error; err != nil {
		internalError(c, logger, "Failed to load resources", err)
		return
	}
	for i := range resources {
		if err := resources[i].Delete(db, cfg.MediaRoot); err != nil {
			internalError(c, logger, "Failed to delete resources", err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
