package utils

import (
	"os"
	"path/filepath"
	"time"

	"nhexserver/models"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CronCleaner は定期メンテナンスジョブを起動する。
func CronCleaner(db *gorm.DB, logger *zap.Logger, mediaRoot string) {
	c := cron.New()

	// 期限切れセッショントークンの削除（毎日）
	c.AddFunc("@daily", func() {
		result := db.Where("expires_at <= ?", time.Now()).Delete(&models.SessionToken{})
		if result.Error != nil {
			logger.Error("期限切れトークンの削除に失敗しました", zap.Error(result.Error))
		} else if result.RowsAffected > 0 {
			logger.Info("期限切れトークンを削除", zap.Int64("tokens_deleted", result.RowsAffected))
		}
	})

	// 孤児メディアの回収（"分 時 日 月 曜日"）。
	// DBコミットと物理削除の間でクラッシュした場合に残るファイルを掃除する。
	c.AddFunc("0 3 * * *", func() {
		logger.Info("孤児メディアの掃除を開始")
		if err := SweepOrphanedMedia(db, logger, mediaRoot); err != nil {
			logger.Error("孤児メディアの掃除に失敗しました", zap.Error(err))
		}
	})

	c.Start()
}

// SweepOrphanedMedia はアーミー行が存在しないメディアディレクトリと、
// リソース行が存在しないファイルを削除する。
func SweepOrphanedMedia(db *gorm.DB, logger *zap.Logger, mediaRoot string) error {
	armiesDir := filepath.Join(mediaRoot, "armies")
	entries, err := os.ReadDir(armiesDir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	removedDirs := 0
	removedFiles := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		armyID := entry.Name()
		var count int64
		if err := db.Model(&models.Army{}).Where("id = ?", armyID).
			Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			// アーミーごと消えている場合はディレクトリを丸ごと回収
			if err := os.RemoveAll(filepath.Join(armiesDir, armyID)); err == nil {
				removedDirs++
			}
			continue
		}

		// 個別ファイルの孤児を回収
		var resources []models.Resource
		if err := db.Where("army_id = ?", armyID).Find(&resources).Error; err != nil {
			return err
		}
		known := make(map[string]bool, len(resources))
		for _, res := range resources {
			known[res.Basename()] = true
		}
		files, err := os.ReadDir(filepath.Join(armiesDir, armyID))
		if err != nil {
			continue
		}
		for _, f := range files {
			if f.IsDir() || known[f.Name()] {
				continue
			}
			if err := os.Remove(filepath.Join(armiesDir, armyID, f.Name())); err == nil {
				removedFiles++
			}
		}
	}
	if removedDirs > 0 || removedFiles > 0 {
		logger.Info("孤児メディアの掃除完了",
			zap.Int("dirs_removed", removedDirs),
			zap.Int("files_removed", removedFiles),
		)
	}
	return nil
}
