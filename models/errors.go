package models

import (
	"errors"

	"gorm.io/gorm"
)

// ErrPermissionDenied は所有権チェックに失敗した操作が返すエラー。
var ErrPermissionDenied = errors.New("permission denied")

// ErrInsideTransaction はトランザクション内でファイル削除を伴う操作を
// 呼び出した場合に返される。ファイル削除はロールバックできないため、
// これはプログラミングエラーとして即座に報告する。
var ErrInsideTransaction = errors.New("filesystem-deleting operation called inside a transaction")

// NotInTransaction は db がトランザクション中でないことを検査する。
func NotInTransaction(db *gorm.DB) error {
	if db == nil || db.Statement == nil {
		return nil
	}
	if _, ok := db.Statement.ConnPool.(gorm.TxCommitter); ok {
		return ErrInsideTransaction
	}
	return nil
}
