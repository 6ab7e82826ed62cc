package models

import (
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// 各エンティティの主キーは連番ではなくランダムな短いIDを使用する。
// 推測不可能で、エクスポート・インポートを跨いでも安定する。
const (
	idLength              = 12
	invitationTokenLength = 10
)

// NewID はエンティティ主キー用のランダムIDを生成する。
func NewID() string {
	id, err := gonanoid.New(idLength)
	if err != nil {
		panic(err) // crypto/randが読めない環境では続行不能
	}
	return id
}

// NewInvitationToken はリンク招待用のトークンを生成する。
func NewInvitationToken() string {
	token, err := gonanoid.New(invitationTokenLength)
	if err != nil {
		panic(err)
	}
	return token
}
