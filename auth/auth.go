package auth

import (
	"errors"
	"time"

	"nhexserver/models"

	jwt "github.com/dgrijalva/jwt-go"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// JwtKey はトークン署名鍵。起動時に設定から読み込む。
var JwtKey = []byte("nhex_dev_secret")

func SetKey(secret string) {
	if secret != "" {
		JwtKey = []byte(secret)
	}
}

const tokenLifetime = 72 * time.Hour

// MyClaims はJWTトークンに内包するデータ。
type MyClaims struct {
	UserID   string `json:"userid"`
	Username string `json:"username"`
	jwt.StandardClaims
}

// GenerateToken はユーザーのJWTトークンを生成し、
// 失効管理のためにセッショントークンをデータベースへ記録する。
func GenerateToken(db *gorm.DB, user *models.User, deviceInfo string) (string, error) {
	expirationTime := time.Now().Add(tokenLifetime)
	claims := &MyClaims{
		UserID:   user.ID,
		Username: user.Username,
		StandardClaims: jwt.StandardClaims{
			ExpiresAt: expirationTime.Unix(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(JwtKey)
	if err != nil {
		return "", err
	}

	session := models.SessionToken{
		UserID:     user.ID,
		Token:      tokenString,
		ExpiresAt:  expirationTime,
		DeviceInfo: deviceInfo,
	}
	if err := db.Create(&session).Error; err != nil {
		return "", err
	}
	return tokenString, nil
}

// ParseToken はトークンを検証してクレームを返す。
func ParseToken(tokenString string) (*MyClaims, error) {
	claims := &MyClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return JwtKey, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// RevokeToken はログアウト時にセッショントークンを失効させる。
func RevokeToken(db *gorm.DB, tokenString string) error {
	return db.Where("token = ?", tokenString).Delete(&models.SessionToken{}).Error
}

// HashPassword はbcryptでパスワードをハッシュ化する。
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword はパスワードとハッシュを照合する。
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
