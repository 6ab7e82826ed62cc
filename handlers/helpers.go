package handlers

import (
	"math/rand"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 一覧表示のページサイズ
const pageSize = 20

// formErrors はフォーム再表示に相当する構造化エラー。
// フィールド単位のエラーとフォーム全体のエラーを分けて保持する。
type formErrors struct {
	fields   map[string][]string
	nonField []string
}

func newFormErrors() *formErrors {
	return &formErrors{fields: map[string][]string{}}
}

func (f *formErrors) addField(name, msg string) {
	f.fields[name] = append(f.fields[name], msg)
}

func (f *formErrors) addNonField(msg string) {
	f.nonField = append(f.nonField, msg)
}

func (f *formErrors) empty() bool {
	return len(f.fields) == 0 && len(f.nonField) == 0
}

func (f *formErrors) render(c *gin.Context) {
	c.JSON(http.StatusBadRequest, gin.H{
		"errors":           f.fields,
		"non_field_errors": f.nonField,
	})
}

func bindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func notFound(c *gin.Context, what string) {
	c.JSON(http.StatusNotFound, gin.H{"error": what + " not found"})
}

func forbidden(c *gin.Context) {
	c.JSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
}

func unauthorized(c *gin.Context) {
	c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
}

func internalError(c *gin.Context, logger *zap.Logger, msg string, err error) {
	logger.Error(msg, zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}

// pageQuery は ?page= を読み取り、gormのOffset/Limitに渡す値を返す。
func pageQuery(c *gin.Context) (offset, limit, page int) {
	page, err := strconv.Atoi(c.Query("page"))
	if err != nil || page < 1 {
		page = 1
	}
	return (page - 1) * pageSize, pageSize, page
}

func paginated(db *gorm.DB, c *gin.Context) *gorm.DB {
	offset, limit, _ := pageQuery(c)
	return db.Offset(offset).Limit(limit)
}

var tableColors = []string{
	"Red", "Blue", "Green", "Yellow", "Black",
	"White", "Purple", "Orange", "Pink", "Brown",
}

var tableMaterials = []string{
	"Wooden", "Glass", "Metallic", "Marble", "Concrete",
	"Bamboo", "Plastic", "Granite", "Acrylic",
}

// RandomTableName は新規テーブルの提案名を生成する。
func RandomTableName() string {
	color := tableColors[rand.Intn(len(tableColors))]
	material := tableMaterials[rand.Intn(len(tableMaterials))]
	return color + " " + material + " Table"
}

var nickNames = []string{
	"Alice", "Bob", "Charlie", "David", "Eve", "Frank", "Thomas", "Victor",
}

var nickAnimals = []string{
	"Cat", "Dog", "Elephant", "Fox", "Giraffe", "Horse", "Iguana", "Jaguar",
}

// suggestedNick は匿名ユーザー向けのニックネームを提案する。
func suggestedNick(username string) string {
	if username != "" {
		return username
	}
	animal := nickAnimals[rand.Intn(len(nickAnimals))]
	name := nickNames[rand.Intn(len(nickNames))]
	return animal + " " + name
}
