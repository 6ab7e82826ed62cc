package handlers_test

import (
	"context"
	"testing"

	"nhexserver/handlers"
	"nhexserver/models"
	"nhexserver/testutil"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func TestGetServerInfo(t *testing.T) {
	db := testutil.NewDB(t)
	alice := testutil.NewUser(t, db, "alice", 1<<20)
	testutil.NewArmy(t, db, alice, "Mine", true)
	testutil.NewArmy(t, db, alice, "Shared", false)
	board := &models.Board{Name: "hex", Image: "boards/hex.png", DefaultPriority: 1}
	if err := db.Create(board).Error; err != nil {
		t.Fatal(err)
	}
	if err := db.Create(&models.Link{Name: "Rules", URL: "https://example.com/rules"}).Error; err != nil {
		t.Fatal(err)
	}

	cfg := &models.Config{
		ServerName: "local", ServerVersion: "1.0.0",
		TSSURL: "https://tss.example.com", TSSWSURL: "wss://tss.example.com",
	}
	info, err := handlers.GetServerInfo(context.Background(), db, nil, zap.NewNop(), cfg, alice)
	if err != nil {
		t.Fatal(err)
	}

	if info["serverName"] != "local" || info["tss_url"] != "https://tss.example.com" {
		t.Errorf("server fields = %v", info)
	}
	res, ok := info["res"].(gin.H)
	if !ok {
		t.Fatalf("res has unexpected type: %#v", info["res"])
	}
	armies, _ := res["armies"].([]gin.H)
	if len(armies) != 2 {
		t.Errorf("alice sees %d armies, want 2", len(armies))
	}
	boards, _ := res["boards"].([]map[string]interface{})
	if len(boards) != 1 || boards[0]["name"] != "hex" {
		t.Errorf("boards = %v", boards)
	}
	links, _ := res["links"].([]map[string]interface{})
	if len(links) != 1 || links[0]["url"] != "https://example.com/rules" {
		t.Errorf("links = %v", links)
	}

	// 匿名ユーザーには公開アーミーだけが見える
	info, err = handlers.GetServerInfo(context.Background(), db, nil, zap.NewNop(), cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	res = info["res"].(gin.H)
	armies, _ = res["armies"].([]gin.H)
	if len(armies) != 1 {
		t.Errorf("anonymous sees %d armies, want 1", len(armies))
	}
}
