package utils_test

import (
	"os"
	"path/filepath"
	"testing"

	"nhexserver/testutil"
	"nhexserver/utils"

	"go.uber.org/zap"
)

func TestSweepOrphanedMedia(t *testing.T) {
	db := testutil.NewDB(t)
	mediaRoot := t.TempDir()
	alice := testutil.NewUser(t, db, "alice", 1<<20)
	army := testutil.NewArmy(t, db, alice, "A", true)
	kept := testutil.AddResource(t, db, mediaRoot, army, "kept.png", []byte("kept"))

	// リソース行の無いファイルと、アーミー行の無いディレクトリを用意する
	orphanFile := filepath.Join(army.MediaDir(mediaRoot), "orphan.png")
	if err := os.WriteFile(orphanFile, []byte("orphan"), 0o644); err != nil {
		t.Fatal(err)
	}
	orphanDir := filepath.Join(mediaRoot, "armies", "no-such-army")
	if err := os.MkdirAll(orphanDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(orphanDir, "x.png"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := utils.SweepOrphanedMedia(db, zap.NewNop(), mediaRoot); err != nil {
		t.Fatal(err)
	}

	if !kept.IsValid(mediaRoot) {
		t.Error("sweep removed a file that has a resource row")
	}
	if _, err := os.Stat(orphanFile); !os.IsNotExist(err) {
		t.Error("orphan file survived the sweep")
	}
	if _, err := os.Stat(orphanDir); !os.IsNotExist(err) {
		t.Error("orphan directory survived the sweep")
	}
}

func TestSweepOrphanedMediaNoMediaRoot(t *testing.T) {
	db := testutil.NewDB(t)
	// armiesディレクトリが無くてもエラーにしない
	if err := utils.SweepOrphanedMedia(db, zap.NewNop(), filepath.Join(t.TempDir(), "empty")); err != nil {
		t.Fatal(err)
	}
}
