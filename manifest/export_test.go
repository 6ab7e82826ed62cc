package manifest_test

import (
	"archive/zip"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"nhexserver/manifest"
	"nhexserver/models"
	"nhexserver/testutil"

	"go.uber.org/zap"
)

func TestExportArmy(t *testing.T) {
	db := testutil.NewDB(t)
	mediaRoot := t.TempDir()
	owner := testutil.NewUser(t, db, "alice", 1<<20)
	army := testutil.NewArmy(t, db, owner, "Legion", true)
	front := testutil.AddResource(t, db, mediaRoot, army, "front.png", []byte("front"))
	back := testutil.AddResource(t, db, mediaRoot, army, "back.png", []byte("back"))
	token := models.Token{
		Name: "Soldier", Multiplicity: 2, ArmyID: army.ID,
		FrontImageID: front.ID, BackImageID: back.ID, Kind: models.KindUnit,
	}
	if err := db.Create(&token).Error; err != nil {
		t.Fatal(err)
	}

	dest := t.TempDir()
	if err := manifest.ExportArmy(db, mediaRoot, army, dest); err != nil {
		t.Fatal(err)
	}

	dir := filepath.Join(dest, army.ID)
	for _, name := range []string{"front.png", "back.png", "info.json"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("exported file %s missing: %v", name, err)
		}
	}

	data, err := os.ReadFile(filepath.Join(dir, "info.json"))
	if err != nil {
		t.Fatal(err)
	}
	var info map[string]interface{}
	if err := json.Unmarshal(data, &info); err != nil {
		t.Fatal(err)
	}
	if info["name"] != "Legion" {
		t.Errorf("manifest name = %v", info["name"])
	}
	tokens, _ := info["tokens"].([]interface{})
	if len(tokens) != 1 {
		t.Fatalf("manifest has %d tokens, want 1", len(tokens))
	}
	entry := tokens[0].(map[string]interface{})
	if entry["img"] != "front.png" || entry["backImg"] != "back.png" || entry["q"] != 2.0 {
		t.Errorf("token entry = %v", entry)
	}
}

// エクスポートしたディレクトリをそのままzipに固めてインポートすると
// 同じ構成のアーミーが再現される。
func TestExportImportRoundTrip(t *testing.T) {
	db := testutil.NewDB(t)
	mediaRoot := t.TempDir()
	owner := testutil.NewUser(t, db, "alice", 1<<20)
	army := testutil.NewArmy(t, db, owner, "Round Trip", true)
	front := testutil.AddResource(t, db, mediaRoot, army, "front.png", []byte("front"))
	back := testutil.AddResource(t, db, mediaRoot, army, "back.png", []byte("back"))
	rect := models.Rect{"w": 192.0, "h": 167.0}
	for _, token := range []models.Token{
		{Name: "Soldier", Multiplicity: 3, ArmyID: army.ID, FrontImageRect: rect,
			FrontImageID: front.ID, BackImageID: back.ID, Kind: models.KindUnit},
		{Name: "HQ", Multiplicity: 1, ArmyID: army.ID, FrontImageRect: rect,
			FrontImageID: front.ID, BackImageID: back.ID, Kind: models.KindHQ},
		{Name: "Net", Multiplicity: 2, ArmyID: army.ID, FrontImageRect: rect,
			FrontImageID: front.ID, BackImageID: front.ID, Kind: models.KindMarker},
	} {
		token := token
		if err := db.Create(&token).Error; err != nil {
			t.Fatal(err)
		}
	}

	dest := t.TempDir()
	if err := manifest.ExportArmy(db, mediaRoot, army, dest); err != nil {
		t.Fatal(err)
	}
	zipPath := zipDir(t, filepath.Join(dest, army.ID))

	imported, err := manifest.ImportArmy(db, zap.NewNop(), mediaRoot, owner, zipPath,
		manifest.ImportOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if imported.ID == army.ID {
		t.Error("import reused the original army id")
	}
	if imported.Name != "Round Trip" {
		t.Errorf("imported name = %q", imported.Name)
	}

	var tokens []models.Token
	if err := db.Preload("FrontImage").Preload("BackImage").
		Where("army_id = ?", imported.ID).Find(&tokens).Error; err != nil {
		t.Fatal(err)
	}
	kinds := map[string]int{}
	for i := range tokens {
		kinds[tokens[i].Kind]++
		if tokens[i].FrontImage.ArmyID != imported.ID {
			t.Errorf("token %s references a resource outside the imported army", tokens[i].Name)
		}
	}
	if kinds[models.KindUnit] != 1 || kinds[models.KindHQ] != 1 || kinds[models.KindMarker] != 1 {
		t.Errorf("kinds = %v", kinds)
	}
}

func zipDir(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "export.zip")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, entry := range entries {
		w, err := zw.Create(entry.Name())
		if err != nil {
			t.Fatal(err)
		}
		in, err := os.Open(filepath.Join(dir, entry.Name()))
		if err != nil {
			t.Fatal(err)
		}
		if _, err := io.Copy(w, in); err != nil {
			t.Fatal(err)
		}
		in.Close()
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}
