// アーミー・ボード・エモートのオフライン入出力。
// エクスポートはメディアファイル一式とinfo.jsonのディレクトリツリーを作る。
package manifest

import (
	"encoding/json"
	"os"
	"path"
	"path/filepath"

	"nhexserver/models"

	"gorm.io/gorm"
)

// WriteJSON は任意の構造をインデント付きJSONとしてファイルに書く。
func WriteJSON(filePath string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(filePath, append(data, '\n'), 0o644)
}

// ExportArmy はアーミーのメディアディレクトリを dest/<armyID>/ へコピーし、
// 同じ場所に info.json を書く。info.json の画像参照はベースネームなので、
// ディレクトリ単位でそのままインポートに渡せる。
func ExportArmy(db *gorm.DB, mediaRoot string, army *models.Army, dest string) error {
	dir := filepath.Join(dest, army.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	srcDir := army.MediaDir(mediaRoot)
	if _, err := os.Stat(srcDir); err == nil {
		if err := models.CopyDir(srcDir, dir); err != nil {
			return err
		}
	}
	info, err := army.GetInfo(db)
	if err != nil {
		return err
	}
	return WriteJSON(filepath.Join(dir, "info.json"), info)
}

// ExportBoard はボードの画像とinfo.jsonを dest/<boardID>/ へ書き出す。
// 画像参照はエクスポート先の相対パスに書き換える。
func ExportBoard(mediaRoot string, board *models.Board, dest string) error {
	dir := filepath.Join(dest, board.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	base := path.Base(board.Image)
	if err := copyMediaFile(mediaRoot, board.Image, filepath.Join(dir, base)); err != nil {
		return err
	}
	info := make(map[string]interface{}, len(board.Info)+2)
	for k, v := range board.Info {
		info[k] = v
	}
	info["name"] = board.Name
	info["image"] = path.Join("boards", board.ID, base)
	return WriteJSON(filepath.Join(dir, "info.json"), info)
}

// ExportEmote はエモートのメイン画像・代替画像とinfo.jsonを
// dest/<emoteID>/ へ書き出す。
func ExportEmote(mediaRoot string, emote *models.Emote, dest string) error {
	dir := filepath.Join(dest, emote.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	images := []string{path.Base(emote.Image)}
	if err := copyMediaFile(mediaRoot, emote.Image, filepath.Join(dir, path.Base(emote.Image))); err != nil {
		return err
	}
	for _, alt := range emote.Alternatives {
		base := path.Base(alt.Image)
		if err := copyMediaFile(mediaRoot, alt.Image, filepath.Join(dir, base)); err != nil {
			return err
		}
		images = append(images, base)
	}
	info := map[string]interface{}{
		"name":        emote.Name,
		"image":       images,
		"keyshortcut": emote.Keyshortcut,
	}
	return WriteJSON(filepath.Join(dir, "info.json"), info)
}

func copyMediaFile(mediaRoot, rel, dst string) error {
	in, err := os.Open(models.MediaPath(mediaRoot, rel))
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := out.ReadFrom(in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
