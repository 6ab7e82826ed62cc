package manifest

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"nhexserver/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// マニフェストの許可キー。未知のキーはインポート全体を中断させる。
// 非推奨だが黙認するキーは警告だけ出して読み飛ばす。
var (
	armyManifestKeys = map[string]bool{
		"name": true, "bases": true, "tokens": true, "markers": true,
		"defBackImg": true, "defBackImgRect": true,
		"instructionLink": true, "tags": true,
	}
	armyIgnoredKeys = map[string]bool{
		"instructionLink": true, "tags": true,
	}
	tokenManifestKeys = map[string]bool{
		"name": true, "img": true, "imgRect": true, "q": true,
		"backImg": true, "backImgRect": true, "info": true, "secret": true,
		"id": true,
	}
	// エクスポートはトークンIDを含めるが、インポート時は新しいIDを振る
	tokenIgnoredKeys = map[string]bool{"id": true}
)

// ImportOptions はimport_armyコマンドのフラグに対応する。
type ImportOptions struct {
	Name     string // 空でなければマニフェストの名前を上書き
	Public   bool
	Utility  bool
	Official bool // 公式アーミーとして登録する(Custom=false)
}

func checkDictKeys(dict map[string]interface{}, allowed, ignored map[string]bool,
	context string, logger *zap.Logger) error {
	for key := range dict {
		if !allowed[key] {
			return fmt.Errorf("unknown key %q in %s", key, context)
		}
		if ignored[key] {
			logger.Warn("非推奨のキーを無視します",
				zap.String("key", key), zap.String("context", context))
		}
	}
	return nil
}

// ImportArmy はエクスポート形式のzipアーカイブからアーミーを作成する。
// 行の作成は単一トランザクションで行い、途中で失敗したら
// アーミーは一切残らず、コピー済みのメディアも片付ける。
func ImportArmy(db *gorm.DB, logger *zap.Logger, mediaRoot string,
	owner *models.User, zipPath string, opts ImportOptions) (*models.Army, error) {
	tmp, err := os.MkdirTemp("", "army-import-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(tmp)

	if err := extractZip(zipPath, tmp); err != nil {
		return nil, err
	}
	root, err := manifestRoot(tmp)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(root, "info.json"))
	if err != nil {
		return nil, fmt.Errorf("manifest not found: %w", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	if err := checkDictKeys(m, armyManifestKeys, armyIgnoredKeys, "manifest", logger); err != nil {
		return nil, err
	}

	name := opts.Name
	if name == "" {
		name, _ = m["name"].(string)
	}
	if name == "" {
		return nil, fmt.Errorf("manifest has no army name")
	}

	army := &models.Army{
		ID:      models.NewID(),
		Name:    name,
		OwnerID: owner.ID,
		Custom:  !opts.Official,
		Private: !opts.Public,
		Utility: opts.Utility,
	}
	mediaDir := army.MediaDir(mediaRoot)
	if err := os.MkdirAll(mediaDir, 0o755); err != nil {
		return nil, err
	}

	imp := &armyImporter{
		root:      root,
		mediaDir:  mediaDir,
		army:      army,
		resources: map[string]*models.Resource{},
		logger:    logger,
	}
	defBackImg, _ := m["defBackImg"].(string)
	defBackRect, err := toRect(m["defBackImgRect"])
	if err != nil {
		return nil, err
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(army).Error; err != nil {
			return err
		}
		sections := []struct {
			key  string
			kind string
		}{
			{"bases", models.KindHQ},
			{"tokens", models.KindUnit},
			{"markers", models.KindMarker},
		}
		for _, section := range sections {
			entries, err := toList(m[section.key], section.key)
			if err != nil {
				return err
			}
			for _, entry := range entries {
				if err := imp.importToken(tx, entry, section.kind, defBackImg, defBackRect); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		os.RemoveAll(mediaDir)
		return nil, err
	}
	return army, nil
}

type armyImporter struct {
	root      string
	mediaDir  string
	army      *models.Army
	resources map[string]*models.Resource
	logger    *zap.Logger
}

func (imp *armyImporter) importToken(tx *gorm.DB, entry map[string]interface{},
	kind, defBackImg string, defBackRect models.Rect) error {
	if err := checkDictKeys(entry, tokenManifestKeys, tokenIgnoredKeys, "token", imp.logger); err != nil {
		return err
	}
	name, _ := entry["name"].(string)
	if name == "" {
		return fmt.Errorf("token without a name")
	}
	img, _ := entry["img"].(string)
	if img == "" {
		return fmt.Errorf("token %q has no front image", name)
	}
	multiplicity, err := toMultiplicity(entry["q"])
	if err != nil {
		return fmt.Errorf("token %q: %w", name, err)
	}
	frontRect, err := toRect(entry["imgRect"])
	if err != nil {
		return fmt.Errorf("token %q: %w", name, err)
	}
	backRect, err := toRect(entry["backImgRect"])
	if err != nil {
		return fmt.Errorf("token %q: %w", name, err)
	}

	// 裏面の未指定時のデフォルト。マーカーは表面の繰り返し、
	// それ以外はアーミー共通の裏面にフォールバックする。
	backImg, _ := entry["backImg"].(string)
	if backImg == "" {
		if kind == models.KindMarker {
			backImg, backRect = img, frontRect
		} else {
			backImg, backRect = defBackImg, defBackRect
		}
	}
	// q・imgRect・裏面のどれかが欠けたトークンは受け付けない
	if multiplicity == 0 || frontRect == nil || backImg == "" {
		return fmt.Errorf("token %q is missing required values", name)
	}

	front, err := imp.resource(tx, img)
	if err != nil {
		return err
	}
	back, err := imp.resource(tx, backImg)
	if err != nil {
		return err
	}

	// infoは型を問わずそのまま保持する。文字列だけのメモも多い。
	additional := models.JSONMap{}
	if info, ok := entry["info"]; ok && info != nil {
		additional["info"] = info
	}
	if secret, ok := entry["secret"]; ok {
		additional["secret"] = secret
	}
	if len(additional) == 0 {
		additional = nil
	}

	token := models.Token{
		Name:           name,
		Multiplicity:   multiplicity,
		ArmyID:         imp.army.ID,
		FrontImageID:   front.ID,
		FrontImageRect: frontRect,
		BackImageID:    back.ID,
		BackImageRect:  backRect,
		Kind:           kind,
		AdditionalInfo: additional,
	}
	return tx.Create(&token).Error
}

// resource は画像参照をリソース行に解決する。初出のファイルは
// アーカイブからメディアディレクトリへコピーして行を作る。
func (imp *armyImporter) resource(tx *gorm.DB, filename string) (*models.Resource, error) {
	base := path.Base(filepath.ToSlash(filename))
	if res, ok := imp.resources[base]; ok {
		return res, nil
	}
	src := filepath.Join(imp.root, base)
	if _, err := os.Stat(src); err != nil {
		return nil, fmt.Errorf("resource file %q not found in archive", base)
	}
	if err := copyPlainFile(src, filepath.Join(imp.mediaDir, base)); err != nil {
		return nil, err
	}
	res := &models.Resource{
		Name:   strings.TrimSuffix(base, path.Ext(base)),
		ArmyID: imp.army.ID,
		File:   path.Join("armies", imp.army.ID, base),
	}
	if err := tx.Create(res).Error; err != nil {
		return nil, err
	}
	imp.resources[base] = res
	return res, nil
}

func extractZip(zipPath, dst string) error {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return err
	}
	defer r.Close()
	for _, f := range r.File {
		name := filepath.FromSlash(f.Name)
		if filepath.IsAbs(name) || strings.Contains(name, "..") {
			return fmt.Errorf("unsafe path %q in archive", f.Name)
		}
		target := filepath.Join(dst, name)
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		in, err := f.Open()
		if err != nil {
			return err
		}
		out, err := os.Create(target)
		if err != nil {
			in.Close()
			return err
		}
		_, err = io.Copy(out, in)
		in.Close()
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// manifestRoot はinfo.jsonを含むディレクトリを探す。アーカイブの直下か、
// 直下に単一のディレクトリがある場合はその中を見る。
func manifestRoot(tmp string) (string, error) {
	if _, err := os.Stat(filepath.Join(tmp, "info.json")); err == nil {
		return tmp, nil
	}
	entries, err := os.ReadDir(tmp)
	if err != nil {
		return "", err
	}
	if len(entries) == 1 && entries[0].IsDir() {
		sub := filepath.Join(tmp, entries[0].Name())
		if _, err := os.Stat(filepath.Join(sub, "info.json")); err == nil {
			return sub, nil
		}
	}
	return "", fmt.Errorf("info.json not found in archive")
}

func copyPlainFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func toList(v interface{}, context string) ([]map[string]interface{}, error) {
	if v == nil {
		return nil, nil
	}
	raw, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%s must be a list", context)
	}
	list := make([]map[string]interface{}, 0, len(raw))
	for _, item := range raw {
		entry, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("%s entries must be objects", context)
		}
		list = append(list, entry)
	}
	return list, nil
}

func toRect(v interface{}) (models.Rect, error) {
	if v == nil {
		return nil, nil
	}
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("rect must be an object")
	}
	return models.Rect(m), nil
}

func toMultiplicity(v interface{}) (int, error) {
	if v == nil {
		return 0, nil
	}
	n, ok := v.(float64)
	if !ok || n != float64(int(n)) {
		return 0, fmt.Errorf("q must be an integer")
	}
	q := int(n)
	if q < 1 || q > models.MaxMultiplicity {
		return 0, fmt.Errorf("q must be between 1 and %d", models.MaxMultiplicity)
	}
	return q, nil
}
