package models

import (
	"io"
	"os"
	"path/filepath"
)

// ArmyMediaDir はアーミー専用のメディアディレクトリを返す。
// ディレクトリはアーミーのライフサイクルが専有する。
func ArmyMediaDir(mediaRoot, armyID string) string {
	return filepath.Join(mediaRoot, "armies", armyID)
}

// MediaPath はDBに保存された相対パスをディスク上のパスへ変換する。
func MediaPath(mediaRoot, rel string) string {
	return filepath.Join(mediaRoot, filepath.FromSlash(rel))
}

// CopyDir は src ディレクトリを dst へ再帰的にコピーする。
func CopyDir(src, dst string) error {
	return filepath.WalkDir(src, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(p, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
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
