package models

// Config 構造体はサーバー全体の設定情報を保持します。
type Config struct {
	DBHost     string `json:"db_host"`
	DBUser     string `json:"db_user"`
	DBPassword string `json:"db_password"`
	DBName     string `json:"db_name"`
	DBSSLMode  string `json:"db_sslmode"`

	ListenAddr string `json:"listen_addr"` // 例 ":8080"
	MediaRoot  string `json:"media_root"`  // アップロードファイルの保存先

	// テーブルセッションサーバー(TSS)関連
	InternalTSSURL string `json:"internal_tss_url"` // テーブルID発行に使う内部URL
	TSSURL         string `json:"tss_url"`          // クライアントへ公開するURL
	TSSWSURL       string `json:"tss_ws_url"`

	JWTSecret        string   `json:"jwt_secret"`
	DefaultDiskQuota int64    `json:"default_disk_quota"` // 新規ユーザーのバイト数上限
	ServerName       string   `json:"server_name"`
	ServerVersion    string   `json:"server_version"`
	AllowOrigins     []string `json:"allow_origins"`
}

// ApplyDefaults は未設定の項目にデフォルト値を補う。
func (c *Config) ApplyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
	if c.MediaRoot == "" {
		c.MediaRoot = "media"
	}
	if c.DefaultDiskQuota == 0 {
		c.DefaultDiskQuota = 20 * 1024 * 1024
	}
	if c.ServerName == "" {
		c.ServerName = "local"
	}
	if c.ServerVersion == "" {
		c.ServerVersion = "1.0.0"
	}
}
