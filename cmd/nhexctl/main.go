// nhexctl はアーミー・ボード・エモートの入出力を行う管理コマンド。
// サーバーと同じconfig.jsonを読み、同じデータベースとメディアルートを操作する。
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"nhexserver/database"
	"nhexserver/handlers"
	"nhexserver/manifest"
	"nhexserver/models"
	"nhexserver/utils"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const usageText = `usage: nhexctl <command> [options]

commands:
  export_army [-u user] <name|*> <path>
  export_board <name|*> <path>
  export_emote <name|*> <path>
  export_server_info [-u user] <path>
  export_all [-u user] <path>
  import_army [-n name] [-p] [-u] [-o] <owner> <zip...>
  remove_all_armies

config.json is read from the working directory, or from $NHEX_CONFIG.
`

func main() {
	logger, err := utils.InitLogger()
	if err != nil {
		fmt.Fprintln(os.Stderr, "nhexctl:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usageText)
		os.Exit(2)
	}

	cfgPath := os.Getenv("NHEX_CONFIG")
	if cfgPath == "" {
		cfgPath = "config.json"
	}
	cfg, err := database.LoadConfig(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "nhexctl:", err)
		os.Exit(1)
	}
	db, err := database.InitPostgreSQL(cfg, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "nhexctl:", err)
		os.Exit(1)
	}

	ctl := &controller{db: db, logger: logger, cfg: &cfg}
	if err := ctl.run(os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintln(os.Stderr, "nhexctl:", err)
		os.Exit(1)
	}
}

type controller struct {
	db     *gorm.DB
	logger *zap.Logger
	cfg    *models.Config
}

func (ctl *controller) run(command string, args []string) error {
	switch command {
	case "export_army":
		return ctl.exportArmy(args)
	case "export_board":
		return ctl.exportBoard(args)
	case "export_emote":
		return ctl.exportEmote(args)
	case "export_server_info":
		return ctl.exportServerInfo(args)
	case "export_all":
		return ctl.exportAll(args)
	case "import_army":
		return ctl.importArmy(args)
	case "remove_all_armies":
		return ctl.removeAllArmies(args)
	default:
		fmt.Fprint(os.Stderr, usageText)
		return fmt.Errorf("unknown command %q", command)
	}
}

// findUser はユーザー名をユーザーに解決する。見つからなければエラー。
func (ctl *controller) findUser(username string) (*models.User, error) {
	var user models.User
	err := ctl.db.First(&user, "username = ?", username).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("user %q not found", username)
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// selectArmies は名前（"*"で全件）と任意の所有者でアーミーを絞り込む。
func (ctl *controller) selectArmies(name, username string) ([]models.Army, error) {
	q := ctl.db
	if username != "" {
		user, err := ctl.findUser(username)
		if err != nil {
			return nil, err
		}
		q = q.Where("owner_id = ?", user.ID)
	}
	if name != "*" {
		q = q.Where("name = ?", name)
	}
	var armies []models.Army
	if err := q.Order("my_order").Find(&armies).Error; err != nil {
		return nil, err
	}
	if len(armies) == 0 {
		return nil, fmt.Errorf("no armies match %q", name)
	}
	return armies, nil
}

func (ctl *controller) exportArmy(args []string) error {
	fs := flag.NewFlagSet("export_army", flag.ExitOnError)
	username := fs.String("u", "", "limit to armies owned by this user")
	fs.Parse(args)
	if fs.NArg() != 2 {
		return fmt.Errorf("usage: export_army [-u user] <name|*> <path>")
	}
	armies, err := ctl.selectArmies(fs.Arg(0), *username)
	if err != nil {
		return err
	}
	for i := range armies {
		if err := manifest.ExportArmy(ctl.db, ctl.cfg.MediaRoot, &armies[i], fs.Arg(1)); err != nil {
			return err
		}
		fmt.Printf("exported army %s (%s)\n", armies[i].Name, armies[i].ID)
	}
	return nil
}

func (ctl *controller) exportBoard(args []string) error {
	fs := flag.NewFlagSet("export_board", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() != 2 {
		return fmt.Errorf("usage: export_board <name|*> <path>")
	}
	q := ctl.db
	if fs.Arg(0) != "*" {
		q = q.Where("name = ?", fs.Arg(0))
	}
	var boards []models.Board
	if err := q.Order("default_priority").Find(&boards).Error; err != nil {
		return err
	}
	if len(boards) == 0 {
		return fmt.Errorf("no boards match %q", fs.Arg(0))
	}
	for i := range boards {
		if err := manifest.ExportBoard(ctl.cfg.MediaRoot, &boards[i], fs.Arg(1)); err != nil {
			return err
		}
		fmt.Printf("exported board %s (%s)\n", boards[i].Name, boards[i].ID)
	}
	return nil
}

func (ctl *controller) exportEmote(args []string) error {
	fs := flag.NewFlagSet("export_emote", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() != 2 {
		return fmt.Errorf("usage: export_emote <name|*> <path>")
	}
	q := ctl.db.Preload("Alternatives")
	if fs.Arg(0) != "*" {
		q = q.Where("name = ?", fs.Arg(0))
	}
	var emotes []models.Emote
	if err := q.Find(&emotes).Error; err != nil {
		return err
	}
	if len(emotes) == 0 {
		return fmt.Errorf("no emotes match %q", fs.Arg(0))
	}
	for i := range emotes {
		if err := manifest.ExportEmote(ctl.cfg.MediaRoot, &emotes[i], fs.Arg(1)); err != nil {
			return err
		}
		fmt.Printf("exported emote %s (%s)\n", emotes[i].Name, emotes[i].ID)
	}
	return nil
}

func (ctl *controller) exportServerInfo(args []string) error {
	fs := flag.NewFlagSet("export_server_info", flag.ExitOnError)
	username := fs.String("u", "", "build the army list as seen by this user")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: export_server_info [-u user] <path>")
	}
	var user *models.User
	if *username != "" {
		var err error
		if user, err = ctl.findUser(*username); err != nil {
			return err
		}
	}
	info, err := handlers.GetServerInfo(context.Background(), ctl.db, nil, ctl.logger, ctl.cfg, user)
	if err != nil {
		return err
	}
	return manifest.WriteJSON(fs.Arg(0), info)
}

func (ctl *controller) exportAll(args []string) error {
	fs := flag.NewFlagSet("export_all", flag.ExitOnError)
	username := fs.String("u", "", "limit armies to this user")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: export_all [-u user] <path>")
	}
	dest := fs.Arg(0)

	if armies, err := ctl.selectArmies("*", *username); err == nil {
		for i := range armies {
			if err := manifest.ExportArmy(ctl.db, ctl.cfg.MediaRoot, &armies[i],
				filepath.Join(dest, "armies")); err != nil {
				return err
			}
		}
	} else if *username != "" {
		return err
	}

	var boards []models.Board
	if err := ctl.db.Order("default_priority").Find(&boards).Error; err != nil {
		return err
	}
	for i := range boards {
		if err := manifest.ExportBoard(ctl.cfg.MediaRoot, &boards[i],
			filepath.Join(dest, "boards")); err != nil {
			return err
		}
	}

	var emotes []models.Emote
	if err := ctl.db.Preload("Alternatives").Find(&emotes).Error; err != nil {
		return err
	}
	for i := range emotes {
		if err := manifest.ExportEmote(ctl.cfg.MediaRoot, &emotes[i],
			filepath.Join(dest, "emotes")); err != nil {
			return err
		}
	}

	var user *models.User
	if *username != "" {
		var err error
		if user, err = ctl.findUser(*username); err != nil {
			return err
		}
	}
	info, err := handlers.GetServerInfo(context.Background(), ctl.db, nil, ctl.logger, ctl.cfg, user)
	if err != nil {
		return err
	}
	return manifest.WriteJSON(filepath.Join(dest, "serverInfo.json"), info)
}

func (ctl *controller) importArmy(args []string) error {
	fs := flag.NewFlagSet("import_army", flag.ExitOnError)
	name := fs.String("n", "", "override the army name from the manifest")
	public := fs.Bool("p", false, "create the army as public")
	utility := fs.Bool("u", false, "mark the army as a utility army")
	official := fs.Bool("o", false, "register as an official (non-custom) army")
	fs.Parse(args)
	if fs.NArg() < 2 {
		return fmt.Errorf("usage: import_army [-n name] [-p] [-u] [-o] <owner> <zip...>")
	}
	owner, err := ctl.findUser(fs.Arg(0))
	if err != nil {
		return err
	}
	if *name != "" && fs.NArg() > 2 {
		return fmt.Errorf("-n cannot be combined with multiple archives")
	}
	for _, zipPath := range fs.Args()[1:] {
		opts := manifest.ImportOptions{
			Name:     *name,
			Public:   *public,
			Utility:  *utility,
			Official: *official,
		}
		army, err := manifest.ImportArmy(ctl.db, ctl.logger, ctl.cfg.MediaRoot, owner, zipPath, opts)
		if err != nil {
			return fmt.Errorf("%s: %w", zipPath, err)
		}
		fmt.Printf("imported army %s (%s)\n", army.Name, army.ID)
	}
	return nil
}

func (ctl *controller) removeAllArmies(args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("usage: remove_all_armies")
	}
	var armies []models.Army
	if err := ctl.db.Find(&armies).Error; err != nil {
		return err
	}
	for i := range armies {
		if err := armies[i].Delete(ctl.db, ctl.cfg.MediaRoot); err != nil {
			return err
		}
		fmt.Printf("removed army %s (%s)\n", armies[i].Name, armies[i].ID)
	}
	return nil
}
