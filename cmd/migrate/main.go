package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/bucketshare/bucketshare-backend/pkg/config"
	"github.com/bucketshare/bucketshare-backend/pkg/db"
	"github.com/bucketshare/bucketshare-backend/pkg/logger"
	"github.com/bucketshare/bucketshare-backend/pkg/migrate"
)

const usage = `usage: migrate -cmd <command> [flags]

commands needing a database: up, down, status, redo, version
offline commands:            create, validate`

func main() {
	cmd := flag.String("cmd", "up", "migration command")
	dir := flag.String("dir", "", "read migrations from this directory instead of the embedded set")
	name := flag.String("name", "", "migration name for -cmd=create")
	version := flag.String("version", "", "target YYYYMMDDHHMMSS for -cmd=version")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	// create and validate run in CI without a database or full env
	switch *cmd {
	case "create":
		target := *dir
		if target == "" {
			target = migrate.DefaultDir
		}
		path, err := migrate.CreateSQLMigration(target, *name, time.Now())
		exitOn(err, "create migration")
		fmt.Println("created", path)
		return
	case "validate":
		fsys := migrate.Embedded()
		if *dir != "" {
			fsys = os.DirFS(*dir)
		}
		exitOn(migrate.Validate(fsys), "validate migrations")
		fmt.Println("migrations valid")
		return
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	exitOn(err, "load config")

	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":    cfg.App.Env,
		"cmd":    *cmd,
		"driver": cfg.DB.Driver,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer dbClient.Close()

	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		logg.Error(ctx, "failed to extract sql.DB", err)
		os.Exit(1)
	}
	src := migrate.Source{Dialect: migrate.DialectFor(cfg.DB.Driver), Dir: *dir}

	switch *cmd {
	case "up", "down", "status", "redo":
		err = migrate.Run(ctx, sqlDB, src, *cmd)
	case "version":
		if *version == "" {
			err = fmt.Errorf("-version is required")
			break
		}
		err = migrate.MigrateToVersion(ctx, sqlDB, src, *version)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		logg.Error(ctx, "migration failed", err)
		dbClient.Close()
		os.Exit(1)
	}
	logg.Info(ctx, "migration finished")
}

func exitOn(err error, action string) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "%s: %v\n", action, err)
	os.Exit(1)
}
