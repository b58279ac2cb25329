package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"

	_ "github.com/lib/pq" // PostgreSQL driver
	"go.uber.org/zap"

	"github.com/aihub/vectorstore-go/internal/config"
	"github.com/aihub/vectorstore-go/internal/database"
)

func main() {
	var action = flag.String("action", "up", "Migration action: up, down, version, goto")
	var version = flag.Uint("version", 0, "Target version for -action goto")
	var path = flag.String("path", "./db/migrations", "Migration files directory")
	flag.Parse()

	// 初始化配置
	if err := config.LoadConfig(); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 连接数据库
	db, err := sql.Open("postgres", config.AppConfig.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	zapLogger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	mm, err := database.NewMigrationManager(db, *path, zapLogger)
	if err != nil {
		log.Fatalf("Failed to create migration manager: %v", err)
	}
	defer mm.Close()

	switch *action {
	case "up":
		err = mm.Up()
	case "down":
		err = mm.Down()
	case "goto":
		err = mm.MigrateTo(*version)
	case "version":
		v, dirty, verr := mm.Version()
		if verr != nil {
			err = verr
			break
		}
		fmt.Printf("version=%d dirty=%v\n", v, dirty)
	default:
		fmt.Fprintf(os.Stderr, "unknown action: %s\n", *action)
		os.Exit(2)
	}

	if err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
}
