package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/qs3c/scrape_go_server/config"
	"github.com/qs3c/scrape_go_server/internal/database"
	"github.com/qs3c/scrape_go_server/internal/repository"
)

var (
	dryRun        = flag.Bool("dry-run", true, "Dry run mode, don't actually delete anything")
	historyExpire = flag.Int("history-expire", 30, "Days to keep concluded scrape histories")
	exportExpire  = flag.Int("export-expire", 7, "Days to keep local CSV exports")
	cleanHistory  = flag.Bool("clean-history", true, "Clean old concluded histories")
	cleanExports  = flag.Bool("clean-exports", true, "Clean old local CSV exports")
)

func main() {
	flag.Parse()

	log.Println("🧹 Starting cleanup task...")
	log.Printf("Mode: dry-run=%v", *dryRun)

	// 加载配置
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	retentionDays := *historyExpire
	if cfg.Cleanup.HistoryRetentionDays > 0 {
		retentionDays = cfg.Cleanup.HistoryRetentionDays
	}

	deletedRows := int64(0)
	deletedFiles := 0
	deletedSize := int64(0)

	// 1. 清理过期的执行历史（仅已结束的行）
	if *cleanHistory {
		log.Printf("\n📜 Cleaning concluded histories older than %d days...", retentionDays)

		db, err := database.NewMySQL(&cfg.Database)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}

		historyRepo := repository.NewHistoryRepository(db)
		cutoff := time.Now().AddDate(0, 0, -retentionDays)

		if *dryRun {
			log.Printf("Would delete concluded histories with end_time before %s", cutoff.Format(time.RFC3339))
		} else {
			rows, err := historyRepo.DeleteOlderThan(cutoff)
			if err != nil {
				log.Fatalf("Failed to delete histories: %v", err)
			}
			deletedRows = rows
			log.Printf("Deleted %d history rows", rows)
		}
	}

	// 2. 清理本地导出目录里的旧 CSV
	if *cleanExports {
		exportDir := cfg.Export.LocalDir
		if exportDir == "" {
			exportDir = "exports"
		}
		log.Printf("\n📦 Cleaning local CSV exports older than %d days in %s...", *exportExpire, exportDir)
		size, count := cleanOldExports(exportDir, *exportExpire, *dryRun)
		deletedSize += size
		deletedFiles += count
	}

	// 输出统计
	log.Println("\n" + strings.Repeat("=", 60))
	log.Println("📊 Cleanup Summary")
	log.Println(strings.Repeat("=", 60))
	log.Printf("Deleted history rows: %d", deletedRows)
	log.Printf("Deleted export files: %d", deletedFiles)
	log.Printf("Freed space: %s", formatSize(deletedSize))
	if *dryRun {
		log.Println("\n⚠️  DRY RUN MODE - Nothing was actually deleted")
		log.Println("   Run with -dry-run=false to actually delete")
	} else {
		log.Println("\n✅ Cleanup completed!")
	}
	log.Println(strings.Repeat("=", 60))
}

// cleanOldExports 清理本地导出目录中的过期 CSV 文件
func cleanOldExports(exportDir string, keepDays int, dryRun bool) (int64, int) {
	expireTime := time.Now().Add(-time.Duration(keepDays) * 24 * time.Hour)
	var totalSize int64
	var count int

	err := filepath.Walk(exportDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if filepath.Ext(path) != ".csv" {
			return nil
		}
		if !info.ModTime().Before(expireTime) {
			return nil
		}

		totalSize += info.Size()
		log.Printf("  - %s (%.2f KB, %s old)",
			path,
			float64(info.Size())/1024,
			time.Since(info.ModTime()).Round(time.Hour))

		if !dryRun {
			if err := os.Remove(path); err != nil {
				log.Printf("    ❌ Failed to delete: %v", err)
				return nil
			}
		}
		count++
		return nil
	})
	if err != nil {
		log.Printf("Failed to walk export dir: %v", err)
		return 0, 0
	}

	log.Printf("Found %d expired export files (total: %s)", count, formatSize(totalSize))
	return totalSize, count
}

// formatSize 格式化文件大小
func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
