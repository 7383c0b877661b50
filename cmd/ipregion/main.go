// 程序入口：加载 .env、初始化日志与配置后交给 cobra 命令树
package main

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"ipregion/internal/config"
	"ipregion/internal/logger"
)

func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join("data", "env", ".env"))
	l := logger.Setup()
	cfg, err := config.FromEnv()
	if err != nil {
		l.Error("config_error", "err", err)
		os.Exit(2)
	}
	if err := newCLI(cfg).Execute(); err != nil {
		os.Exit(1)
	}
}
