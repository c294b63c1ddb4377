package config

import (
	"os"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

// LoadEnv 读取 .env（ENV_FILE 可覆盖路径）。文件不存在时只用进程环境变量。
func LoadEnv() {
	path := os.Getenv("ENV_FILE")
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if os.IsNotExist(err) {
			log.WithField("file", path).Info("no env file, using process environment")
			return
		}
		log.WithField("file", path).WithError(err).Warn("failed to load env file")
		return
	}
	log.WithField("file", path).Info("env file loaded")
}
