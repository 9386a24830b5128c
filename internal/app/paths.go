package app

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	dirConfigs = "configs"
	dirData    = "data"
	dirLogs    = "logs"
	dirAssets  = "assets"

	configEnv = "MIROTOK_CONFIG"
)

var configFilePath = filepath.Join(dirConfigs, "config.json")

// configPath is MIROTOK_CONFIG or configs/config.json.
func configPath() string {
	if p := os.Getenv(configEnv); p != "" {
		return p
	}
	return configFilePath
}

func tablePath(assetsDir string) string {
	if assetsDir == "" {
		assetsDir = dirAssets
	}
	return filepath.Join(assetsDir, "table.png")
}

func initAppLayout() {
	for _, dir := range []string{dirConfigs, dirData, dirLogs} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			fmt.Printf("⚠️ Не удалось создать каталог %s: %v\n", dir, err)
		}
	}
}
