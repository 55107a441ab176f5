// suprpc-topicserver runs the standalone topic server for pub/sub.
package main

import (
	"flag"
	"os"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/sis-shen/suprpc-json/server"
	"github.com/sis-shen/suprpc-json/suplog"
)

type config struct {
	Port     int    `yaml:"port"`
	LogFile  string `yaml:"log_file"`
	LogLevel string `yaml:"log_level"`
}

func loadConfig(path string) (*config, error) {
	cfg := &config{Port: 9070, LogLevel: "info"}
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func main() {
	configPath := flag.String("config", "", "path to YAML config")
	port := flag.Int("port", 0, "listen port (overrides config)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		suplog.S().Fatalf("load config: %v", err)
	}
	if *port != 0 {
		cfg.Port = *port
	}
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}
	if err := suplog.Init(cfg.LogFile != "", cfg.LogFile, level); err != nil {
		suplog.S().Fatalf("init logger: %v", err)
	}

	suplog.S().Infof("topic server starting on port %d", cfg.Port)
	srv := server.NewTopicServer(cfg.Port)
	if err := srv.Start(); err != nil {
		suplog.S().Fatalf("topic server: %v", err)
	}
}
