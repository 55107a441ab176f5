// suprpc-server runs a demo RPC server hosting the Add method, either
// standalone or announced to a registry server (and optionally mirrored
// into etcd).
package main

import (
	"flag"
	"os"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/sis-shen/suprpc-json/message"
	"github.com/sis-shen/suprpc-json/middleware"
	"github.com/sis-shen/suprpc-json/server"
	"github.com/sis-shen/suprpc-json/suplog"
)

type config struct {
	IP            string   `yaml:"ip"`
	Port          int      `yaml:"port"`
	RegistryIP    string   `yaml:"registry_ip"`
	RegistryPort  int      `yaml:"registry_port"`
	EtcdEndpoints []string `yaml:"etcd_endpoints"`
	LogFile       string   `yaml:"log_file"`
	LogLevel      string   `yaml:"log_level"`
}

func loadConfig(path string) (*config, error) {
	cfg := &config{IP: "127.0.0.1", Port: 9090, LogLevel: "info"}
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
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		suplog.S().Fatalf("load config: %v", err)
	}
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}
	if err := suplog.Init(cfg.LogFile != "", cfg.LogFile, level); err != nil {
		suplog.S().Fatalf("init logger: %v", err)
	}

	opts := []server.RpcServerOption{
		server.WithMiddleware(middleware.Recovery(), middleware.Logging(), middleware.Timeout(5*time.Second)),
	}
	if cfg.RegistryPort != 0 {
		opts = append(opts, server.WithRegistry(message.Address{IP: cfg.RegistryIP, Port: cfg.RegistryPort}))
	}
	if len(cfg.EtcdEndpoints) > 0 {
		opts = append(opts, server.WithEtcdMirror(cfg.EtcdEndpoints))
	}

	srv, err := server.NewRpcServer(message.Address{IP: cfg.IP, Port: cfg.Port}, opts...)
	if err != nil {
		suplog.S().Fatalf("rpc server: %v", err)
	}

	add, err := server.NewSDescribeFactory().
		SetMethodName("Add").
		AppendParamDesc("num1", server.VIntegral).
		AppendParamDesc("num2", server.VIntegral).
		SetReturnType(server.VIntegral).
		SetCallback(func(params map[string]any) (any, error) {
			num1 := int(params["num1"].(float64))
			num2 := int(params["num2"].(float64))
			suplog.S().Debugf("Add invoked with %d, %d", num1, num2)
			return num1 + num2, nil
		}).
		Build()
	if err != nil {
		suplog.S().Fatalf("describe Add: %v", err)
	}

	go func() {
		// Let the listener come up before announcing the method.
		time.Sleep(200 * time.Millisecond)
		if err := srv.RegisterMethod(add); err != nil {
			suplog.S().Fatalf("register Add: %v", err)
		}
	}()

	suplog.S().Infof("rpc server starting on %s:%d", cfg.IP, cfg.Port)
	if err := srv.Start(); err != nil {
		suplog.S().Fatalf("rpc server: %v", err)
	}
}
