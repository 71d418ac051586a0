package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/taoyao-code/cctalk-host/internal/app/bootstrap"
	cfgpkg "github.com/taoyao-code/cctalk-host/internal/config"
	"github.com/taoyao-code/cctalk-host/internal/logging"
)

func main() {
	fs := pflag.NewFlagSet("cctalk-host", pflag.ExitOnError)
	configPath := fs.StringP("config", "c", "", "config file (default $CCTALK_CONFIG or configs/cctalk.yaml)")
	mode := fs.StringP("mode", "m", "crc16", "integrity mode for seal/unseal: crc16 | checksum8")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: cctalk-host [flags] [seal|unseal|ports [bytes...]]\n\n")
		fs.PrintDefaults()
	}
	_ = fs.Parse(os.Args[1:])

	// 离线工具：不打开串口、不启动服务
	if args := fs.Args(); len(args) > 0 {
		os.Exit(runTool(os.Stdout, os.Stderr, *mode, args))
	}

	// 1) 加载配置
	cfg, err := cfgpkg.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(2)
	}

	// 2) 初始化日志
	logger, err := logging.InitLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintln(os.Stderr, "init logger:", err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	// 3) 启动并阻塞到退出信号
	if err := bootstrap.Run(cfg, zap.L()); err != nil {
		zap.L().Error("cctalk host exited", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}
