package bootstrap

import (
	"context"
	"errors"
	"net"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/cctalk-host/internal/api"
	"github.com/taoyao-code/cctalk-host/internal/app"
	cfgpkg "github.com/taoyao-code/cctalk-host/internal/config"
	"github.com/taoyao-code/cctalk-host/internal/health"
	"github.com/taoyao-code/cctalk-host/internal/metrics"
)

// Version 构建时通过 -ldflags 注入
var Version = "dev"

// Run 统一启动流程，阻塞直到收到 SIGINT/SIGTERM
func Run(cfg *cfgpkg.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return RunContext(ctx, cfg, log, app.OpenSerial, nil)
}

// RunContext ctx 取消即优雅关闭。ln 非 nil 时在其上提供 HTTP 服务（测试用）。
func RunContext(ctx context.Context, cfg *cfgpkg.Config, log *zap.Logger, open app.Opener, ln net.Listener) error {
	log.Info("starting cctalk host", zap.String("version", Version))

	// ========== 阶段1: 初始化基础组件 ==========
	reg, appm := app.NewMetrics()
	metricsHandler := metrics.Handler(reg)
	ready := health.New()
	headers := app.LoadHeaders(cfg.Protocol.HeaderTablePath, log)
	log.Info("basic components initialized", zap.Int("headers", len(headers.Names)))

	// ========== 阶段2: 打开串口（失败直接返回）==========
	drv, err := app.NewDriver(cfg.Serial, open, appm, log)
	if err != nil {
		log.Error("serial initialization failed", zap.String("port", cfg.Serial.Port), zap.Error(err))
		return err
	}
	defer func() {
		if err := drv.Close(); err != nil {
			log.Warn("close serial port", zap.Error(err))
		}
		log.Info("serial port closed")
	}()
	ready.SetSerialReady(true)
	sc := drv.Session.Config()
	log.Info("serial ready",
		zap.String("port", cfg.Serial.Port),
		zap.Int("baud", cfg.Serial.Baud),
		zap.Uint8("address", sc.Address),
		zap.Stringer("mode", sc.Mode),
		zap.Duration("timeout", sc.Timeout),
	)

	// ========== 阶段3: 启动HTTP服务（非阻塞）==========
	httpSrv := app.NewHTTPServer(cfg.HTTP, cfg.Metrics, metricsHandler, ready.Ready, log)
	healthAgg := app.NewHealthAggregator(cfg.Serial, ready, drv)

	handler := api.NewHandler(api.Deps{
		Base:     ctx,
		Session:  drv.Session,
		Scanner:  drv.Scanner,
		Registry: drv.Registry,
		Poller:   drv.Poller,
		Headers:  headers,
		Logger:   log.Named("api"),
	})
	httpSrv.Register(func(r *gin.Engine) {
		api.RegisterRoutes(r, handler, cfg.API, log)
		health.RegisterHTTPRoutes(r, healthAgg)
	})

	httpErr := make(chan error, 1)
	go func() {
		if ln != nil {
			httpErr <- httpSrv.Serve(ln)
			return
		}
		httpErr <- httpSrv.Start()
	}()
	ready.SetHTTPReady(true)
	log.Info("http server started", zap.String("addr", cfg.HTTP.Addr))

	// ========== 阶段4: 可选自动轮询 ==========
	if cfg.Poll.AutoStart {
		if err := drv.Poller.Start(ctx, byte(cfg.Poll.Header), cfg.Poll.Period); err != nil {
			log.Warn("poller auto start failed", zap.Error(err))
		}
	}
	log.Info("all services ready")

	// ========== 阶段5: 等待关闭信号 ==========
	var runErr error
	select {
	case <-ctx.Done():
		log.Info("received shutdown signal, gracefully shutting down...")
	case err := <-httpErr:
		if err != nil {
			log.Error("http server error", zap.Error(err))
			runErr = err
		}
	}
	ready.SetHTTPReady(false)

	drv.Poller.Stop()
	log.Info("poller stopped")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		log.Warn("http shutdown", zap.Error(err))
	}
	log.Info("http server stopped")

	log.Info("shutdown complete")
	return runErr
}
