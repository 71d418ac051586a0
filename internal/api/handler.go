package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/cctalk-host/internal/poller"
	"github.com/taoyao-code/cctalk-host/internal/protocol/cctalk"
	"github.com/taoyao-code/cctalk-host/internal/serialport"
	"github.com/taoyao-code/cctalk-host/internal/session"
)

// Deps 控制 API 依赖
type Deps struct {
	// Base 应用生命周期 ctx，后台轮询挂在它上面而不是请求 ctx
	Base     context.Context
	Session  *session.Session
	Scanner  *session.Scanner
	Registry *session.Registry
	Poller   *poller.Poller
	Headers  *cctalk.HeaderTable
	// ListPorts 默认 serialport.List
	ListPorts func() ([]serialport.Info, error)
	Logger    *zap.Logger
}

// Handler ccTalk 控制 API 处理器
type Handler struct {
	base      context.Context
	sess      *session.Session
	scanner   *session.Scanner
	registry  *session.Registry
	poller    *poller.Poller
	headers   *cctalk.HeaderTable
	listPorts func() ([]serialport.Info, error)
	logger    *zap.Logger
}

// NewHandler 创建处理器
func NewHandler(d Deps) *Handler {
	if d.Base == nil {
		d.Base = context.Background()
	}
	if d.Headers == nil {
		d.Headers = cctalk.DefaultHeaderTable()
	}
	if d.ListPorts == nil {
		d.ListPorts = serialport.List
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Registry == nil {
		d.Registry = session.NewRegistry(0)
	}
	return &Handler{
		base:      d.Base,
		sess:      d.Session,
		scanner:   d.Scanner,
		registry:  d.Registry,
		poller:    d.Poller,
		headers:   d.Headers,
		listPorts: d.ListPorts,
		logger:    d.Logger,
	}
}

// ListHeaders 功能码表
func (h *Handler) ListHeaders(c *gin.Context) {
	list := h.headers.List()
	c.JSON(http.StatusOK, gin.H{"count": len(list), "headers": list})
}

// ListPorts 可用串口
func (h *Handler) ListPorts(c *gin.Context) {
	ports, err := h.listPorts()
	if err != nil {
		h.logger.Error("list serial ports failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list ports", "detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(ports), "ports": ports})
}

// GetSession 当前会话配置
func (h *Handler) GetSession(c *gin.Context) {
	c.JSON(http.StatusOK, h.sessionView())
}

// UpdateSession 修改地址/校验方式/超时
func (h *Handler) UpdateSession(c *gin.Context) {
	var req sessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "detail": err.Error()})
		return
	}

	// 先全部校验再修改，避免部分生效
	var (
		addr byte
		mode cctalk.Mode
		err  error
	)
	if req.Address != nil {
		if *req.Address < 1 || *req.Address > 255 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "address must be 1..255"})
			return
		}
		addr = byte(*req.Address)
	}
	if req.Mode != nil {
		if mode, err = cctalk.ParseMode(*req.Mode); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if req.TimeoutMs != nil && *req.TimeoutMs <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "timeout_ms must be positive"})
		return
	}

	if req.Address != nil {
		_ = h.sess.SetAddress(addr)
	}
	if req.Mode != nil {
		_ = h.sess.SetMode(mode)
	}
	if req.TimeoutMs != nil {
		if err := h.sess.SetTimeout(time.Duration(*req.TimeoutMs) * time.Millisecond); err != nil {
			h.logger.Error("set serial timeout failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to set timeout", "detail": err.Error()})
			return
		}
	}

	view := h.sessionView()
	h.logger.Info("session updated",
		zap.Uint8("address", view.Address),
		zap.Stringer("mode", view.Mode),
		zap.Int64("timeout_ms", view.TimeoutMs),
	)
	c.JSON(http.StatusOK, view)
}

// SendCommand 发送任意 header 与数据
// 无应答返回 504；校验失败仍返回 200，valid=false
func (h *Handler) SendCommand(c *gin.Context) {
	var req commandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "detail": err.Error()})
		return
	}
	header, payload, err := req.bytes()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.sess.Command(c.Request.Context(), header, payload)
	if err != nil {
		code, kind := commandErrorStatus(err)
		if code >= http.StatusInternalServerError && code != http.StatusGatewayTimeout {
			h.logger.Error("command failed", zap.Uint8("header", header), zap.Error(err))
		}
		c.JSON(code, gin.H{"error": kind, "detail": err.Error(), "header": int(header)})
		return
	}
	if h.registry != nil && res.Valid {
		h.registry.Touch(h.sess.Config().Address, time.Now())
	}
	c.JSON(http.StatusOK, newCommandResponse(header, res, h.headers))
}

// Scan 全地址扫描；轮询在扫描期间暂停
func (h *Handler) Scan(c *gin.Context) {
	if h.scanner == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "scanner not configured"})
		return
	}

	if h.poller != nil && h.poller.IsRunning() {
		header, period := h.poller.Params()
		h.poller.Stop()
		defer func() {
			if err := h.poller.Start(h.base, header, period); err != nil && !errors.Is(err, poller.ErrAlreadyRunning) {
				h.logger.Error("resume poller after scan failed", zap.Error(err))
			}
		}()
	}

	start := time.Now()
	devices, err := h.scanner.Scan(c.Request.Context())
	elapsed := time.Since(start)
	if devices == nil {
		devices = []session.Device{}
	}
	if err != nil {
		h.logger.Warn("scan aborted", zap.Error(err), zap.Int("devices", len(devices)))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "scan aborted",
			"detail":  err.Error(),
			"count":   len(devices),
			"devices": devices,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":       len(devices),
		"devices":     devices,
		"duration_ms": elapsed.Milliseconds(),
	})
}

// ListDevices 本次运行发现过的设备
func (h *Handler) ListDevices(c *gin.Context) {
	now := time.Now()
	list := h.registry.List()
	out := make([]deviceView, 0, len(list))
	for _, d := range list {
		out = append(out, deviceView{Device: d, Online: h.registry.IsOnline(d.Address, now)})
	}
	c.JSON(http.StatusOK, gin.H{"count": len(out), "online": h.registry.OnlineCount(now), "devices": out})
}

// StartPoll 启动后台轮询
func (h *Handler) StartPoll(c *gin.Context) {
	var req pollRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "detail": err.Error()})
			return
		}
	}
	header := cctalk.HeaderReadBillEvents
	if req.Header != nil {
		if *req.Header < 0 || *req.Header > 255 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "header must be 0..255"})
			return
		}
		header = *req.Header
	}
	period := time.Duration(req.PeriodMs) * time.Millisecond

	if err := h.poller.Start(h.base, byte(header), period); err != nil {
		if errors.Is(err, poller.ErrAlreadyRunning) {
			c.JSON(http.StatusConflict, gin.H{"error": "already_running"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, h.pollView())
}

// StopPoll 停止后台轮询
func (h *Handler) StopPoll(c *gin.Context) {
	h.poller.Stop()
	c.JSON(http.StatusOK, h.pollView())
}

// GetPoll 轮询状态与最近一次结果
func (h *Handler) GetPoll(c *gin.Context) {
	c.JSON(http.StatusOK, h.pollView())
}

// StreamPoll 以 SSE 推送变化，直到客户端断开
func (h *Handler) StreamPoll(c *gin.Context) {
	ctx := c.Request.Context()
	// 长连接不受 http.Server.WriteTimeout 整体写超时限制
	if err := http.NewResponseController(c.Writer).SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("clear write deadline failed", zap.Error(err))
	}
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	keepalive := time.NewTicker(15 * time.Second)
	defer keepalive.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case u := <-h.poller.Updates():
			c.SSEvent("update", newUpdateView(u))
			c.Writer.Flush()
		case <-keepalive.C:
			c.SSEvent("ping", gin.H{"at": time.Now()})
			c.Writer.Flush()
		}
	}
}

func (h *Handler) sessionView() sessionView {
	cfg := h.sess.Config()
	v := sessionView{Address: cfg.Address, Mode: cfg.Mode, TimeoutMs: cfg.Timeout.Milliseconds()}
	if last := h.sess.LastResponse(); !last.IsZero() {
		v.LastResponse = &last
	}
	return v
}

func (h *Handler) pollView() pollView {
	header, period := h.poller.Params()
	v := pollView{
		Running:  h.poller.IsRunning(),
		Header:   int(header),
		PeriodMs: period.Milliseconds(),
		Stats:    h.poller.Stats(),
	}
	if last, ok := h.poller.Last(); ok {
		v.Last = newUpdateView(last)
	}
	return v
}

func (r commandRequest) bytes() (byte, []byte, error) {
	if *r.Header < 0 || *r.Header > 255 {
		return 0, nil, fmt.Errorf("header %d out of range 0..255", *r.Header)
	}
	if len(r.Data) > cctalk.MaxPayload {
		return 0, nil, fmt.Errorf("%w: %d bytes", cctalk.ErrPayloadTooLong, len(r.Data))
	}
	payload := make([]byte, len(r.Data))
	bad := make([]string, 0)
	for i, v := range r.Data {
		if v < 0 || v > 255 {
			bad = append(bad, fmt.Sprintf("data[%d]=%d", i, v))
			continue
		}
		payload[i] = byte(v)
	}
	if len(bad) > 0 {
		return 0, nil, fmt.Errorf("data out of range 0..255: %s", strings.Join(bad, ", "))
	}
	return byte(*r.Header), payload, nil
}

// commandErrorStatus 会话错误映射到 HTTP 状态码
func commandErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, session.ErrNoResponse):
		return http.StatusGatewayTimeout, "no_response"
	case errors.Is(err, cctalk.ErrPayloadTooLong):
		return http.StatusBadRequest, "payload_too_long"
	case errors.Is(err, cctalk.ErrMalformedFrame):
		return http.StatusBadGateway, "malformed_frame"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "canceled"
	default:
		return http.StatusInternalServerError, "serial_error"
	}
}
