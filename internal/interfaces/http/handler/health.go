package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthChecker 依赖健康检查
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Dependency 就绪检查的一个依赖
type Dependency struct {
	Name     string
	Checker  HealthChecker
	Required bool
}

// HealthHandler 健康检查处理器
type HealthHandler struct {
	version string
	mode    string
	deps    []Dependency
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(version, mode string, deps ...Dependency) *HealthHandler {
	return &HealthHandler{version: version, mode: mode, deps: deps}
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Mode    string `json:"mode,omitempty"`
}

type readinessCheck struct {
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	LatencyMs int64  `json:"latencyMs,omitempty"`
}

type readinessResponse struct {
	Status string                     `json:"status"`
	Checks map[string]*readinessCheck `json:"checks,omitempty"`
}

// Health 存活检查
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok", Version: h.version})
}

// GenerationHealth 生成服务健康检查，附带编排模式与依赖状态
func (h *HealthHandler) GenerationHealth(c *gin.Context) {
	_, checks := h.check(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "novel-generation",
		"mode":    h.mode,
		"version": h.version,
		"checks":  checks,
	})
}

// Ready 就绪检查，必需依赖失败时返回 503
func (h *HealthHandler) Ready(c *gin.Context) {
	ready, checks := h.check(c.Request.Context())
	resp := readinessResponse{Status: "ok", Checks: checks}
	if !ready {
		resp.Status = "not_ready"
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Live 存活检查
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (h *HealthHandler) check(ctx context.Context) (bool, map[string]*readinessCheck) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	ready := true
	checks := make(map[string]*readinessCheck, len(h.deps))
	for _, d := range h.deps {
		if d.Checker == nil {
			checks[d.Name] = &readinessCheck{Status: "disabled"}
			if d.Required {
				checks[d.Name].Status = "missing"
				ready = false
			}
			continue
		}
		start := time.Now()
		err := d.Checker.HealthCheck(ctx)
		check := &readinessCheck{Status: "ok", LatencyMs: time.Since(start).Milliseconds()}
		if err != nil {
			check.Error = err.Error()
			check.Status = "degraded"
			if d.Required {
				check.Status = "error"
				ready = false
			}
		}
		checks[d.Name] = check
	}
	return ready, checks
}
