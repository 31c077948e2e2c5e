package server

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"judged/internal/judge/model"
	"judged/internal/judge/service"
	appErr "judged/pkg/errors"
	"judged/pkg/utils/logger"
)

// Handler serves the three judge protocol operations.
type Handler struct {
	svc     *service.Service
	version string
}

func NewHandler(svc *service.Service, version string) *Handler {
	return &Handler{svc: svc, version: version}
}

// Register mounts the protocol routes on the router group.
func (h *Handler) Register(r gin.IRoutes) {
	r.POST("/judge", h.Judge)
	r.POST("/ping", h.Ping)
	r.GET("/ping", h.Ping)
	r.POST("/compile_spj", h.CompileSpj)
}

func (h *Handler) Judge(c *gin.Context) {
	var req model.JudgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, appErr.Wrapf(err, appErr.InvalidRequest, "parse judge request failed"))
		return
	}
	results, err := h.svc.Judge(c.Request.Context(), req)
	if err != nil {
		logger.Warn(c.Request.Context(), "judge request failed", zap.String("kind", appErr.KindOf(err)), zap.Error(err))
		writeError(c, err)
		return
	}
	writeOK(c, results)
}

func (h *Handler) Ping(c *gin.Context) {
	status, err := CollectStatus(h.version)
	if err != nil {
		writeError(c, appErr.InternalError(err))
		return
	}
	writeOK(c, status)
}

func (h *Handler) CompileSpj(c *gin.Context) {
	var req model.CompileSpjRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, appErr.Wrapf(err, appErr.InvalidRequest, "parse compile_spj request failed"))
		return
	}
	if err := h.svc.CompileSpj(c.Request.Context(), req); err != nil {
		logger.Warn(c.Request.Context(), "compile_spj failed", zap.String("kind", appErr.KindOf(err)), zap.Error(err))
		writeError(c, err)
		return
	}
	writeOK(c, "success")
}
