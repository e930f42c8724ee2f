package handler

import (
	"github.com/gin-gonic/gin"

	"slipway/internal/common"
	"slipway/internal/server/middleware"
	"slipway/pkg/api"
)

func (h *Handlers) Login(c *gin.Context) {
	var req api.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Error(c, common.NewErrNo(common.RequestInvalid))
		return
	}

	user, err := h.userDao.GetByUsername(c, req.Username)
	if err != nil {
		common.Error(c, common.NewErrNo(common.UserNotExists))
		return
	}
	if user.Password != common.HashPassword(req.Password) {
		common.Error(c, common.NewErrNo(common.PasswordErr))
		return
	}

	token, err := middleware.GenerateJWT(h.cfg.JWTKey, user.Username, user.Role)
	if err != nil {
		common.Error(c, err)
		return
	}
	common.Success(c, api.LoginResponse{Token: token})
}
