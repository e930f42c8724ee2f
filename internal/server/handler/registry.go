package handler

import (
	"github.com/gin-gonic/gin"

	"slipway/internal/common"
	"slipway/internal/server/model"
	"slipway/pkg/api"
)

func (h *Handlers) ListRegistries(c *gin.Context) {
	registries, err := h.registryDao.List(c)
	if err != nil {
		common.Error(c, err)
		return
	}
	briefs := make([]api.RegistryRequest, len(registries))
	for i, registry := range registries {
		briefs[i] = api.RegistryRequest{
			BaseName:    registry.BaseName,
			DisplayName: registry.Display(),
			Username:    registry.Username,
			Email:       registry.Email,
			Insecure:    registry.Insecure,
		}
	}
	common.Success(c, briefs)
}

func (h *Handlers) CreateRegistry(c *gin.Context) {
	var req api.RegistryRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.BaseName == "" {
		common.Error(c, common.NewErrNo(common.RequestInvalid))
		return
	}

	registry := &model.AuthenticatedRegistry{
		BaseName:    req.BaseName,
		DisplayName: req.DisplayName,
		Username:    req.Username,
		Password:    req.Password,
		Email:       req.Email,
		Insecure:    req.Insecure,
	}
	if err := h.registryDao.Create(c, registry); err != nil {
		common.Error(c, err)
		return
	}
	common.Success(c, nil)
}

func (h *Handlers) UpdateRegistry(c *gin.Context) {
	registry, err := h.registryDao.GetByBaseName(c, c.Param("base_name"))
	if err != nil {
		common.Error(c, common.NewErrNo(common.RequestInvalid))
		return
	}

	var req api.RegistryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Error(c, common.NewErrNo(common.RequestInvalid))
		return
	}
	registry.DisplayName = req.DisplayName
	registry.Username = req.Username
	if req.Password != "" {
		registry.Password = req.Password
	}
	registry.Email = req.Email
	registry.Insecure = req.Insecure

	if err := h.registryDao.Update(c, registry); err != nil {
		common.Error(c, err)
		return
	}
	common.Success(c, nil)
}

func (h *Handlers) DeleteRegistry(c *gin.Context) {
	if err := h.registryDao.Delete(c, c.Param("base_name")); err != nil {
		common.Error(c, err)
		return
	}
	common.Success(c, nil)
}
