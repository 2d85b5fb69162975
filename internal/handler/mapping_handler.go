package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"commission-web/internal/models"
	"commission-web/internal/repository"
	"commission-web/internal/utils"
)

// MappingHandler manages the WIFO code tables. Changes take effect on
// the next validation run; the pipeline snapshots the tables per batch.
type MappingHandler struct {
	mappingRepo *repository.MappingRepository
}

func NewMappingHandler(mappingRepo *repository.MappingRepository) *MappingHandler {
	return &MappingHandler{mappingRepo: mappingRepo}
}

type categoryMappingRequest struct {
	Code     string `json:"code"`
	Category string `json:"category"`
	IsAlias  bool   `json:"is_alias"`
}

func (h *MappingHandler) CreateCategoryMapping(c *fiber.Ctx) error {
	var req categoryMappingRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	req.Code = strings.TrimSpace(req.Code)
	if req.Code == "" {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Code is required", nil)
	}
	if !req.IsAlias && strings.TrimSpace(req.Category) == "" {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Category is required for non-alias codes", nil)
	}

	mapping := &models.CategoryMapping{
		Code:     req.Code,
		Category: strings.TrimSpace(req.Category),
		IsAlias:  req.IsAlias,
		IsActive: true,
	}
	if err := h.mappingRepo.CreateCategoryMapping(mapping); err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create category mapping", err)
	}
	return utils.SuccessResponse(c, "Category mapping created", mapping)
}

type provisionTypeMappingRequest struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

func (h *MappingHandler) CreateProvisionTypeMapping(c *fiber.Ctx) error {
	var req provisionTypeMappingRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	req.Code = strings.TrimSpace(req.Code)
	req.Name = strings.TrimSpace(req.Name)
	if req.Code == "" || req.Name == "" {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Code and name are required", nil)
	}

	mapping := &models.ProvisionTypeMapping{
		Code:     req.Code,
		Name:     req.Name,
		IsActive: true,
	}
	if err := h.mappingRepo.CreateProvisionTypeMapping(mapping); err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create provision type mapping", err)
	}
	return utils.SuccessResponse(c, "Provision type mapping created", mapping)
}
