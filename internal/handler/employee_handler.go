package handler

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"commission-web/internal/models"
	"commission-web/internal/repository"
	"commission-web/internal/utils"
)

type EmployeeHandler struct {
	employeeRepo *repository.EmployeeRepository
	revenueRepo  *repository.RevenueRepository
}

func NewEmployeeHandler(employeeRepo *repository.EmployeeRepository, revenueRepo *repository.RevenueRepository) *EmployeeHandler {
	return &EmployeeHandler{
		employeeRepo: employeeRepo,
		revenueRepo:  revenueRepo,
	}
}

func (h *EmployeeHandler) GetEmployees(c *fiber.Ctx) error {
	employees, err := h.employeeRepo.GetAllEmployees()
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to retrieve employees", err)
	}
	return utils.SuccessResponse(c, "Employees retrieved", employees)
}

// GetEmployeeEntries lists the commission entries of one employee,
// optionally filtered by source.
func (h *EmployeeHandler) GetEmployeeEntries(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid employee ID", err)
	}

	entries, err := h.revenueRepo.SearchEntries(models.RevenueQuery{
		EmployeeID: id,
		Source:     c.Query("source"),
	})
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to retrieve entries", err)
	}

	params := utils.GetPaginationParams(c)
	meta := utils.CalculatePagination(params.Page, params.Limit, int64(len(entries)))
	start := utils.GetOffset(params.Page, params.Limit)
	if start > len(entries) {
		start = len(entries)
	}
	end := start + params.Limit
	if end > len(entries) {
		end = len(entries)
	}
	return utils.PaginatedResponseBuilder(c, "Entries retrieved", entries[start:end], meta)
}
