package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/veselinppetkov/orders-app-sub000/internal/model"
	"github.com/veselinppetkov/orders-app-sub000/internal/module"
	"github.com/veselinppetkov/orders-app-sub000/pkg/response"
)

type ExpenseHandler struct {
	expenses *module.Expenses
}

func NewExpenseHandler(expenses *module.Expenses) *ExpenseHandler {
	return &ExpenseHandler{expenses: expenses}
}

func (h *ExpenseHandler) RegisterRoutes(router *gin.RouterGroup) {
	expenses := router.Group("/api/expenses")
	{
		expenses.GET("", h.GetExpenses)
		expenses.POST("", h.CreateExpense)
		expenses.POST("/reset", h.ResetMonth)
		expenses.PUT("/:id", h.UpdateExpense)
		expenses.DELETE("/:id", h.DeleteExpense)
	}
}

// ResetMonth restores a month's expense list to the default template.
func (h *ExpenseHandler) ResetMonth(c *gin.Context) {
	month := c.Query("month")
	if month == "" {
		month = model.CurrentMonthKey()
	}

	expenses, err := h.expenses.ResetMonth(month)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, gin.H{"month": month, "expenses": expenses})
}

// GetExpenses returns one month's expenses, template defaults included.
func (h *ExpenseHandler) GetExpenses(c *gin.Context) {
	month := c.Query("month")
	if month == "" {
		month = model.CurrentMonthKey()
	}

	expenses, err := h.expenses.GetExpenses(c.Request.Context(), month)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, gin.H{
		"month":    month,
		"expenses": expenses,
		"totalEUR": h.expenses.MonthTotal(month),
	})
}

func (h *ExpenseHandler) CreateExpense(c *gin.Context) {
	var req module.ExpenseInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}
	if req.Month == "" {
		req.Month = model.CurrentMonthKey()
	}

	e, err := h.expenses.Create(c.Request.Context(), req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Created(c, e)
}

func (h *ExpenseHandler) UpdateExpense(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "expense id must be numeric"))
		return
	}
	var req module.ExpenseInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}
	month := c.Query("month")
	if month == "" {
		month = model.CurrentMonthKey()
	}

	e, err := h.expenses.Update(c.Request.Context(), month, id, req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, e)
}

func (h *ExpenseHandler) DeleteExpense(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "expense id must be numeric"))
		return
	}
	month := c.Query("month")
	if month == "" {
		month = model.CurrentMonthKey()
	}

	if err := h.expenses.Delete(c.Request.Context(), month, id); err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, gin.H{"deleted": id, "month": month})
}
