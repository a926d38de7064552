package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	rental "rentora-system/internal/services/rental/handler"
)

type RentalHTTPHandler struct {
	rental *rental.RentalHandler
}

func NewRentalHTTPHandler(rentalHandler *rental.RentalHandler) *RentalHTTPHandler {
	return &RentalHTTPHandler{
		rental: rentalHandler,
	}
}

func (s *RentalHTTPHandler) CreateOrder(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}

	var req rental.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := s.rental.CreateOrder(c.Request.Context(), a, req)
	if err != nil {
		failErr(c, err)
		return
	}
	created(c, order)
}

func (s *RentalHTTPHandler) ListOrders(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}

	orders, err := s.rental.ListOrders(c.Request.Context(), a, c.Query("status"))
	if err != nil {
		failErr(c, err)
		return
	}
	success(c, orders)
}

func (s *RentalHTTPHandler) GetOrder(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	order, err := s.rental.GetOrder(c.Request.Context(), a, id)
	if err != nil {
		failErr(c, err)
		return
	}
	success(c, order)
}

func (s *RentalHTTPHandler) UpdateOrderLines(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req rental.UpdateOrderLinesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := s.rental.UpdateOrderLines(c.Request.Context(), a, id, req)
	if err != nil {
		failErr(c, err)
		return
	}
	success(c, order)
}

func (s *RentalHTTPHandler) ApproveOrder(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req rental.ApproveOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := s.rental.ApproveOrder(c.Request.Context(), a, id, req)
	if err != nil {
		failErr(c, err)
		return
	}
	success(c, order)
}

func (s *RentalHTTPHandler) IssueOrder(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req rental.IssueOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := s.rental.IssueOrder(c.Request.Context(), a, id, req)
	if err != nil {
		failErr(c, err)
		return
	}
	success(c, order)
}

func (s *RentalHTTPHandler) DeclareReturn(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req rental.DeclareReturnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := s.rental.DeclareReturn(c.Request.Context(), a, id, req)
	if err != nil {
		failErr(c, err)
		return
	}
	success(c, order)
}

func (s *RentalHTTPHandler) CheckinOrder(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req rental.CheckinOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := s.rental.CheckinOrder(c.Request.Context(), a, id, req)
	if err != nil {
		failErr(c, err)
		return
	}
	success(c, order)
}

func (s *RentalHTTPHandler) CancelOrder(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	order, err := s.rental.CancelOrder(c.Request.Context(), a, id)
	if err != nil {
		failErr(c, err)
		return
	}
	success(c, order)
}
