package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	rental "rentora-system/internal/services/rental/handler"
)

type LostItemHTTPHandler struct {
	rental *rental.RentalHandler
}

func NewLostItemHTTPHandler(rentalHandler *rental.RentalHandler) *LostItemHTTPHandler {
	return &LostItemHTTPHandler{
		rental: rentalHandler,
	}
}

func (s *LostItemHTTPHandler) ListLostItems(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}

	lost, err := s.rental.ListLostItems(c.Request.Context(), a, c.Query("status"))
	if err != nil {
		failErr(c, err)
		return
	}
	success(c, lost)
}

func (s *LostItemHTTPHandler) GetLostItem(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	lost, err := s.rental.GetLostItem(c.Request.Context(), a, id)
	if err != nil {
		failErr(c, err)
		return
	}
	success(c, lost)
}

func (s *LostItemHTTPHandler) ResolveLostItem(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req rental.ResolveLostItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}

	lost, err := s.rental.ResolveLostItem(c.Request.Context(), a, id, req)
	if err != nil {
		failErr(c, err)
		return
	}
	success(c, lost)
}

func (s *LostItemHTTPHandler) ReopenLostItem(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	lost, err := s.rental.ReopenLostItem(c.Request.Context(), a, id)
	if err != nil {
		failErr(c, err)
		return
	}
	success(c, lost)
}
