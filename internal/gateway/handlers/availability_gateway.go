package handlers

import (
	"github.com/gin-gonic/gin"

	availability "rentora-system/internal/services/availability/handler"
)

type AvailabilityHTTPHandler struct {
	availability *availability.AvailabilityHandler
}

func NewAvailabilityHTTPHandler(availabilityHandler *availability.AvailabilityHandler) *AvailabilityHTTPHandler {
	return &AvailabilityHTTPHandler{
		availability: availabilityHandler,
	}
}

// GET /availability?start=YYYY-MM-DD&end=YYYY-MM-DD
func (s *AvailabilityHTTPHandler) ListAvailability(c *gin.Context) {
	out, err := s.availability.ListAvailability(c.Request.Context(), c.Query("start"), c.Query("end"))
	if err != nil {
		failErr(c, err)
		return
	}
	success(c, out)
}

// GET /availability/items/:id?start=…&end=…
func (s *AvailabilityHTTPHandler) ItemAvailability(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	out, err := s.availability.Available(c.Request.Context(), id, c.Query("start"), c.Query("end"))
	if err != nil {
		failErr(c, err)
		return
	}
	success(c, out)
}

// GET /availability/kits/:id?start=…&end=…
func (s *AvailabilityHTTPHandler) KitAvailability(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	out, err := s.availability.KitAvailability(c.Request.Context(), id, c.Query("start"), c.Query("end"))
	if err != nil {
		failErr(c, err)
		return
	}
	success(c, out)
}
