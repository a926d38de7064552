package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	catalog "rentora-system/internal/services/catalog/handler"
)

type CatalogHTTPHandler struct {
	catalog *catalog.CatalogHandler
}

func NewCatalogHTTPHandler(catalogHandler *catalog.CatalogHandler) *CatalogHTTPHandler {
	return &CatalogHTTPHandler{
		catalog: catalogHandler,
	}
}

func (s *CatalogHTTPHandler) ListItems(c *gin.Context) {
	items, err := s.catalog.ListItems(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	success(c, items)
}

func (s *CatalogHTTPHandler) GetItem(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	item, err := s.catalog.GetItem(c.Request.Context(), id)
	if err != nil {
		failErr(c, err)
		return
	}
	success(c, item)
}

func (s *CatalogHTTPHandler) CreateItem(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}

	var req catalog.CreateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}

	item, err := s.catalog.CreateItem(c.Request.Context(), a, req)
	if err != nil {
		failErr(c, err)
		return
	}
	created(c, item)
}

func (s *CatalogHTTPHandler) AdjustStock(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req catalog.AdjustStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}

	item, err := s.catalog.AdjustStock(c.Request.Context(), a, id, req)
	if err != nil {
		failErr(c, err)
		return
	}
	success(c, item)
}

func (s *CatalogHTTPHandler) RetireItem(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	item, err := s.catalog.RetireItem(c.Request.Context(), a, id)
	if err != nil {
		failErr(c, err)
		return
	}
	success(c, item)
}

func (s *CatalogHTTPHandler) ReactivateItem(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	item, err := s.catalog.ReactivateItem(c.Request.Context(), a, id)
	if err != nil {
		failErr(c, err)
		return
	}
	success(c, item)
}

func (s *CatalogHTTPHandler) ListKits(c *gin.Context) {
	kits, err := s.catalog.ListKits(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	success(c, kits)
}

func (s *CatalogHTTPHandler) GetKit(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	kit, err := s.catalog.GetKit(c.Request.Context(), id)
	if err != nil {
		failErr(c, err)
		return
	}
	success(c, kit)
}
