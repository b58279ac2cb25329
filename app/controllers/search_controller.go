package controllers

import (
	"net/http"

	apperrors "github.com/aihub/vectorstore-go/internal/errors"
	"github.com/aihub/vectorstore-go/internal/services"
)

// SearchController 相似度检索接口
type SearchController struct {
	BaseController
	search *services.SearchService
}

func (c *SearchController) Prepare() {
	if c.search == nil {
		c.search = registry.search
	}
}

// POST /api/collections/:id/documents/search
func (c *SearchController) Search() {
	collectionID := c.Ctx.Input.Param(":id")
	if collectionID == "" {
		c.JSONError(http.StatusBadRequest, string(apperrors.ErrCodeValidationFailed), "collection id is required")
		return
	}

	var req services.SearchRequest
	if !c.bindJSON(&req) {
		return
	}

	resp, err := c.search.Search(c.Ctx.Request.Context(), collectionID, req)
	if err != nil {
		c.JSONAppError(err)
		return
	}

	c.JSONSuccess(resp)
}
