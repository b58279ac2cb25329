package controllers

import (
	"net/http"

	apperrors "github.com/aihub/vectorstore-go/internal/errors"
	"github.com/aihub/vectorstore-go/internal/services"
)

// CollectionController 集合管理接口
type CollectionController struct {
	BaseController
	collections *services.CollectionService
}

func (c *CollectionController) Prepare() {
	if c.collections == nil {
		c.collections = registry.collections
	}
}

// POST /api/collections
func (c *CollectionController) Create() {
	var req services.CreateCollectionRequest
	if !c.bindJSON(&req) {
		return
	}

	collection, err := c.collections.CreateCollection(c.Ctx.Request.Context(), req)
	if err != nil {
		c.JSONAppError(err)
		return
	}

	c.JSONCreated(collection)
}

// GET /api/collections
func (c *CollectionController) List() {
	collections, err := c.collections.ListCollections(c.Ctx.Request.Context())
	if err != nil {
		c.JSONAppError(err)
		return
	}

	c.JSONSuccess(map[string]interface{}{
		"collections": collections,
		"total":       len(collections),
	})
}

// GET /api/collections/:id
func (c *CollectionController) Get() {
	id := c.Ctx.Input.Param(":id")
	if id == "" {
		c.JSONError(http.StatusBadRequest, string(apperrors.ErrCodeValidationFailed), "collection id is required")
		return
	}

	collection, err := c.collections.GetCollection(c.Ctx.Request.Context(), id)
	if err != nil {
		c.JSONAppError(err)
		return
	}

	c.JSONSuccess(collection)
}

// PATCH /api/collections/:id
func (c *CollectionController) Update() {
	id := c.Ctx.Input.Param(":id")
	if id == "" {
		c.JSONError(http.StatusBadRequest, string(apperrors.ErrCodeValidationFailed), "collection id is required")
		return
	}

	var req services.UpdateCollectionRequest
	if !c.bindJSON(&req) {
		return
	}

	collection, err := c.collections.UpdateCollection(c.Ctx.Request.Context(), id, req)
	if err != nil {
		c.JSONAppError(err)
		return
	}

	c.JSONSuccess(collection)
}

// DELETE /api/collections/:id
func (c *CollectionController) Delete() {
	id := c.Ctx.Input.Param(":id")
	if id == "" {
		c.JSONError(http.StatusBadRequest, string(apperrors.ErrCodeValidationFailed), "collection id is required")
		return
	}

	if err := c.collections.DeleteCollection(c.Ctx.Request.Context(), id); err != nil {
		c.JSONAppError(err)
		return
	}

	c.JSONSuccess(map[string]interface{}{
		"deleted": true,
		"id":      id,
	})
}
