package controllers

import (
	"net/http"

	apperrors "github.com/aihub/vectorstore-go/internal/errors"
	"github.com/aihub/vectorstore-go/internal/services"
)

// DocumentController 文档增删改查接口
type DocumentController struct {
	BaseController
	documents *services.DocumentService
}

func (c *DocumentController) Prepare() {
	if c.documents == nil {
		c.documents = registry.documents
	}
}

func (c *DocumentController) collectionID() (string, bool) {
	id := c.Ctx.Input.Param(":id")
	if id == "" {
		c.JSONError(http.StatusBadRequest, string(apperrors.ErrCodeValidationFailed), "collection id is required")
		return "", false
	}
	return id, true
}

// UpsertDocumentsRequest 批量写入请求体
type UpsertDocumentsRequest struct {
	Documents []services.DocumentInput `json:"documents" validate:"required,min=1,dive"`
}

// POST /api/collections/:id/documents
func (c *DocumentController) Upsert() {
	collectionID, ok := c.collectionID()
	if !ok {
		return
	}

	var req UpsertDocumentsRequest
	if !c.bindJSON(&req) {
		return
	}

	batch, err := c.documents.UpsertDocuments(c.Ctx.Request.Context(), collectionID, req.Documents)
	if err != nil {
		c.JSONAppError(err)
		return
	}

	c.JSONSuccess(batch)
}

// UpdateDocumentsRequest 批量更新请求体
type UpdateDocumentsRequest struct {
	Updates []services.DocumentUpdate `json:"updates" validate:"required,min=1,dive"`
}

// PATCH /api/collections/:id/documents
func (c *DocumentController) Update() {
	collectionID, ok := c.collectionID()
	if !ok {
		return
	}

	var req UpdateDocumentsRequest
	if !c.bindJSON(&req) {
		return
	}

	result, err := c.documents.UpdateDocuments(c.Ctx.Request.Context(), collectionID, req.Updates)
	if err != nil {
		c.JSONAppError(err)
		return
	}

	c.JSONSuccess(result)
}

// GET /api/collections/:id/documents/:doc_id
func (c *DocumentController) Get() {
	collectionID, ok := c.collectionID()
	if !ok {
		return
	}
	docID := c.Ctx.Input.Param(":doc_id")
	if docID == "" {
		c.JSONError(http.StatusBadRequest, string(apperrors.ErrCodeValidationFailed), "document id is required")
		return
	}

	record, err := c.documents.GetDocument(c.Ctx.Request.Context(), collectionID, docID)
	if err != nil {
		c.JSONAppError(err)
		return
	}

	c.JSONSuccess(record)
}

// DELETE /api/collections/:id/documents/:doc_id
func (c *DocumentController) Delete() {
	collectionID, ok := c.collectionID()
	if !ok {
		return
	}
	docID := c.Ctx.Input.Param(":doc_id")
	if docID == "" {
		c.JSONError(http.StatusBadRequest, string(apperrors.ErrCodeValidationFailed), "document id is required")
		return
	}

	if err := c.documents.DeleteDocument(c.Ctx.Request.Context(), collectionID, docID); err != nil {
		c.JSONAppError(err)
		return
	}

	c.JSONSuccess(map[string]interface{}{
		"deleted": true,
		"id":      docID,
	})
}

// DeleteByFilterRequest 按过滤条件删除的请求体
type DeleteByFilterRequest struct {
	Filter     map[string]string `json:"filter"`
	ConfirmAll bool              `json:"confirm_all"`
}

// POST /api/collections/:id/documents/delete-by-filter
func (c *DocumentController) DeleteByFilter() {
	collectionID, ok := c.collectionID()
	if !ok {
		return
	}

	var req DeleteByFilterRequest
	if !c.bindJSON(&req) {
		return
	}

	deleted, err := c.documents.DeleteByFilter(c.Ctx.Request.Context(), collectionID, req.Filter, req.ConfirmAll)
	if err != nil {
		c.JSONAppError(err)
		return
	}

	c.JSONSuccess(map[string]interface{}{
		"deleted_count": deleted,
	})
}
