package controllers

import (
	"fmt"
	"net/http"

	apperrors "github.com/aihub/vectorstore-go/internal/errors"
	"github.com/aihub/vectorstore-go/internal/services"
)

// IngestController 文件摄入接口
type IngestController struct {
	BaseController
	ingest *services.IngestService
}

func (c *IngestController) Prepare() {
	if c.ingest == nil {
		c.ingest = registry.ingest
	}
}

// POST /api/collections/:id/documents/chunk-file
func (c *IngestController) ChunkFile() {
	collectionID := c.Ctx.Input.Param(":id")
	if collectionID == "" {
		c.JSONError(http.StatusBadRequest, string(apperrors.ErrCodeValidationFailed), "collection id is required")
		return
	}

	var req services.IngestRequest
	if !c.bindJSON(&req) {
		return
	}

	resp, err := c.ingest.Ingest(c.Ctx.Request.Context(), collectionID, req)
	if err != nil {
		c.JSONAppError(err)
		return
	}

	c.JSONSuccess(map[string]interface{}{
		"message":    fmt.Sprintf("ingested %d chunks from %s", resp.Batch.Succeeded, resp.SourceURL),
		"chunks":     resp.Chunks,
		"source_url": resp.SourceURL,
		"batch":      resp.Batch,
	})
}
