package dav

import (
	"context"
	"errors"
	"net/http"

	"github.com/davgate/davgate/internal/dav/common"
	"github.com/davgate/davgate/internal/persist"
)

func (h *Handlers) handlePut(ctx context.Context, req *common.Request) *common.Response {
	if req.Header.Get("Content-Range") != "" {
		return common.TextResponse(http.StatusNotImplemented, "partial PUT not supported")
	}
	pa := h.adapter(ctx)

	if info, err := pa.Stat(ctx, req.Parts); err == nil && info.Dir {
		return common.TextResponse(http.StatusConflict, "target is a collection")
	}

	mime := req.Header.Get("Content-Type")
	if mime == "" {
		mime = "application/octet-stream"
	}

	if resp := h.checkQuota(ctx, req.Parts, int64(len(req.Body))); resp != nil {
		return resp
	}

	if len(req.Parts) > 0 {
		if err := pa.EnsureDir(ctx, req.Parts[:len(req.Parts)-1]); err != nil {
			return common.TextResponse(statusForError(err), err.Error())
		}
	}
	if err := pa.WriteFile(ctx, req.Parts, req.Body, mime); err != nil {
		return common.TextResponse(statusForError(err), err.Error())
	}

	rec, err := h.state.RecordVersion(ctx, req.Parts, req.Body, mime)
	if err != nil {
		h.logger.Warn().Err(err).Str("path", req.Path()).Msg("version record failed")
	}

	resp := common.NewResponse(http.StatusCreated)
	if rec.ID != "" {
		resp.Header.Set("X-Version-Id", rec.ID)
	}
	if etag := h.currentETag(ctx, req.Parts); etag != "" {
		resp.Header.Set("ETag", etag)
	}
	return resp
}

// checkQuota applies the root byte limit: the write fits iff
// totalUsed + max(0, newSize - existingSize) <= limit.
func (h *Handlers) checkQuota(ctx context.Context, parts []string, newSize int64) *common.Response {
	limit, ok := h.quotaLimit(ctx)
	if !ok {
		return nil
	}
	total, err := h.usedBytes(ctx, nil)
	if err != nil && !errors.Is(err, persist.ErrNotFound) {
		return common.TextResponse(statusForError(err), err.Error())
	}
	var existing int64
	if info, err := h.adapter(ctx).Stat(ctx, parts); err == nil && !info.Dir {
		existing = info.Size
	}
	growth := newSize - existing
	if growth < 0 {
		growth = 0
	}
	if total+growth > limit {
		return common.TextResponse(http.StatusInsufficientStorage, "quota exceeded")
	}
	return nil
}
