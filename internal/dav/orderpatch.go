package dav

import (
	"context"
	"net/http"
	"strings"

	"github.com/davgate/davgate/internal/dav/common"
	"github.com/davgate/davgate/internal/dav/xmlscan"
)

func (h *Handlers) handleOrderpatch(ctx context.Context, req *common.Request) *common.Response {
	pa := h.adapter(ctx)
	info, err := pa.Stat(ctx, req.Parts)
	if err != nil {
		return common.TextResponse(statusForError(err), err.Error())
	}
	if !info.Dir {
		return common.TextResponse(http.StatusConflict, "ordering applies to collections")
	}

	names := xmlscan.ParseOrder(req.Body)
	seen := map[string]bool{}
	deduped := names[:0:0]
	for _, n := range names {
		if n != "" && !seen[n] {
			seen[n] = true
			deduped = append(deduped, n)
		}
	}
	if len(deduped) == 0 {
		return common.TextResponse(http.StatusBadRequest, "no ordering segments")
	}

	if err := h.state.SetOrder(ctx, req.Parts, deduped); err != nil {
		return common.TextResponse(statusForError(err), err.Error())
	}
	// Mirror the order into a dead property so property-only clients see it.
	if err := h.state.MergeProps(ctx, req.Parts, map[string]string{"Z:order": strings.Join(deduped, ",")}); err != nil {
		h.logger.Warn().Err(err).Str("path", req.Path()).Msg("order property not mirrored")
	}
	return common.NewResponse(http.StatusOK)
}
