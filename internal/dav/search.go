package dav

import (
	"context"
	"net/http"
	"strings"

	"github.com/davgate/davgate/internal/dav/common"
	"github.com/davgate/davgate/internal/dav/xmlscan"
)

// handleSearch implements the minimal contains search: case-insensitive
// substring match on file names under the request path.
func (h *Handlers) handleSearch(ctx context.Context, req *common.Request) *common.Response {
	needle := strings.ToLower(xmlscan.ParseContains(req.Body))
	if needle == "" {
		return common.TextResponse(http.StatusBadRequest, "missing contains expression")
	}
	pa := h.adapter(ctx)
	if ok, err := pa.Exists(ctx, req.Parts); err != nil {
		return common.TextResponse(statusForError(err), err.Error())
	} else if !ok {
		return common.TextResponse(http.StatusNotFound, "not found")
	}

	w := common.NewMultiStatus()
	queue := [][]string{req.Parts}
	for len(queue) > 0 {
		parts := queue[0]
		queue = queue[1:]
		info, err := pa.Stat(ctx, parts)
		if err != nil {
			continue
		}
		if !info.Dir {
			if strings.Contains(strings.ToLower(common.DisplayName(parts)), needle) {
				w.HrefResponse(common.Href(parts, false), common.StatusOK)
			}
			continue
		}
		names, err := pa.ReadDir(ctx, parts)
		if err != nil {
			continue
		}
		for _, name := range h.ignore.FilterNames(names) {
			queue = append(queue, common.Child(parts, name))
		}
	}
	return w.Close()
}
