package dav

import (
	"context"
	"net/http"

	"github.com/davgate/davgate/internal/dav/common"
	"github.com/davgate/davgate/internal/dav/xmlscan"
)

func (h *Handlers) handleProppatch(ctx context.Context, req *common.Request) *common.Response {
	pa := h.adapter(ctx)
	info, err := pa.Stat(ctx, req.Parts)
	if err != nil {
		return common.TextResponse(statusForError(err), err.Error())
	}

	sets, setOrder := xmlscan.ParseSetProps(req.Body)
	removes := xmlscan.ParseRemoveProps(req.Body)
	if len(sets) == 0 && len(removes) == 0 {
		return common.TextResponse(http.StatusBadRequest, "no set or remove instructions")
	}

	if len(sets) > 0 {
		if err := h.state.MergeProps(ctx, req.Parts, sets); err != nil {
			return common.TextResponse(statusForError(err), err.Error())
		}
	}
	var absent []string
	if len(removes) > 0 {
		absent, err = h.state.RemoveProps(ctx, req.Parts, removes)
		if err != nil {
			return common.TextResponse(statusForError(err), err.Error())
		}
	}

	missing := map[string]bool{}
	for _, k := range absent {
		missing[k] = true
	}

	var okProps, notFound string
	for _, k := range setOrder {
		okProps += common.PropElement(k, "")
	}
	for _, k := range removes {
		if missing[k] {
			notFound += common.PropElement(k, "")
		} else {
			okProps += common.PropElement(k, "")
		}
	}

	w := common.NewMultiStatus()
	w.StartResponse(common.Href(req.Parts, info.Dir))
	w.Propstat(common.StatusOK, okProps)
	if notFound != "" {
		w.Propstat(common.StatusNotFound, notFound)
	}
	w.EndResponse()
	return w.Close()
}
