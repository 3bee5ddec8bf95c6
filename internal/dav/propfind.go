package dav

import (
	"context"
	"net/http"
	"strings"

	"github.com/davgate/davgate/internal/dav/common"
	"github.com/davgate/davgate/internal/dav/xmlscan"
	"github.com/davgate/davgate/internal/persist"
)

func (h *Handlers) handlePropfind(ctx context.Context, req *common.Request) *common.Response {
	pa := h.adapter(ctx)
	if ok, err := pa.Exists(ctx, req.Parts); err != nil {
		return common.TextResponse(statusForError(err), err.Error())
	} else if !ok {
		return common.TextResponse(http.StatusNotFound, "not found")
	}

	mode, keys := xmlscan.ParsePropfind(req.Body)
	depth := common.ParseDepth(req.Header.Get("Depth"), "1")

	w := common.NewMultiStatus()
	// Breadth-first: self first, then level by level.
	queue := [][]string{req.Parts}
	for level := 0; len(queue) > 0; level++ {
		if depth == "0" && level > 0 {
			break
		}
		if depth == "1" && level > 1 {
			break
		}
		var next [][]string
		for _, parts := range queue {
			info, err := pa.Stat(ctx, parts)
			if err != nil {
				continue
			}
			h.writeEntity(ctx, w, parts, info, mode, keys)
			if info.Dir {
				names, err := pa.ReadDir(ctx, parts)
				if err != nil {
					continue
				}
				names = h.state.ApplyOrder(ctx, parts, h.ignore.FilterNames(names))
				for _, name := range names {
					next = append(next, common.Child(parts, name))
				}
			}
		}
		queue = next
	}
	return w.Close()
}

// writeEntity renders one response block for a resource.
func (h *Handlers) writeEntity(ctx context.Context, w *common.MultiStatus, parts []string, info persist.Info, mode xmlscan.PropfindMode, keys []string) {
	w.StartResponse(common.Href(parts, info.Dir))
	defer w.EndResponse()

	switch mode {
	case xmlscan.ModePropname:
		var found string
		for _, local := range defaultLiveProps {
			found += common.PropElement("D:"+local, "")
		}
		w.Propstat(common.StatusOK, found)
	case xmlscan.ModeAllprop:
		var found string
		for _, local := range defaultLiveProps {
			if v, ok := h.livePropValue(ctx, parts, info, local); ok {
				found += common.PropElement("D:"+local, v)
			}
		}
		w.Propstat(common.StatusOK, found)
	case xmlscan.ModeProp:
		dead := h.state.GetProps(ctx, parts)
		var found, missing string
		for _, key := range keys {
			local := common.LocalName(key)
			if v, ok := h.livePropValue(ctx, parts, info, local); ok {
				found += common.PropElement("D:"+local, v)
				continue
			}
			if v, ok := dead[key]; ok {
				found += common.PropElement(key, deadPropValue(v))
				continue
			}
			if v, ok := dead["Z:"+local]; ok {
				found += common.PropElement("Z:"+local, deadPropValue(v))
				continue
			}
			missing += common.PropElement(key, "")
		}
		w.Propstat(common.StatusOK, found)
		if missing != "" {
			w.Propstat(common.StatusNotFound, missing)
		}
	}
}

// deadPropValue renders a stored value. Values that are themselves markup,
// such as MKCALENDAR's supported-calendar-component-set, pass through
// unescaped as element content.
func deadPropValue(v string) string {
	if strings.HasPrefix(strings.TrimSpace(v), "<") {
		return v
	}
	return common.EscapeXML(v)
}
