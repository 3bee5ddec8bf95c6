package dav

import (
	"context"
	"strconv"

	"github.com/davgate/davgate/internal/dav/common"
	"github.com/davgate/davgate/internal/persist"
)

// defaultLiveProps is the key set allprop and propname answer with.
var defaultLiveProps = []string{
	"displayname",
	"getcontentlength",
	"resourcetype",
	"getlastmodified",
	"getetag",
}

// livePropValue computes a live property by local name. The second result is
// false when the property is not live or not known for this entity.
func (h *Handlers) livePropValue(ctx context.Context, parts []string, info persist.Info, local string) (string, bool) {
	switch local {
	case "displayname":
		return common.EscapeXML(common.DisplayName(parts)), true
	case "getcontentlength":
		if info.Dir {
			return "0", true
		}
		return strconv.FormatInt(info.Size, 10), true
	case "resourcetype":
		if info.Dir {
			return "<D:collection/>", true
		}
		return "", true
	case "getlastmodified":
		return common.FormatTime(info.ModTime), true
	case "getetag":
		return common.EscapeXML(weakETag(info)), true
	case "quota-used-bytes":
		used, err := h.usedBytes(ctx, parts)
		if err != nil {
			return "", false
		}
		return strconv.FormatInt(used, 10), true
	case "quota-available-bytes":
		limit, ok := h.quotaLimit(ctx)
		if !ok {
			return "", false
		}
		total, err := h.usedBytes(ctx, nil)
		if err != nil {
			return "", false
		}
		avail := limit - total
		if avail < 0 {
			avail = 0
		}
		return strconv.FormatInt(avail, 10), true
	}
	return "", false
}

// usedBytes sums file sizes under parts, skipping ignored names (which hides
// the _dav sidecar).
func (h *Handlers) usedBytes(ctx context.Context, parts []string) (int64, error) {
	pa := h.adapter(ctx)
	info, err := pa.Stat(ctx, parts)
	if err != nil {
		return 0, err
	}
	if !info.Dir {
		return info.Size, nil
	}
	var total int64
	names, err := pa.ReadDir(ctx, parts)
	if err != nil {
		return 0, err
	}
	for _, name := range h.ignore.FilterNames(names) {
		n, err := h.usedBytes(ctx, common.Child(parts, name))
		if err != nil {
			continue
		}
		total += n
	}
	return total, nil
}

// quotaLimit reads Z:quota-limit-bytes off the root. Absent or non-numeric
// means unlimited.
func (h *Handlers) quotaLimit(ctx context.Context) (int64, bool) {
	raw, ok := h.state.GetProps(ctx, nil)["Z:quota-limit-bytes"]
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
