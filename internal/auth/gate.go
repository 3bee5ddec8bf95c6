package auth

import (
	"context"
	"net/http"

	"github.com/davgate/davgate/internal/dav/common"
)

// Gate adapts the chain into the engine's authorize hook. OPTIONS stays
// anonymous for client discovery. A principal already placed in the context
// by outer middleware passes through without re-authenticating.
func Gate(c *Chain) common.BeforeHook {
	if c == nil || !c.Enabled() {
		return nil
	}
	return func(ctx context.Context, req *common.Request) (*common.Response, error) {
		if req.Method == "OPTIONS" {
			return nil, nil
		}
		if p, ok := PrincipalFrom(ctx); ok && p != nil {
			return nil, nil
		}
		if _, err := c.Authenticate(ctx, req.Header.Get("Authorization")); err == nil {
			return nil, nil
		}
		resp := common.TextResponse(http.StatusUnauthorized, "authentication required")
		if c.BasicEnabled() {
			resp.Header.Set("WWW-Authenticate", `Basic realm="davgate"`)
		} else {
			resp.Header.Set("WWW-Authenticate", "Bearer")
		}
		return resp, nil
	}
}
