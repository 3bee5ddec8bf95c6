// Package dialect relaxes strict protocol checks for known client quirks.
// Policies see the request (method, path, User-Agent, headers) and either
// take over a decision or defer to the engine's default check.
package dialect

import (
	"regexp"
	"strings"

	"github.com/davgate/davgate/internal/dav/common"
)

type Policy interface {
	Name() string
	// EnsureDepthOkForDirOps decides whether a collection MOVE/COPY may
	// proceed despite a missing Depth: infinity.
	EnsureDepthOkForDirOps(req *common.Request, defaultCheck func() bool) bool
	// EnsureLockOkForProppatch decides whether PROPPATCH may proceed without
	// a matching lock token.
	EnsureLockOkForProppatch(req *common.Request, defaultCheck func() bool) bool
}

type strict struct{}

func (strict) Name() string { return "strict" }
func (strict) EnsureDepthOkForDirOps(_ *common.Request, defaultCheck func() bool) bool {
	return defaultCheck()
}
func (strict) EnsureLockOkForProppatch(_ *common.Request, defaultCheck func() bool) bool {
	return defaultCheck()
}

func Strict() Policy { return strict{} }

// uaPolicy relaxes Depth for directory operations when the UA matches.
type uaPolicy struct {
	name string
	re   *regexp.Regexp
}

func (p uaPolicy) Name() string { return p.name }
func (p uaPolicy) EnsureDepthOkForDirOps(req *common.Request, defaultCheck func() bool) bool {
	if p.re.MatchString(req.UserAgent) {
		return true
	}
	return defaultCheck()
}
func (p uaPolicy) EnsureLockOkForProppatch(_ *common.Request, defaultCheck func() bool) bool {
	return defaultCheck()
}

// Finder covers macOS WebDAVFS mounts, which omit Depth on directory copies.
func Finder() Policy {
	return uaPolicy{name: "finder", re: regexp.MustCompile(`WebDAVFS|CFNetwork|Darwin`)}
}

// Windows covers the MiniRedir redirector.
func Windows() Policy {
	return uaPolicy{name: "windows", re: regexp.MustCompile(`Microsoft-WebDAV-MiniRedir|DavClnt`)}
}

// LinuxGvfs covers the GNOME/gvfs family plus cadaver and davfs2.
func LinuxGvfs() Policy {
	return uaPolicy{name: "linux-gvfs", re: regexp.MustCompile(`gvfs|gio/|gnome-vfs|cadaver|davfs2`)}
}

// office waives the lock token requirement on PROPPATCH; Office issues
// PROPPATCH after LOCK without carrying the token.
type office struct {
	re *regexp.Regexp
}

func (office) Name() string { return "office" }
func (o office) EnsureDepthOkForDirOps(_ *common.Request, defaultCheck func() bool) bool {
	return defaultCheck()
}
func (o office) EnsureLockOkForProppatch(req *common.Request, defaultCheck func() bool) bool {
	if o.re.MatchString(req.UserAgent) {
		return true
	}
	return defaultCheck()
}

func Office() Policy {
	return office{re: regexp.MustCompile(`Microsoft Office`)}
}

// composite ORs its policies: the first one that answers true wins, otherwise
// the engine's default check decides.
type composite struct {
	policies []Policy
}

func (c composite) Name() string { return "composite" }

func (c composite) EnsureDepthOkForDirOps(req *common.Request, defaultCheck func() bool) bool {
	deny := func() bool { return false }
	for _, p := range c.policies {
		if p.EnsureDepthOkForDirOps(req, deny) {
			return true
		}
	}
	return defaultCheck()
}

func (c composite) EnsureLockOkForProppatch(req *common.Request, defaultCheck func() bool) bool {
	deny := func() bool { return false }
	for _, p := range c.policies {
		if p.EnsureLockOkForProppatch(req, deny) {
			return true
		}
	}
	return defaultCheck()
}

func Compose(policies ...Policy) Policy { return composite{policies: policies} }

// Default composes every built-in quirk policy.
func Default() Policy {
	return Compose(Finder(), Windows(), LinuxGvfs(), Office())
}

// FromNames builds a policy set from config; unknown names are skipped and an
// empty result means strict.
func FromNames(names []string) Policy {
	var ps []Policy
	for _, n := range names {
		switch strings.TrimSpace(strings.ToLower(n)) {
		case "strict":
			ps = append(ps, Strict())
		case "finder":
			ps = append(ps, Finder())
		case "windows":
			ps = append(ps, Windows())
		case "linux-gvfs", "gvfs":
			ps = append(ps, LinuxGvfs())
		case "office":
			ps = append(ps, Office())
		}
	}
	if len(ps) == 0 {
		return Strict()
	}
	return Compose(ps...)
}
