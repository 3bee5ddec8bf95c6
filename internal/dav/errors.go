package dav

import (
	"errors"
	"net/http"
	"strings"

	"github.com/davgate/davgate/internal/persist"
)

// statusForError maps backend failures onto WebDAV status codes. Typed kinds
// are preferred; the message scan catches adapters that wrap OS errors
// without the sentinel.
func statusForError(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, persist.ErrPermission):
		return http.StatusForbidden
	case errors.Is(err, persist.ErrNotDir),
		errors.Is(err, persist.ErrIsDir),
		errors.Is(err, persist.ErrNotEmpty):
		return http.StatusConflict
	case errors.Is(err, persist.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, persist.ErrExists):
		return http.StatusPreconditionFailed
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "permission denied"):
		return http.StatusForbidden
	case strings.Contains(msg, "not a directory"),
		strings.Contains(msg, "is a directory"),
		strings.Contains(msg, "directory not empty"):
		return http.StatusConflict
	case strings.Contains(msg, "file not found"), strings.Contains(msg, "no such file"):
		return http.StatusNotFound
	case strings.Contains(msg, "already exists"):
		return http.StatusPreconditionFailed
	}
	return http.StatusInternalServerError
}
