package bridge

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/crystaldolphin/busbridge/internal/window"
)

// cacheBustParam is appended to a frame src to force a reload when the
// src itself did not change.
const cacheBustParam = "_bb"

// ResolveTargetOrigin returns the origin handshakes for cfg are scoped to:
// the explicit TargetOrigin if set, otherwise the origin of Src resolved
// against the document location.
func ResolveTargetOrigin(cfg Config, location string) (string, error) {
	if cfg.TargetOrigin != "" {
		return cfg.TargetOrigin, nil
	}
	return window.OriginOf(cfg.Src, location)
}

func cacheBust(src string, now time.Time) string {
	stamp := strconv.FormatInt(now.UnixNano(), 10)
	u, err := url.Parse(src)
	if err != nil {
		sep := "?"
		if strings.Contains(src, "?") {
			sep = "&"
		}
		return src + sep + cacheBustParam + "=" + stamp
	}
	q := u.Query()
	q.Set(cacheBustParam, stamp)
	u.RawQuery = q.Encode()
	return u.String()
}
