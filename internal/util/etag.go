package util

import "strings"

// NormalizeETag strips the weak validator prefix and surrounding quotes so
// etags from different response paths compare equal.
func NormalizeETag(etag string) string {
	etag = strings.TrimSpace(etag)
	etag = strings.TrimPrefix(etag, "W/")
	return strings.Trim(etag, `"`)
}
