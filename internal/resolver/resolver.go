// Package resolver recovers the container and blob path a storage event
// refers to. Nothing here performs I/O.
package resolver

import (
	"net/url"
	"strings"

	"github.com/straye-as/blob-processor/internal/domain"
)

const (
	containersToken = "containers"
	blobsToken      = "blobs"
)

// Resolve tries the event subject first and falls back to the url path.
// u may be nil, in which case only the subject is used.
func Resolve(subject string, u *url.URL) domain.Resolution {
	if res := FromSubject(subject); res.Resolved() {
		return res
	}
	if u == nil {
		return domain.Unresolved()
	}
	return FromURL(u)
}

// FromSubject parses subjects of the form
// /blobServices/default/containers/<container>/blobs/<path...>.
//
// The container and the blob path are located by independent first-match
// scans, so a path that itself contains a "blobs" or "containers" segment
// after the first occurrence is kept intact.
func FromSubject(subject string) domain.Resolution {
	parts := splitPath(subject)

	ci := indexOf(parts, containersToken)
	if ci < 0 || ci+1 >= len(parts) {
		return domain.Unresolved()
	}

	bi := indexOf(parts, blobsToken)
	if bi < 0 || bi+1 >= len(parts) {
		return domain.Unresolved()
	}

	return domain.ResolvedFrom(domain.SourceSubject, parts[ci+1], strings.Join(parts[bi+1:], "/"))
}

// FromURL parses https://<account>.<host>/<container>/<path...>
func FromURL(u *url.URL) domain.Resolution {
	parts := splitPath(u.Path)
	if len(parts) < 2 {
		return domain.Unresolved()
	}
	return domain.ResolvedFrom(domain.SourceURL, parts[0], strings.Join(parts[1:], "/"))
}

// AccountName returns the storage account name, the host up to the first dot
func AccountName(u *url.URL) string {
	host := u.Hostname()
	if i := strings.IndexByte(host, '.'); i >= 0 {
		return host[:i]
	}
	return host
}

// AccountNameFromRaw returns the storage account name from an unparsed url
// string, for urls that net/url rejects
func AccountNameFromRaw(raw string) string {
	host := raw
	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+3:]
	}
	if i := strings.IndexAny(host, "/?#"); i >= 0 {
		host = host[:i]
	}
	if i := strings.LastIndexByte(host, '@'); i >= 0 {
		host = host[i+1:]
	}
	if i := strings.IndexAny(host, ".:"); i >= 0 {
		host = host[:i]
	}
	return host
}

// splitPath splits on "/" and drops empty segments
func splitPath(p string) []string {
	raw := strings.Split(p, "/")
	parts := make([]string, 0, len(raw))
	for _, s := range raw {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return parts
}

func indexOf(parts []string, token string) int {
	for i, p := range parts {
		if p == token {
			return i
		}
	}
	return -1
}
