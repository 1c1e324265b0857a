package backend

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// canonicalName returns the NFC form of a child name.
// Servers backed by macOS filesystems return NFD names; comparing in NFC
// keeps a name listed in both forms from appearing twice.
func canonicalName(name string) string {
	return norm.NFC.String(name)
}

// dedupeNames drops empty names and names whose canonical form was already
// seen. The first spelling returned by the server is kept, so the path
// handed back to the server later is one it produced itself.
func dedupeNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimRight(name, "\r\n")
		if name == "" {
			continue
		}
		key := canonicalName(strings.TrimRight(name, "/"))
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, name)
	}
	return out
}
