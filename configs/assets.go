package configs

import (
	_ "embed"
	"strings"
)

//go:embed config.yaml
var ConfigFile string

//go:embed prefetch_blacklist.lst
var prefetchBlacklist string

// PrefetchBlacklist tile servers which must not be bulk loaded, one per line, # starts a comment
func PrefetchBlacklist() []string {
	lines := make([]string, 0)
	for _, l := range strings.Split(strings.ReplaceAll(prefetchBlacklist, "\r", ""), "\n") {
		l = strings.TrimSpace(l)
		if l == "" || strings.HasPrefix(l, "#") {
			continue
		}
		lines = append(lines, l)
	}
	return lines
}
