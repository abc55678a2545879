package env

import (
	"bufio"
	"os"
	"strings"
)

// Load reads KEY=VALUE files in order. Variables present in the process
// environment before the call win; among files, a later one overrides an
// earlier one. It returns the keys it set; missing files are skipped.
func Load(paths ...string) []string {
	pre := map[string]struct{}{}
	for _, e := range os.Environ() {
		if i := strings.IndexByte(e, '='); i > 0 {
			pre[e[:i]] = struct{}{}
		}
	}
	seen := map[string]struct{}{}
	var loaded []string
	for _, p := range paths {
		if p == "" {
			continue
		}
		f, err := os.Open(p)
		if err != nil {
			continue
		}
		sc := bufio.NewScanner(f)
		for sc.Scan() {
			k, v, ok := parseLine(sc.Text())
			if !ok {
				continue
			}
			if _, ok := pre[k]; ok {
				continue
			}
			if os.Setenv(k, v) != nil {
				continue
			}
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				loaded = append(loaded, k)
			}
		}
		_ = f.Close()
	}
	return loaded
}

func parseLine(raw string) (string, string, bool) {
	line := strings.TrimSpace(raw)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", "", false
	}
	line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
	i := strings.IndexByte(line, '=')
	if i <= 0 {
		return "", "", false
	}
	k := strings.TrimSpace(line[:i])
	v := strings.TrimSpace(line[i+1:])
	if len(v) >= 2 && (v[0] == '"' || v[0] == '\'') && v[len(v)-1] == v[0] {
		return k, v[1 : len(v)-1], true
	}
	if j := strings.Index(v, " #"); j >= 0 {
		v = strings.TrimSpace(v[:j])
	}
	return k, v, true
}
