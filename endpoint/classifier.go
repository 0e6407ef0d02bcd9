package endpoint

import (
	"errors"
	"net/url"
	"path"
	"strings"
)

// ErrEmptyTarget is returned by Resolve when neither a base nor a target is available.
var ErrEmptyTarget = errors.New("empty request target")

// Classifier decides whether a request target is an auth-flow endpoint.
//
// Classifier is immutable after construction and safe for concurrent use.
type Classifier struct {
	base  *url.URL
	paths []string
	raw   []string
}

// NewClassifier builds a classifier for the given API base and auth-flow paths.
// Entries may be absolute URLs or paths relative to baseURL. An unparsable
// baseURL is tolerated: targets are then compared by path only.
func NewClassifier(baseURL string, paths []string) *Classifier {
	c := &Classifier{}
	if u, err := url.Parse(strings.TrimSpace(baseURL)); err == nil && (u.Scheme != "" || u.Path != "") {
		c.base = u
	}

	seen := make(map[string]struct{}, len(paths)*2)
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		raw := trimSlash(stripQuery(p))
		if _, ok := seen["r:"+raw]; !ok {
			seen["r:"+raw] = struct{}{}
			c.raw = append(c.raw, raw)
		}
		u, err := Resolve(c.base, p)
		if err != nil {
			continue
		}
		n := cleanPath(u.Path)
		if _, ok := seen["n:"+n]; ok {
			continue
		}
		seen["n:"+n] = struct{}{}
		c.paths = append(c.paths, n)
	}

	return c
}

// IsAuthPath reports whether target resolves to a configured auth-flow path or
// a sub-path of one. Query strings and fragments are ignored.
func (c *Classifier) IsAuthPath(target string) bool {
	if c == nil {
		return false
	}
	target = strings.TrimSpace(target)
	if target == "" {
		return false
	}

	u, err := Resolve(c.base, target)
	if err == nil {
		return matchAny(cleanPath(u.Path), c.paths)
	}

	// Resolution failed: compare the literal target, both as given and joined
	// onto the base path, against the configured set.
	lit := trimSlash(stripQuery(target))
	candidates := []string{lit}
	if c.base != nil {
		candidates = append(candidates, trimSlash(joinPath(c.base.Path, lit)))
	}
	for _, cand := range candidates {
		if matchAny(cand, c.paths) || matchAny(cand, c.raw) {
			return true
		}
	}
	return false
}

// Paths returns a copy of the normalized auth-flow path set.
func (c *Classifier) Paths() []string {
	if c == nil {
		return nil
	}
	out := make([]string, len(c.paths))
	copy(out, c.paths)
	return out
}

// Base returns the parsed API base, or nil when none was configured.
func (c *Classifier) Base() *url.URL {
	if c == nil || c.base == nil {
		return nil
	}
	u := *c.base
	return &u
}

// Resolve turns target into an absolute URL. Absolute targets are returned
// as parsed. Relative targets are appended to the base path, so a base of
// "https://api.example.com/v1" and a target of "/auth/login" yield
// "https://api.example.com/v1/auth/login".
func Resolve(base *url.URL, target string) (*url.URL, error) {
	target = strings.TrimSpace(target)
	ref, err := url.Parse(target)
	if err != nil {
		return nil, err
	}
	if ref.Scheme != "" || ref.Host != "" {
		if ref.Scheme == "" && base != nil {
			ref.Scheme = base.Scheme
		}
		return ref, nil
	}
	if base == nil {
		if target == "" {
			return nil, ErrEmptyTarget
		}
		if !strings.HasPrefix(ref.Path, "/") {
			ref.Path = "/" + ref.Path
		}
		return ref, nil
	}

	out := *base
	out.Path = joinPath(base.Path, ref.Path)
	out.RawPath = ""
	out.RawQuery = ref.RawQuery
	out.Fragment = ref.Fragment
	return &out, nil
}

func matchAny(p string, set []string) bool {
	for _, entry := range set {
		if p == entry {
			return true
		}
		if entry == "/" {
			continue
		}
		if strings.HasPrefix(p, entry+"/") {
			return true
		}
	}
	return false
}

func joinPath(basePath, rel string) string {
	if rel == "" {
		if basePath == "" {
			return "/"
		}
		return basePath
	}
	return strings.TrimRight(basePath, "/") + "/" + strings.TrimLeft(rel, "/")
}

func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

func stripQuery(s string) string {
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		return s[:i]
	}
	return s
}

func trimSlash(s string) string {
	if len(s) > 1 {
		return strings.TrimRight(s, "/")
	}
	return s
}

// SameOrigin reports whether u has the scheme, host and port of base. Default
// ports compare equal to an omitted port.
func SameOrigin(base, u *url.URL) bool {
	if base == nil || u == nil {
		return false
	}
	if !strings.EqualFold(base.Scheme, u.Scheme) || !strings.EqualFold(base.Hostname(), u.Hostname()) {
		return false
	}
	return effectivePort(base) == effectivePort(u)
}

func effectivePort(u *url.URL) string {
	if p := u.Port(); p != "" {
		return p
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		return "80"
	case "https":
		return "443"
	}
	return ""
}
