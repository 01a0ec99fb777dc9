package domain

import (
	"fmt"
	"strings"
)

// RootPath is the repository root. It always exists.
const RootPath = "/"

// ValidatePath reports whether p is an absolute, normalized node path.
// Valid paths start with "/", contain no empty, "." or ".." segments and carry
// no trailing slash (except the root itself).
func ValidatePath(p string) error {
	if p == "" {
		return fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	if !strings.HasPrefix(p, "/") {
		return fmt.Errorf("%w: %q is not absolute", ErrInvalidPath, p)
	}
	if p == RootPath {
		return nil
	}
	if strings.HasSuffix(p, "/") {
		return fmt.Errorf("%w: %q has a trailing slash", ErrInvalidPath, p)
	}
	for _, seg := range strings.Split(p[1:], "/") {
		switch seg {
		case "", ".", "..":
			return fmt.Errorf("%w: %q has an invalid segment", ErrInvalidPath, p)
		}
	}
	return nil
}

// ParentPath returns the parent of p. The parent of the root is the root.
func ParentPath(p string) string {
	idx := strings.LastIndex(p, "/")
	if idx <= 0 {
		return RootPath
	}
	return p[:idx]
}

// NodeName returns the last segment of p.
func NodeName(p string) string {
	return p[strings.LastIndex(p, "/")+1:]
}

// PathDepth counts the segments of p; the root has depth zero.
func PathDepth(p string) int {
	if p == RootPath || p == "" {
		return 0
	}
	return strings.Count(p, "/")
}

// JoinPath appends name below parent.
func JoinPath(parent, name string) string {
	if parent == RootPath {
		return RootPath + name
	}
	return parent + "/" + name
}

// IsAncestor reports whether ancestor strictly contains p.
func IsAncestor(ancestor, p string) bool {
	if ancestor == p {
		return false
	}
	if ancestor == RootPath {
		return strings.HasPrefix(p, RootPath)
	}
	return strings.HasPrefix(p, ancestor+"/")
}

// DescendantPrefix returns the prefix shared by every descendant of p.
func DescendantPrefix(p string) string {
	if p == RootPath {
		return RootPath
	}
	return p + "/"
}
