package ninep

import (
	"fmt"
	"path/filepath"
	"strings"
)

// JoinPath resolves one walk segment against an absolute path confined to
// root. A segment names exactly one child: "." and anything containing a
// separator (including absolute segments) are rejected. ".." ascends one
// level but never above root; at root it resolves to root itself, since
// the exported tree has no visible parent. The result is always root or a
// descendant of root, which is the confinement invariant every handler
// relies on.
func JoinPath(current, segment, root string) (string, error) {
	switch {
	case segment == "" || segment == ".":
		return "", fmt.Errorf("%w: %q", ErrInvalidSegment, segment)
	case strings.ContainsRune(segment, filepath.Separator) || filepath.IsAbs(segment):
		return "", fmt.Errorf("%w: %q", ErrInvalidSegment, segment)
	case segment == "..":
		if current == root {
			return root, nil
		}
		return filepath.Dir(current), nil
	}
	return filepath.Join(current, segment), nil
}
