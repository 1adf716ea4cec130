package vfs

import (
	"bytes"

	"github.com/go-errors/errors"
)

// PathComponent is a single, non-empty, non-"." segment of a Path. It is raw
// bytes rather than a string: tar archives and NARs freely carry non-UTF-8
// names, and a native string would corrupt them on some platforms.
type PathComponent []byte

// Path is an ordered sequence of path components. It is never constructed
// with zero components; NewPath returns an error instead.
type Path struct {
	components []PathComponent
}

// NewPath splits raw into '/'-separated components, dropping empty segments
// and "." segments. "./foo/", "foo//bar", and "foo/" all normalize the same
// way a relative path would: to [foo], [foo, bar], [foo].
func NewPath(raw []byte) (Path, error) {
	var components []PathComponent
	for _, part := range bytes.Split(raw, []byte{'/'}) {
		if len(part) == 0 || bytes.Equal(part, []byte{'.'}) {
			continue
		}
		c := make(PathComponent, len(part))
		copy(c, part)
		components = append(components, c)
	}
	if len(components) == 0 {
		return Path{}, errors.New("empty file name")
	}
	return Path{components: components}, nil
}

// SingletonPath builds a one-component Path directly, for callers that
// already hold a validated component (e.g. a directory key during
// serialization).
func SingletonPath(component []byte) Path {
	c := make(PathComponent, len(component))
	copy(c, component)
	return Path{components: []PathComponent{c}}
}

// Len reports the number of components in the path.
func (p Path) Len() int {
	return len(p.components)
}

// FileName returns the last component, or nil if the path is invalid (has no
// components). A Path constructed via NewPath or SingletonPath always has at
// least one.
func (p Path) FileName() PathComponent {
	if len(p.components) == 0 {
		return nil
	}
	return p.components[len(p.components)-1]
}

// Parent returns all but the last component. The second return value is
// false if p has only one component (no parent within the tree).
func (p Path) Parent() (Path, bool) {
	if len(p.components) <= 1 {
		return Path{}, false
	}
	return Path{components: p.components[:len(p.components)-1]}, true
}

// DropFirst returns all but the first component. The second return value is
// false if p has only one component (nothing remains after dropping it).
func (p Path) DropFirst() (Path, bool) {
	if len(p.components) <= 1 {
		return Path{}, false
	}
	return Path{components: p.components[1:]}, true
}

// Head returns the first component and the remaining tail components.
func (p Path) Head() (PathComponent, []PathComponent) {
	return p.components[0], p.components[1:]
}

// ToPath joins the components with '/', with no leading slash, matching the
// NAR symlink-target encoding in spec §4.3.
func (p Path) ToPath() []byte {
	var buf bytes.Buffer
	for i, c := range p.components {
		if i > 0 {
			buf.WriteByte('/')
		}
		buf.Write(c)
	}
	return buf.Bytes()
}
