// Package pathurl normalizes filesystem paths into the file:// URIs DBGp
// commands expect, and defines the external path-mapping contract between
// container and host filesystems (spec §4.4/§6).
package pathurl

import "strings"

// ToFileURI prefixes a bare filesystem path with file://. Paths that
// already carry a URI scheme pass through unchanged.
func ToFileURI(path string) string {
	if strings.Contains(path, "://") {
		return path
	}
	return "file://" + path
}

// FromFileURI strips a file:// scheme, if present, returning a bare path.
// It is the inverse of ToFileURI.
func FromFileURI(uri string) string {
	return strings.TrimPrefix(uri, "file://")
}

// Mapper translates paths between the container filesystem the bridge runs
// in and the host filesystem the debugged script actually lives on. The
// core treats this purely as an external collaborator (spec §6): the
// default Mapper is the identity function, and callers supply their own
// when container/host paths diverge.
type Mapper interface {
	ToHost(containerPath string) string
	ToContainer(hostPath string) string
}

// IdentityMapper performs no translation. It is the default when the
// bridge and the engine share a filesystem view.
type IdentityMapper struct{}

func (IdentityMapper) ToHost(containerPath string) string { return containerPath }
func (IdentityMapper) ToContainer(hostPath string) string { return hostPath }

// PrefixMapper rewrites one fixed path prefix for another in each
// direction. This is the common case for a containerized bridge debugging
// a script whose engine reports paths relative to the host's bind mount,
// e.g. containerPrefix "/app" and hostPrefix "/home/dev/project".
type PrefixMapper struct {
	ContainerPrefix string
	HostPrefix      string
}

// NewPrefixMapper builds a PrefixMapper for the given prefixes.
func NewPrefixMapper(containerPrefix, hostPrefix string) PrefixMapper {
	return PrefixMapper{ContainerPrefix: containerPrefix, HostPrefix: hostPrefix}
}

func (m PrefixMapper) ToHost(containerPath string) string {
	if rest, ok := cutPrefix(containerPath, m.ContainerPrefix); ok {
		return m.HostPrefix + rest
	}
	return containerPath
}

func (m PrefixMapper) ToContainer(hostPath string) string {
	if rest, ok := cutPrefix(hostPath, m.HostPrefix); ok {
		return m.ContainerPrefix + rest
	}
	return hostPath
}

func cutPrefix(path, prefix string) (string, bool) {
	if prefix == "" || !strings.HasPrefix(path, prefix) {
		return path, false
	}
	return strings.TrimPrefix(path, prefix), true
}
