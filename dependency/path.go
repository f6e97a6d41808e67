package dependency

import (
	"net/url"
	"strings"

	"github.com/jumppad-labs/modeltypes/errors"
	"github.com/jumppad-labs/modeltypes/repository"
)

// Resolution is the outcome of resolving a reference
type Resolution struct {
	// Path is the resolved path as recorded on the dependency record
	Path string
	// Target is the absolute repository path the reference points to
	Target string
	Exists bool
}

// PathStrategy resolves a normalised reference, from is the node relative
// references are resolved against
type PathStrategy func(from *repository.Node, ref *url.URL) (Resolution, error)

// Normalize parses ref and removes "." and ".." segments, leading ".."
// segments of relative references are kept
func Normalize(ref string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return nil, errors.InvalidArgument("normalize", "invalid reference %q: %s", ref, err)
	}

	if u.Opaque != "" {
		return u, nil
	}

	u.Path = normalizePath(u.Path)
	u.RawPath = ""

	return u, nil
}

func normalizePath(p string) string {
	if p == "" {
		return p
	}

	absolute := strings.HasPrefix(p, "/")
	dir := strings.HasSuffix(p, "/") || strings.HasSuffix(p, "/.") || strings.HasSuffix(p, "/..")

	out := []string{}
	for _, seg := range strings.Split(p, "/") {
		switch seg {
		case "", ".":
			continue
		case "..":
			if len(out) > 0 && out[len(out)-1] != ".." {
				out = out[:len(out)-1]
				continue
			}

			// an absolute path can not leave the root
			if !absolute {
				out = append(out, seg)
			}
			continue
		}

		out = append(out, seg)
	}

	n := strings.Join(out, "/")
	if absolute {
		n = "/" + n
	}

	if dir && n != "" && n != "/" {
		n += "/"
	}

	return n
}

// IsRelative returns true for references without scheme and without a
// leading slash
func IsRelative(u *url.URL) bool {
	return !u.IsAbs() && u.Host == "" && !strings.HasPrefix(u.Path, "/")
}

// RelativeStrategy walks up one level from from for every leading ".."
// segment and tests the remaining path below the reached node
func RelativeStrategy(from *repository.Node, ref *url.URL) (Resolution, error) {
	start := from
	segs := strings.Split(ref.Path, "/")

	i := 0
	for ; i < len(segs); i++ {
		switch segs[i] {
		case ".":
			continue
		case "..":
			if start.Parent() == nil {
				return Resolution{}, errors.InvalidPath("resolve reference", "reference %q leaves the repository root", ref.String())
			}
			start = start.Parent()
			continue
		}

		break
	}

	rel := strings.TrimLeft(strings.Join(segs[i:], "/"), "/")

	return Resolution{
		Path:   rel,
		Target: joinPath(start.Path(), rel),
		Exists: rel != "" && start.HasNode(rel),
	}, nil
}

// RootStrategy tests the path of an absolute reference directly below the
// repository root. Scheme and host are ignored, only the path is used.
func RootStrategy(from *repository.Node, ref *url.URL) (Resolution, error) {
	root := from
	for root.Parent() != nil {
		root = root.Parent()
	}

	rel := strings.TrimLeft(ref.Path, "/")

	return Resolution{
		Path:   "/" + rel,
		Target: "/" + rel,
		Exists: rel != "" && root.HasNode(rel),
	}, nil
}

func joinPath(base, rel string) string {
	if base == "/" {
		return "/" + rel
	}

	return base + "/" + rel
}
