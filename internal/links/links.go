// Package links implements the social-link list a profile page renders.
//
// DATA SHAPE:
// A user owns one List: at most one Link per network of the fixed catalog.
// Each Link carries two kinds of identity:
//
//   - Name is the STABLE key. A network appears once per list, so every
//     mutation here resolves to a name before it touches anything.
//   - ID is the DERIVED display position: 0 means disabled, 1..N is the
//     order of the N enabled links. It is what clients send back when they
//     drag or trash a link, so it stays on the wire under the "id" key.
//
// INVARIANTS (hold after every operation in this package):
//
//	enabled == (id > 0)
//	enabled ids form the dense sequence 1..N
//	the set of network names never changes
//
// Every operation is pure: it returns a new List and never mutates its
// receiver. Callers persist the result as a whole (last writer wins).
package links

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"sort"
	"strings"
)

var (
	ErrInvalidURL       = errors.New("invalid URL")
	ErrUnknownNetwork   = errors.New("unknown social network")
	ErrDuplicateNetwork = errors.New("duplicate social network")
	ErrLinkNotFound     = errors.New("link not found")
)

// catalog lists every supported network in the order a fresh profile shows them.
var catalog = []string{
	"facebook",
	"github",
	"instagram",
	"x",
	"youtube",
	"tiktok",
	"twitch",
	"linkedin",
}

// Link is one social network entry of a profile.
type Link struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	URL     string `json:"url"`
	Enabled bool   `json:"enabled"`
}

// List is the ordered link set of a single user.
type List []Link

// Catalog returns the supported network names in catalog order.
func Catalog() []string {
	return slices.Clone(catalog)
}

// IsKnown reports whether name is a network of the catalog.
func IsKnown(name string) bool {
	return slices.Contains(catalog, name)
}

// Default returns the full catalog with every link disabled.
// New accounts start from this list.
func Default() List {
	out := make(List, 0, len(catalog))
	for _, name := range catalog {
		out = append(out, Link{Name: name})
	}
	return out
}

// ValidURL reports whether raw is an absolute http(s) URL with a host.
// A link may only be enabled while its URL passes this check.
func ValidURL(raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false
	}
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return u.Host != ""
}

// WithCatalog returns l completed with every catalog network it lacks.
//
// Stored entries keep their relative order and their url/enabled/id values;
// entries for networks outside the catalog and repeated networks are dropped;
// missing networks are appended disabled, in catalog order. The result is
// normalized, so it satisfies the package invariants even if l did not.
func (l List) WithCatalog() List {
	out := make(List, 0, len(catalog))
	seen := make(map[string]bool, len(catalog))

	for _, link := range l {
		if !IsKnown(link.Name) || seen[link.Name] {
			continue
		}
		seen[link.Name] = true
		out = append(out, link)
	}
	for _, name := range catalog {
		if !seen[name] {
			out = append(out, Link{Name: name})
		}
	}

	return out.Normalize()
}

// Toggle flips the enabled state of the named network.
//
// ENABLING: the URL (rawURL, or the stored one when rawURL is blank) must pass
// ValidURL, otherwise ErrInvalidURL is returned and nothing changes. The link
// takes the next position: count of enabled links + 1.
//
// DISABLING: the link's id drops to 0 and every link positioned after it
// moves up by one, keeping enabled ids dense. The stored URL is kept so the
// link can be re-enabled later without retyping it.
func (l List) Toggle(name, rawURL string) (List, error) {
	i := l.index(name)
	if i < 0 {
		return nil, fmt.Errorf("%w: %q", ErrUnknownNetwork, name)
	}

	out := l.clone()
	if out[i].ID > 0 {
		return out.disable(i), nil
	}

	u := strings.TrimSpace(rawURL)
	if u == "" {
		u = out[i].URL
	}
	if !ValidURL(u) {
		return nil, fmt.Errorf("%w for %s: %q", ErrInvalidURL, out[i].Name, u)
	}

	next := out.enabledCount() + 1
	out[i].URL = u
	out[i].Enabled = true
	out[i].ID = next
	return out, nil
}

// SetURL changes the URL of the named network without touching its state.
// An enabled link only accepts a valid URL; a disabled one stores anything,
// since it is validated again when enabled.
func (l List) SetURL(name, rawURL string) (List, error) {
	i := l.index(name)
	if i < 0 {
		return nil, fmt.Errorf("%w: %q", ErrUnknownNetwork, name)
	}

	u := strings.TrimSpace(rawURL)
	if l[i].ID > 0 && !ValidURL(u) {
		return nil, fmt.Errorf("%w for %s: %q", ErrInvalidURL, l[i].Name, u)
	}

	out := l.clone()
	out[i].URL = u
	return out, nil
}

// Reorder moves the enabled link at position fromID to position toID,
// shifting the links in between (drag-and-drop semantics, not a swap).
//
// Enabled links come first in the result, renumbered 1..N in their new
// order; disabled links follow in their existing relative order. When
// fromID == toID or either position is not held by an enabled link the
// list is returned unchanged.
func (l List) Reorder(fromID, toID int) List {
	if fromID == toID {
		return l.clone()
	}

	enabled := l.Enabled()
	from := slices.IndexFunc(enabled, func(link Link) bool { return link.ID == fromID })
	to := slices.IndexFunc(enabled, func(link Link) bool { return link.ID == toID })
	if from < 0 || to < 0 {
		return l.clone()
	}

	moved := enabled[from]
	enabled = slices.Delete(enabled, from, from+1)
	enabled = slices.Insert(enabled, to, moved)

	out := make(List, 0, len(l))
	for k, link := range enabled {
		link.ID = k + 1
		out = append(out, link)
	}
	for _, link := range l {
		if link.ID <= 0 {
			out = append(out, link)
		}
	}
	return out
}

// Remove disables the link at the given position (the trash drop target).
// It is equivalent to toggling that link off.
func (l List) Remove(id int) (List, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w at position %d", ErrLinkNotFound, id)
	}
	i := slices.IndexFunc(l, func(link Link) bool { return link.ID == id })
	if i < 0 {
		return nil, fmt.Errorf("%w at position %d", ErrLinkNotFound, id)
	}
	return l.clone().disable(i), nil
}

// Normalize repairs a list received from outside (a client PATCH or an old
// row). The enabled flag is authoritative: enabled links keep the relative
// order of their ids (links without an id go last) and are renumbered 1..N;
// disabled links get id 0.
func (l List) Normalize() List {
	out := l.clone()

	var enabled []int
	for i := range out {
		if out[i].Enabled {
			enabled = append(enabled, i)
		} else {
			out[i].ID = 0
		}
	}

	sort.SliceStable(enabled, func(a, b int) bool {
		return rank(out[enabled[a]].ID) < rank(out[enabled[b]].ID)
	})
	for pos, i := range enabled {
		out[i].ID = pos + 1
	}

	return out
}

// Validate checks a client-supplied list: only catalog networks, each at
// most once, and every enabled link with a valid URL.
func (l List) Validate() error {
	seen := make(map[string]bool, len(l))
	for _, link := range l {
		if !IsKnown(link.Name) {
			return fmt.Errorf("%w: %q", ErrUnknownNetwork, link.Name)
		}
		if seen[link.Name] {
			return fmt.Errorf("%w: %q", ErrDuplicateNetwork, link.Name)
		}
		seen[link.Name] = true

		if link.Enabled && !ValidURL(link.URL) {
			return fmt.Errorf("%w for %s: %q", ErrInvalidURL, link.Name, link.URL)
		}
	}
	return nil
}

// Enabled returns the enabled links ordered by position.
func (l List) Enabled() List {
	out := make(List, 0, len(l))
	for _, link := range l {
		if link.ID > 0 {
			out = append(out, link)
		}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out
}

// Get returns the link of the named network.
func (l List) Get(name string) (Link, bool) {
	i := l.index(name)
	if i < 0 {
		return Link{}, false
	}
	return l[i], true
}

func (l List) clone() List {
	out := make(List, len(l))
	copy(out, l)
	return out
}

func (l List) index(name string) int {
	name = strings.ToLower(strings.TrimSpace(name))
	return slices.IndexFunc(l, func(link Link) bool { return link.Name == name })
}

func (l List) enabledCount() int {
	n := 0
	for _, link := range l {
		if link.ID > 0 {
			n++
		}
	}
	return n
}

// disable zeroes the link at i and closes the gap it leaves. It mutates l,
// so callers pass a clone.
func (l List) disable(i int) List {
	pos := l[i].ID
	l[i].ID = 0
	l[i].Enabled = false
	if pos <= 0 {
		return l
	}
	for j := range l {
		if l[j].ID > pos {
			l[j].ID--
		}
	}
	return l
}

// rank sorts enabled links that lack a position after all positioned ones.
func rank(id int) int {
	if id <= 0 {
		return int(^uint(0) >> 1)
	}
	return id
}
