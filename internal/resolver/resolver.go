// Package resolver matches loose source identifiers (names, bundle ids,
// numeric ids) against a snapshot of capturable sources.
package resolver

import (
	"fmt"
	"strings"

	"github.com/oszuidwest/zwfm-audiotap/internal/types"
)

// IdentifierKind tags the variant of an Identifier.
type IdentifierKind string

const (
	// KindName matches display names and bundle identifiers.
	KindName IdentifierKind = "name"
	// KindPid matches the numeric source id exactly.
	KindPid IdentifierKind = "pid"
	// KindRef matches the numeric id carried by a source reference.
	KindRef IdentifierKind = "ref"
)

// Identifier is a tagged variant replacing the loose string|number|object
// union: ByName(string) | ByPid(int) | ByRef(SourceRef).
type Identifier struct {
	Kind IdentifierKind
	Name string
	Pid  int
}

// ByName creates an identifier that matches names and bundle ids.
func ByName(name string) Identifier {
	return Identifier{Kind: KindName, Name: name}
}

// ByPid creates an identifier that matches a numeric source id.
func ByPid(pid int) Identifier {
	return Identifier{Kind: KindPid, Pid: pid}
}

// ByRef creates an identifier from an already-resolved application snapshot.
func ByRef(app *types.ApplicationInfo) Identifier {
	return Identifier{Kind: KindRef, Pid: app.ProcessID, Name: app.ApplicationName}
}

// String renders the identifier for error messages.
func (id Identifier) String() string {
	switch id.Kind {
	case KindName:
		return id.Name
	case KindPid:
		return fmt.Sprintf("pid:%d", id.Pid)
	case KindRef:
		if id.Name != "" {
			return fmt.Sprintf("ref:%s", id.Name)
		}
		return fmt.Sprintf("ref:%d", id.Pid)
	default:
		return "unknown"
	}
}

// isBlank reports whether a name identifier carries no usable text.
// Blank identifiers are skipped, not treated as "no match", so that
// ["", "Spotify"] behaves like ["Spotify"].
func (id Identifier) isBlank() bool {
	return id.Kind == KindName && strings.TrimSpace(id.Name) == ""
}

// Source is the resolver's view of one capturable source.
type Source struct {
	// ID is the numeric key (process id, window id, display id).
	ID int
	// Name is the display name.
	Name string
	// SecondaryID is the bundle identifier, when the source has one.
	SecondaryID string
}

// Options controls resolution behavior.
type Options struct {
	// FallbackToFirst returns the first (filtered) candidate when no
	// identifiers are given.
	FallbackToFirst bool
	// AudioOnly filters out system/utility sources before matching.
	AudioOnly bool
	// NilOnMiss returns (nil, nil) instead of a TargetNotFound error.
	NilOnMiss bool
}

// Resolve tries each identifier in order against the source list and returns
// the first match. The identifier order wins: the list short-circuits at the
// first identifier that produces a match even if a later identifier would
// also match.
func Resolve(identifiers []Identifier, sources []Source, opts Options) (*Source, error) {
	candidates := sources
	if opts.AudioOnly {
		candidates = FilterAudioOnly(sources)
		if len(candidates) == 0 && len(sources) > 0 {
			if opts.NilOnMiss {
				return nil, nil
			}
			return nil, types.NewError(types.CodeTargetNotFound,
				"all sources were filtered out").WithDetails(&types.ErrorDetails{
				RequestedIdentifiers: identifierStrings(identifiers),
				AvailableNames:       sourceNames(sources),
				Hint:                 "audio-only filtering removed every source; disable AudioOnly to include system utilities",
			})
		}
	}

	for _, id := range identifiers {
		if id.isBlank() {
			continue
		}
		if match := matchOne(id, candidates); match != nil {
			return match, nil
		}
	}

	// Fallback covers both "no identifiers given" and "nothing matched".
	if opts.FallbackToFirst && len(candidates) > 0 {
		first := candidates[0]
		return &first, nil
	}

	if opts.NilOnMiss {
		return nil, nil
	}
	return nil, types.TargetNotFound(identifierStrings(identifiers), sourceNames(candidates))
}

// matchOne applies the matching ladder for a single identifier:
// exact numeric id, exact name, exact secondary id, substring name,
// substring secondary id. All text comparisons are case-insensitive.
func matchOne(id Identifier, sources []Source) *Source {
	switch id.Kind {
	case KindPid, KindRef:
		for i := range sources {
			if sources[i].ID == id.Pid {
				return &sources[i]
			}
		}
		return nil

	case KindName:
		needle := strings.ToLower(strings.TrimSpace(id.Name))
		ladder := []func(s *Source) bool{
			func(s *Source) bool { return strings.ToLower(s.Name) == needle },
			func(s *Source) bool { return s.SecondaryID != "" && strings.ToLower(s.SecondaryID) == needle },
			func(s *Source) bool { return strings.Contains(strings.ToLower(s.Name), needle) },
			func(s *Source) bool {
				return s.SecondaryID != "" && strings.Contains(strings.ToLower(s.SecondaryID), needle)
			},
		}
		for _, rung := range ladder {
			for i := range sources {
				if rung(&sources[i]) {
					return &sources[i]
				}
			}
		}
		return nil

	default:
		return nil
	}
}

func identifierStrings(identifiers []Identifier) []string {
	out := make([]string, 0, len(identifiers))
	for _, id := range identifiers {
		if id.isBlank() {
			continue
		}
		out = append(out, id.String())
	}
	return out
}

func sourceNames(sources []Source) []string {
	out := make([]string, 0, len(sources))
	for _, s := range sources {
		out = append(out, s.Name)
	}
	return out
}
