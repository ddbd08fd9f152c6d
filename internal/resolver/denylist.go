package resolver

import "strings"

// Display names of system and utility applications that rarely play audio.
// Matched case-insensitively against the source name.
var utilityNames = []string{
	"finder",
	"system settings",
	"system preferences",
	"terminal",
	"iterm",
	"iterm2",
	"calculator",
	"mail",
	"notes",
	"calendar",
	"activity monitor",
	"console",
}

// Bundle identifier substrings that mark helper and background processes.
var helperBundleSubstrings = []string{
	".helper",
	".xpc.",
}

// FilterAudioOnly removes sources that match the system/utility deny-list:
// known utility names, helper-process bundle ids, and display names that
// carry a parenthesised suffix (renderer and GPU subprocesses).
func FilterAudioOnly(sources []Source) []Source {
	out := make([]Source, 0, len(sources))
	for _, s := range sources {
		if isSystemUtility(s.Name, s.SecondaryID) {
			continue
		}
		out = append(out, s)
	}
	return out
}

func isSystemUtility(name, bundleID string) bool {
	lowerName := strings.ToLower(name)
	for _, deny := range utilityNames {
		if lowerName == deny {
			return true
		}
	}

	if strings.Contains(name, "(") {
		return true
	}

	lowerBundle := strings.ToLower(bundleID)
	for _, sub := range helperBundleSubstrings {
		if strings.Contains(lowerBundle, sub) {
			return true
		}
	}

	return false
}
