// Copyright ©️ Liri. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package ostree

// RepoMode is the storage layout of a repository.
type RepoMode int

const (
	ModeUnknown RepoMode = iota
	ModeBare
	ModeArchive
	ModeBareUser
	ModeBareUserOnly
)

// ParseRepoMode maps the core.mode config value. "archive-z2" is the
// historical spelling of archive and still written by ostree init.
func ParseRepoMode(s string) RepoMode {
	switch s {
	case "bare", "":
		return ModeBare
	case "archive", "archive-z2":
		return ModeArchive
	case "bare-user":
		return ModeBareUser
	case "bare-user-only":
		return ModeBareUserOnly
	}
	return ModeUnknown
}

func (m RepoMode) String() string {
	switch m {
	case ModeBare:
		return "bare"
	case ModeArchive:
		return "archive"
	case ModeBareUser:
		return "bare-user"
	case ModeBareUserOnly:
		return "bare-user-only"
	}
	return "unknown"
}
