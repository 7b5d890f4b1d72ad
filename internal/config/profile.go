package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/platformatic/desk/internal/schema"
)

// DefaultProfile is used when no profile argument is given.
const DefaultProfile = "default"

var profileExtensions = []string{".yaml", ".yml"}

// ProfileRef is a resolved profile document location.
type ProfileRef struct {
	// Name is the profile name derived from the file base name.
	Name string
	// Path is the absolute document path.
	Path string
}

// ProfileResolutionError reports a profile document that is missing or ambiguous.
type ProfileResolutionError struct {
	Arg        string
	Candidates []string
	Ambiguous  bool
}

func (e *ProfileResolutionError) Error() string {
	if e.Ambiguous {
		return fmt.Sprintf("profile %q is ambiguous: %s all exist", e.Arg, strings.Join(e.Candidates, " and "))
	}
	return fmt.Sprintf("profile %q not found (looked for %s)", e.Arg, strings.Join(e.Candidates, ", "))
}

// isLiteralPath reports whether arg names a file rather than a profile.
func isLiteralPath(arg string) bool {
	if filepath.IsAbs(arg) || strings.HasPrefix(arg, ".") || strings.ContainsRune(arg, filepath.Separator) || strings.Contains(arg, "/") {
		return true
	}
	ext := strings.ToLower(filepath.Ext(arg))
	for _, e := range profileExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// ResolveProfile maps a profile name or path to a document location.
// An empty arg falls back to DESK_PROFILE_PATH, then to DefaultProfile.
func ResolveProfile(arg string, s Settings) (ProfileRef, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		arg = strings.TrimSpace(s.ProfilePath)
	}
	if arg == "" {
		arg = DefaultProfile
	}

	if isLiteralPath(arg) {
		if _, err := os.Stat(arg); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return ProfileRef{}, &ProfileResolutionError{Arg: arg, Candidates: []string{arg}}
			}
			return ProfileRef{}, fmt.Errorf("stat profile %q: %w", arg, err)
		}
		return newProfileRef(arg)
	}

	var found, candidates []string
	for _, ext := range profileExtensions {
		candidate := filepath.Join(s.ProfileDir, arg+ext)
		candidates = append(candidates, candidate)
		if _, err := os.Stat(candidate); err == nil {
			found = append(found, candidate)
		}
	}
	switch len(found) {
	case 0:
		return ProfileRef{}, &ProfileResolutionError{Arg: arg, Candidates: candidates}
	case 1:
		return newProfileRef(found[0])
	default:
		return ProfileRef{}, &ProfileResolutionError{Arg: arg, Candidates: found, Ambiguous: true}
	}
}

func newProfileRef(path string) (ProfileRef, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return ProfileRef{}, fmt.Errorf("resolve profile path: %w", err)
	}
	base := filepath.Base(abs)
	return ProfileRef{Name: strings.TrimSuffix(base, filepath.Ext(base)), Path: abs}, nil
}

// ProfileSummary is one entry of ListProfiles.
type ProfileSummary struct {
	Name        string
	Version     string
	Description string
}

// ListProfiles summarizes every profile document in dir, sorted by name.
// Documents are read raw so that invalid profiles are still listed.
func ListProfiles(dir string) ([]ProfileSummary, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read profile directory %q: %w", dir, err)
	}

	var out []ProfileSummary
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		raw, err := schema.ReadDocument(filepath.Join(dir, entry.Name()), nil)
		if err != nil {
			return nil, err
		}
		summary := ProfileSummary{
			Name:        strings.TrimSuffix(entry.Name(), ext),
			Version:     "unknown",
			Description: "No description available",
		}
		if v, ok := raw["version"]; ok && v != nil {
			summary.Version = fmt.Sprint(v)
		}
		if d, ok := raw["description"].(string); ok && strings.TrimSpace(d) != "" {
			summary.Description = strings.TrimSpace(d)
		}
		out = append(out, summary)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
