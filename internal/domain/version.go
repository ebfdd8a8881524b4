package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrNoReleases signals that the upstream feed yielded zero parseable
// version tags. The run must abort: without a baseline there is nothing
// to compare against.
var ErrNoReleases = errors.New("upstream feed contains no parseable releases")

// Version is a semantic version triple. Non-semantic tag prefixes (the
// upstream "v" marker) are stripped during parsing and never take part
// in comparison.
type Version struct {
	Major int
	Minor int
	Patch int
}

// ParseTag extracts a Version from a raw tag string. The leading
// non-digit prefix is ignored, so "v2.9.1" and "2.9.1" normalize to the
// same value. Tags that do not reduce to a numeric triple are rejected.
func ParseTag(raw string) (Version, bool) {
	trimmed := strings.TrimSpace(raw)
	start := -1
	for i, r := range trimmed {
		if r >= '0' && r <= '9' {
			start = i
			break
		}
	}
	if start < 0 {
		return Version{}, false
	}

	parts := strings.Split(trimmed[start:], ".")
	if len(parts) != 3 {
		return Version{}, false
	}

	nums := make([]int, 3)
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return Version{}, false
		}
		nums[i] = n
	}

	return Version{Major: nums[0], Minor: nums[1], Patch: nums[2]}, true
}

// String renders the normalized form used for downstream image tags.
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Compare orders versions numerically by major, then minor, then patch.
// It returns -1, 0 or 1.
func (v Version) Compare(o Version) int {
	if v.Major != o.Major {
		return sign(v.Major - o.Major)
	}
	if v.Minor != o.Minor {
		return sign(v.Minor - o.Minor)
	}
	return sign(v.Patch - o.Patch)
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	default:
		return 0
	}
}

// Release pairs the newest upstream version with its raw tag. The raw
// tag travels downstream verbatim because the build executor needs the
// canonical upstream spelling to fetch build inputs.
type Release struct {
	Tag     string
	Version Version
}

// PublishedTag is one tag visible on an artifact registry, with the
// platforms its manifest covers.
type PublishedTag struct {
	Raw       string
	Version   Version
	Platforms []string
}

// HasPlatforms reports whether the tag manifest covers every platform
// in required. An empty requirement always passes.
func (t PublishedTag) HasPlatforms(required []string) bool {
	for _, want := range required {
		found := false
		for _, have := range t.Platforms {
			if have == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Decision is the sole externally observable output of a run.
type Decision struct {
	NeedsBuild bool
	Tag        string
	Reason     string
}

// RunRecord is the audit snapshot of one completed run. It is written
// to the optional history store and surfaced on the status endpoint; it
// is never read back by the decision logic.
type RunRecord struct {
	ID         string
	Tag        string
	NeedsBuild bool
	Reason     string
	Registries []string
	StartedAt  time.Time
	FinishedAt time.Time
}
