package usecase

import "github.com/fonix232/caddy/internal/domain"

// Decision reasons surfaced in the dispatch signal and run history.
const (
	ReasonNotPublished     = "tag not yet published"
	ReasonAlreadyPublished = "tag already published"
	ReasonBaseNotReady     = "base image not ready"
)

// Decide is the dispatch decision: a build is needed when the latest
// upstream version is absent from the published set, or when nothing is
// published at all. Membership (rather than greater-than) makes the
// system self-healing: a build that reached only one registry leaves a
// gap the next run detects. Pure function of its inputs.
func Decide(latest domain.Release, published []domain.Version) domain.Decision {
	for _, v := range published {
		if v == latest.Version {
			return domain.Decision{
				NeedsBuild: false,
				Tag:        latest.Tag,
				Reason:     ReasonAlreadyPublished,
			}
		}
	}

	return domain.Decision{
		NeedsBuild: true,
		Tag:        latest.Tag,
		Reason:     ReasonNotPublished,
	}
}
