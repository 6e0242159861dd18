package utils

import (
	"sort"

	"github.com/Masterminds/semver/v3"
	"github.com/rs/zerolog/log"
)

// ValidVersion reports whether v parses as a semantic version
func ValidVersion(v string) bool {
	_, err := semver.NewVersion(v)
	return err == nil
}

// SortVersions sorts the given version strings in semantic versioning order (latest version first)
func SortVersions(versions []string) []string {
	semverVersions := make([]*semver.Version, 0, len(versions))

	for _, v := range versions {
		sv, err := semver.NewVersion(v)
		if err != nil {
			// Log and skip invalid versions
			log.Warn().Str("version", v).Err(err).Msg("invalid semver version")
			continue
		}
		semverVersions = append(semverVersions, sv)
	}

	sort.Slice(semverVersions, func(i, j int) bool {
		return semverVersions[i].GreaterThan(semverVersions[j])
	})

	result := make([]string, len(semverVersions))
	for i, v := range semverVersions {
		result[i] = v.String()
	}

	return result
}
