// Package updater checks whether a newer tag2sha release is available.
package updater

import (
	"context"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/thinesjs/tag2sha/internal/github"
)

var Repository = github.Repository{Owner: "thinesjs", Name: "tag2sha"}

// ReleaseSource is implemented by *github.Client.
type ReleaseSource interface {
	LatestRelease(ctx context.Context, repo github.Repository) (*github.Release, error)
}

type UpdateInfo struct {
	Available      bool
	CurrentVersion string
	LatestVersion  string
	ReleaseURL     string
}

func CheckForUpdate(ctx context.Context, src ReleaseSource, currentVersion string) (*UpdateInfo, error) {
	release, err := src.LatestRelease(ctx, Repository)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest release: %w", err)
	}

	latest := strings.TrimPrefix(release.TagName, "v")
	current := strings.TrimPrefix(currentVersion, "v")

	return &UpdateInfo{
		CurrentVersion: current,
		LatestVersion:  latest,
		ReleaseURL:     fmt.Sprintf("https://github.com/%s/releases/tag/%s", Repository, release.TagName),
		Available:      isNewer(current, latest),
	}, nil
}

// isNewer reports whether latest is a newer version than current. Builds
// without a parseable version always see the release as newer.
func isNewer(current, latest string) bool {
	if current == latest {
		return false
	}
	cur, err := semver.NewVersion(current)
	if err != nil {
		return true
	}
	lat, err := semver.NewVersion(latest)
	if err != nil {
		return false
	}
	return lat.GreaterThan(cur)
}
