package sonarqube

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/semver/v3"
	"github.com/google/go-github/v59/github"
	"github.com/sirupsen/logrus"
	"github.com/spotbugs/sonar-update-center/pkg/version"
)

const (
	DefaultOwner = "SonarSource"
	DefaultRepo  = "sonarqube"
)

var ErrNoReleases = errors.New("no SonarQube release found")

type LatestMinorVersionResolver interface {
	// SearchLatestMinorVersion returns the newest SonarQube minor version in the "X.Y.*" form.
	SearchLatestMinorVersion(ctx context.Context) (string, error)
}

type Resolver struct {
	log      *logrus.Logger
	ghClient *github.Client
	owner    string
	repo     string
}

func NewResolver(log *logrus.Logger, ghClient *github.Client, owner, repo string) *Resolver {
	if owner == "" {
		owner = DefaultOwner
	}
	if repo == "" {
		repo = DefaultRepo
	}
	return &Resolver{
		log:      log,
		ghClient: ghClient,
		owner:    owner,
		repo:     repo,
	}
}

func (r *Resolver) SearchLatestMinorVersion(ctx context.Context) (string, error) {
	latest := ""
	var latestVersion *semver.Version
	opts := &github.ListOptions{Page: 1, PerPage: 100}
	for {
		releases, resp, err := r.ghClient.Repositories.ListReleases(ctx, r.owner, r.repo, opts)
		if err != nil {
			return "", err
		}
		for _, release := range releases {
			if release.GetDraft() {
				continue
			}
			tag := version.Truncate(release.GetTagName())
			v, err := semver.NewVersion(tag)
			if err != nil {
				r.log.Debugf("ignoring release %s: %v", release.GetTagName(), err)
				continue
			}
			// strictly greater, the first seen of equal versions wins
			if latestVersion == nil || v.GreaterThan(latestVersion) {
				latest = tag
				latestVersion = v
			}
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	if latestVersion == nil {
		return "", fmt.Errorf("%w in %s/%s", ErrNoReleases, r.owner, r.repo)
	}
	return version.WildcardPatch(latest), nil
}
