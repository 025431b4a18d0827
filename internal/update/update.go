package update

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/magiconair/properties"
	"github.com/sirupsen/logrus"
	"github.com/spotbugs/sonar-update-center/internal/sonarqube"
	"github.com/spotbugs/sonar-update-center/pkg/metadata"
	"github.com/spotbugs/sonar-update-center/pkg/version"
)

var ErrInvariantViolation = errors.New("invalid metadata")

const latestSuffix = "," + version.Latest + "]"

// Release holds the facts recorded for a newly published version.
type Release struct {
	Description   string
	PublicVersion string
	SQVersions    string
	ChangelogURL  string
	DownloadURL   string
}

type Updater struct {
	log      *logrus.Logger
	resolver sonarqube.LatestMinorVersionResolver
	now      func() time.Time
}

func New(log *logrus.Logger, resolver sonarqube.LatestMinorVersionResolver) *Updater {
	return &Updater{
		log:      log,
		resolver: resolver,
		now:      time.Now,
	}
}

// WithClock replaces the clock used to date the new release.
func (u *Updater) WithClock(now func() time.Time) *Updater {
	u.now = now
	return u
}

func set(p *properties.Properties, key, value string) error {
	if _, _, err := p.Set(key, value); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

// Update returns a copy of prev with release registered as the public
// version. The previous public version is archived and, if its sqVersions
// range still ends with LATEST, pinned to the latest SonarQube minor version.
// prev is never modified.
func (u *Updater) Update(ctx context.Context, prev *properties.Properties, release *Release) (*properties.Properties, error) {
	prevPublicVersion, _ := prev.Get(metadata.KeyPublicVersions)
	if prevPublicVersion == "" {
		return nil, fmt.Errorf("%w: %s should exist in the properties file", ErrInvariantViolation, metadata.KeyPublicVersions)
	}
	if strings.Contains(prevPublicVersion, metadata.Separator) {
		return nil, fmt.Errorf("%w: %s should contain single version", ErrInvariantViolation, metadata.KeyPublicVersions)
	}
	if release.PublicVersion == "" || strings.Contains(release.PublicVersion, metadata.Separator) {
		return nil, fmt.Errorf("%w: unsupported public version %q", ErrInvariantViolation, release.PublicVersion)
	}

	updated := metadata.Clone(prev)
	newValues := [][2]string{
		{metadata.KeyPublicVersions, release.PublicVersion},
	}
	if prevArchivedVersions, _ := updated.Get(metadata.KeyArchivedVersions); prevArchivedVersions != "" {
		newValues = append(newValues, [2]string{metadata.KeyArchivedVersions, prevArchivedVersions + metadata.Separator + prevPublicVersion})
	} else {
		newValues = append(newValues, [2]string{metadata.KeyArchivedVersions, prevPublicVersion})
	}
	newValues = append(newValues,
		[2]string{metadata.ReleaseKey(release.PublicVersion, metadata.FieldDescription), release.Description},
		[2]string{metadata.ReleaseKey(release.PublicVersion, metadata.FieldSQVersions), release.SQVersions},
		[2]string{metadata.ReleaseKey(release.PublicVersion, metadata.FieldDate), u.now().UTC().Format(time.DateOnly)},
		[2]string{metadata.ReleaseKey(release.PublicVersion, metadata.FieldChangelogURL), release.ChangelogURL},
		[2]string{metadata.ReleaseKey(release.PublicVersion, metadata.FieldDownloadURL), release.DownloadURL},
	)
	for _, kv := range newValues {
		if err := set(updated, kv[0], kv[1]); err != nil {
			return nil, err
		}
	}

	prevSQVersionsKey := metadata.ReleaseKey(prevPublicVersion, metadata.FieldSQVersions)
	prevSQVersions, _ := updated.Get(prevSQVersionsKey)
	if !strings.HasSuffix(prevSQVersions, latestSuffix) {
		return updated, nil
	}
	latestMinorVersion, err := u.resolver.SearchLatestMinorVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve latest SonarQube version: %w", err)
	}
	updatedPrevSQVersions := strings.Replace(prevSQVersions, latestSuffix, fmt.Sprintf(",%s]", latestMinorVersion), 1)
	u.log.Debugf("updating %s from %s to %s...", prevSQVersionsKey, prevSQVersions, updatedPrevSQVersions)
	if err := set(updated, prevSQVersionsKey, updatedPrevSQVersions); err != nil {
		return nil, err
	}
	return updated, nil
}
