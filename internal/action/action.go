package action

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spotbugs/sonar-update-center/internal/config"
	"github.com/spotbugs/sonar-update-center/internal/repository"
	"github.com/spotbugs/sonar-update-center/internal/update"
	"github.com/spotbugs/sonar-update-center/pkg/metadata"
)

type Repository interface {
	Fork(ctx context.Context) (string, string, error)
	CheckoutSourceRepo(ctx context.Context, owner string) (string, error)
	HeadSHA(ctx context.Context, owner, repo, branch string) (string, error)
	Commit(ctx context.Context, owner, repo, path, rootDir, message, parentSHA string) (string, error)
	CreateBranch(ctx context.Context, owner, repo, sha string) (string, error)
	CreatePullRequest(ctx context.Context, owner, branch, releaseName, changelogURL string) (*repository.PullRequest, error)
	CommentOnPullRequest(ctx context.Context, number int, body string) error
}

type Announcer interface {
	CreateTopic(ctx context.Context, mavenArtifactID, publicVersion, body string) (string, error)
}

type Result struct {
	PropFile    string
	Branch      string
	PullRequest *repository.PullRequest
	TopicURL    string
}

type Action struct {
	log       *logrus.Logger
	config    *config.ActionConfig
	repo      Repository
	updater   *update.Updater
	announcer Announcer
}

func New(log *logrus.Logger, cfg *config.ActionConfig, repo Repository, updater *update.Updater, announcer Announcer) *Action {
	return &Action{
		log:       log,
		config:    cfg,
		repo:      repo,
		updater:   updater,
		announcer: announcer,
	}
}

func md5sum(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := md5.Sum(content)
	return hex.EncodeToString(sum[:]), nil
}

// formatPropFile rewrites the properties file in the canonical format and
// reports whether its content changed.
func formatPropFile(path string) (bool, error) {
	sourceHash, err := md5sum(path)
	if err != nil {
		return false, err
	}
	p, err := metadata.Load(path)
	if err != nil {
		return false, err
	}
	if err := metadata.Write(p, path); err != nil {
		return false, err
	}
	formattedHash, err := md5sum(path)
	if err != nil {
		return false, err
	}
	return sourceHash != formattedHash, nil
}

func (a *Action) setOutput(name, value string) error {
	a.log.Infof("output %s=%s", name, value)
	if a.config.GitHubOutput == "" {
		return nil
	}
	f, err := os.OpenFile(a.config.GitHubOutput, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(f, "%s=%s\n", name, value)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	return err
}

func announcementBody(mavenArtifactID, publicVersion, changelogURL, downloadURL, sonarCloudURL, prURL string) string {
	return fmt.Sprintf(`Hi,

We are announcing new %s %s.

Detailed changelog: %s
Download URL: %s
SonarCloud: %s
PR for metadata: %s

Thanks in advance!`,
		mavenArtifactID, publicVersion,
		repository.EncodeURL(changelogURL),
		repository.EncodeURL(downloadURL),
		repository.EncodeURL(sonarCloudURL),
		repository.EncodeURL(prURL),
	)
}

//gocyclo:ignore
func (a *Action) Run(ctx context.Context, input *config.ReleaseInput) (*Result, error) {
	if err := input.Validate(a.config); err != nil {
		return nil, err
	}

	owner, repoName, err := a.repo.Fork(ctx)
	if err != nil {
		return nil, err
	}
	rootDir, err := a.repo.CheckoutSourceRepo(ctx, owner)
	if err != nil {
		return nil, err
	}
	propFile := filepath.Join(rootDir, input.PropFile)

	changed, err := formatPropFile(propFile)
	if err != nil {
		return nil, err
	}
	parentSHA, err := a.repo.HeadSHA(ctx, owner, repoName, a.config.UpstreamBranch)
	if err != nil {
		return nil, err
	}
	if changed {
		a.log.Debug("this is the first run for this plugin, committing the format change first to ease the PR review...")
		parentSHA, err = a.repo.Commit(ctx, owner, repoName, input.PropFile, rootDir, "format the properties file for automation", parentSHA)
		if err != nil {
			return nil, err
		}
	}

	prop, err := metadata.Load(propFile)
	if err != nil {
		return nil, err
	}
	mavenArtifactID, _ := prop.Get(metadata.KeyMavenArtifactID)
	if mavenArtifactID == "" {
		return nil, fmt.Errorf("no %s found in the properties file", metadata.KeyMavenArtifactID)
	}

	updatedProp, err := a.updater.Update(ctx, prop, &update.Release{
		Description:   input.Description,
		PublicVersion: input.PublicVersion,
		SQVersions:    input.GetSQVersions(),
		ChangelogURL:  input.ChangelogURL,
		DownloadURL:   input.DownloadURL,
	})
	if err != nil {
		return nil, err
	}
	if err := metadata.Write(updatedProp, propFile); err != nil {
		return nil, err
	}

	releaseName := fmt.Sprintf("%s %s", mavenArtifactID, input.PublicVersion)
	parentSHA, err = a.repo.Commit(ctx, owner, repoName, input.PropFile, rootDir, "update properties file to release "+releaseName, parentSHA)
	if err != nil {
		return nil, err
	}
	branch, err := a.repo.CreateBranch(ctx, owner, repoName, parentSHA)
	if err != nil {
		return nil, err
	}
	res := &Result{PropFile: propFile, Branch: branch}
	if err := a.setOutput("prop-file", propFile); err != nil {
		return nil, fmt.Errorf("failed to set output: %w", err)
	}

	if input.SkipCreatingPullRequest {
		a.log.Info("skipped creating pull request")
		return res, nil
	}
	pr, err := a.repo.CreatePullRequest(ctx, owner, branch, releaseName, input.ChangelogURL)
	if err != nil {
		return nil, err
	}
	res.PullRequest = pr
	a.log.Infof("draft PR has been created, visit %s to review", pr.HTMLURL)

	body := announcementBody(mavenArtifactID, input.PublicVersion, input.ChangelogURL, input.DownloadURL, input.SonarCloudURL, pr.HTMLURL)
	if input.SkipAnnouncing {
		a.log.Infof("skipped creating announcement at Discourse, post the following text manually:\n%s", body)
		return res, nil
	}
	topicURL, err := a.announcer.CreateTopic(ctx, mavenArtifactID, input.PublicVersion, body)
	if err != nil {
		return nil, err
	}
	res.TopicURL = topicURL
	a.log.Infof("announcement has been created, visit %s to confirm", topicURL)

	if err := a.repo.CommentOnPullRequest(ctx, pr.Number, fmt.Sprintf("I've posted at the forum, see %s", topicURL)); err != nil {
		return nil, err
	}
	return res, nil
}
