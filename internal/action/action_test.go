package action

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spotbugs/sonar-update-center/internal/config"
	"github.com/spotbugs/sonar-update-center/internal/repository"
	"github.com/spotbugs/sonar-update-center/internal/update"
	"github.com/spotbugs/sonar-update-center/pkg/metadata"
	"github.com/stretchr/testify/require"
)

type commitCall struct {
	message   string
	parentSHA string
	content   string
}

type fakeRepository struct {
	t           *testing.T
	rootDir     string
	propFile    string
	content     string
	commits     []commitCall
	branchSHA   string
	prCreated   bool
	prComment   string
	commitError error
}

func (f *fakeRepository) Fork(context.Context) (string, string, error) {
	return "spotbugs-bot", "sonar-update-center-properties", nil
}

func (f *fakeRepository) CheckoutSourceRepo(_ context.Context, owner string) (string, error) {
	require.Equal(f.t, "spotbugs-bot", owner)
	require.NoError(f.t, os.WriteFile(filepath.Join(f.rootDir, f.propFile), []byte(f.content), 0o644))
	return f.rootDir, nil
}

func (f *fakeRepository) HeadSHA(_ context.Context, owner, repo, branch string) (string, error) {
	require.Equal(f.t, "master", branch)
	return "head-sha", nil
}

func (f *fakeRepository) Commit(_ context.Context, owner, repo, path, rootDir, message, parentSHA string) (string, error) {
	if f.commitError != nil {
		return "", f.commitError
	}
	content, err := os.ReadFile(filepath.Join(rootDir, path))
	require.NoError(f.t, err)
	f.commits = append(f.commits, commitCall{message: message, parentSHA: parentSHA, content: string(content)})
	return fmt.Sprintf("commit-%d", len(f.commits)), nil
}

func (f *fakeRepository) CreateBranch(_ context.Context, owner, repo, sha string) (string, error) {
	f.branchSHA = sha
	return "sonar-update-center-action-test", nil
}

func (f *fakeRepository) CreatePullRequest(_ context.Context, owner, branch, releaseName, changelogURL string) (*repository.PullRequest, error) {
	require.Equal(f.t, "sonar-update-center-action-test", branch)
	require.Equal(f.t, "sonar-findbugs-plugin 4.0.1", releaseName)
	f.prCreated = true
	return &repository.PullRequest{Number: 42, HTMLURL: "https://github.com/SonarSource/sonar-update-center-properties/pull/42"}, nil
}

func (f *fakeRepository) CommentOnPullRequest(_ context.Context, number int, body string) error {
	require.Equal(f.t, 42, number)
	f.prComment = body
	return nil
}

type fakeAnnouncer struct {
	body string
}

func (f *fakeAnnouncer) CreateTopic(_ context.Context, mavenArtifactID, publicVersion, body string) (string, error) {
	f.body = body
	return "https://community.sonarsource.com/t/new-release/42", nil
}

type stubResolver struct{}

func (stubResolver) SearchLatestMinorVersion(context.Context) (string, error) {
	return "8.9.*", nil
}

const formattedPropFile = `defaults.mavenArtifactId=sonar-findbugs-plugin
publicVersions=4.0.0
archivedVersions=3.11.0
4.0.0.sqVersions=[7.9,LATEST]
`

func newTestAction(t *testing.T, content string) (*Action, *fakeRepository, *fakeAnnouncer) {
	log := logrus.New()
	log.Out = io.Discard
	repo := &fakeRepository{t: t, rootDir: t.TempDir(), propFile: "findbugs.properties", content: content}
	announcer := &fakeAnnouncer{}
	updater := update.New(log, stubResolver{}).WithClock(func() time.Time {
		return time.Date(2021, time.March, 5, 0, 0, 0, 0, time.UTC)
	})
	cfg := &config.ActionConfig{
		UpstreamBranch:  "master",
		DiscourseAPIKey: "api-key",
		GitHubOutput:    filepath.Join(t.TempDir(), "github_output"),
	}
	return New(log, cfg, repo, updater, announcer), repo, announcer
}

func newTestInput() *config.ReleaseInput {
	return &config.ReleaseInput{
		PropFile:                  "findbugs.properties",
		Description:               "SpotBugs 4.2.2",
		MinimalSupportedSQVersion: "7.9",
		ChangelogURL:              "https://github.com/spotbugs/sonar-findbugs/releases/tag/4.0.1",
		DownloadURL:               "https://repo.maven.apache.org/maven2/sonar-findbugs-plugin-4.0.1.jar",
		PublicVersion:             "4.0.1",
		SonarCloudURL:             "https://sonarcloud.io/dashboard?id=sonar-findbugs",
	}
}

func TestRun(t *testing.T) {
	a, repo, announcer := newTestAction(t, formattedPropFile)
	res, err := a.Run(context.Background(), newTestInput())
	require.NoError(t, err)

	// file is already formatted, no format commit
	require.Len(t, repo.commits, 1)
	require.Equal(t, "update properties file to release sonar-findbugs-plugin 4.0.1", repo.commits[0].message)
	require.Equal(t, "head-sha", repo.commits[0].parentSHA)
	require.Equal(t, "commit-1", repo.branchSHA)

	updated := metadata.MustParse(repo.commits[0].content)
	require.Equal(t, "4.0.1", updated.GetString(metadata.KeyPublicVersions, ""))
	require.Equal(t, "3.11.0,4.0.0", updated.GetString(metadata.KeyArchivedVersions, ""))
	require.Equal(t, "[7.9,8.9.*]", updated.GetString("4.0.0.sqVersions", ""))
	require.Equal(t, "[7.9,LATEST]", updated.GetString("4.0.1.sqVersions", ""))
	require.Equal(t, "2021-03-05", updated.GetString("4.0.1.date", ""))

	require.Equal(t, filepath.Join(repo.rootDir, "findbugs.properties"), res.PropFile)
	require.Equal(t, 42, res.PullRequest.Number)
	require.Equal(t, "https://community.sonarsource.com/t/new-release/42", res.TopicURL)
	require.Contains(t, announcer.body, "We are announcing new sonar-findbugs-plugin 4.0.1.")
	require.Contains(t, announcer.body, "PR for metadata: https://github.com/SonarSource/sonar-update-center-properties/pull/42")
	require.Equal(t, "I've posted at the forum, see https://community.sonarsource.com/t/new-release/42", repo.prComment)

	output, err := os.ReadFile(a.config.GitHubOutput)
	require.NoError(t, err)
	require.Equal(t, fmt.Sprintf("prop-file=%s\n", res.PropFile), string(output))
}

func TestRunCommitsFormatChangeFirst(t *testing.T) {
	a, repo, _ := newTestAction(t, "defaults.mavenArtifactId : sonar-findbugs-plugin\npublicVersions = 4.0.0\n")
	_, err := a.Run(context.Background(), newTestInput())
	require.NoError(t, err)

	require.Len(t, repo.commits, 2)
	require.Equal(t, "format the properties file for automation", repo.commits[0].message)
	require.Equal(t, "head-sha", repo.commits[0].parentSHA)
	require.Equal(t, "defaults.mavenArtifactId=sonar-findbugs-plugin\npublicVersions=4.0.0\n", repo.commits[0].content)
	require.Equal(t, "commit-1", repo.commits[1].parentSHA)
	require.Equal(t, "commit-2", repo.branchSHA)
}

func TestRunSkipCreatingPullRequest(t *testing.T) {
	a, repo, announcer := newTestAction(t, formattedPropFile)
	input := newTestInput()
	input.SkipCreatingPullRequest = true
	res, err := a.Run(context.Background(), input)
	require.NoError(t, err)
	require.Nil(t, res.PullRequest)
	require.False(t, repo.prCreated)
	require.Empty(t, announcer.body)
}

func TestRunSkipAnnouncing(t *testing.T) {
	a, repo, announcer := newTestAction(t, formattedPropFile)
	input := newTestInput()
	input.SkipAnnouncing = true
	res, err := a.Run(context.Background(), input)
	require.NoError(t, err)
	require.True(t, repo.prCreated)
	require.Empty(t, res.TopicURL)
	require.Empty(t, announcer.body)
	require.Empty(t, repo.prComment)
}

func TestRunMissingMavenArtifactID(t *testing.T) {
	a, repo, _ := newTestAction(t, "publicVersions=4.0.0\n")
	_, err := a.Run(context.Background(), newTestInput())
	require.ErrorContains(t, err, "no defaults.mavenArtifactId found")
	require.Empty(t, repo.commits)
}

func TestRunInvalidMetadata(t *testing.T) {
	a, repo, _ := newTestAction(t, "defaults.mavenArtifactId=sonar-findbugs-plugin\npublicVersions=3.11.0,4.0.0\n")
	_, err := a.Run(context.Background(), newTestInput())
	require.ErrorIs(t, err, update.ErrInvariantViolation)
	require.Empty(t, repo.commits)
	require.Empty(t, repo.branchSHA)
}

func TestRunInvalidInput(t *testing.T) {
	a, _, _ := newTestAction(t, formattedPropFile)
	input := newTestInput()
	input.PropFile = "../findbugs.properties"
	_, err := a.Run(context.Background(), input)
	require.ErrorIs(t, err, config.ErrInvalidInput)
}

func TestRunCommitFailure(t *testing.T) {
	a, repo, _ := newTestAction(t, formattedPropFile)
	repo.commitError = errors.New("failed to create blob")
	_, err := a.Run(context.Background(), newTestInput())
	require.ErrorIs(t, err, repo.commitError)
	require.Empty(t, repo.branchSHA)
}
