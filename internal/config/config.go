package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/go-github/v59/github"
	"github.com/kelseyhightower/envconfig"
	"github.com/spotbugs/sonar-update-center/pkg/metadata"
	"github.com/spotbugs/sonar-update-center/pkg/version"
	"golang.org/x/oauth2"
)

var ErrInvalidInput = errors.New("invalid input")

type ActionConfig struct {
	GitHubToken       string        `envconfig:"GITHUB_TOKEN" required:"true"`
	DiscourseAPIKey   string        `envconfig:"DISCOURSE_API_KEY"`
	DiscourseHost     string        `envconfig:"DISCOURSE_HOST" default:"https://community.sonarsource.com"`
	DiscourseCategory int           `envconfig:"DISCOURSE_CATEGORY" default:"15"`
	UpstreamOwner     string        `envconfig:"UPDATE_CENTER_OWNER" default:"SonarSource"`
	UpstreamRepo      string        `envconfig:"UPDATE_CENTER_REPO" default:"sonar-update-center-properties"`
	UpstreamBranch    string        `envconfig:"UPDATE_CENTER_BRANCH" default:"master"`
	SonarQubeOwner    string        `envconfig:"SONARQUBE_OWNER" default:"SonarSource"`
	SonarQubeRepo     string        `envconfig:"SONARQUBE_REPO" default:"sonarqube"`
	ForkTimeout       time.Duration `envconfig:"FORK_TIMEOUT" default:"5m"`
	ForkPollInterval  time.Duration `envconfig:"FORK_POLL_INTERVAL" default:"10s"`
	GitHubOutput      string        `envconfig:"GITHUB_OUTPUT"`
	Version           string        `ignored:"true"`
}

func NewActionConfigFromEnv() (*ActionConfig, error) {
	var aCfg ActionConfig
	err := envconfig.Process("", &aCfg)
	if err != nil {
		return nil, err
	}
	if aCfg.GitHubToken == "" {
		return nil, fmt.Errorf("%w: GITHUB_TOKEN is empty", ErrInvalidInput)
	}
	return &aCfg, nil
}

func (a *ActionConfig) CreateGitHubClient() *github.Client {
	oauthClient := oauth2.NewClient(context.Background(), oauth2.StaticTokenSource(&oauth2.Token{AccessToken: a.GitHubToken}))
	return github.NewClient(oauthClient)
}

func (a *ActionConfig) GetUpstreamFullName() string {
	return fmt.Sprintf("%s/%s", a.UpstreamOwner, a.UpstreamRepo)
}

// ReleaseInput describes the release to register in the update center.
type ReleaseInput struct {
	PropFile                  string
	Description               string
	MinimalSupportedSQVersion string
	LatestSupportedSQVersion  string
	ChangelogURL              string
	DownloadURL               string
	PublicVersion             string
	SonarCloudURL             string
	SkipCreatingPullRequest   bool
	SkipAnnouncing            bool
}

func requireInput(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidInput, name)
	}
	return nil
}

func (r *ReleaseInput) Validate(aCfg *ActionConfig) error {
	required := []struct{ name, value string }{
		{"prop-file", r.PropFile},
		{"description", r.Description},
		{"minimal-supported-sq-version", r.MinimalSupportedSQVersion},
		{"changelog-url", r.ChangelogURL},
		{"download-url", r.DownloadURL},
		{"public-version", r.PublicVersion},
	}
	for _, input := range required {
		if err := requireInput(input.name, input.value); err != nil {
			return err
		}
	}
	if strings.ContainsAny(r.PropFile, `/\`) {
		return fmt.Errorf(`%w: prop-file should be file name without "/" nor "\"`, ErrInvalidInput)
	}
	if strings.Contains(r.PublicVersion, metadata.Separator) {
		return fmt.Errorf("%w: unsupported public-version found: %s", ErrInvalidInput, r.PublicVersion)
	}
	if r.SkipCreatingPullRequest {
		return nil
	}
	if err := requireInput("sonar-cloud-url", r.SonarCloudURL); err != nil {
		return err
	}
	if !r.SkipAnnouncing && aCfg.DiscourseAPIKey == "" {
		return fmt.Errorf("%w: DISCOURSE_API_KEY is required unless announcing is skipped", ErrInvalidInput)
	}
	return nil
}

func (r *ReleaseInput) GetSQVersions() string {
	return version.SQVersionsRange(r.MinimalSupportedSQVersion, r.LatestSupportedSQVersion)
}
