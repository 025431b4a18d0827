package repository

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/google/go-github/v59/github"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const branchPrefix = "sonar-update-center-action-"

type PullRequest struct {
	Number  int
	HTMLURL string
}

type Repository struct {
	log              *logrus.Logger
	ghClient         *github.Client
	token            string
	upstreamOwner    string
	upstreamRepo     string
	upstreamBranch   string
	forkTimeout      time.Duration
	forkPollInterval time.Duration
	remoteURL        func(owner, repo string) string
}

type Options struct {
	Token            string
	UpstreamOwner    string
	UpstreamRepo     string
	UpstreamBranch   string
	ForkTimeout      time.Duration
	ForkPollInterval time.Duration
	// RemoteURL returns the git URL of owner/repo, defaults to github.com over https.
	RemoteURL func(owner, repo string) string
}

func New(log *logrus.Logger, ghClient *github.Client, opts Options) *Repository {
	r := &Repository{
		log:              log,
		ghClient:         ghClient,
		token:            opts.Token,
		upstreamOwner:    opts.UpstreamOwner,
		upstreamRepo:     opts.UpstreamRepo,
		upstreamBranch:   opts.UpstreamBranch,
		forkTimeout:      opts.ForkTimeout,
		forkPollInterval: opts.ForkPollInterval,
		remoteURL:        opts.RemoteURL,
	}
	if r.upstreamOwner == "" {
		r.upstreamOwner = "SonarSource"
	}
	if r.upstreamRepo == "" {
		r.upstreamRepo = "sonar-update-center-properties"
	}
	if r.upstreamBranch == "" {
		r.upstreamBranch = "master"
	}
	if r.forkTimeout == 0 {
		r.forkTimeout = 5 * time.Minute
	}
	if r.forkPollInterval == 0 {
		r.forkPollInterval = 10 * time.Second
	}
	if r.remoteURL == nil {
		r.remoteURL = gitHubRemoteURL
	}
	return r
}

func gitHubRemoteURL(owner, repo string) string {
	return fmt.Sprintf("https://github.com/%s/%s.git", url.PathEscape(owner), url.PathEscape(repo))
}

func (r *Repository) upstreamFullName() string {
	return fmt.Sprintf("%s/%s", r.upstreamOwner, r.upstreamRepo)
}

func isNotFound(err error) bool {
	var ghErr *github.ErrorResponse
	return errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusNotFound
}

// Fork forks the upstream repository into the account of the authenticated
// user and waits until GitHub has finished creating it. It returns the owner
// and the name of the fork.
func (r *Repository) Fork(ctx context.Context) (string, string, error) {
	r.log.Debugf("forking the %s repository...", r.upstreamFullName())
	_, _, err := r.ghClient.Repositories.CreateFork(ctx, r.upstreamOwner, r.upstreamRepo, &github.RepositoryCreateForkOptions{})
	var acceptedErr *github.AcceptedError
	if err != nil && !errors.As(err, &acceptedErr) {
		return "", "", fmt.Errorf("failed to fork %s: %w", r.upstreamFullName(), err)
	}

	user, _, err := r.ghClient.Users.Get(ctx, "")
	if err != nil {
		return "", "", fmt.Errorf("failed to get authenticated user: %w", err)
	}
	owner := user.GetLogin()
	r.log.Debugf("expecting that the forked repository exists as %s/%s", owner, r.upstreamRepo)

	ctx, cancel := context.WithTimeout(ctx, r.forkTimeout)
	defer cancel()
	for attempt := 1; ; attempt++ {
		r.log.Debugf("checking existence of the forked repository (attempt %d)...", attempt)
		repo, _, err := r.ghClient.Repositories.Get(ctx, owner, r.upstreamRepo)
		if err == nil {
			if !repo.GetFork() || repo.GetSource().GetFullName() != r.upstreamFullName() {
				return "", "", fmt.Errorf("the %s/%s repository is not forked from %s", owner, r.upstreamRepo, r.upstreamFullName())
			}
			r.log.Debug("the forked repository has been found")
			return owner, r.upstreamRepo, nil
		}
		if ctx.Err() == nil && !isNotFound(err) {
			return "", "", fmt.Errorf("failed to get forked repository: %w", err)
		}
		select {
		case <-ctx.Done():
			return "", "", fmt.Errorf("forked repository %s/%s did not appear in time: %w", owner, r.upstreamRepo, ctx.Err())
		case <-time.After(r.forkPollInterval):
		}
	}
}

// HeadSHA returns the commit sha the given branch points to.
func (r *Repository) HeadSHA(ctx context.Context, owner, repo, branch string) (string, error) {
	r.log.Debugf("finding sha of heads/%s...", branch)
	ref, _, err := r.ghClient.Git.GetRef(ctx, owner, repo, "heads/"+branch)
	if err != nil {
		return "", fmt.Errorf("failed to get ref heads/%s: %w", branch, err)
	}
	return ref.GetObject().GetSHA(), nil
}

// Commit creates a commit on top of parentSHA that replaces path with its
// content in rootDir. The commit is not referenced by any branch yet.
func (r *Repository) Commit(ctx context.Context, owner, repo, path, rootDir, message, parentSHA string) (string, error) {
	content, err := os.ReadFile(filepath.Join(rootDir, path))
	if err != nil {
		return "", err
	}
	r.log.Debug("creating a blob...")
	blob, _, err := r.ghClient.Git.CreateBlob(ctx, owner, repo, &github.Blob{
		Content:  github.String(string(content)),
		Encoding: github.String("utf-8"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create blob: %w", err)
	}
	r.log.Debugf("creating a tree with the base tree %s...", parentSHA)
	tree, _, err := r.ghClient.Git.CreateTree(ctx, owner, repo, parentSHA, []*github.TreeEntry{
		{
			Path: github.String(path),
			Mode: github.String("100644"),
			Type: github.String("blob"),
			SHA:  blob.SHA,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to create tree: %w", err)
	}
	r.log.Debugf("creating a commit with tree %s and parent %s...", tree.GetSHA(), parentSHA)
	commit, _, err := r.ghClient.Git.CreateCommit(ctx, owner, repo, &github.Commit{
		Message: github.String(message),
		Tree:    &github.Tree{SHA: tree.SHA},
		Parents: []*github.Commit{{SHA: github.String(parentSHA)}},
	}, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create commit: %w", err)
	}
	r.log.Debugf("created a commit as %s", commit.GetSHA())
	return commit.GetSHA(), nil
}

// CreateBranch creates a randomly named branch pointing to sha.
func (r *Repository) CreateBranch(ctx context.Context, owner, repo, sha string) (string, error) {
	branch := branchPrefix + uuid.NewString()
	r.log.Debugf("creating a branch refs/heads/%s with sha %s", branch, sha)
	_, _, err := r.ghClient.Git.CreateRef(ctx, owner, repo, &github.Reference{
		Ref:    github.String("refs/heads/" + branch),
		Object: &github.GitObject{SHA: github.String(sha)},
	})
	if err != nil {
		return "", fmt.Errorf("failed to create branch %s: %w", branch, err)
	}
	return branch, nil
}

// EncodeURL escapes the characters of rawURL that are not allowed in a URL,
// such as spaces. Unparseable input is returned unchanged.
func EncodeURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.String()
}

func pullRequestBody(releaseName, changelogURL string) string {
	return fmt.Sprintf(`We've released [%s](%s), please add it to the marketplace.
I'll post to the forum and add its URL here later.

Thanks in advance!`, releaseName, EncodeURL(changelogURL))
}

// CreatePullRequest opens a draft pull request from owner:branch against the
// upstream repository.
func (r *Repository) CreatePullRequest(ctx context.Context, owner, branch, releaseName, changelogURL string) (*PullRequest, error) {
	pr, _, err := r.ghClient.PullRequests.Create(ctx, r.upstreamOwner, r.upstreamRepo, &github.NewPullRequest{
		Title:               github.String("Release " + releaseName),
		Head:                github.String(fmt.Sprintf("%s:%s", owner, branch)),
		Base:                github.String(r.upstreamBranch),
		Body:                github.String(pullRequestBody(releaseName, changelogURL)),
		MaintainerCanModify: github.Bool(true),
		Draft:               github.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create pull request: %w", err)
	}
	return &PullRequest{Number: pr.GetNumber(), HTMLURL: pr.GetHTMLURL()}, nil
}

func (r *Repository) CommentOnPullRequest(ctx context.Context, number int, body string) error {
	_, _, err := r.ghClient.Issues.CreateComment(ctx, r.upstreamOwner, r.upstreamRepo, number, &github.IssueComment{
		Body: github.String(body),
	})
	if err != nil {
		return fmt.Errorf("failed to comment on pull request #%d: %w", number, err)
	}
	return nil
}
