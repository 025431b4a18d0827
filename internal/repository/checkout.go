package repository

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
)

const upstreamRemoteName = "sonarsource"

func (r *Repository) auth() transport.AuthMethod {
	if r.token == "" {
		return nil
	}
	return &githttp.BasicAuth{Username: "x-access-token", Password: r.token}
}

// CheckoutSourceRepo clones the fork of owner into a temporary directory,
// resets it to the default branch of the upstream repository and pushes that
// state to the fork. It returns the directory of the working tree.
func (r *Repository) CheckoutSourceRepo(ctx context.Context, owner string) (string, error) {
	rootDir, err := os.MkdirTemp("", "sonar-update-center-action-")
	if err != nil {
		return "", fmt.Errorf("failed to create temp dir: %w", err)
	}
	if err := r.checkout(ctx, rootDir, owner); err != nil {
		_ = os.RemoveAll(rootDir)
		return "", err
	}
	return rootDir, nil
}

func (r *Repository) checkout(ctx context.Context, rootDir, owner string) error {
	auth := r.auth()
	branchRef := plumbing.NewBranchReferenceName(r.upstreamBranch)
	forkURL := r.remoteURL(owner, r.upstreamRepo)
	r.log.Infof("cloning %s/%s into %s...", owner, r.upstreamRepo, rootDir)
	repo, err := git.PlainCloneContext(ctx, rootDir, false, &git.CloneOptions{
		URL:           forkURL,
		Auth:          auth,
		ReferenceName: branchRef,
		SingleBranch:  true,
	})
	if err != nil {
		return fmt.Errorf("failed to clone %s/%s: %w", owner, r.upstreamRepo, err)
	}

	_, err = repo.CreateRemote(&gitconfig.RemoteConfig{
		Name: upstreamRemoteName,
		URLs: []string{r.remoteURL(r.upstreamOwner, r.upstreamRepo)},
	})
	if err != nil {
		return fmt.Errorf("failed to add remote %s: %w", upstreamRemoteName, err)
	}
	upstreamRef := plumbing.NewRemoteReferenceName(upstreamRemoteName, r.upstreamBranch)
	err = repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: upstreamRemoteName,
		Auth:       auth,
		RefSpecs:   []gitconfig.RefSpec{gitconfig.RefSpec(fmt.Sprintf("+%s:%s", branchRef, upstreamRef))},
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("failed to fetch %s: %w", r.upstreamFullName(), err)
	}

	upstreamHead, err := repo.Reference(upstreamRef, true)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", upstreamRef, err)
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return err
	}
	// the properties file must be edited on top of the upstream state, not the fork's
	err = worktree.Reset(&git.ResetOptions{Commit: upstreamHead.Hash(), Mode: git.HardReset})
	if err != nil {
		return fmt.Errorf("failed to reset to %s: %w", upstreamHead.Hash(), err)
	}

	r.log.Infof("syncing %s of %s/%s with %s...", r.upstreamBranch, owner, r.upstreamRepo, r.upstreamFullName())
	err = repo.PushContext(ctx, &git.PushOptions{
		RemoteName: git.DefaultRemoteName,
		Auth:       auth,
		RefSpecs:   []gitconfig.RefSpec{gitconfig.RefSpec(fmt.Sprintf("%s:%s", branchRef, branchRef))},
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("failed to push %s to %s/%s: %w", r.upstreamBranch, owner, r.upstreamRepo, err)
	}
	return nil
}
