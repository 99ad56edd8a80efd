// Package codehost is a thin reader over the platform's code-hosting API —
// the collaborator that resolves a deployment's source repository. The
// admission gate sits in front of calls through this client; the client
// itself only reads, it never mutates repository state.
package codehost

import (
	"context"

	"github.com/google/go-github/v66/github"
)

// RepoReader wraps a GitHub client down to the one read the deploy pipeline
// needs: a repository's default branch.
type RepoReader struct {
	gh *github.Client
}

func NewRepoReader(token string) *RepoReader {
	client := github.NewClient(nil)
	if token != "" {
		client = client.WithAuthToken(token)
	}
	return &RepoReader{gh: client}
}

// GetDefaultBranch returns the default branch name for owner/repo. Callers
// are expected to sit this behind the admission middleware, since it
// counts against the code-hosting API's own rate limit.
func (r *RepoReader) GetDefaultBranch(ctx context.Context, owner, repo string) (string, error) {
	rep, _, err := r.gh.Repositories.Get(ctx, owner, repo)
	if err != nil {
		return "", err
	}
	return rep.GetDefaultBranch(), nil
}
