// Package gitio reads the fork repository's state using go-git.
package gitio

import (
	"errors"
	"fmt"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"fountain/internal/fault"
)

// HeadCommit returns the full hash of the commit checked out in the
// repository at dir. The fork's commit keys every fork-derived cache stage.
func HeadCommit(dir string) (string, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return "", fault.Configf("resolve fork commit", dir, "fork repository not found")
	}
	if err != nil {
		return "", fmt.Errorf("opening repository: %w", err)
	}
	ref, err := repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return "", fault.Configf("resolve fork commit", dir, "repository has no commits")
	}
	if err != nil {
		return "", fmt.Errorf("resolving HEAD: %w", err)
	}
	return ref.Hash().String(), nil
}
