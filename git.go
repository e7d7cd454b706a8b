package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/sirupsen/logrus"
)

// isGitURL checks if the input string looks like a remote Git repository.
func isGitURL(input string) bool {
	return strings.HasSuffix(input, ".git") ||
		strings.HasPrefix(input, "git@") ||
		strings.HasPrefix(input, "https://") ||
		strings.HasPrefix(input, "http://") ||
		strings.HasPrefix(input, "ssh://")
}

// cloneGitRepo shallow-clones a repository into a temporary directory and
// returns its path. The caller removes the directory.
func cloneGitRepo(ctx context.Context, url string, logger *logrus.Logger) (string, error) {
	if !isGitURL(url) {
		return "", fmt.Errorf("%q does not look like a git repository URL", url)
	}
	tempDir, err := os.MkdirTemp("", "htrmeta-git-")
	if err != nil {
		return "", fmt.Errorf("failed to create temporary directory: %w", err)
	}

	logger.WithFields(logrus.Fields{"url": url, "dir": tempDir}).Info("Cloning repository")
	_, err = git.PlainCloneContext(ctx, tempDir, false, &git.CloneOptions{
		URL:           url,
		Depth:         1,
		ReferenceName: plumbing.HEAD,
		SingleBranch:  true,
	})
	if err != nil {
		_ = os.RemoveAll(tempDir)
		return "", fmt.Errorf("failed to clone repository '%s': %w", url, err)
	}
	logger.WithField("url", url).Info("Finished cloning")
	return tempDir, nil
}
