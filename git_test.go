package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsGitURL(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"https://github.com/HTR-United/cremma-medieval.git", true},
		{"https://github.com/HTR-United/cremma-medieval", true},
		{"http://example.org/repo", true},
		{"git@github.com:HTR-United/cremma-medieval.git", true},
		{"ssh://git@example.org/repo", true},
		{"../local/repo.git", true},
		{"../local/repo", false},
		{"data/**/*.xml", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isGitURL(tt.input), tt.input)
	}
}

func TestCloneGitRepoRejectsPlainPaths(t *testing.T) {
	_, err := cloneGitRepo(context.Background(), "some/dir", quietLogger())
	assert.ErrorContains(t, err, "does not look like a git repository URL")
}
