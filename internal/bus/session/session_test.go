package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveRepo(t *testing.T) {
	tests := []struct {
		name string
		cwd  string
		want string
	}{
		{"plain directory", "/src/myrepo", "myrepo"},
		{"trailing slash", "/src/myrepo/", "myrepo"},
		{"worktree layout", "/src/myrepo/.worktrees/feature-x", "myrepo"},
		{"nested under worktree", "/src/myrepo/.worktrees/feature-x/sub", "myrepo"},
		{"root", "/", "unknown"},
		{"empty", "", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveRepo(tt.cwd))
		})
	}
}

func TestAlive(t *testing.T) {
	t.Run("nil pid is assumed live", func(t *testing.T) {
		assert.True(t, Alive(nil))
	})
}
