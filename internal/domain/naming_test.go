package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlug(t *testing.T) {
	assert.Equal(t, "add-user-auth", Slug("Add User Auth"))
	assert.Equal(t, "fix--42--crash-", Slug("Fix #42: crash!"))
	assert.Equal(t, "already-fine", Slug("already-fine"))
}

func TestSessionName(t *testing.T) {
	name := SessionName(3, "Add User Auth")
	assert.Equal(t, "herd-3-add-user-auth", name)
	assert.True(t, IsSessionName(name))
}

func TestIsSessionName(t *testing.T) {
	assert.True(t, IsSessionName("herd-1-fix-bug"))
	assert.False(t, IsSessionName("other-1-fix-bug"))
	assert.False(t, IsSessionName("herd-1"))
	assert.False(t, IsSessionName("herd-1-Fix-Bug"))
}

func TestBranchName(t *testing.T) {
	assert.Equal(t, "herd-7-refactor-config", BranchName(7, "Refactor config"))
}

func TestStatePath(t *testing.T) {
	assert.Equal(t, "/work/.herd/state.json", StatePath("/work"))
}

func TestTmpFilePaths(t *testing.T) {
	assert.Equal(t, "/ws/.herd/tmp/herd-1-x.out", OutFilePath("/ws", "herd-1-x"))
	assert.Equal(t, "/ws/.herd/tmp/herd-1-x.exit", ExitFilePath("/ws", "herd-1-x"))
}
