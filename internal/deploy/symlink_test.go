package deploy

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hometree/hometree/internal/herror"
)

func TestValidateSymlinkTarget(t *testing.T) {
	homeDir := "/home/user"

	tests := []struct {
		name       string
		symlinkRel string
		target     string
		wantErr    bool
	}{
		{"relative within home", ".config/app/current", "../releases/v2", false},
		{"dot-relative within home", ".local/data", "./cache", false},
		{"absolute within home", ".config/app/current", "/home/user/releases/v2", false},
		{"relative escapes via many ..", ".config/app/current", "../../../../etc/passwd", true},
		{"relative escapes via parent of home", "current", "../../etc/passwd", true},
		{"absolute outside home", ".config/current", "/etc/passwd", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			symlinkPath := filepath.Join(homeDir, tt.symlinkRel)
			err := validateSymlinkTarget(homeDir, symlinkPath, tt.target)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateSymlinkTarget_AbsoluteOutsideHomeIsRejected(t *testing.T) {
	homeDir := "/home/user"
	err := validateSymlinkTarget(homeDir, filepath.Join(homeDir, ".config/current"), "/etc/passwd")
	assert.Error(t, err)

	var herr *herror.Error
	assert.True(t, errors.As(err, &herr))
	assert.Equal(t, herror.Conflict, herr.Kind())
}

func TestValidateSymlinkTarget_EscapingRelativeTargetIsConflict(t *testing.T) {
	homeDir := "/home/user"
	err := validateSymlinkTarget(homeDir, filepath.Join(homeDir, ".config/app/current"), "../../../../etc/passwd")
	assert.Error(t, err)

	var herr *herror.Error
	assert.True(t, errors.As(err, &herr))
	assert.Equal(t, herror.Conflict, herr.Kind())
}

func TestNormalizeSymlinkTarget_RelativeResolvesAgainstBase(t *testing.T) {
	got := normalizeSymlinkTarget("/home/user", "/home/user/.config/app", "../releases/v2")
	assert.Equal(t, "/home/user/.config/releases/v2", got)
}

func TestNormalizeSymlinkTarget_AbsoluteIsUsedVerbatim(t *testing.T) {
	got := normalizeSymlinkTarget("/home/user", "/home/user/.config", "/opt/data")
	assert.Equal(t, "/opt/data", got)
}

func TestNormalizeSymlinkTarget_DotSegmentsAreNoOps(t *testing.T) {
	got := normalizeSymlinkTarget("/home/user", "/home/user/.local", "./cache/./x")
	assert.Equal(t, "/home/user/.local/cache/x", got)
}
