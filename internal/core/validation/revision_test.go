package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// =============================================================================
// ValidateRevision Tests
// =============================================================================

func TestValidateRevision(t *testing.T) {
	tests := []struct {
		name    string
		rev     string
		wantErr bool
	}{
		{"empty means default", "", false},
		{"HEAD", "HEAD", false},
		{"parent", "HEAD^", false},
		{"ancestor", "HEAD~3", false},
		{"branch", "origin/main", false},
		{"tag", "v1.4.0", false},
		{"sha", "3f2c9a1e7d4b", false},
		{"upstream", "@{upstream}", false},
		{"option", "--output=/tmp/x", true},
		{"short option", "-p", true},
		{"range", "HEAD~3..HEAD", true},
		{"space", "HEAD main", true},
		{"newline", "HEAD\n", true},
		{"nul", "HEAD\x00", true},
		{"too long", strings.Repeat("a", MaxRevisionLength+1), true},
		{"max length", strings.Repeat("a", MaxRevisionLength), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := ValidateRevision(tt.rev)
			if tt.wantErr {
				assert.NotEmpty(t, msg)
			} else {
				assert.Empty(t, msg)
			}
		})
	}
}

// =============================================================================
// ValidateRevisions Tests
// =============================================================================

func TestValidateRevisions_AllValid(t *testing.T) {
	field, msg := ValidateRevisions("HEAD^", "HEAD")
	assert.Empty(t, field)
	assert.Empty(t, msg)
}

func TestValidateRevisions_BadFrom(t *testing.T) {
	field, msg := ValidateRevisions("-p", "HEAD")
	assert.Equal(t, "from", field)
	assert.Equal(t, "from must not start with '-'", msg)
}

func TestValidateRevisions_BadTo(t *testing.T) {
	field, msg := ValidateRevisions("HEAD^", "a b")
	assert.Equal(t, "to", field)
	assert.Equal(t, "to must not contain whitespace or control characters", msg)
}

func TestValidateRevisions_ChecksInOrder(t *testing.T) {
	// When both are invalid, from is reported
	field, _ := ValidateRevisions("-a", "-b")
	assert.Equal(t, "from", field, "should check from first")
}

// =============================================================================
// CanDeploy Tests
// =============================================================================

func TestCanDeploy_Idle(t *testing.T) {
	allowed, reason := CanDeploy(false)
	assert.True(t, allowed)
	assert.Empty(t, reason)
}

func TestCanDeploy_Running(t *testing.T) {
	allowed, reason := CanDeploy(true)
	assert.False(t, allowed)
	assert.Equal(t, "a deployment is already running", reason)
}
