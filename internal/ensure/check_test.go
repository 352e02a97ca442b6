package ensure

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/scenario-cli/api/schemas"
)

func TestCheck(t *testing.T) {
	tests := []struct {
		name    string
		actual  string
		action  schemas.EnsureAction
		wantErr string
		fatal   bool
	}{
		{
			name:   "literal matches",
			actual: "https://example.com/",
			action: schemas.EnsureAction{Location: schemas.String("https://example.com/")},
		},
		{
			name:    "literal differs",
			actual:  "https://example.com/a",
			action:  schemas.EnsureAction{Location: schemas.String("https://example.com/")},
			wantErr: "location check failed: must be https://example.com/, but: https://example.com/a",
		},
		{
			name:   "pattern matches anywhere",
			actual: "https://example.com/done?id=1",
			action: schemas.EnsureAction{LocationRegexp: schemas.String(`/done`)},
		},
		{
			name:    "pattern does not match",
			actual:  "https://example.com/error",
			action:  schemas.EnsureAction{LocationRegexp: schemas.String(`^https://example\.com/done$`)},
			wantErr: `location check failed: must match ^https://example\.com/done$, but: https://example.com/error`,
		},
		{
			name:   "no conditions always passes",
			actual: "about:blank",
		},
		{
			name:   "both conditions hold",
			actual: "https://example.com/done",
			action: schemas.EnsureAction{
				Location:       schemas.String("https://example.com/done"),
				LocationRegexp: schemas.String(`done$`),
			},
		},
		{
			name:   "literal is checked before the pattern",
			actual: "https://example.com/x",
			action: schemas.EnsureAction{
				Location:       schemas.String("https://example.com/y"),
				LocationRegexp: schemas.String(`z`),
			},
			wantErr: "must be https://example.com/y",
		},
		{
			name:    "invalid pattern is malformed",
			actual:  "https://example.com/",
			action:  schemas.EnsureAction{LocationRegexp: schemas.String(`(`)},
			wantErr: "malformed scenario: location_regexp",
			fatal:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Check(tt.actual, tt.action)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Equal(t, tt.fatal, schemas.IsFatal(err))
			if !tt.fatal {
				var failure *schemas.AssertionFailure
				assert.True(t, errors.As(err, &failure))
				assert.Equal(t, tt.actual, failure.Actual)
			}
		})
	}
}
