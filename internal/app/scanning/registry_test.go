package scanning

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/buenobot/internal/domain/scanning"
)

func TestRegistry_Profiles(t *testing.T) {
	t.Parallel()

	noopFactory := staticCheck(scanning.CheckResult{}, nil)
	reg := NewRegistry()
	mustRegister(t, reg,
		Registration{ID: "api_health", Quick: true, Factory: noopFactory},
		Registration{ID: "sql_injection", Full: true, Factory: noopFactory},
		Registration{ID: "hardcoded_secrets", Quick: true, Full: true, Factory: noopFactory},
		Registration{ID: "disabled", Factory: noopFactory},
	)

	ids := func(regs []Registration) []string {
		out := make([]string, 0, len(regs))
		for _, r := range regs {
			out = append(out, r.ID)
		}
		return out
	}

	tests := []struct {
		name    string
		profile Profile
		want    []string
		wantErr error
	}{
		{name: "quick", profile: ProfileQuick, want: []string{"api_health", "hardcoded_secrets"}},
		{name: "full includes quick", profile: ProfileFull, want: []string{"api_health", "sql_injection", "hardcoded_secrets"}},
		{name: "mixed case quick", profile: "Quick", want: []string{"api_health", "hardcoded_secrets"}},
		{name: "padded full", profile: " FULL ", want: []string{"api_health", "sql_injection", "hardcoded_secrets"}},
		{name: "unknown", profile: "weekly", wantErr: ErrUnknownProfile},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := reg.Profile(tt.profile)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}

	assert.Len(t, reg.All(), 4)
}

func TestRegistry_Register(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	require.NoError(t, reg.Register(Registration{ID: "x", Factory: staticCheck(scanning.CheckResult{}, nil)}))

	got, ok := reg.Get("x")
	require.True(t, ok)
	assert.Equal(t, "x", got.Name)

	err := reg.Register(Registration{ID: "x", Factory: staticCheck(scanning.CheckResult{}, nil)})
	assert.ErrorIs(t, err, ErrDuplicateCheck)

	assert.Error(t, reg.Register(Registration{ID: "", Factory: staticCheck(scanning.CheckResult{}, nil)}))
	assert.Error(t, reg.Register(Registration{ID: "nofactory"}))

	_, ok = reg.Get("missing")
	assert.False(t, ok)
}

func TestParseProfile(t *testing.T) {
	t.Parallel()

	p, err := ParseProfile(" FULL ")
	require.NoError(t, err)
	assert.Equal(t, ProfileFull, p)

	_, err = ParseProfile("nightly")
	assert.ErrorIs(t, err, ErrUnknownProfile)
}
