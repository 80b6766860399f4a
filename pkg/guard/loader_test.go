package guard

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tenantgate/pkg/rbac"
)

const samplePolicy = `
default: public
rules:
  - path: /manager/users
    require: users
  - path: /manager
    require: manager
  - path: /manager/help
    public: true
`

func TestParsePolicySet(t *testing.T) {
	ps, err := ParsePolicySet([]byte(samplePolicy))
	require.NoError(t, err)

	require.Len(t, ps.Rules, 3)
	assert.True(t, ps.Default.IsPublic())
	assert.Equal(t, "/manager/users", ps.Rules[0].Pattern)
	c, _ := ps.Rules[0].Policy.Capability()
	assert.Equal(t, rbac.CapUsers, c)
	assert.True(t, ps.Rules[2].Policy.IsPublic())

	g, err := New(ps, nil)
	require.NoError(t, err)
	assert.True(t, g.Evaluate(rbac.EffectivePermissions{}, "/manager/help/faq").Allowed)
	assert.False(t, g.Evaluate(rbac.EffectivePermissions{}, "/manager/other").Allowed)
}

func TestParsePolicySet_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"unknown capability", "rules:\n  - path: /x\n    require: billing\n", "unknown capability"},
		{"unknown default", "default: nobody\n", "default policy"},
		{"missing path", "rules:\n  - require: users\n", "path is required"},
		{"public and require", "rules:\n  - path: /x\n    public: true\n    require: users\n", "exclusive"},
		{"neither", "rules:\n  - path: /x\n", "one of public or require"},
		{"unknown field", "rules:\n  - path: /x\n    requires: users\n", "failed to parse policy"},
		{"relative path", "rules:\n  - path: x\n    public: true\n", "must start with /"},
		{"duplicate", "rules:\n  - path: /x\n    public: true\n  - path: /x/\n    require: users\n", "duplicate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePolicySet([]byte(tt.doc))
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestParsePolicySet_DefaultsToPublic(t *testing.T) {
	ps, err := ParsePolicySet([]byte("rules: []\n"))
	require.NoError(t, err)
	assert.True(t, ps.Default.IsPublic())
}

func TestLoadPolicyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "routes.yaml")
	require.NoError(t, os.WriteFile(path, []byte(samplePolicy), 0o644))

	ps, err := LoadPolicyFile(path)
	require.NoError(t, err)
	assert.Len(t, ps.Rules, 3)

	_, err = LoadPolicyFile(filepath.Join(dir, "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read policy file")
}

func TestMarshalPolicySet_RoundTripsDefaultRules(t *testing.T) {
	data, err := MarshalPolicySet(DefaultPolicySet())
	require.NoError(t, err)

	ps, err := ParsePolicySet(data)
	require.NoError(t, err)
	assert.Equal(t, DefaultPolicySet(), ps)
}
