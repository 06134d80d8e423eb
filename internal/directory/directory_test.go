package directory

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yard-monitor/tracking/internal/domain"
)

func TestNormalizePlate(t *testing.T) {
	cases := map[string]string{
		"abc123":    "ABC123",
		"ABC 123":   "ABC123",
		"ab-cd-12":  "ABCD12",
		" a b-c12 ": "ABC12",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizePlate(in), "input %q", in)
	}
}

func TestMemoryPlateLookup(t *testing.T) {
	m := NewMemory("ready")
	m.Put(domain.Vehicle{ID: "veh-1", Plate: "ab c-123", Active: true})

	// Lookups use the normalized form regardless of how the plate was
	// registered.
	v, ok := m.ByPlate("ABC123")
	require.True(t, ok)
	assert.Equal(t, "veh-1", v.ID)
	assert.Equal(t, "ABC123", v.Plate)

	_, ok = m.ByPlate("abc123")
	assert.False(t, ok, "callers must normalize before lookup")
}

func TestMemoryDeactivate(t *testing.T) {
	m := NewMemory("ready")
	m.Put(domain.Vehicle{ID: "veh-1", Plate: "ABC123", Active: true})

	m.Deactivate("veh-1")

	// Still resolvable by ID for history rendering.
	v, ok := m.ByID("veh-1")
	require.True(t, ok)
	assert.False(t, v.Active)

	// But invisible to plate lookups, so a re-used plate on a new
	// registration wins.
	_, ok = m.ByPlate("ABC123")
	assert.False(t, ok)
}

func TestExitAuthorized(t *testing.T) {
	m := NewMemory("ready")
	m.Put(domain.Vehicle{ID: "veh-1", Plate: "ABC123", Active: true, Tags: []string{"client", "READY"}})
	m.Put(domain.Vehicle{ID: "veh-2", Plate: "XYZ789", Active: true, Tags: []string{"client"}})

	assert.True(t, m.ExitAuthorized("veh-1"), "tag match is case-insensitive")
	assert.False(t, m.ExitAuthorized("veh-2"))
	assert.False(t, m.ExitAuthorized("veh-unknown"))

	m.SetTags("veh-2", []string{"ready"})
	assert.True(t, m.ExitAuthorized("veh-2"))
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vehicles.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
vehicles:
  - id: veh-1
    plate: abc 123
    make: Toyota
    tags: [ready]
  - id: veh-2
    plate: XYZ789
    inactive: true
`), 0o644))

	m, err := LoadFile(path, "ready")
	require.NoError(t, err)

	v, ok := m.ByPlate("ABC123")
	require.True(t, ok)
	assert.Equal(t, "Toyota", v.Make)
	assert.True(t, m.ExitAuthorized("veh-1"))

	// Inactive vehicles load but do not match plates.
	_, ok = m.ByPlate("XYZ789")
	assert.False(t, ok)
	v, ok = m.ByID("veh-2")
	require.True(t, ok)
	assert.False(t, v.Active)
}

func TestLoadFileRejectsMissingPlate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vehicles.yml")
	require.NoError(t, os.WriteFile(path, []byte("vehicles:\n  - id: veh-1\n"), 0o644))

	_, err := LoadFile(path, "ready")
	assert.Error(t, err)
}
