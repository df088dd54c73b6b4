package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrate(t *testing.T) {
	tests := []struct {
		name        string
		version     string
		wantErr     bool
		errContains string
		wantVersion string
	}{
		{
			name:        "current version is a no-op",
			version:     SchemaVersion,
			wantVersion: SchemaVersion,
		},
		{
			name:        "full semver form is normalized",
			version:     "1.0.0",
			wantVersion: SchemaVersion,
		},
		{
			name:        "newer version is rejected",
			version:     "2.0",
			wantErr:     true,
			errContains: "newer than supported",
		},
		{
			name:        "invalid version is rejected",
			version:     "abc",
			wantErr:     true,
			errContains: "invalid schema version",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := DefaultDocument()
			doc.Metadata.SchemaVersion = tt.version

			err := Migrate(doc)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantVersion, doc.Metadata.SchemaVersion)
		})
	}
}

func TestMigrate_Nil(t *testing.T) {
	err := Migrate(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot be nil")
}

func TestCheckCompatibility(t *testing.T) {
	tests := []struct {
		name        string
		version     string
		wantErr     bool
		errContains string
	}{
		{
			name:    "current version",
			version: SchemaVersion,
		},
		{
			name:        "missing version",
			version:     "",
			wantErr:     true,
			errContains: "missing schema version",
		},
		{
			name:        "newer version",
			version:     "2.0",
			wantErr:     true,
			errContains: "requires schema version",
		},
		{
			name:        "older major has no migration path",
			version:     "0.9",
			wantErr:     true,
			errContains: "no migration path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := DefaultDocument()
			doc.Metadata.SchemaVersion = tt.version

			err := CheckCompatibility(doc)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		a, b    string
		want    int
		wantErr bool
	}{
		{a: "1.0", b: "1.0", want: 0},
		{a: "0.9", b: "1.0", want: -1},
		{a: "2.0", b: "1.0", want: 1},
		{a: "1.0.0", b: "1.0", want: 0},
		{a: "garbage", b: "1.0", wantErr: true},
	}

	for _, tt := range tests {
		got, err := CompareVersions(tt.a, tt.b)
		if tt.wantErr {
			assert.Error(t, err, "%s vs %s", tt.a, tt.b)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%s vs %s", tt.a, tt.b)
	}
}

func TestIsVersionSupported(t *testing.T) {
	assert.True(t, IsVersionSupported("1.0"))
	assert.True(t, IsVersionSupported("1.0.3"), "patch releases of a supported minor are compatible")
	assert.False(t, IsVersionSupported("0.9"))
	assert.False(t, IsVersionSupported("2.0"))
	assert.False(t, IsVersionSupported(""))
	assert.False(t, IsVersionSupported("garbage"))
}

func TestGetVersionInfo(t *testing.T) {
	doc := DefaultDocument()
	doc.Metadata.Version = "3.2.1"

	info, err := GetVersionInfo(doc)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, info.SchemaVersion)
	assert.Equal(t, "3.2.1", info.DocumentVersion)
	assert.True(t, info.IsCompatible)
	assert.False(t, info.RequiresMigration)
}

func TestGetVersionInfo_OlderSchema(t *testing.T) {
	doc := DefaultDocument()
	doc.Metadata.SchemaVersion = "0.9"

	info, err := GetVersionInfo(doc)
	require.NoError(t, err)
	assert.False(t, info.IsCompatible)
	assert.True(t, info.RequiresMigration)
	assert.Equal(t, "0.9 -> 1.0", info.MigrationPath)
}

func TestGetVersionInfo_Nil(t *testing.T) {
	_, err := GetVersionInfo(nil)
	assert.Error(t, err)
}
