package strategy

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// MigrationFunc upgrades a document in place from one schema version
// toward the current one
type MigrationFunc func(*Document) error

// migrations maps source schema versions to their upgrade functions
var migrations = map[string]MigrationFunc{}

// Migrate upgrades a document to the current schema version
func Migrate(doc *Document) error {
	if doc == nil {
		return fmt.Errorf("document cannot be nil")
	}

	if doc.Metadata.SchemaVersion == SchemaVersion {
		return nil
	}

	current, err := parseVersion(doc.Metadata.SchemaVersion)
	if err != nil {
		return err
	}

	target, err := semver.NewVersion(SchemaVersion)
	if err != nil {
		return fmt.Errorf("invalid target schema version: %s", SchemaVersion)
	}

	if current.GreaterThan(target) {
		return fmt.Errorf("document schema version %s is newer than supported version %s",
			doc.Metadata.SchemaVersion, SchemaVersion)
	}

	for version, migrate := range migrations {
		migrationVersion, err := semver.NewVersion(version)
		if err != nil {
			continue
		}

		if current.LessThan(migrationVersion) {
			if err := migrate(doc); err != nil {
				return fmt.Errorf("migration from %s failed: %w", version, err)
			}
		}
	}

	doc.Metadata.SchemaVersion = SchemaVersion

	return nil
}

// CheckCompatibility reports whether a document can be brought to the
// current schema version
func CheckCompatibility(doc *Document) error {
	if doc == nil {
		return fmt.Errorf("document cannot be nil")
	}

	if doc.Metadata.SchemaVersion == "" {
		return fmt.Errorf("missing schema version")
	}

	current, err := parseVersion(doc.Metadata.SchemaVersion)
	if err != nil {
		return err
	}

	target, err := semver.NewVersion(SchemaVersion)
	if err != nil {
		return fmt.Errorf("invalid target schema version: %s", SchemaVersion)
	}

	if current.GreaterThan(target) {
		return fmt.Errorf("document requires schema version %s, but only %s is supported",
			doc.Metadata.SchemaVersion, SchemaVersion)
	}

	if current.LessThan(target) {
		// Direct migration exists only within a major version
		if current.Major() != target.Major() {
			return fmt.Errorf("no migration path from version %s to %s",
				doc.Metadata.SchemaVersion, SchemaVersion)
		}
	}

	return nil
}

// CompareVersions compares two version strings.
// Returns -1 if a < b, 0 if a == b, 1 if a > b.
func CompareVersions(a, b string) (int, error) {
	va, err := parseVersion(a)
	if err != nil {
		return 0, err
	}

	vb, err := parseVersion(b)
	if err != nil {
		return 0, err
	}

	return va.Compare(vb), nil
}

// IsVersionSupported checks if a schema version is supported
func IsVersionSupported(version string) bool {
	for _, v := range SupportedSchemaVersions {
		if v == version {
			return true
		}
	}

	v, err := semver.NewVersion(version)
	if err != nil {
		return false
	}

	for _, supported := range SupportedSchemaVersions {
		sv, err := semver.NewVersion(supported)
		if err != nil {
			continue
		}
		// Patch releases within a supported major.minor are compatible
		if v.Major() == sv.Major() && v.Minor() == sv.Minor() {
			return true
		}
	}

	return false
}

// VersionInfo describes where a document sits relative to the current
// schema version
type VersionInfo struct {
	SchemaVersion     string `json:"schema_version"`
	DocumentVersion   string `json:"document_version,omitempty"`
	IsCompatible      bool   `json:"is_compatible"`
	RequiresMigration bool   `json:"requires_migration"`
	MigrationPath     string `json:"migration_path,omitempty"`
}

// GetVersionInfo returns version information for a document
func GetVersionInfo(doc *Document) (*VersionInfo, error) {
	if doc == nil {
		return nil, fmt.Errorf("document cannot be nil")
	}

	info := &VersionInfo{
		SchemaVersion:   doc.Metadata.SchemaVersion,
		DocumentVersion: doc.Metadata.Version,
	}

	err := CheckCompatibility(doc)
	info.IsCompatible = err == nil

	if doc.Metadata.SchemaVersion != SchemaVersion {
		cmp, err := CompareVersions(doc.Metadata.SchemaVersion, SchemaVersion)
		if err == nil && cmp < 0 {
			info.RequiresMigration = true
			info.MigrationPath = fmt.Sprintf("%s -> %s", doc.Metadata.SchemaVersion, SchemaVersion)
		}
	}

	return info, nil
}

// parseVersion accepts both full semver strings and bare major.minor
// forms such as "1.0"
func parseVersion(raw string) (*semver.Version, error) {
	v, err := semver.NewVersion(raw)
	if err == nil {
		return v, nil
	}
	v, err = semver.NewVersion(raw + ".0")
	if err != nil {
		return nil, fmt.Errorf("invalid schema version: %s", raw)
	}
	return v, nil
}
