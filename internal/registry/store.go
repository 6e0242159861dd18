package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/capstan-io/capstan/internal/common"
	"github.com/capstan-io/capstan/pkg/types"
	"gorm.io/gorm"
)

// ErrPackageNotFound is returned when a name has no version rows
var ErrPackageNotFound = errors.New("package not found")

// PackageStore is the metadata store for package records. All reads are
// strongly consistent with prior deletes through the same store.
type PackageStore struct {
	db *common.Database
}

// NewPackageStore creates a package store on the given database
func NewPackageStore(db *common.Database) *PackageStore {
	return &PackageStore{db: db}
}

// FindByName assembles the package record for name: versions in publish
// order plus the maintainer set. Returns ErrPackageNotFound when the name
// has zero versions; a record is never materialized empty.
func (s *PackageStore) FindByName(ctx context.Context, name string) (*types.Package, error) {
	var versions []types.PackageVersion
	if err := s.db.WithContext(ctx).
		Where("name = ?", name).
		Order("created_at ASC").
		Find(&versions).Error; err != nil {
		return nil, fmt.Errorf("failed to load versions: %w", err)
	}

	if len(versions) == 0 {
		return nil, ErrPackageNotFound
	}

	var maintainers []types.Maintainer
	if err := s.db.WithContext(ctx).
		Where("name = ?", name).
		Find(&maintainers).Error; err != nil {
		return nil, fmt.Errorf("failed to load maintainers: %w", err)
	}

	usernames := make([]string, 0, len(maintainers))
	for _, m := range maintainers {
		usernames = append(usernames, m.Username)
	}

	return &types.Package{
		Name:        name,
		Versions:    versions,
		Maintainers: usernames,
	}, nil
}

// DeleteAllVersions removes the entire record for name in one transaction:
// all version rows and all maintainer rows. Once the transaction commits, a
// concurrent FindByName observes absence; no partial state is ever visible.
// Returns ErrPackageNotFound when no version row was deleted, so the loser
// of a concurrent delete race degrades to not-found rather than reporting a
// second success.
func (s *PackageStore) DeleteAllVersions(ctx context.Context, name string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("name = ?", name).Delete(&types.PackageVersion{})
		if result.Error != nil {
			return fmt.Errorf("failed to delete versions: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrPackageNotFound
		}

		if err := tx.Where("name = ?", name).Delete(&types.Maintainer{}).Error; err != nil {
			return fmt.Errorf("failed to delete maintainers: %w", err)
		}

		return nil
	})
}

// CreateVersion inserts one published version row
func (s *PackageStore) CreateVersion(ctx context.Context, version *types.PackageVersion) error {
	var existing types.PackageVersion
	err := s.db.WithContext(ctx).
		Where("name = ? AND version = ?", version.Name, version.Version).
		First(&existing).Error
	if err == nil {
		return fmt.Errorf("version %s@%s already exists", version.Name, version.Version)
	}
	if err != gorm.ErrRecordNotFound {
		return fmt.Errorf("failed to check existing version: %w", err)
	}

	if err := s.db.WithContext(ctx).Create(version).Error; err != nil {
		return fmt.Errorf("failed to create version: %w", err)
	}
	return nil
}

// AddMaintainer grants username modify rights over name. Idempotent.
func (s *PackageStore) AddMaintainer(ctx context.Context, name, username string) error {
	var existing types.Maintainer
	err := s.db.WithContext(ctx).
		Where("name = ? AND username = ?", name, username).
		First(&existing).Error
	if err == nil {
		return nil
	}
	if err != gorm.ErrRecordNotFound {
		return fmt.Errorf("failed to check maintainer: %w", err)
	}

	maintainer := &types.Maintainer{Name: name, Username: username}
	if err := s.db.WithContext(ctx).Create(maintainer).Error; err != nil {
		return fmt.Errorf("failed to add maintainer: %w", err)
	}
	return nil
}
