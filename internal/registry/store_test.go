package registry

import (
	"context"
	"testing"
	"time"

	"github.com/capstan-io/capstan/internal/common"
	"github.com/capstan-io/capstan/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *common.Database {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(&types.User{}, &types.PackageVersion{}, &types.Maintainer{})
	require.NoError(t, err)

	return &common.Database{DB: db}
}

func seedVersion(t *testing.T, db *common.Database, name, version, storageKey string, publishedAt time.Time) {
	t.Helper()
	row := &types.PackageVersion{
		Name:       name,
		Version:    version,
		StorageKey: storageKey,
		CreatedAt:  publishedAt,
	}
	require.NoError(t, db.Create(row).Error)
}

func seedMaintainer(t *testing.T, db *common.Database, name, username string) {
	t.Helper()
	require.NoError(t, db.Create(&types.Maintainer{Name: name, Username: username}).Error)
}

func TestFindByName_OrderedByPublishTime(t *testing.T) {
	db := setupTestDB(t)
	store := NewPackageStore(db)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	seedVersion(t, db, "@cnpmtest/widgets", "2.0.0", "tarballs/cd/widgets-2.0.0.tgz", base.Add(10*time.Minute))
	seedVersion(t, db, "@cnpmtest/widgets", "1.0.0", "tarballs/ab/widgets-1.0.0.tgz", base)
	seedMaintainer(t, db, "@cnpmtest/widgets", "cnpmjstest10")

	pkg, err := store.FindByName(ctx, "@cnpmtest/widgets")
	require.NoError(t, err)

	require.Len(t, pkg.Versions, 2)
	assert.Equal(t, "1.0.0", pkg.Versions[0].Version)
	assert.Equal(t, "2.0.0", pkg.Versions[1].Version)
	assert.Equal(t, []string{"cnpmjstest10"}, pkg.Maintainers)
	assert.Equal(t, "2.0.0", pkg.LatestVersion().Version)
}

func TestFindByName_NotFound(t *testing.T) {
	store := NewPackageStore(setupTestDB(t))

	pkg, err := store.FindByName(context.Background(), "@cnpmtest/nope")
	assert.ErrorIs(t, err, ErrPackageNotFound)
	assert.Nil(t, pkg)
}

func TestDeleteAllVersions(t *testing.T) {
	db := setupTestDB(t)
	store := NewPackageStore(db)
	ctx := context.Background()

	now := time.Now()
	seedVersion(t, db, "@cnpmtest/widgets", "1.0.0", "k1", now)
	seedVersion(t, db, "@cnpmtest/widgets", "2.0.0", "k2", now)
	seedVersion(t, db, "@cnpmtest/other", "1.0.0", "k3", now)
	seedMaintainer(t, db, "@cnpmtest/widgets", "cnpmjstest10")
	seedMaintainer(t, db, "@cnpmtest/other", "cnpmjstest10")

	require.NoError(t, store.DeleteAllVersions(ctx, "@cnpmtest/widgets"))

	// Deleted record is immediately invisible to reads
	_, err := store.FindByName(ctx, "@cnpmtest/widgets")
	assert.ErrorIs(t, err, ErrPackageNotFound)

	var maintainerCount int64
	require.NoError(t, db.Model(&types.Maintainer{}).Where("name = ?", "@cnpmtest/widgets").Count(&maintainerCount).Error)
	assert.Zero(t, maintainerCount)

	// Other packages untouched
	other, err := store.FindByName(ctx, "@cnpmtest/other")
	require.NoError(t, err)
	assert.Len(t, other.Versions, 1)
	assert.Equal(t, []string{"cnpmjstest10"}, other.Maintainers)
}

func TestDeleteAllVersions_SecondDeleteIsNotFound(t *testing.T) {
	db := setupTestDB(t)
	store := NewPackageStore(db)
	ctx := context.Background()

	seedVersion(t, db, "@cnpmtest/widgets", "1.0.0", "k1", time.Now())

	require.NoError(t, store.DeleteAllVersions(ctx, "@cnpmtest/widgets"))
	err := store.DeleteAllVersions(ctx, "@cnpmtest/widgets")
	assert.ErrorIs(t, err, ErrPackageNotFound)
}

func TestCreateVersion_Duplicate(t *testing.T) {
	db := setupTestDB(t)
	store := NewPackageStore(db)
	ctx := context.Background()

	v := &types.PackageVersion{Name: "@cnpmtest/widgets", Version: "1.0.0"}
	require.NoError(t, store.CreateVersion(ctx, v))

	err := store.CreateVersion(ctx, &types.PackageVersion{Name: "@cnpmtest/widgets", Version: "1.0.0"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestAddMaintainer_Idempotent(t *testing.T) {
	db := setupTestDB(t)
	store := NewPackageStore(db)
	ctx := context.Background()

	require.NoError(t, store.AddMaintainer(ctx, "@cnpmtest/widgets", "cnpmjstest10"))
	require.NoError(t, store.AddMaintainer(ctx, "@cnpmtest/widgets", "cnpmjstest10"))

	var count int64
	require.NoError(t, db.Model(&types.Maintainer{}).Where("name = ?", "@cnpmtest/widgets").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
