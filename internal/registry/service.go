package registry

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/capstan-io/capstan/internal/common"
	"github.com/capstan-io/capstan/internal/storage"
	"github.com/capstan-io/capstan/pkg/config"
	"github.com/capstan-io/capstan/pkg/types"
	"github.com/capstan-io/capstan/pkg/utils"
	"github.com/rs/zerolog/log"
)

// Service composes the authorization gate, the package store and the blob
// reaper into the registry's mutating operations
type Service struct {
	DB       *common.Database
	Storage  storage.BlobStorage
	Packages *PackageStore
	Reaper   *Reaper

	cfg *config.RegistryConfig
}

// NewService creates a new registry service
func NewService(db *common.Database, blobs storage.BlobStorage, reaper *Reaper, cfg *config.RegistryConfig) *Service {
	return &Service{
		DB:       db,
		Storage:  blobs,
		Packages: NewPackageStore(db),
		Reaper:   reaper,
		cfg:      cfg,
	}
}

// gateConfig snapshots the registry policy for one authorization decision
func (s *Service) gateConfig() GateConfig {
	return GateConfig{
		Scopes:        s.cfg.Scopes,
		EnablePrivate: s.cfg.EnablePrivate,
	}
}

// Remove deletes all versions of name. The permission chain runs first and
// is side-effect free; on allow, the metadata delete is the durability
// boundary: once it commits the operation has succeeded from the caller's
// point of view, and tarball removal is handed to the reaper as best-effort
// background work. A non-nil Denial is a client-facing refusal; a non-nil
// error is a metadata store failure.
func (s *Service) Remove(ctx context.Context, name string, user *types.User) (*Denial, error) {
	pkg, err := s.Packages.FindByName(ctx, name)
	if err != nil && !errors.Is(err, ErrPackageNotFound) {
		return nil, fmt.Errorf("failed to look up package: %w", err)
	}

	if d := AuthorizeRemove(user, name, pkg, s.gateConfig()); d != nil {
		return d, nil
	}

	// Capture storage keys before the record disappears
	keys := pkg.StorageKeys()
	if missing := len(pkg.Versions) - len(keys); missing > 0 {
		// Tolerated, but worth surfacing: a version without a storage key
		// points at a prior corruption on the publish path
		log.Warn().
			Str("package", name).
			Int("versions_without_key", missing).
			Msg("versions missing storage key, skipping their blob sweep")
	}

	if err := s.Packages.DeleteAllVersions(ctx, name); err != nil {
		if errors.Is(err, ErrPackageNotFound) {
			// Lost a race with a concurrent delete
			return denialNotFound(), nil
		}
		return nil, fmt.Errorf("failed to delete package: %w", err)
	}

	for _, key := range keys {
		s.Reaper.Submit(key)
	}

	log.Info().
		Str("package", name).
		Str("user", user.Username).
		Int("versions", len(pkg.Versions)).
		Int("blobs_scheduled", len(keys)).
		Msg("package removed")

	return nil, nil
}

// Get returns the package record for name, or ErrPackageNotFound
func (s *Service) Get(ctx context.Context, name string) (*types.Package, error) {
	return s.Packages.FindByName(ctx, name)
}

// Publish stores one new version of a package: tarball to blob storage,
// version and maintainer rows to the metadata store. Runs the same
// permission chain as Remove minus the existence requirement.
func (s *Service) Publish(ctx context.Context, user *types.User, req *types.PublishRequest) (*Denial, error) {
	pkg, err := s.Packages.FindByName(ctx, req.Name)
	if err != nil && !errors.Is(err, ErrPackageNotFound) {
		return nil, fmt.Errorf("failed to look up package: %w", err)
	}

	if d := AuthorizePublish(user, req.Name, pkg, s.gateConfig()); d != nil {
		return d, nil
	}

	if len(req.Versions) != 1 {
		return nil, fmt.Errorf("publish payload must contain exactly one version, got %d", len(req.Versions))
	}

	var versionStr string
	var manifest types.JSONMap
	for v, m := range req.Versions {
		versionStr, manifest = v, m
	}

	if !utils.ValidVersion(versionStr) {
		return nil, fmt.Errorf("invalid version: %s", versionStr)
	}

	version := &types.PackageVersion{
		Name:        req.Name,
		Version:     versionStr,
		Manifest:    manifest,
		PublishedBy: user.ID,
	}
	if desc, ok := manifest["description"].(string); ok {
		version.Description = desc
	}

	// A publish without an attachment records the version with no blob
	for _, attachment := range req.Attachments {
		content, err := base64.StdEncoding.DecodeString(attachment.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode tarball: %w", err)
		}

		shasum := utils.ComputeSHA1(content)
		key := utils.TarballStorageKey(req.Name, versionStr, shasum)

		if err := s.Storage.Store(ctx, key, bytes.NewReader(content), "application/octet-stream"); err != nil {
			return nil, fmt.Errorf("failed to store tarball: %w", err)
		}

		version.StorageKey = key
		version.Shasum = shasum
		version.Size = int64(len(content))
		version.Dist = types.JSONMap{"shasum": shasum, "key": key}
		break
	}

	if err := s.Packages.CreateVersion(ctx, version); err != nil {
		// Metadata is the source of truth; remove the now-orphaned blob
		if version.StorageKey != "" {
			s.Storage.Delete(ctx, version.StorageKey)
		}
		return nil, err
	}

	if err := s.Packages.AddMaintainer(ctx, req.Name, user.Username); err != nil {
		return nil, err
	}

	log.Info().
		Str("package", req.Name).
		Str("version", versionStr).
		Str("user", user.Username).
		Msg("package version published")

	return nil, nil
}

// Download resolves a version's tarball from blob storage
func (s *Service) Download(ctx context.Context, name, versionStr string) (*types.PackageVersion, []byte, error) {
	pkg, err := s.Packages.FindByName(ctx, name)
	if err != nil {
		return nil, nil, err
	}

	for i := range pkg.Versions {
		v := &pkg.Versions[i]
		if v.Version != versionStr {
			continue
		}
		if v.StorageKey == "" {
			return nil, nil, fmt.Errorf("version %s@%s has no tarball", name, versionStr)
		}

		reader, err := s.Storage.Retrieve(ctx, v.StorageKey)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to retrieve tarball: %w", err)
		}
		defer reader.Close()

		content := bytes.NewBuffer(nil)
		if _, err := content.ReadFrom(reader); err != nil {
			return nil, nil, fmt.Errorf("failed to read tarball: %w", err)
		}
		return v, content.Bytes(), nil
	}

	return nil, nil, ErrPackageNotFound
}
