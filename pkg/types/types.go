package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// JSONMap is a custom type that can handle JSON serialization for both PostgreSQL and SQLite
type JSONMap map[string]interface{}

// Value implements the driver.Valuer interface for GORM
func (j JSONMap) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements the sql.Scanner interface for GORM
func (j *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into JSONMap", value)
	}

	return json.Unmarshal(bytes, j)
}

// User represents a registry user. Username and IsAdmin together form the
// caller identity attached to every authenticated request.
type User struct {
	ID        uuid.UUID `json:"id" gorm:"primaryKey"`
	Username  string    `json:"username" gorm:"uniqueIndex;not null"`
	Email     string    `json:"email" gorm:"uniqueIndex;not null"`
	Password  string    `json:"-" gorm:"not null"`
	IsActive  bool      `json:"is_active" gorm:"default:true"`
	IsAdmin   bool      `json:"is_admin" gorm:"default:false"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate generates a UUID for the user ID
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// AccessToken represents a long-lived registry token for npm clients
type AccessToken struct {
	ID         uuid.UUID  `json:"id" gorm:"primaryKey"`
	UserID     uuid.UUID  `json:"user_id" gorm:"not null;index"`
	Name       string     `json:"name" gorm:"not null"`
	TokenHash  string     `json:"-" gorm:"uniqueIndex;not null"`
	ExpiresAt  *time.Time `json:"expires_at"`
	LastUsedAt *time.Time `json:"last_used_at"`
	IsActive   bool       `json:"is_active" gorm:"default:true"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	User       User       `json:"user" gorm:"foreignKey:UserID"`
}

// BeforeCreate generates a UUID for the token ID
func (a *AccessToken) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// PackageVersion is one published version of a package. The package record
// for a name is the set of version rows sharing that name; a name with zero
// version rows does not exist.
type PackageVersion struct {
	ID          uuid.UUID `json:"id" gorm:"primaryKey"`
	Name        string    `json:"name" gorm:"not null;uniqueIndex:idx_name_version;index"`
	Version     string    `json:"version" gorm:"not null;uniqueIndex:idx_name_version"`
	Description string    `json:"description"`
	Manifest    JSONMap   `json:"manifest" gorm:"serializer:json"`
	Dist        JSONMap   `json:"dist" gorm:"serializer:json"`
	StorageKey  string    `json:"-" gorm:"index"` // tarball address in blob storage; may be empty
	Shasum      string    `json:"shasum"`
	Size        int64     `json:"size"`
	PublishedBy uuid.UUID `json:"published_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// BeforeCreate generates a UUID for the version ID
func (v *PackageVersion) BeforeCreate(tx *gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}

// Maintainer grants a username modify rights over one package name
type Maintainer struct {
	ID        uuid.UUID `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name" gorm:"not null;uniqueIndex:idx_name_user;index"`
	Username  string    `json:"username" gorm:"not null;uniqueIndex:idx_name_user"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate generates a UUID for the maintainer ID
func (m *Maintainer) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// Package is the assembled record for one name: all published versions in
// publish order plus the maintainer set
type Package struct {
	Name        string           `json:"name"`
	Versions    []PackageVersion `json:"versions"`
	Maintainers []string         `json:"maintainers"`
}

// HasMaintainer reports whether username is in the maintainer set
func (p *Package) HasMaintainer(username string) bool {
	for _, m := range p.Maintainers {
		if m == username {
			return true
		}
	}
	return false
}

// StorageKeys returns the blob addresses of all versions that have one.
// Versions without a storage key are skipped.
func (p *Package) StorageKeys() []string {
	keys := make([]string, 0, len(p.Versions))
	for _, v := range p.Versions {
		if v.StorageKey != "" {
			keys = append(keys, v.StorageKey)
		}
	}
	return keys
}

// LatestVersion returns the most recently published version row
func (p *Package) LatestVersion() *PackageVersion {
	if len(p.Versions) == 0 {
		return nil
	}
	return &p.Versions[len(p.Versions)-1]
}

// AuthToken represents a JWT session token
type AuthToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	UserID    uuid.UUID `json:"user_id"`
}

// LoginRequest represents a login request
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RegisterRequest represents a user registration request
type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=50"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

// PublishRequest is the npm publish payload for a single version
type PublishRequest struct {
	Name        string                `json:"name" binding:"required"`
	Versions    map[string]JSONMap    `json:"versions" binding:"required"`
	DistTags    map[string]string     `json:"dist-tags"`
	Attachments map[string]Attachment `json:"_attachments"`
}

// Attachment is a base64-encoded tarball in a publish payload
type Attachment struct {
	ContentType string `json:"content_type"`
	Data        string `json:"data"`
	Length      int64  `json:"length"`
}
