package registry

import (
	"net/http"
	"testing"

	"github.com/capstan-io/capstan/pkg/types"
	"github.com/stretchr/testify/assert"
)

var testGateConfig = GateConfig{
	Scopes: []string{"@cnpm", "@cnpmtest"},
}

func testPackage(name string, maintainers ...string) *types.Package {
	return &types.Package{
		Name:        name,
		Versions:    []types.PackageVersion{{Name: name, Version: "1.0.0"}},
		Maintainers: maintainers,
	}
}

func maintainerUser() *types.User {
	return &types.User{Username: "cnpmjstest10"}
}

func otherUser() *types.User {
	return &types.User{Username: "cnpmjstest101"}
}

func adminUser() *types.User {
	return &types.User{Username: "admin", IsAdmin: true}
}

func TestAuthorizeRemove_Unauthenticated(t *testing.T) {
	// Nil identity denies regardless of package existence
	for _, pkg := range []*types.Package{nil, testPackage("@cnpmtest/testmodule-remove-1", "cnpmjstest10")} {
		d := AuthorizeRemove(nil, "@cnpmtest/testmodule-remove-1", pkg, testGateConfig)
		assert.NotNil(t, d)
		assert.Equal(t, http.StatusUnauthorized, d.Status)
		assert.Equal(t, "unauthorized", d.Code)
		assert.Equal(t, "Login first", d.Reason)
	}
}

func TestAuthorizeRemove_NotFound(t *testing.T) {
	d := AuthorizeRemove(otherUser(), "@cnpmtest/testmodule-remove-1-not-exists", nil, testGateConfig)
	assert.NotNil(t, d)
	assert.Equal(t, http.StatusNotFound, d.Status)
	assert.Equal(t, "not_found", d.Code)
	assert.Equal(t, "document not found", d.Reason)
}

func TestAuthorizeRemove_InvalidScope(t *testing.T) {
	// Scope legality is a request property: denied even though no record exists
	d := AuthorizeRemove(otherUser(), "@cnpm-not-exists/testmodule-remove-1", nil, testGateConfig)
	assert.NotNil(t, d)
	assert.Equal(t, http.StatusBadRequest, d.Status)
	assert.Equal(t, "invalid scope", d.Code)
	assert.Equal(t, "scope @cnpm-not-exists not match legal scopes: @cnpm, @cnpmtest", d.Reason)
}

func TestAuthorizeRemove_InvalidScope_ExistingRecordDoesNotMask(t *testing.T) {
	d := AuthorizeRemove(adminUser(), "@rogue/testmodule", testPackage("@rogue/testmodule", "admin"), testGateConfig)
	assert.NotNil(t, d)
	assert.Equal(t, "invalid scope", d.Code)
}

func TestAuthorizeRemove_UnscopedName(t *testing.T) {
	d := AuthorizeRemove(otherUser(), "testmodule-remove-1", nil, testGateConfig)
	assert.NotNil(t, d)
	assert.Equal(t, http.StatusForbidden, d.Status)
	assert.Equal(t, "no_perms", d.Code)
	assert.Equal(t, "only allow publish with @cnpm, @cnpmtest scope(s)", d.Reason)
}

func TestAuthorizeRemove_PrivateMode(t *testing.T) {
	cfg := testGateConfig
	cfg.EnablePrivate = true

	// Even a maintainer is denied when private mode is on
	pkg := testPackage("@cnpmtest/testmodule-remove-1", "cnpmjstest10")
	d := AuthorizeRemove(maintainerUser(), "@cnpmtest/testmodule-remove-1", pkg, cfg)
	assert.NotNil(t, d)
	assert.Equal(t, http.StatusForbidden, d.Status)
	assert.Equal(t, "no_perms", d.Code)
	assert.Equal(t, "Private mode enable, only admin can publish this module", d.Reason)

	// Admin passes
	d = AuthorizeRemove(adminUser(), "@cnpmtest/testmodule-remove-1", pkg, cfg)
	assert.Nil(t, d)
}

func TestAuthorizeRemove_PrivateMode_AbsentPackageStillNotFound(t *testing.T) {
	cfg := testGateConfig
	cfg.EnablePrivate = true

	d := AuthorizeRemove(otherUser(), "@cnpmtest/never-published", nil, cfg)
	assert.NotNil(t, d)
	assert.Equal(t, "not_found", d.Code)
}

func TestAuthorizeRemove_NotMaintainer(t *testing.T) {
	pkg := testPackage("@cnpmtest/testmodule-remove-1", "cnpmjstest10")
	d := AuthorizeRemove(otherUser(), "@cnpmtest/testmodule-remove-1", pkg, testGateConfig)
	assert.NotNil(t, d)
	assert.Equal(t, http.StatusForbidden, d.Status)
	assert.Equal(t, "forbidden user", d.Code)
	assert.Equal(t, "cnpmjstest101 not authorized to modify @cnpmtest/testmodule-remove-1", d.Reason)
}

func TestAuthorizeRemove_Allowed(t *testing.T) {
	pkg := testPackage("@cnpmtest/testmodule-remove-1", "cnpmjstest10")

	assert.Nil(t, AuthorizeRemove(maintainerUser(), "@cnpmtest/testmodule-remove-1", pkg, testGateConfig))
	assert.Nil(t, AuthorizeRemove(adminUser(), "@cnpmtest/testmodule-remove-1", pkg, testGateConfig))
}

func TestAuthorizeRemove_ZeroVersionsIsNotFound(t *testing.T) {
	pkg := &types.Package{Name: "@cnpmtest/empty", Maintainers: []string{"cnpmjstest10"}}
	d := AuthorizeRemove(maintainerUser(), "@cnpmtest/empty", pkg, testGateConfig)
	assert.NotNil(t, d)
	assert.Equal(t, "not_found", d.Code)
}

func TestAuthorizePublish_NewPackageAllowed(t *testing.T) {
	// No existence requirement, and no maintainer check against a nil record
	assert.Nil(t, AuthorizePublish(otherUser(), "@cnpmtest/brand-new", nil, testGateConfig))
}

func TestAuthorizePublish_ExistingPackageRequiresMaintainer(t *testing.T) {
	pkg := testPackage("@cnpmtest/testmodule", "cnpmjstest10")

	d := AuthorizePublish(otherUser(), "@cnpmtest/testmodule", pkg, testGateConfig)
	assert.NotNil(t, d)
	assert.Equal(t, "forbidden user", d.Code)

	assert.Nil(t, AuthorizePublish(maintainerUser(), "@cnpmtest/testmodule", pkg, testGateConfig))
}

func TestAuthorizePublish_ScopeAndPrivateChecksApply(t *testing.T) {
	d := AuthorizePublish(otherUser(), "unscoped", nil, testGateConfig)
	assert.NotNil(t, d)
	assert.Equal(t, "no_perms", d.Code)

	cfg := testGateConfig
	cfg.EnablePrivate = true
	d = AuthorizePublish(otherUser(), "@cnpmtest/anything", nil, cfg)
	assert.NotNil(t, d)
	assert.Equal(t, "Private mode enable, only admin can publish this module", d.Reason)
}
