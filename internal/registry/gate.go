package registry

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/capstan-io/capstan/pkg/types"
	"github.com/capstan-io/capstan/pkg/utils"
)

// Denial is the client-facing outcome of a failed permission check. Code and
// Reason are both part of the API contract.
type Denial struct {
	Status int    `json:"-"`
	Code   string `json:"error"`
	Reason string `json:"reason"`
}

func denialUnauthenticated() *Denial {
	return &Denial{Status: http.StatusUnauthorized, Code: "unauthorized", Reason: "Login first"}
}

func denialNotFound() *Denial {
	return &Denial{Status: http.StatusNotFound, Code: "not_found", Reason: "document not found"}
}

func denialInvalidScope(scope string, legal []string) *Denial {
	return &Denial{
		Status: http.StatusBadRequest,
		Code:   "invalid scope",
		Reason: fmt.Sprintf("scope %s not match legal scopes: %s", scope, strings.Join(legal, ", ")),
	}
}

func denialUnscoped(legal []string) *Denial {
	return &Denial{
		Status: http.StatusForbidden,
		Code:   "no_perms",
		Reason: fmt.Sprintf("only allow publish with %s scope(s)", strings.Join(legal, ", ")),
	}
}

func denialPrivateMode() *Denial {
	return &Denial{
		Status: http.StatusForbidden,
		Code:   "no_perms",
		Reason: "Private mode enable, only admin can publish this module",
	}
}

func denialNotMaintainer(username, name string) *Denial {
	return &Denial{
		Status: http.StatusForbidden,
		Code:   "forbidden user",
		Reason: fmt.Sprintf("%s not authorized to modify %s", username, name),
	}
}

// GateConfig is the registry policy snapshot a single authorization decision
// runs against. Passed explicitly so the gate stays pure and testable even
// though EnablePrivate may change at runtime.
type GateConfig struct {
	Scopes        []string
	EnablePrivate bool
}

func (c GateConfig) legalScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// gateCheck is one predicate in the chain. pkg is nil when no record exists.
type gateCheck func(user *types.User, name string, pkg *types.Package, cfg GateConfig) *Denial

func checkAuthenticated(user *types.User, name string, pkg *types.Package, cfg GateConfig) *Denial {
	if user == nil {
		return denialUnauthenticated()
	}
	return nil
}

// checkScopeShape validates the namespace of the requested name against the
// legal scope set. This is a property of the request, not of stored data, so
// it needs no store round-trip and takes precedence over not-found.
func checkScopeShape(user *types.User, name string, pkg *types.Package, cfg GateConfig) *Denial {
	scope, _ := utils.SplitScope(name)
	if scope == "" {
		return denialUnscoped(cfg.Scopes)
	}
	if !cfg.legalScope(scope) {
		return denialInvalidScope(scope, cfg.Scopes)
	}
	return nil
}

func checkExists(user *types.User, name string, pkg *types.Package, cfg GateConfig) *Denial {
	if pkg == nil || len(pkg.Versions) == 0 {
		return denialNotFound()
	}
	return nil
}

func checkPrivateMode(user *types.User, name string, pkg *types.Package, cfg GateConfig) *Denial {
	if cfg.EnablePrivate && !user.IsAdmin {
		return denialPrivateMode()
	}
	return nil
}

func checkMaintainer(user *types.User, name string, pkg *types.Package, cfg GateConfig) *Denial {
	if user.IsAdmin {
		return nil
	}
	if pkg == nil {
		// New package on the publish path: the publisher becomes maintainer
		return nil
	}
	if !pkg.HasMaintainer(user.Username) {
		return denialNotMaintainer(user.Username, name)
	}
	return nil
}

// removeChain is the fixed check order for deletions. The order is part of
// the API contract: an absent record with a well-formed legal scope reports
// not-found before any permission check.
var removeChain = []gateCheck{
	checkAuthenticated,
	checkScopeShape,
	checkExists,
	checkPrivateMode,
	checkMaintainer,
}

// publishChain mirrors removeChain without the existence requirement:
// publishing a new name is how records come to exist.
var publishChain = []gateCheck{
	checkAuthenticated,
	checkScopeShape,
	checkPrivateMode,
	checkMaintainer,
}

func runChain(chain []gateCheck, user *types.User, name string, pkg *types.Package, cfg GateConfig) *Denial {
	for _, check := range chain {
		if d := check(user, name, pkg, cfg); d != nil {
			return d
		}
	}
	return nil
}

// AuthorizeRemove decides whether user may delete all versions of name.
// pkg is the current record, nil when none exists. Returns nil to allow or
// the single Denial that short-circuited the chain. Pure: no store access,
// no side effects, safe to retry.
func AuthorizeRemove(user *types.User, name string, pkg *types.Package, cfg GateConfig) *Denial {
	return runChain(removeChain, user, name, pkg, cfg)
}

// AuthorizePublish decides whether user may publish a version of name
func AuthorizePublish(user *types.User, name string, pkg *types.Package, cfg GateConfig) *Denial {
	return runChain(publishChain, user, name, pkg, cfg)
}
