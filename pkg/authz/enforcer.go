// Package authz decides which staff roles may perform privileged comment actions.
// Ownership checks (author edits own comment) stay with the caller; this package only
// answers role questions.
package authz

import (
	"fmt"
	"sync"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/casbin/casbin/v2/persist"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"gorm.io/gorm"
)

const (
	ObjectComment = "comment"
	ObjectTicket  = "ticket"

	ActionDeleteAny = "delete_any"
	ActionSetStatus = "set_status"
)

const modelText = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && r.obj == p.obj && r.act == p.act
`

// DefaultPolicies are always present; extra grants can be added at runtime.
var DefaultPolicies = [][]string{
	{"admin", ObjectComment, ActionDeleteAny},
	{"admin", ObjectTicket, ActionSetStatus},
	{"koordinator", ObjectTicket, ActionSetStatus},
	{"technician", ObjectTicket, ActionSetStatus},
}

type Enforcer struct {
	enforcer *casbin.Enforcer
	mu       sync.RWMutex
}

// NewEnforcer builds an enforcer whose policies persist in the casbin_rule table.
func NewEnforcer(db *gorm.DB) (*Enforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, fmt.Errorf("failed to create casbin adapter: %w", err)
	}
	return newEnforcer(adapter)
}

// NewMemoryEnforcer builds an enforcer holding DefaultPolicies in memory only.
func NewMemoryEnforcer() (*Enforcer, error) {
	return newEnforcer(nil)
}

func newEnforcer(adapter persist.Adapter) (*Enforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, fmt.Errorf("failed to parse casbin model: %w", err)
	}

	var e *casbin.Enforcer
	if adapter != nil {
		e, err = casbin.NewEnforcer(m, adapter)
	} else {
		e, err = casbin.NewEnforcer(m)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create casbin enforcer: %w", err)
	}

	if adapter != nil {
		if err := e.LoadPolicy(); err != nil {
			return nil, fmt.Errorf("failed to load policy: %w", err)
		}
	}

	if err := seed(e); err != nil {
		return nil, err
	}

	return &Enforcer{enforcer: e}, nil
}

// seed adds DefaultPolicies. AddPolicy ignores rules that already exist.
func seed(e *casbin.Enforcer) error {
	for _, p := range DefaultPolicies {
		if _, err := e.AddPolicy(p[0], p[1], p[2]); err != nil {
			return fmt.Errorf("failed to seed policy %v: %w", p, err)
		}
	}
	return nil
}

// Can reports whether role may perform act on obj.
func (e *Enforcer) Can(role, obj, act string) (bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	ok, err := e.enforcer.Enforce(role, obj, act)
	if err != nil {
		return false, fmt.Errorf("permission check failed: %w", err)
	}
	return ok, nil
}

func (e *Enforcer) Grant(role, obj, act string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.enforcer.AddPolicy(role, obj, act); err != nil {
		return fmt.Errorf("failed to add policy: %w", err)
	}
	return nil
}

func (e *Enforcer) Revoke(role, obj, act string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.enforcer.RemovePolicy(role, obj, act); err != nil {
		return fmt.Errorf("failed to remove policy: %w", err)
	}
	return nil
}
