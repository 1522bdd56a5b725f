// Package access answers one question for every manager: may this actor
// perform this action on this resource.
package access

import (
	_ "embed"
	"fmt"
	"os"

	"influencehub/pkg/config"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	stringadapter "github.com/casbin/casbin/v2/persist/string-adapter"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("access",
	fx.Provide(
		New,
		func(g *Guard) Authorizer { return g },
	),
)

//go:embed model.conf
var defaultModel string

//go:embed policy.csv
var defaultPolicy string

const (
	RoleBrand      = "brand"
	RoleInfluencer = "influencer"
	RoleAdmin      = "admin"
)

const (
	KindCampaign    = "campaign"
	KindApplication = "application"
	KindSubmission  = "submission"
	KindPayment     = "payment"
)

const (
	relOwner = "owner"
	relNone  = "none"
)

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID   string
	Role string
}

func Brand(id string) Actor      { return Actor{ID: id, Role: RoleBrand} }
func Influencer(id string) Actor { return Actor{ID: id, Role: RoleInfluencer} }

// Resource describes the target of an action. BrandID is the owning brand of
// the campaign the resource belongs to; OwnerID the influencer who owns it.
type Resource struct {
	Kind    string
	BrandID string
	OwnerID string
}

type Authorizer interface {
	Authorize(actor Actor, action string, resource Resource) bool
}

type Guard struct {
	enforcer *casbin.SyncedEnforcer
}

// New loads ACCESS_CONTROL.MODEL / ACCESS_CONTROL.POLICY when set and falls
// back to the embedded defaults.
func New(cfg *config.Config) (*Guard, error) {
	modelText, policyText := defaultModel, defaultPolicy
	if cfg != nil {
		if cfg.AccessControl.Model != "" {
			b, err := os.ReadFile(cfg.AccessControl.Model)
			if err != nil {
				return nil, fmt.Errorf("read access model: %w", err)
			}
			modelText = string(b)
		}
		if cfg.AccessControl.Policy != "" {
			b, err := os.ReadFile(cfg.AccessControl.Policy)
			if err != nil {
				return nil, fmt.Errorf("read access policy: %w", err)
			}
			policyText = string(b)
		}
	}
	return NewFromText(modelText, policyText)
}

func NewFromText(modelText, policyText string) (*Guard, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, fmt.Errorf("parse access model: %w", err)
	}

	e, err := casbin.NewSyncedEnforcer(m, stringadapter.NewAdapter(policyText))
	if err != nil {
		return nil, fmt.Errorf("build enforcer: %w", err)
	}
	return &Guard{enforcer: e}, nil
}

// Default builds a guard from the embedded model and policy.
func Default() *Guard {
	g, err := NewFromText(defaultModel, defaultPolicy)
	if err != nil {
		panic(err)
	}
	return g
}

func (g *Guard) Authorize(actor Actor, action string, resource Resource) bool {
	if actor.ID == "" || actor.Role == "" {
		return false
	}

	ok, err := g.enforcer.Enforce(actor.Role, resource.Kind, action, relation(actor, resource))
	if err != nil {
		zap.L().Error("access enforce failed",
			zap.String("role", actor.Role),
			zap.String("kind", resource.Kind),
			zap.String("action", action),
			zap.Error(err),
		)
		return false
	}
	return ok
}

func relation(actor Actor, resource Resource) string {
	switch actor.Role {
	case RoleBrand:
		if resource.BrandID != "" && resource.BrandID == actor.ID {
			return relOwner
		}
	case RoleInfluencer:
		if resource.OwnerID != "" && resource.OwnerID == actor.ID {
			return relOwner
		}
	}
	return relNone
}
