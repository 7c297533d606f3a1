package bot

import (
	"context"
	"slices"

	"github.com/suPer8Hu/comet/internal/access"
)

// Caller identifies who invoked a command and where.
type Caller struct {
	GuildID int64
	UserID  int64
}

type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision { return Decision{Allowed: true} }

func deny(reason string) Decision { return Decision{Reason: reason} }

// Predicate is one permission check. A non-nil error means the check itself could not run.
type Predicate func(ctx context.Context, c Caller) (Decision, error)

type AccessChecker interface {
	Has(ctx context.Context, userID int64, t access.Type) (bool, error)
}

// Guard builds the permission predicates from configuration and the access store.
type Guard struct {
	servers []int64
	admins  []int64
	access  AccessChecker
}

func NewGuard(servers, admins []int64, checker AccessChecker) *Guard {
	return &Guard{servers: servers, admins: admins, access: checker}
}

func (g *Guard) AuthorizedServer() Predicate {
	return func(ctx context.Context, c Caller) (Decision, error) {
		if slices.Contains(g.servers, c.GuildID) {
			return allow(), nil
		}
		return deny("server_not_authorized"), nil
	}
}

func (g *Guard) AdminUser() Predicate {
	return func(ctx context.Context, c Caller) (Decision, error) {
		if slices.Contains(g.admins, c.UserID) {
			return allow(), nil
		}
		return deny("not_admin"), nil
	}
}

func (g *Guard) AdvancedUser() Predicate {
	return func(ctx context.Context, c Caller) (Decision, error) {
		ok, err := g.access.Has(ctx, c.UserID, access.Advanced)
		if err != nil {
			return Decision{}, err
		}
		if !ok {
			return deny("not_advanced"), nil
		}
		return allow(), nil
	}
}

func (g *Guard) NotBlocked() Predicate {
	return func(ctx context.Context, c Caller) (Decision, error) {
		blocked, err := g.access.Has(ctx, c.UserID, access.Blocked)
		if err != nil {
			return Decision{}, err
		}
		if blocked {
			return deny("blocked"), nil
		}
		return allow(), nil
	}
}

// Authorize evaluates preds in order and stops at the first denial.
func Authorize(ctx context.Context, c Caller, preds ...Predicate) error {
	for _, p := range preds {
		d, err := p(ctx, c)
		if err != nil {
			return err
		}
		if !d.Allowed {
			return &PermissionError{Reason: d.Reason}
		}
	}
	return nil
}
