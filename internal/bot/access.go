package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/suPer8Hu/comet/internal/access"
)

type AccessOp string

const (
	AccessAdd    AccessOp = "add"
	AccessRemove AccessOp = "rm"
	AccessCheck  AccessOp = "check"
)

const accessMenuPrefix = "access"

var ErrBadMenuID = errors.New("malformed access menu id")

type AccessStore interface {
	Record(ctx context.Context, userID int64, t access.Type) error
	Revoke(ctx context.Context, userID int64, t access.Type) (int64, error)
	Types(ctx context.Context, userID int64) ([]access.Type, error)
}

// AccessMenu is a single-choice selector offering the access types.
type AccessMenu struct {
	CustomID    string
	Placeholder string
	Options     []access.Type
}

// AccessReply is the ephemeral answer to an access admin command; Menu is set when the
// admin still has to pick an access type.
type AccessReply struct {
	Text string
	Menu *AccessMenu
}

type AccessAdmin struct {
	guard  *Guard
	store  AccessStore
	logger *slog.Logger
}

func NewAccessAdmin(guard *Guard, store AccessStore, logger *slog.Logger) *AccessAdmin {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccessAdmin{guard: guard, store: store, logger: logger}
}

func (a *AccessAdmin) authorize(ctx context.Context, c Caller) error {
	return Authorize(ctx, c, a.guard.AuthorizedServer(), a.guard.AdminUser())
}

// Begin handles add_access, rm_access and check_access. targetIsMember reports whether
// the target belongs to the invoking guild.
func (a *AccessAdmin) Begin(ctx context.Context, c Caller, op AccessOp, target int64, targetIsMember bool) (AccessReply, error) {
	if err := a.authorize(ctx, c); err != nil {
		if errors.Is(err, ErrPermission) {
			return AccessReply{Text: msgPermissionDenied}, err
		}
		return AccessReply{Text: noticeUnknownError.Text}, err
	}
	if !targetIsMember {
		return AccessReply{Text: "The user does not exist in the guild"}, nil
	}

	switch op {
	case AccessAdd:
		return AccessReply{
			Text: "Select an access type to add to the user",
			Menu: newAccessMenu(op, target),
		}, nil
	case AccessRemove:
		return AccessReply{
			Text: "Select an access type to remove from the user",
			Menu: newAccessMenu(op, target),
		}, nil
	case AccessCheck:
		types, err := a.store.Types(ctx, target)
		if err != nil {
			a.logger.Error("load access types failed", "target", target, "err", err)
			return AccessReply{Text: noticeUnknownError.Text}, err
		}
		return AccessReply{Text: describeAccess(target, types)}, nil
	default:
		return AccessReply{}, fmt.Errorf("unknown access op %q", op)
	}
}

// Apply runs the change selected from a menu created by Begin.
func (a *AccessAdmin) Apply(ctx context.Context, c Caller, customID, chosen string) (string, error) {
	if err := a.authorize(ctx, c); err != nil {
		if errors.Is(err, ErrPermission) {
			return msgPermissionDenied, err
		}
		return noticeUnknownError.Text, err
	}
	op, target, err := ParseAccessMenuID(customID)
	if err != nil {
		return noticeUnknownError.Text, err
	}
	t, err := access.ParseType(chosen)
	if err != nil {
		return noticeUnknownError.Text, err
	}

	switch op {
	case AccessAdd:
		if err := a.store.Record(ctx, target, t); err != nil {
			a.logger.Error("add access failed", "target", target, "access_type", t, "err", err)
			return noticeUnknownError.Text, err
		}
		a.logger.Info("access added", "target", target, "access_type", t, "by", c.UserID)
		return fmt.Sprintf("Access type `%s` has been added to the user (ID: `%d`)", t, target), nil
	case AccessRemove:
		n, err := a.store.Revoke(ctx, target, t)
		if err != nil {
			a.logger.Error("remove access failed", "target", target, "access_type", t, "err", err)
			return noticeUnknownError.Text, err
		}
		a.logger.Info("access removed", "target", target, "access_type", t, "rows", n, "by", c.UserID)
		return fmt.Sprintf("Access type `%s` has been removed from the user (ID: `%d`)", t, target), nil
	default:
		return noticeUnknownError.Text, ErrBadMenuID
	}
}

func newAccessMenu(op AccessOp, target int64) *AccessMenu {
	return &AccessMenu{
		CustomID:    strings.Join([]string{accessMenuPrefix, string(op), strconv.FormatInt(target, 10), uuid.NewString()}, ":"),
		Placeholder: "Select an access type ...",
		Options:     []access.Type{access.Advanced, access.Blocked},
	}
}

// IsAccessMenuID reports whether a component custom id belongs to an access menu.
func IsAccessMenuID(customID string) bool {
	return strings.HasPrefix(customID, accessMenuPrefix+":")
}

func ParseAccessMenuID(customID string) (AccessOp, int64, error) {
	parts := strings.Split(customID, ":")
	if len(parts) != 4 || parts[0] != accessMenuPrefix {
		return "", 0, ErrBadMenuID
	}
	op := AccessOp(parts[1])
	if op != AccessAdd && op != AccessRemove {
		return "", 0, ErrBadMenuID
	}
	target, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return "", 0, ErrBadMenuID
	}
	return op, target, nil
}

func describeAccess(target int64, types []access.Type) string {
	var advanced, blocked bool
	for _, t := range types {
		switch t {
		case access.Advanced:
			advanced = true
		case access.Blocked:
			blocked = true
		}
	}
	switch {
	case advanced && blocked:
		return fmt.Sprintf("The user (ID: `%d`) has the access type `advanced` and `blocked`", target)
	case advanced:
		return fmt.Sprintf("The user (ID: `%d`) has the access type `advanced`", target)
	case blocked:
		return fmt.Sprintf("The user (ID: `%d`) has the access type `blocked`", target)
	default:
		return fmt.Sprintf("The user (ID: `%d`) does not have any access type", target)
	}
}
