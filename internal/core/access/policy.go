// Package access decides whether a caller may perform an action. Every
// decision is a pure function of the caller, the verb class, and optionally
// the owner of the targeted record.
package access

import (
	"net/http"

	"review-api/internal/domain"
)

type Verb uint8

const (
	Safe Verb = iota
	Unsafe
)

// VerbOf classifies an HTTP method. GET, HEAD and OPTIONS are safe.
func VerbOf(method string) Verb {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return Safe
	}
	return Unsafe
}

func (v Verb) String() string {
	if v == Safe {
		return "safe"
	}
	return "unsafe"
}

type Caller struct {
	ID            uint
	Authenticated bool
	Role          domain.Role
	IsSuperuser   bool
}

func Anonymous() Caller { return Caller{Role: domain.RoleAnonymous} }

func FromUser(u *domain.User) Caller {
	if u == nil {
		return Anonymous()
	}
	return Caller{ID: u.ID, Authenticated: true, Role: u.Role, IsSuperuser: u.IsSuperuser}
}

func (c Caller) is(r domain.Role) bool { return c.Authenticated && c.Role == r }

func (c Caller) admin() bool {
	return c.Authenticated && (c.Role == domain.RoleAdmin || c.IsSuperuser)
}

func (c Caller) elevated() bool {
	return c.admin() || c.is(domain.RoleModerator)
}

// Record is a targeted object with an author.
type Record interface {
	OwnerID() uint
}

func (c Caller) owns(r Record) bool {
	return c.Authenticated && r != nil && r.OwnerID() == c.ID
}

type Policy uint8

const (
	AnonymousReadOnly Policy = iota + 1
	AuthenticatedUserOnly
	ModeratorOnly
	AdminOrReadOnly
	AdminOnly
	ReviewOwnerOrElevatedOrReadOnly
	CommentOwnerOrElevatedOrReadOnly
)

type rule struct {
	name   string
	action func(c Caller, v Verb) bool
	object func(c Caller, v Verb, r Record) bool
}

// ignoring lifts a collection check into an object check that ignores the record.
func ignoring(f func(Caller, Verb) bool) func(Caller, Verb, Record) bool {
	return func(c Caller, v Verb, _ Record) bool { return f(c, v) }
}

func readOnly(_ Caller, v Verb) bool { return v == Safe }

func userOnly(c Caller, _ Verb) bool { return c.is(domain.RoleUser) }

func moderatorOnly(c Caller, _ Verb) bool { return c.is(domain.RoleModerator) }

func adminOrReadOnly(c Caller, v Verb) bool { return c.admin() || v == Safe }

func adminOnly(c Caller, _ Verb) bool { return c.admin() }

func authenticatedOrReadOnly(c Caller, v Verb) bool { return c.Authenticated || v == Safe }

func ownerOrElevatedOrReadOnly(c Caller, v Verb, r Record) bool {
	return v == Safe || c.owns(r) || c.elevated()
}

var rules = map[Policy]rule{
	AnonymousReadOnly:                {"anonymous_read_only", readOnly, ignoring(readOnly)},
	AuthenticatedUserOnly:            {"authenticated_user_only", userOnly, ignoring(userOnly)},
	ModeratorOnly:                    {"moderator_only", moderatorOnly, ignoring(moderatorOnly)},
	AdminOrReadOnly:                  {"admin_or_read_only", adminOrReadOnly, ignoring(adminOrReadOnly)},
	AdminOnly:                        {"admin_only", adminOnly, ignoring(adminOnly)},
	ReviewOwnerOrElevatedOrReadOnly:  {"review_owner_or_elevated_or_read_only", authenticatedOrReadOnly, ownerOrElevatedOrReadOnly},
	CommentOwnerOrElevatedOrReadOnly: {"comment_owner_or_elevated_or_read_only", authenticatedOrReadOnly, ownerOrElevatedOrReadOnly},
}

func (p Policy) String() string {
	if r, ok := rules[p]; ok {
		return r.name
	}
	return "unknown"
}

// AllowsAction is the collection-level check. Unknown policies deny.
func (p Policy) AllowsAction(c Caller, v Verb) bool {
	r, ok := rules[p]
	return ok && r.action(c, v)
}

// AllowsOnRecord is the object-level check, consulted only after AllowsAction
// passed and the record was fetched.
func (p Policy) AllowsOnRecord(c Caller, v Verb, rec Record) bool {
	r, ok := rules[p]
	return ok && r.object(c, v, rec)
}

// Allows runs both checks in order; rec may be nil for list/create.
func (p Policy) Allows(c Caller, v Verb, rec Record) bool {
	if !p.AllowsAction(c, v) {
		return false
	}
	if rec == nil {
		return true
	}
	return p.AllowsOnRecord(c, v, rec)
}

// Check is Allows reported as an error: domain.ErrUnauthenticated when an
// anonymous caller is denied, domain.ErrForbidden for everyone else.
func (p Policy) Check(c Caller, v Verb, rec Record) error {
	if p.Allows(c, v, rec) {
		return nil
	}
	if !c.Authenticated {
		return domain.ErrUnauthenticated
	}
	return domain.ErrForbidden
}
