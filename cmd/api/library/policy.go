package library

import (
	"github.com/google/uuid"
)

// Actor is the identity a request is made on behalf of. The zero value is
// an anonymous caller.
type Actor struct {
	UserID        uuid.UUID
	Authenticated bool
	Admin         bool
}

func Anonymous() Actor {
	return Actor{}
}

func NewUser(id uuid.UUID) Actor {
	return Actor{UserID: id, Authenticated: true}
}

func NewAdmin(id uuid.UUID) Actor {
	return Actor{UserID: id, Authenticated: true, Admin: true}
}

type Action int

const (
	ActionReadCatalog Action = iota
	ActionManageCatalog
	ActionListBorrowings
	ActionCreateBorrowing
	ActionViewBorrowing
	ActionReturnBorrowing
	ActionFilterBorrowingsByUser
)

// Resource describes what an action touches. OwnerID is the borrower of a
// borrowing and is ignored for catalog actions.
type Resource struct {
	OwnerID uuid.UUID
}

/* Decides whether the actor may perform the action on the resource. Returns nil when allowed,
ErrResponseUnauthenticated when the action needs an identity the caller did not present, and
ErrResponseForbidden when the identity lacks the permission. */
func Authorize(actor Actor, action Action, resource Resource) error {
	if action == ActionReadCatalog {
		return nil
	}
	if !actor.Authenticated {
		return ErrResponseUnauthenticated
	}
	if actor.Admin {
		return nil
	}

	switch action {
	case ActionListBorrowings, ActionCreateBorrowing:
		return nil
	case ActionViewBorrowing, ActionReturnBorrowing:
		if resource.OwnerID == actor.UserID {
			return nil
		}
		return ErrResponseForbidden
	default:
		return ErrResponseForbidden
	}
}
