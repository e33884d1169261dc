package core

import (
	"errors"
	"fmt"

	"github.com/Schemion/schemion-api/internal/auth"
	"github.com/Schemion/schemion-api/internal/database"
	"github.com/google/uuid"
)

const (
	DefaultPageLimit = 100
	MaxPageLimit     = 1000
)

type Page struct {
	Skip  int
	Limit int
}

func (p Page) normalize() (database.Page, error) {
	if p.Skip < 0 {
		return database.Page{}, Validationf("skip must not be negative")
	}
	switch {
	case p.Limit < 0:
		return database.Page{}, Validationf("limit must not be negative")
	case p.Limit == 0:
		p.Limit = DefaultPageLimit
	case p.Limit > MaxPageLimit:
		return database.Page{}, Validationf("limit must be at most %d", MaxPageLimit)
	}
	return database.Page{Skip: p.Skip, Limit: p.Limit}, nil
}

// readScope is the visibility rule for resolving a single resource: admins
// see everything, users see their own and system resources.
func readScope(caller auth.Principal) database.Scope {
	if caller.IsAdmin() {
		return database.Unrestricted()
	}
	return database.VisibleTo(caller.UserId)
}

func canView(caller auth.Principal, owner *uuid.UUID) bool {
	return caller.IsAdmin() || owner == nil || *owner == caller.UserId
}

// authorizeDelete allows owners to delete their resources and admins to delete
// anything, including system resources.
func authorizeDelete(caller auth.Principal, kind string, id uuid.UUID, owner uuid.NullUUID) error {
	if caller.IsAdmin() {
		return nil
	}
	if !owner.Valid {
		return PermissionDeniedf("%s %s is a system resource and cannot be deleted", kind, id)
	}
	if owner.UUID != caller.UserId {
		return PermissionDeniedf("%s %s belongs to another user", kind, id)
	}
	return nil
}

func authorizeSelf(caller auth.Principal, userId uuid.UUID) error {
	if caller.IsAdmin() || caller.UserId == userId {
		return nil
	}
	return PermissionDeniedf("not allowed to access user %s", userId)
}

func requireAdmin(caller auth.Principal) error {
	if !caller.IsAdmin() {
		return PermissionDeniedf("admin role required")
	}
	return nil
}

// lookupError turns a repository error for a referenced or target resource
// into a NotFound kind, leaving infrastructure errors opaque.
func lookupError(kind string, id uuid.UUID, err error) error {
	if errors.Is(err, database.ErrNotFound) {
		return NotFoundf("%s %s not found", kind, id)
	}
	return fmt.Errorf("error loading %s %s: %w", kind, id, err)
}
