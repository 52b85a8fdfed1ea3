// Package policy holds the authorization rules checked before core operations.
//
// Blog and comment mutations are gated by login only: any authenticated user
// may edit or delete any blog. Site administration (editing or deleting users)
// requires the admin role.
package policy

import (
	"microblog/apperror"
	"microblog/models"
)

func RequireAuthenticated(current *models.User) error {
	if current == nil {
		return apperror.AuthRequired()
	}
	return nil
}

func RequireAdmin(current *models.User) error {
	if current == nil || current.Role != models.RoleAdmin {
		return apperror.Forbidden("admin role required")
	}
	return nil
}
