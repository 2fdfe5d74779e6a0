package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/noah-isme/sma-timetable-engine/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-engine/pkg/errors"
)

// restrictedSchool returns the school an actor is confined to, or an empty
// string when the actor may reach every school. A nil actor is an operator.
func restrictedSchool(actor *models.JWTClaims) string {
	if actor == nil || actor.Role == models.RoleSuperAdmin {
		return ""
	}
	return actor.SchoolID
}

// authorizeTerm fails with a NotFound carrying notFound when the actor's
// school does not own the term.
func authorizeTerm(ctx context.Context, terms termLookup, actor *models.JWTClaims, termID, notFound string) error {
	school := restrictedSchool(actor)
	if school == "" {
		return nil
	}
	term, err := terms.FindByID(ctx, termID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, notFound)
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load term")
	}
	if term.SchoolID != school {
		return appErrors.Clone(appErrors.ErrNotFound, notFound)
	}
	return nil
}
