package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-timetable-engine/internal/middleware"
	"github.com/noah-isme/sma-timetable-engine/internal/models"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	return middleware.CurrentUser(c)
}

// scopedSchoolID defaults an empty school filter to the caller's own school.
// Superadmins keep whatever they asked for.
func scopedSchoolID(c *gin.Context, requested string) string {
	claims := claimsFromContext(c)
	if requested != "" || claims == nil || claims.Role == models.RoleSuperAdmin {
		return requested
	}
	return claims.SchoolID
}
