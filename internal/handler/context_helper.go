package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/ibs-portal-api/internal/middleware"
	"github.com/noah-isme/ibs-portal-api/internal/models"
	appErrors "github.com/noah-isme/ibs-portal-api/pkg/errors"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	return middleware.Claims(c)
}

// sessionFromContext returns the audit session or an Unauthorized error when the route is
// not behind JWT.
func sessionFromContext(c *gin.Context) (models.Session, error) {
	if claimsFromContext(c) == nil {
		return models.Session{}, appErrors.ErrUnauthorized
	}
	return middleware.Session(c), nil
}

func idParam(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, "invalid "+name)
	}
	return id, nil
}

func bindError(err error, message string) error {
	return appErrors.Validation(err, message)
}
