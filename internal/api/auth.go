package api

import (
	"errors"

	"cafe-order-service/internal/entity"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
)

// StaffClaims is the token payload issued to staff and customers.
// A zero StoreID grants access to every store.
type StaffClaims struct {
	Role    string `json:"role"`
	StoreID int64  `json:"store_id"`
	jwt.RegisteredClaims
}

func jwtMiddleware(secret string) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		SigningKey: []byte(secret),
		NewClaimsFunc: func(c echo.Context) jwt.Claims {
			return new(StaffClaims)
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return c.JSON(401, map[string]string{"error": "Unauthorized"})
		},
	})
}

var errNoActor = errors.New("missing or malformed token claims")

// actorFrom reads the actor the JWT middleware stored on the context.
func actorFrom(c echo.Context) (entity.Actor, error) {
	token, ok := c.Get("user").(*jwt.Token)
	if !ok {
		return entity.Actor{}, errNoActor
	}
	claims, ok := token.Claims.(*StaffClaims)
	if !ok {
		return entity.Actor{}, errNoActor
	}

	role := entity.Role(claims.Role)
	switch role {
	case entity.RoleCustomer, entity.RoleCashier, entity.RoleBarista, entity.RoleAdmin:
	default:
		// system is reserved for in-process consumers
		return entity.Actor{}, errNoActor
	}

	return entity.Actor{ID: claims.Subject, Role: role, StoreID: claims.StoreID}, nil
}
