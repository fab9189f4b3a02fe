package middleware

import (
	"errors"
	"net/http"
	"time"

	"orderbridge/internal/common"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// JWTCustomClaims is the identity token issued by the platform's identity provider
type JWTCustomClaims struct {
	UserID    string `json:"user_id"`
	CompanyID string `json:"company_id"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

// Actor validates the claims and converts them to a caller identity
func (c *JWTCustomClaims) Actor() (common.Actor, error) {
	subject := c.UserID
	if subject == "" {
		subject = c.Subject
	}
	userID, err := uuid.Parse(subject)
	if err != nil {
		return common.Actor{}, errors.New("invalid user_id claim")
	}

	actor := common.Actor{UserID: userID, Role: c.Role}
	switch c.Role {
	case common.RoleClient:
		if actor.CompanyID, err = uuid.Parse(c.CompanyID); err != nil {
			return common.Actor{}, errors.New("client tokens must carry a company_id")
		}
	case common.RoleOperator, common.RoleAdmin:
		if c.CompanyID != "" {
			if actor.CompanyID, err = uuid.Parse(c.CompanyID); err != nil {
				return common.Actor{}, errors.New("invalid company_id claim")
			}
		}
	default:
		return common.Actor{}, errors.New("unknown role")
	}
	return actor, nil
}

// JWTOptions selects how tokens are verified
type JWTOptions struct {
	Secret  string
	JWKSURL string
}

// JWKS keeps a remote key set refreshed in the background; EndBackground stops it
type JWKS interface {
	Keyfunc(token *jwt.Token) (interface{}, error)
	EndBackground()
}

// NewJWKS fetches the key set at url and keeps it refreshed
func NewJWKS(url string, log *zap.Logger) (JWKS, error) {
	jwks, err := keyfunc.Get(url, keyfunc.Options{
		RefreshInterval:   time.Hour,
		RefreshRateLimit:  5 * time.Minute,
		RefreshTimeout:    10 * time.Second,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			log.Warn("failed to refresh JWKS", zap.Error(err))
		},
	})
	if err != nil {
		return nil, err
	}
	return jwks, nil
}

// JWTConfig builds the echo-jwt configuration. When jwks is non-nil tokens are
// verified against it, otherwise against the shared HMAC secret.
func JWTConfig(opts JWTOptions, jwks JWKS) echojwt.Config {
	cfg := echojwt.Config{
		TokenLookup: "header:Authorization:Bearer ,query:access_token",
		NewClaimsFunc: func(c echo.Context) jwt.Claims {
			return new(JWTCustomClaims)
		},
		SuccessHandler: func(c echo.Context) {
			token, ok := c.Get("user").(*jwt.Token)
			if !ok {
				return
			}
			claims, ok := token.Claims.(*JWTCustomClaims)
			if !ok {
				return
			}
			actor, err := claims.Actor()
			if err != nil {
				return
			}
			c.SetRequest(c.Request().WithContext(common.WithActor(c.Request().Context(), actor)))
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid token")
		},
	}
	if jwks != nil {
		cfg.KeyFunc = jwks.Keyfunc
	} else {
		cfg.SigningKey = []byte(opts.Secret)
	}
	return cfg
}

// RequireIdentity rejects requests whose token verified but carried unusable claims
func RequireIdentity() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if _, ok := common.ActorFromContext(c.Request().Context()); !ok {
				return common.SendUnauthorizedError(c)
			}
			return next(c)
		}
	}
}
