package echoapi

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/vladapp/backend/core"
	"github.com/vladapp/backend/core/user"
)

const contextTokenKey = "userToken"

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	Identity  string `json:"identity,omitempty"`
	Email     string `json:"email,omitempty"`
	IsStudent bool   `json:"is_student,omitempty"` // -> STUDENT PORTAL
	IsTeacher bool   `json:"is_teacher,omitempty"` // -> TEACHER PORTAL
	Refresh   bool   `json:"refresh,omitempty"`
}

// JWTAuth mints and verifies the tokens used by the API and by welcome
// email deep links.
type JWTAuth struct {
	conf      *core.Config
	jwtConfig middleware.JWTConfig
}

var _ user.TokenGenerator = (*JWTAuth)(nil)

func NewJWTAuth(conf *core.Config) *JWTAuth {
	return &JWTAuth{
		conf: conf,
		jwtConfig: middleware.JWTConfig{
			SigningKey:    []byte(conf.SecretKey),
			SigningMethod: middleware.AlgorithmHS256,
			ContextKey:    contextTokenKey,
			Claims:        new(Claims),
		},
	}
}

func (a *JWTAuth) Middleware() echo.MiddlewareFunc {
	return middleware.JWTWithConfig(a.jwtConfig)
}

func (a *JWTAuth) GetUserClaims(usr user.User) *Claims {
	now := time.Now()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    a.conf.AppName,
			Subject:   usr.ID,
			ExpiresAt: now.Add(a.conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		Identity:  usr.Identity,
		Email:     usr.Email,
		IsStudent: usr.IsStudent(),
		IsTeacher: usr.IsTeacher(),
	}
}

func (a *JWTAuth) getRefreshClaims(usr user.User) *Claims {
	now := time.Now()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    a.conf.AppName,
			Subject:   usr.ID,
			ExpiresAt: now.Add(a.conf.Server.JWTRefreshExpirationDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		Refresh: true,
	}
}

// GenerateToken generates a signed JWT token string representing the user Claims.
func (a *JWTAuth) GenerateToken(claims *Claims) (string, error) {
	method := jwt.GetSigningMethod(a.jwtConfig.SigningMethod)
	token := jwt.NewWithClaims(method, claims)

	ss, err := token.SignedString(a.jwtConfig.SigningKey.([]byte))
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

// GenerateTokenPair mints the short-lived access token and the long-lived
// refresh token for usr.
func (a *JWTAuth) GenerateTokenPair(usr user.User) (access, refresh string, err error) {
	if access, err = a.GenerateToken(a.GetUserClaims(usr)); err != nil {
		return "", "", err
	}
	if refresh, err = a.GenerateToken(a.getRefreshClaims(usr)); err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

// ParseToken verifies a signed token string and returns its Claims.
func (a *JWTAuth) ParseToken(token string) (*Claims, error) {
	claims := new(Claims)
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != a.jwtConfig.SigningMethod {
			return nil, errors.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return a.jwtConfig.SigningKey, nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "parsing token")
	}
	if !parsed.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}
