package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/vladapp/backend/core"
	"github.com/vladapp/backend/core/user"
)

type authApi struct {
	deps ServerDeps
}

func registerAuthAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := authApi{deps: deps}

	ag := g.Group("/auth")

	// un-authed endpoints
	ag.POST("/login", api.login)
	ag.POST("/token-refresh", api.refreshToken)

	// authed endpoints
	ag.GET("/me", api.me, jwt)
}

// Handlers

func (api *authApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}

	usr, err := api.deps.UserSvc.Authenticate(ctx.Request().Context(), data.Identity, data.Password)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return core.NewValidationError(errors.New("invalid credentials"))
		}
		return errors.Wrap(err, "authenticating")
	}

	access, refresh, err := api.deps.Auth.GenerateTokenPair(usr)
	if err != nil {
		return errors.Wrap(err, "generating token pair")
	}
	if _, err = api.deps.UserSvc.SetRefreshToken(ctx.Request().Context(), usr, refresh); err != nil {
		return errors.Wrap(err, "saving refresh token")
	}

	return ctx.JSON(http.StatusOK, LoginResponse{AccessToken: access, RefreshToken: refresh})
}

func (api *authApi) refreshToken(ctx echo.Context) error {
	var data RefreshRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RefreshRequest")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}

	claims, err := api.deps.Auth.ParseToken(data.RefreshToken)
	if err != nil || !claims.Refresh {
		return errRefreshExpired
	}

	usr, err := api.deps.UserSvc.GetByID(ctx.Request().Context(), claims.Subject)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return errRefreshExpired
		}
		return errors.Wrap(err, "finding user by ID")
	}
	// a refresh token is single-session; it must match the persisted one
	if usr.RefreshToken != data.RefreshToken {
		return errRefreshExpired
	}

	access, err := api.deps.Auth.GenerateToken(api.deps.Auth.GetUserClaims(usr))
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	return ctx.JSON(http.StatusOK, RefreshResponse{AccessToken: access})
}

func (api *authApi) me(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	usr, err := api.deps.UserSvc.GetByID(ctx.Request().Context(), claims.Subject)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "finding user by ID")
	}
	return ctx.JSON(http.StatusOK, usr)
}
