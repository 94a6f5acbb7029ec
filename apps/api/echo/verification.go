package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

type verificationApi struct {
	deps ServerDeps
}

func registerVerificationAPI(g *echo.Group, deps ServerDeps) {
	api := verificationApi{deps: deps}

	vg := g.Group("/auth/email-verification")
	vg.POST("", api.issue)
	vg.POST("/confirm", api.confirm)
}

// Handlers

func (api *verificationApi) issue(ctx echo.Context) error {
	var data VerificationRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to VerificationRequest")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}

	if _, err := api.deps.VerifySvc.Issue(ctx.Request().Context(), data.Email); err != nil {
		return errors.Wrap(err, "issuing verification code")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "verification code sent"})
}

func (api *verificationApi) confirm(ctx echo.Context) error {
	var data VerificationConfirmRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to VerificationConfirmRequest")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}

	ok, err := api.deps.VerifySvc.Verify(ctx.Request().Context(), data.Email, data.Code)
	if err != nil {
		return errors.Wrap(err, "verifying code")
	}
	return ctx.JSON(http.StatusOK, VerificationConfirmResponse{Verified: ok})
}
