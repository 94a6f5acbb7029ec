package echoapi

import (
	"fmt"
	"net/http"
	"net/mail"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/vladapp/backend/core"
)

type contactApi struct {
	deps ServerDeps
}

func registerContactAPI(g *echo.Group, deps ServerDeps) {
	api := contactApi{deps: deps}
	g.POST("/contact", api.send)
}

// send forwards a contact form submission to the support inbox.
func (api *contactApi) send(ctx echo.Context) error {
	var data ContactRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ContactRequest")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}

	body := fmt.Sprintf("De: %s <%s>\n\n%s", data.Name, data.Email, data.Message)
	msg := &core.EmailMessage{
		To:          []mail.Address{api.deps.Conf.DefaultFromEmail},
		Subject:     "Contact: " + data.Subject,
		TextContent: body,
	}
	api.deps.MailSvc.SendMessages(msg)

	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "message sent"})
}
