package main

import (
	"context"
	"time"

	"github.com/vladapp/backend/core"
	"github.com/vladapp/backend/core/user"
)

func (cli *commandLine) resetPassword(identity, pwd string) error {
	ctx := context.Background()
	identity = core.CleanString(identity, true /* lower */)

	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{IdentityOrEmail: identity})
	if err != nil {
		return err
	}
	if err := usr.SetPassword(pwd); err != nil {
		return err
	}
	usr.UpdatedAt = time.Now().UTC()
	if _, err := cli.usrRepo.UpdateUser(ctx, usr); err != nil {
		return err
	}
	return nil
}
