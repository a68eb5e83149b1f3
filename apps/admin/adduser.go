package main

import (
	"context"
	"fmt"
	"time"

	"github.com/telatku/telatku/core"
	"github.com/telatku/telatku/core/user"
)

// addUser updates or creates an active user.User
func (cli *commandLine) addUser(email, name, pwd string, isAdmin bool) error {
	ctx := context.Background()
	email = core.CleanString(email, true /* lower */)
	name = core.CleanString(name)

	usr, err := cli.usrRepo.GetUserByEmail(ctx, email)
	exists := err == nil
	if err != nil {
		if err != user.ErrNotFound {
			return err
		}
		now := time.Now().UTC()
		usr = user.User{Email: email, FullName: email, CreatedAt: now}
	}
	if name != "" {
		usr.FullName = name
	}
	usr.IsActive = true
	usr.UpdatedAt = time.Now().UTC()
	if err = usr.SetPassword(pwd); err != nil {
		return err
	}

	if exists {
		if usr, err = cli.usrRepo.UpdateUser(ctx, usr); err != nil {
			return err
		}
		if isAdmin {
			if err = cli.usrRepo.SetRole(ctx, usr.ID, user.RoleAdmin); err != nil {
				return err
			}
		}
		fmt.Fprintf(cli.out, "updated user %s\n", usr.Email)
		return nil
	}

	if isAdmin {
		usr.Role = user.RoleAdmin
	}
	if usr, err = cli.usrRepo.CreateUser(ctx, usr); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "created user %s\n", usr.Email)
	return nil
}
