package main

import (
	"context"

	"github.com/haneul/gyoryu/core/user"
)

// addAdmin creates an admin user.User with full privileges.
func (cli *commandLine) addAdmin(uname, email, pwd string) error {
	nu := user.NewUser{
		Name:            uname,
		Username:        uname,
		Email:           email,
		Password:        pwd,
		PasswordConfirm: pwd,
		Roles:           []string{user.RoleAdminOwner},
	}
	if err := nu.Validate(cli.usrSvc); err != nil {
		return err
	}
	_, err := cli.usrSvc.Create(context.Background(), nu)
	return err
}
