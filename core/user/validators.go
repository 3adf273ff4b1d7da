package user

import (
	"github.com/go-playground/validator/v10"

	"github.com/haneul/gyoryu/core"
)

var (
	allRolesTag  = "allroles"
	allRolesText = "invalid roles"
)

func init() {
	_ = core.Validate.RegisterValidation(allRolesTag, allRolesValidation)
	core.RegisterCustomTranslation(core.Validate, core.Translator, allRolesTag, allRolesText)
}

// allRolesValidation checks that all provided roles are known.
func allRolesValidation(fl validator.FieldLevel) bool {
	roles, ok := fl.Field().Interface().([]string)
	if !ok {
		return false
	}
	for _, role := range roles {
		if RolePriority(role) == 0 {
			return false
		}
	}
	return true
}

func (nu *NewUser) Validate(svc *Service) error {
	nu.Name = core.CleanString(nu.Name)
	nu.Username = core.CleanString(nu.Username, true /* lower */)
	nu.Email = core.CleanString(nu.Email, true /* lower */)

	if err := core.Validate.Struct(nu); err != nil {
		return err
	}
	return svc.checkUniqueness(nu.Username, nu.Email)
}

func (uu *UpdateUser) Validate(usr User, svc *Service) error {
	uu.Name = core.CleanString(uu.Name)
	uu.Username = core.CleanString(uu.Username, true /* lower */)
	uu.Email = core.CleanString(uu.Email, true /* lower */)

	if err := core.Validate.Struct(uu); err != nil {
		return err
	}
	if uu.Username == "" && uu.Email == "" {
		return nil
	}
	return svc.checkUniqueness(uu.Username, uu.Email, usr)
}
