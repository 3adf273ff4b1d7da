package echoapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/haneul/gyoryu/core"
	"github.com/haneul/gyoryu/core/user"
)

type (
	LoginRequest struct {
		Username string `json:"username" validate:"required"` // or email
		Password string `json:"password" validate:"required"`
	}

	LoginResponse struct {
		Token string `json:"token"`
	}
)

func (r *LoginRequest) Validate() error {
	r.Username = core.CleanString(r.Username, true /* lower */)
	return core.Validate.Struct(r)
}

type userApi struct {
	svc *user.Service
}

func registerUserAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *user.Service) {
	api := userApi{svc: svc}

	ug := g.Group("/users")

	// un-authed endpoints
	ug.POST("/login", api.login)

	// authed, admin-only endpoints
	ag := ug.Group("", jwt, adminMiddleware())
	ag.POST("/register", api.create)
	ag.GET("", api.query)
	ag.GET("/:id", api.retrieve)
	ag.DELETE("", api.destroyMultiple)
}

// Handlers

func (api *userApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	claims, err := authenticate(ctx.Request().Context(), data.Username, data.Password, api.svc)
	if err != nil {
		return err
	}
	token, err := GenerateToken(claims)
	if err != nil {
		return errors.Wrap(err, "generating token")
	}

	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

func (api *userApi) create(ctx echo.Context) error {
	var data user.NewUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewUser")
	}
	if err := data.Validate(api.svc); err != nil {
		return err
	}

	// ctxUser cannot set a role > their own max role
	ctxUsr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if user.MaxRolePriority(data.Roles) > user.MaxRolePriority(ctxUsr.Roles) {
		return core.NewValidationError(nil, core.FieldError{Field: "roles", Error: "not enough rights to set these roles"})
	}

	usr, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating user")
	}

	return ctx.JSON(http.StatusCreated, usr)
}

func (api *userApi) query(ctx echo.Context) error {
	var filter user.QueryFilter
	filter.Search = ctx.QueryParam("search")
	if v := ctx.QueryParam("is_active"); v != "" {
		isActive, err := strconv.ParseBool(v)
		if err != nil {
			return core.NewValidationError(nil, core.FieldError{Field: "is_active", Error: "must be a boolean"})
		}
		filter.IsActive = &isActive
	}
	if roles, ok := ctx.QueryParams()["role"]; ok {
		filter.Roles = roles
	}

	users, err := api.svc.Filter(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying users")
	}
	return ctx.JSON(http.StatusOK, users)
}

func (api *userApi) retrieve(ctx echo.Context) error {
	id, err := strconv.Atoi(ctx.Param("id"))
	if err != nil {
		return errHttpNotFound
	}
	usr, err := api.svc.GetByID(ctx.Request().Context(), id)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "getting user")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) destroyMultiple(ctx echo.Context) error {
	ids := make([]int, 0)
	for _, v := range ctx.QueryParams()["id"] {
		id, err := strconv.Atoi(v)
		if err != nil {
			return core.NewValidationError(nil, core.FieldError{Field: "id", Error: "must be an integer"})
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return core.NewValidationError(nil, core.FieldError{Field: "id", Error: "at least one id is required"})
	}

	if err := api.svc.Delete(ctx.Request().Context(), ids...); err != nil {
		return errors.Wrap(err, "deleting users")
	}
	return ctx.NoContent(http.StatusNoContent)
}
