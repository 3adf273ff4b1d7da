package echoapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/haneul/gyoryu/core"
	"github.com/haneul/gyoryu/core/budget"
)

type (
	// ApplySettingsResponse reports the admin form submission:
	// "N settings saved, M students recalculated".
	ApplySettingsResponse struct {
		Saved        int                  `json:"saved"`
		Failed       int                  `json:"failed"`
		Recalculated int                  `json:"recalculated"`
		Results      []budget.ApplyResult `json:"results"`
	}

	EnsureBudgetRequest struct {
		UserID int    `json:"user_id" validate:"required,gt=0"`
		Field  string `json:"field" validate:"required"`
	}

	RecordUsageRequest struct {
		UserID int    `json:"user_id" validate:"required,gt=0"`
		Field  string `json:"field" validate:"required"`
		Amount int    `json:"amount" validate:"required,gt=0"`
	}
)

func (r *EnsureBudgetRequest) Validate() error {
	r.Field = core.CleanString(r.Field)
	return core.Validate.Struct(r)
}

func (r *RecordUsageRequest) Validate() error {
	r.Field = core.CleanString(r.Field)
	return core.Validate.Struct(r)
}

type budgetApi struct {
	svc *budget.Service
}

func registerBudgetAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *budget.Service) {
	api := budgetApi{svc: svc}

	bg := g.Group("/budget", jwt)

	// student portal
	bg.GET("/me", api.mine, studentMiddleware())

	// admin portal
	ag := bg.Group("", adminMiddleware())
	ag.GET("/settings", api.querySettings)
	ag.PUT("/settings", api.applySettings)
	ag.POST("/settings/:field/recalculate", api.recalculate)
	ag.GET("/students", api.queryStudents)
	ag.POST("/students", api.ensureStudentBudget)
	ag.GET("/summary", api.summary)
	ag.POST("/usage", api.recordUsage)
}

// Handlers

func (api *budgetApi) querySettings(ctx echo.Context) error {
	sets, err := api.svc.QuerySettings(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying budget settings")
	}
	return ctx.JSON(http.StatusOK, sets)
}

// applySettings is the admin form submit: each entry is written then its field
// recalculated, sequentially, in submitted order. Per-field failures land in the
// response instead of failing the request.
func (api *budgetApi) applySettings(ctx echo.Context) error {
	var data []budget.NewSetting
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to []NewSetting")
	}
	if len(data) == 0 {
		return core.NewValidationError(nil, core.FieldError{Field: "settings", Error: "at least one setting is required"})
	}

	results := api.svc.ApplyAll(ctx.Request().Context(), data)

	resp := ApplySettingsResponse{Results: results}
	for _, res := range results {
		if res.Error != "" {
			resp.Failed++
			continue
		}
		resp.Saved++
		resp.Recalculated += res.Updated
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (api *budgetApi) recalculate(ctx echo.Context) error {
	field := core.CleanString(ctx.Param("field"))

	set, err := api.svc.GetSettingByField(ctx.Request().Context(), field)
	if err != nil {
		if errors.Cause(err) == budget.ErrSettingNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "getting budget setting")
	}

	res, err := api.svc.Recalculate(ctx.Request().Context(), field, set)
	if err != nil {
		return errors.Wrap(err, "recalculating budgets")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *budgetApi) queryStudents(ctx echo.Context) error {
	var filter budget.QueryFilter
	filter.Field = ctx.QueryParam("field")
	if v := ctx.QueryParam("user_id"); v != "" {
		uid, err := strconv.Atoi(v)
		if err != nil {
			return core.NewValidationError(nil, core.FieldError{Field: "user_id", Error: "must be an integer"})
		}
		filter.UserID = uid
	}

	rows, err := api.svc.QueryStudentBudgets(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying student budgets")
	}
	return ctx.JSON(http.StatusOK, rows)
}

func (api *budgetApi) ensureStudentBudget(ctx echo.Context) error {
	var data EnsureBudgetRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to EnsureBudgetRequest")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	sb, err := api.svc.EnsureStudentBudget(ctx.Request().Context(), data.UserID, data.Field)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sb)
}

func (api *budgetApi) summary(ctx echo.Context) error {
	summaries, err := api.svc.Summarize(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "summarizing budgets")
	}
	return ctx.JSON(http.StatusOK, summaries)
}

func (api *budgetApi) recordUsage(ctx echo.Context) error {
	var data RecordUsageRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RecordUsageRequest")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	sb, err := api.svc.RecordUsage(ctx.Request().Context(), data.UserID, data.Field, data.Amount)
	if err != nil {
		if errors.Cause(err) == budget.ErrBudgetNotFound {
			return errHttpNotFound
		}
		return err
	}
	return ctx.JSON(http.StatusOK, sb)
}

func (api *budgetApi) mine(ctx echo.Context) error {
	uid, err := contextUserID(ctx)
	if err != nil {
		return err
	}

	rows, err := api.svc.QueryStudentBudgets(ctx.Request().Context(), budget.QueryFilter{UserID: uid})
	if err != nil {
		return errors.Wrap(err, "querying student budgets")
	}
	return ctx.JSON(http.StatusOK, rows)
}
