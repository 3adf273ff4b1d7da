package budget

import (
	"context"
	"errors"
	"time"

	"github.com/haneul/gyoryu/core"
)

var (
	// errors
	ErrSettingNotFound = errors.New("budget setting not found")
	ErrBudgetNotFound  = errors.New("student budget not found")
	ErrBudgetExists    = errors.New("a budget for this student and field already exists")
	ErrOverBudget      = errors.New("amount exceeds the remaining budget")
)

type (
	// Setting is the per-field budget policy: a per-lesson rate and a hard cap.
	// MaxBudget == 0 means uncapped.
	Setting struct {
		ID              int       `json:"id" db:"id"`
		Field           string    `json:"field" db:"field"`
		PerLessonAmount int       `json:"per_lesson_amount" db:"per_lesson_amount"`
		MaxBudget       int       `json:"max_budget" db:"max_budget"`
		CreatedAt       time.Time `json:"created_at" db:"created_at"`
		UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
	}

	// StudentBudget is one ledger row: a student's allocation and cumulative
	// spend for a field. After recalculation, Used <= Allocated holds.
	StudentBudget struct {
		ID        int       `json:"id" db:"id"`
		UserID    int       `json:"user_id" db:"user_id"`
		Field     string    `json:"field" db:"field"`
		Allocated int       `json:"allocated_budget" db:"allocated_budget"`
		Used      int       `json:"used_budget" db:"used_budget"`
		CreatedAt time.Time `json:"created_at" db:"created_at"`
		UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
	}

	// NewSetting is the admin-form input for one field.
	NewSetting struct {
		Field           string `json:"field" validate:"required"`
		PerLessonAmount int    `json:"per_lesson_amount" validate:"gte=0"`
		MaxBudget       int    `json:"max_budget" validate:"gte=0"`
	}

	// RowOutcome is the settled result of one ledger-row update.
	RowOutcome struct {
		BudgetID  int    `json:"budget_id"`
		UserID    int    `json:"user_id"`
		Allocated int    `json:"allocated_budget"`
		Used      int    `json:"used_budget"`
		Error     string `json:"error,omitempty"`
		Err       error  `json:"-"`
	}

	// RecalcResult reports a field recalculation: how many ledger rows were
	// updated out of how many matched, plus the per-row outcomes.
	RecalcResult struct {
		Field           string       `json:"field"`
		PerLessonAmount int          `json:"per_lesson_amount"`
		MaxBudget       int          `json:"max_budget"`
		Updated         int          `json:"updated"`
		Total           int          `json:"total"`
		Outcomes        []RowOutcome `json:"outcomes,omitempty"`
	}

	// ApplyResult is the combined outcome of one field's setting write plus the
	// recalculation it triggered.
	ApplyResult struct {
		Field   string   `json:"field"`
		Setting *Setting `json:"setting,omitempty"`
		Updated int      `json:"updated"`
		Total   int      `json:"total"`
		Error   string   `json:"error,omitempty"`
	}

	// FieldSummary aggregates one field's ledger for the dashboard.
	FieldSummary struct {
		Field          string  `json:"field"`
		Students       int     `json:"students"`
		TotalAllocated int     `json:"total_allocated"`
		TotalUsed      int     `json:"total_used"`
		UsagePct       float64 `json:"usage_pct"`
	}

	// QueryFilter applies AND operation on available fields.
	QueryFilter struct {
		Field  string
		UserID int
	}

	Repository interface {
		GetSettingByField(ctx context.Context, field string) (Setting, error)
		QueryAllSettings(ctx context.Context) ([]Setting, error)
		// UpsertSetting updates the row keyed by Setting.Field, inserting it if absent.
		UpsertSetting(ctx context.Context, set Setting) (Setting, error)
		GetStudentBudget(ctx context.Context, userID int, field string) (StudentBudget, error)
		QueryStudentBudgetsByField(ctx context.Context, field string) ([]StudentBudget, error)
		FilterStudentBudgets(ctx context.Context, filter QueryFilter) ([]StudentBudget, error)
		CreateStudentBudget(ctx context.Context, sb StudentBudget) (StudentBudget, error)
		UpdateStudentBudget(ctx context.Context, sb StudentBudget) (StudentBudget, error)
	}
)

func (ns *NewSetting) Validate() error {
	ns.Field = core.CleanString(ns.Field)
	return core.Validate.Struct(ns)
}

// Remaining returns the funds still available on the row.
func (sb StudentBudget) Remaining() int {
	return sb.Allocated - sb.Used
}

// Allocation computes a student's budget ceiling from their lesson count and the
// field's rate; the cap bounds worst-case program cost per student even for long
// engagements. A zero cap means uncapped.
func Allocation(totalLessons, perLessonAmount, maxBudget int) int {
	allocated := totalLessons * perLessonAmount
	if maxBudget > 0 && allocated > maxBudget {
		return maxBudget
	}
	return allocated
}
