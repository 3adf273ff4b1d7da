package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/haneul/gyoryu/core/budget"
)

type budgetRepository struct {
	db *sqlx.DB
}

var _ budget.Repository = (*budgetRepository)(nil) // interface compliance check

func NewBudgetRepository(db *sqlx.DB) budget.Repository {
	return &budgetRepository{db: db}
}

const (
	settingColumns = `id, field, per_lesson_amount, max_budget, created_at, updated_at`
	ledgerColumns  = `id, user_id, field, allocated_budget, used_budget, created_at, updated_at`
)

// Settings

func (repo *budgetRepository) GetSettingByField(ctx context.Context, field string) (budget.Setting, error) {
	var set budget.Setting
	q := `SELECT ` + settingColumns + ` FROM budget_setting WHERE field = $1`
	if err := repo.db.GetContext(ctx, &set, q, field); err != nil {
		if err == sql.ErrNoRows {
			return budget.Setting{}, budget.ErrSettingNotFound
		}
		return budget.Setting{}, errors.Wrap(err, "getting budget setting")
	}
	return set, nil
}

func (repo *budgetRepository) QueryAllSettings(ctx context.Context) ([]budget.Setting, error) {
	var sets []budget.Setting
	q := `SELECT ` + settingColumns + ` FROM budget_setting ORDER BY field`
	if err := repo.db.SelectContext(ctx, &sets, q); err != nil {
		return nil, errors.Wrap(err, "querying budget settings")
	}
	return sets, nil
}

func (repo *budgetRepository) UpsertSetting(ctx context.Context, set budget.Setting) (budget.Setting, error) {
	q := `
		INSERT INTO budget_setting (field, per_lesson_amount, max_budget, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (field) DO UPDATE
		SET per_lesson_amount = EXCLUDED.per_lesson_amount,
		    max_budget        = EXCLUDED.max_budget,
		    updated_at        = EXCLUDED.updated_at
		RETURNING ` + settingColumns
	var out budget.Setting
	err := repo.db.GetContext(ctx, &out, q,
		set.Field, set.PerLessonAmount, set.MaxBudget, set.CreatedAt, set.UpdatedAt)
	if err != nil {
		return budget.Setting{}, errors.Wrap(err, "upserting budget setting")
	}
	return out, nil
}

// Student budgets

func (repo *budgetRepository) GetStudentBudget(ctx context.Context, userID int, field string) (budget.StudentBudget, error) {
	var sb budget.StudentBudget
	q := `SELECT ` + ledgerColumns + ` FROM student_budget WHERE user_id = $1 AND field = $2`
	if err := repo.db.GetContext(ctx, &sb, q, userID, field); err != nil {
		if err == sql.ErrNoRows {
			return budget.StudentBudget{}, budget.ErrBudgetNotFound
		}
		return budget.StudentBudget{}, errors.Wrap(err, "getting student budget")
	}
	return sb, nil
}

func (repo *budgetRepository) QueryStudentBudgetsByField(ctx context.Context, field string) ([]budget.StudentBudget, error) {
	return repo.FilterStudentBudgets(ctx, budget.QueryFilter{Field: field})
}

func (repo *budgetRepository) FilterStudentBudgets(ctx context.Context, filter budget.QueryFilter) ([]budget.StudentBudget, error) {
	where := make([]string, 0, 2)
	args := make([]interface{}, 0, 2)

	if filter.Field != "" {
		args = append(args, filter.Field)
		where = append(where, fmt.Sprintf("field = $%d", len(args)))
	}
	if filter.UserID != 0 {
		args = append(args, filter.UserID)
		where = append(where, fmt.Sprintf("user_id = $%d", len(args)))
	}

	q := `SELECT ` + ledgerColumns + ` FROM student_budget`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY field, user_id"

	var rows []budget.StudentBudget
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying student budgets")
	}
	return rows, nil
}

func (repo *budgetRepository) CreateStudentBudget(ctx context.Context, sb budget.StudentBudget) (budget.StudentBudget, error) {
	q := `
		INSERT INTO student_budget (user_id, field, allocated_budget, used_budget, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, field) DO NOTHING
		RETURNING id`
	err := repo.db.QueryRowContext(ctx, q,
		sb.UserID, sb.Field, sb.Allocated, sb.Used, sb.CreatedAt, sb.UpdatedAt,
	).Scan(&sb.ID)
	if err != nil {
		if err == sql.ErrNoRows { // conflict: row already exists
			return budget.StudentBudget{}, budget.ErrBudgetExists
		}
		return budget.StudentBudget{}, errors.Wrap(err, "inserting student budget")
	}
	return sb, nil
}

// UpdateStudentBudget overwrites the row's amounts; last writer wins, there is
// no version check against concurrent spend approvals.
func (repo *budgetRepository) UpdateStudentBudget(ctx context.Context, sb budget.StudentBudget) (budget.StudentBudget, error) {
	q := `
		UPDATE student_budget
		SET allocated_budget = $1, used_budget = $2, updated_at = $3
		WHERE id = $4
		RETURNING ` + ledgerColumns
	var out budget.StudentBudget
	err := repo.db.GetContext(ctx, &out, q, sb.Allocated, sb.Used, sb.UpdatedAt, sb.ID)
	if err != nil {
		if err == sql.ErrNoRows {
			return budget.StudentBudget{}, budget.ErrBudgetNotFound
		}
		return budget.StudentBudget{}, errors.Wrap(err, "updating student budget")
	}
	return out, nil
}
