package dummydb

import (
	"context"
	"sort"

	"github.com/haneul/gyoryu/core/budget"
)

type budgetRepository struct {
	settings *settingTable
	ledger   *studentBudgetTable
}

var _ budget.Repository = (*budgetRepository)(nil) // interface compliance check

func NewBudgetRepository(db *DB) budget.Repository {
	return &budgetRepository{settings: db.setting, ledger: db.studentBudget}
}

// Settings

func (repo *budgetRepository) GetSettingByField(_ context.Context, field string) (budget.Setting, error) {
	repo.settings.RLock()
	defer repo.settings.RUnlock()

	for _, set := range repo.settings.table {
		if set.Field == field {
			return *set, nil
		}
	}
	return budget.Setting{}, budget.ErrSettingNotFound
}

func (repo *budgetRepository) QueryAllSettings(_ context.Context) ([]budget.Setting, error) {
	repo.settings.RLock()
	defer repo.settings.RUnlock()

	sets := make([]budget.Setting, 0, len(repo.settings.table))
	for _, set := range repo.settings.table {
		sets = append(sets, *set)
	}
	sort.Slice(sets, func(i, j int) bool { return sets[i].Field < sets[j].Field })
	return sets, nil
}

func (repo *budgetRepository) UpsertSetting(_ context.Context, set budget.Setting) (budget.Setting, error) {
	repo.settings.Lock()
	defer repo.settings.Unlock()

	for _, curr := range repo.settings.table {
		if curr.Field == set.Field {
			curr.PerLessonAmount = set.PerLessonAmount
			curr.MaxBudget = set.MaxBudget
			curr.UpdatedAt = set.UpdatedAt
			return *curr, nil
		}
	}

	repo.settings.pk++
	set.ID = repo.settings.pk
	repo.settings.table[set.ID] = &set
	return set, nil
}

// Student budgets

func (repo *budgetRepository) queryLedger() []budget.StudentBudget {
	rows := make([]budget.StudentBudget, 0, len(repo.ledger.table))
	for _, sb := range repo.ledger.table {
		rows = append(rows, *sb)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Field != rows[j].Field {
			return rows[i].Field < rows[j].Field
		}
		return rows[i].UserID < rows[j].UserID
	})
	return rows
}

func (repo *budgetRepository) GetStudentBudget(_ context.Context, userID int, field string) (budget.StudentBudget, error) {
	repo.ledger.RLock()
	defer repo.ledger.RUnlock()

	for _, sb := range repo.ledger.table {
		if sb.UserID == userID && sb.Field == field {
			return *sb, nil
		}
	}
	return budget.StudentBudget{}, budget.ErrBudgetNotFound
}

func (repo *budgetRepository) QueryStudentBudgetsByField(_ context.Context, field string) ([]budget.StudentBudget, error) {
	repo.ledger.RLock()
	defer repo.ledger.RUnlock()

	rows := make([]budget.StudentBudget, 0)
	for _, sb := range repo.queryLedger() {
		if sb.Field == field {
			rows = append(rows, sb)
		}
	}
	return rows, nil
}

func (repo *budgetRepository) FilterStudentBudgets(_ context.Context, filter budget.QueryFilter) ([]budget.StudentBudget, error) {
	repo.ledger.RLock()
	defer repo.ledger.RUnlock()

	rows := make([]budget.StudentBudget, 0)
	for _, sb := range repo.queryLedger() {
		if filter.Field != "" && sb.Field != filter.Field {
			continue
		}
		if filter.UserID != 0 && sb.UserID != filter.UserID {
			continue
		}
		rows = append(rows, sb)
	}
	return rows, nil
}

func (repo *budgetRepository) CreateStudentBudget(_ context.Context, sb budget.StudentBudget) (budget.StudentBudget, error) {
	repo.ledger.Lock()
	defer repo.ledger.Unlock()

	for _, curr := range repo.ledger.table {
		if curr.UserID == sb.UserID && curr.Field == sb.Field {
			return budget.StudentBudget{}, budget.ErrBudgetExists
		}
	}

	repo.ledger.pk++
	sb.ID = repo.ledger.pk
	repo.ledger.table[sb.ID] = &sb
	return sb, nil
}

// UpdateStudentBudget overwrites the row; last writer wins, as with the real DB.
func (repo *budgetRepository) UpdateStudentBudget(_ context.Context, sb budget.StudentBudget) (budget.StudentBudget, error) {
	repo.ledger.Lock()
	defer repo.ledger.Unlock()

	curr, ok := repo.ledger.table[sb.ID]
	if !ok {
		return budget.StudentBudget{}, budget.ErrBudgetNotFound
	}
	curr.Allocated = sb.Allocated
	curr.Used = sb.Used
	curr.UpdatedAt = sb.UpdatedAt
	return *curr, nil
}
