package dummydb

import (
	"sync"

	"github.com/haneul/gyoryu/core/budget"
	"github.com/haneul/gyoryu/core/student"
	"github.com/haneul/gyoryu/core/user"
)

// in-memory database for tests and local hacking
type (
	DB struct {
		user          *userTable
		profile       *profileTable
		setting       *settingTable
		studentBudget *studentBudgetTable
	}

	userTable struct {
		sync.RWMutex
		pk    int
		table map[int]*user.User
	}

	profileTable struct {
		sync.RWMutex
		pk    int
		table map[int]*student.Profile
	}

	settingTable struct {
		sync.RWMutex
		pk    int
		table map[int]*budget.Setting
	}

	studentBudgetTable struct {
		sync.RWMutex
		pk    int
		table map[int]*budget.StudentBudget
	}
)

func Open() (*DB, error) {
	db := &DB{
		user:          &userTable{table: make(map[int]*user.User)},
		profile:       &profileTable{table: make(map[int]*student.Profile)},
		setting:       &settingTable{table: make(map[int]*budget.Setting)},
		studentBudget: &studentBudgetTable{table: make(map[int]*budget.StudentBudget)},
	}
	return db, nil
}
