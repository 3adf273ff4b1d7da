package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/haneul/gyoryu/core/budget"
	"github.com/haneul/gyoryu/core/student"
	"github.com/haneul/gyoryu/core/user"
)

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
) user.User {
	t.Helper()

	now := time.Now().UTC()
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func CreateProfile(t *testing.T, repo student.Repository, userID int, name, field string, totalLessons int) student.Profile {
	t.Helper()

	now := time.Now().UTC()
	prof, err := repo.CreateProfile(context.Background(), student.Profile{
		UserID:       userID,
		Name:         name,
		Field:        field,
		TotalLessons: totalLessons,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		t.Fatalf("CreateProfile() failed: %v", err)
	}
	return prof
}

func CreateSetting(t *testing.T, repo budget.Repository, field string, perLessonAmount, maxBudget int) budget.Setting {
	t.Helper()

	now := time.Now().UTC()
	set, err := repo.UpsertSetting(context.Background(), budget.Setting{
		Field:           field,
		PerLessonAmount: perLessonAmount,
		MaxBudget:       maxBudget,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if err != nil {
		t.Fatalf("CreateSetting() failed: %v", err)
	}
	return set
}

func CreateStudentBudget(t *testing.T, repo budget.Repository, userID int, field string, allocated, used int) budget.StudentBudget {
	t.Helper()

	now := time.Now().UTC()
	sb, err := repo.CreateStudentBudget(context.Background(), budget.StudentBudget{
		UserID:    userID,
		Field:     field,
		Allocated: allocated,
		Used:      used,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("CreateStudentBudget() failed: %v", err)
	}
	return sb
}
