package user_test

import (
	"testing"

	"github.com/haneul/gyoryu/core/user"
	dummydb "github.com/haneul/gyoryu/storage/database/dummy"
	testutil "github.com/haneul/gyoryu/tests"
)

func TestUser_passwords(t *testing.T) {
	var usr user.User
	if err := usr.SetPassword("LePass123"); err != nil {
		t.Fatalf("SetPassword() failed: %v", err)
	}
	if err := usr.CheckPassword("LePass123"); err != nil {
		t.Errorf("CheckPassword() failed: %v", err)
	}
	if err := usr.CheckPassword("nope"); err == nil {
		t.Error("CheckPassword() accepted a wrong password")
	}
}

func TestUser_roles(t *testing.T) {
	tests := []struct {
		name               string
		roles              []string
		isAdmin, isStudent bool
	}{
		{name: "no roles"},
		{name: "student", roles: []string{user.RoleStudent}, isStudent: true},
		{name: "admin owner", roles: []string{user.RoleAdminOwner}, isAdmin: true},
		{name: "coordinator", roles: []string{user.RoleAdminCoordinator}, isAdmin: true},
		{name: "both", roles: []string{user.RoleStudent, user.RoleAdmin}, isAdmin: true, isStudent: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			usr := user.User{Roles: tt.roles}
			if usr.IsAdmin() != tt.isAdmin {
				t.Errorf("IsAdmin() = %v, want %v", usr.IsAdmin(), tt.isAdmin)
			}
			if usr.IsStudent() != tt.isStudent {
				t.Errorf("IsStudent() = %v, want %v", usr.IsStudent(), tt.isStudent)
			}
		})
	}
}

func TestMaxRolePriority(t *testing.T) {
	if got := user.MaxRolePriority([]string{user.RoleStudent, user.RoleAdminOwner}); got != user.RolePriority(user.RoleAdminOwner) {
		t.Errorf("MaxRolePriority() = %v, want %v", got, user.RolePriority(user.RoleAdminOwner))
	}
	if got := user.MaxRolePriority(nil); got != 0 {
		t.Errorf("MaxRolePriority(nil) = %v, want 0", got)
	}
}

func TestNewUser_Validate(t *testing.T) {
	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("dummydb.Open() failed: %v", err)
	}
	repo := dummydb.NewUserRepository(db)
	svc := user.NewService(repo)

	testutil.CreateUser(t, repo, "Taken", "takenuser", "taken@gyoryu.kr", "LePass123", nil, true)

	t.Run("valid", func(t *testing.T) {
		nu := user.NewUser{
			Name:            "Ha-eun Im",
			Username:        "haeun01",
			Email:           "haeun@gyoryu.kr",
			Password:        "LePass123",
			PasswordConfirm: "LePass123",
			Roles:           user.StudentRoles,
		}
		if err := nu.Validate(svc); err != nil {
			t.Errorf("Validate() failed: %v", err)
		}
	})

	t.Run("bad role", func(t *testing.T) {
		nu := user.NewUser{
			Name:            "Ha-eun Im",
			Email:           "haeun@gyoryu.kr",
			Password:        "LePass123",
			PasswordConfirm: "LePass123",
			Roles:           []string{"sudo"},
		}
		if err := nu.Validate(svc); err == nil {
			t.Error("Validate() accepted an unknown role")
		}
	})

	t.Run("password mismatch", func(t *testing.T) {
		nu := user.NewUser{
			Name:            "Ha-eun Im",
			Email:           "haeun@gyoryu.kr",
			Password:        "LePass123",
			PasswordConfirm: "LePass124",
		}
		if err := nu.Validate(svc); err == nil {
			t.Error("Validate() accepted mismatched passwords")
		}
	})

	t.Run("username already taken", func(t *testing.T) {
		nu := user.NewUser{
			Name:            "Copy Cat",
			Username:        "takenuser",
			Email:           "copycat@gyoryu.kr",
			Password:        "LePass123",
			PasswordConfirm: "LePass123",
		}
		if err := nu.Validate(svc); err == nil {
			t.Error("Validate() accepted a taken username")
		}
	})
}
