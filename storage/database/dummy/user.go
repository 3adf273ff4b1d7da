package dummydb

import (
	"context"
	"sort"
	"strings"

	"github.com/haneul/gyoryu/core/user"
)

type userRepository struct {
	db *userTable
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db.user}
}

func (repo *userRepository) query() []user.User {
	users := make([]user.User, 0, len(repo.db.table))
	for _, u := range repo.db.table {
		users = append(users, *u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users
}

func isExcluded(usr user.User, excluded []user.User) bool {
	for _, ex := range excluded {
		if ex.ID == usr.ID {
			return true
		}
	}
	return false
}

func (repo *userRepository) CheckUsernameUniqueness(_ context.Context, username, email string, excludedUsers ...user.User) error {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, usr := range repo.query() {
		if isExcluded(usr, excludedUsers) {
			continue
		}
		if username != "" && usr.Username == username {
			return user.ErrUsernameExists
		}
		if email != "" && usr.Email == email {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.pk++
	usr.ID = repo.db.pk
	repo.db.table[usr.ID] = &usr
	return usr, nil
}

func (repo *userRepository) QueryAllUsers(_ context.Context) ([]user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return repo.query(), nil
}

func (repo *userRepository) GetUserByID(_ context.Context, id int) (user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if usr, ok := repo.db.table[id]; ok {
		return *usr, nil
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) GetUserByUsername(_ context.Context, username string) (user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, usr := range repo.query() {
		if usr.Username == username {
			return usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) GetUserByEmail(_ context.Context, email string) (user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, usr := range repo.query() {
		if usr.Email == email {
			return usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) GetUserByUsernameOrEmail(_ context.Context, username string) (user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, usr := range repo.query() {
		if usr.Username == username || usr.Email == username {
			return usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) FilterUsers(_ context.Context, filter user.QueryFilter) ([]user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	matches := make([]user.User, 0)
	for _, usr := range repo.query() {
		if filter.Search != "" && !matchesSearch(usr, filter.Search) {
			continue
		}
		if filter.IsActive != nil && usr.IsActive != *filter.IsActive {
			continue
		}
		if len(filter.Roles) > 0 && !hasAnyRolePrefix(usr, filter.Roles) {
			continue
		}
		matches = append(matches, usr)
	}
	return matches, nil
}

func matchesSearch(usr user.User, search string) bool {
	search = strings.ToLower(search)
	for _, s := range []string{usr.Name, usr.Username, usr.Email} {
		if strings.Contains(strings.ToLower(s), search) {
			return true
		}
	}
	return false
}

func hasAnyRolePrefix(usr user.User, roles []string) bool {
	for _, want := range roles {
		for _, role := range usr.Roles {
			if strings.HasPrefix(role, want) {
				return true
			}
		}
	}
	return false
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User, isActive *bool) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	curr, ok := repo.db.table[usr.ID]
	if !ok {
		return user.User{}, user.ErrNotFound
	}

	if usr.Name != "" {
		curr.Name = usr.Name
	}
	if usr.Username != "" {
		curr.Username = usr.Username
	}
	if usr.Email != "" {
		curr.Email = usr.Email
	}
	if usr.Roles != nil {
		curr.Roles = usr.Roles
	}
	if usr.PasswordHash != nil {
		curr.PasswordHash = usr.PasswordHash
	}
	if isActive != nil {
		curr.IsActive = *isActive
	}
	if !usr.LastLogin.IsZero() {
		curr.LastLogin = usr.LastLogin
	}
	if !usr.UpdatedAt.IsZero() {
		curr.UpdatedAt = usr.UpdatedAt
	}
	return *curr, nil
}

func (repo *userRepository) DeleteUsersByID(_ context.Context, ids ...int) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, id := range ids {
		delete(repo.db.table, id)
	}
	return nil
}
