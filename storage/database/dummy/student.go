package dummydb

import (
	"context"
	"sort"

	"github.com/haneul/gyoryu/core/student"
)

type profileRepository struct {
	db *profileTable
}

var _ student.Repository = (*profileRepository)(nil) // interface compliance check

func NewProfileRepository(db *DB) student.Repository {
	return &profileRepository{db: db.profile}
}

func (repo *profileRepository) CreateProfile(_ context.Context, prof student.Profile) (student.Profile, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.pk++
	prof.ID = repo.db.pk
	repo.db.table[prof.ID] = &prof
	return prof, nil
}

func (repo *profileRepository) GetProfileByUserID(_ context.Context, userID int) (student.Profile, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, prof := range repo.db.table {
		if prof.UserID == userID {
			return *prof, nil
		}
	}
	return student.Profile{}, student.ErrNotFound
}

func (repo *profileRepository) QueryProfilesByUserID(_ context.Context, userIDs ...int) ([]student.Profile, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	wanted := make(map[int]bool, len(userIDs))
	for _, id := range userIDs {
		wanted[id] = true
	}

	profs := make([]student.Profile, 0, len(userIDs))
	for _, prof := range repo.db.table {
		if wanted[prof.UserID] {
			profs = append(profs, *prof)
		}
	}
	sort.Slice(profs, func(i, j int) bool { return profs[i].ID < profs[j].ID })
	return profs, nil
}
