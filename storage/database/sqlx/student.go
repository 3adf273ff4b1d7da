package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/haneul/gyoryu/core/student"
)

type profileRepository struct {
	db *sqlx.DB
}

var _ student.Repository = (*profileRepository)(nil) // interface compliance check

func NewProfileRepository(db *sqlx.DB) student.Repository {
	return &profileRepository{db: db}
}

const profileColumns = `id, user_id, name, field, total_lessons, created_at, updated_at`

func (repo *profileRepository) CreateProfile(ctx context.Context, prof student.Profile) (student.Profile, error) {
	q := `
		INSERT INTO student_profile (user_id, name, field, total_lessons, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`
	err := repo.db.QueryRowContext(ctx, q,
		prof.UserID, prof.Name, prof.Field, prof.TotalLessons, prof.CreatedAt, prof.UpdatedAt,
	).Scan(&prof.ID)
	if err != nil {
		return student.Profile{}, errors.Wrap(err, "inserting student profile")
	}
	return prof, nil
}

func (repo *profileRepository) GetProfileByUserID(ctx context.Context, userID int) (student.Profile, error) {
	var prof student.Profile
	q := `SELECT ` + profileColumns + ` FROM student_profile WHERE user_id = $1`
	if err := repo.db.GetContext(ctx, &prof, q, userID); err != nil {
		if err == sql.ErrNoRows {
			return student.Profile{}, student.ErrNotFound
		}
		return student.Profile{}, errors.Wrap(err, "getting student profile")
	}
	return prof, nil
}

func (repo *profileRepository) QueryProfilesByUserID(ctx context.Context, userIDs ...int) ([]student.Profile, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	q, args, err := sqlx.In(`SELECT `+profileColumns+` FROM student_profile WHERE user_id IN (?) ORDER BY id`, userIDs)
	if err != nil {
		return nil, errors.Wrap(err, "querying student profiles")
	}

	var profs []student.Profile
	if err = repo.db.SelectContext(ctx, &profs, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying student profiles")
	}
	return profs, nil
}
