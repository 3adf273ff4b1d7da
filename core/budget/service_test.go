package budget_test

import (
	"context"
	"net/mail"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/haneul/gyoryu/core"
	"github.com/haneul/gyoryu/core/budget"
	"github.com/haneul/gyoryu/core/student"
	emailsvc "github.com/haneul/gyoryu/services/email"
	dummydb "github.com/haneul/gyoryu/storage/database/dummy"
	testutil "github.com/haneul/gyoryu/tests"
)

type noopLogger struct{}

func (noopLogger) Debug(string, ...interface{}) {}
func (noopLogger) Info(string, ...interface{})  {}
func (noopLogger) Warn(string, ...interface{})  {}
func (noopLogger) Error(string, ...interface{}) {}
func (noopLogger) Fatal(string, ...interface{}) {}

func setup(t *testing.T) (*budget.Service, budget.Repository, student.Repository) {
	t.Helper()

	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("setup() failed: %v", err)
	}
	repo := dummydb.NewBudgetRepository(db)
	profiles := dummydb.NewProfileRepository(db)
	svc := budget.NewService(repo, profiles, nil, noopLogger{})
	return svc, repo, profiles
}

func TestAllocation(t *testing.T) {
	tests := []struct {
		name                                     string
		totalLessons, perLessonAmount, maxBudget int
		want                                     int
	}{
		{name: "under the cap", totalLessons: 20, perLessonAmount: 15000, maxBudget: 400000, want: 300000},
		{name: "cap applied", totalLessons: 40, perLessonAmount: 15000, maxBudget: 400000, want: 400000},
		{name: "exactly at the cap", totalLessons: 20, perLessonAmount: 20000, maxBudget: 400000, want: 400000},
		{name: "zero cap means uncapped", totalLessons: 40, perLessonAmount: 15000, maxBudget: 0, want: 600000},
		{name: "zero lessons", totalLessons: 0, perLessonAmount: 15000, maxBudget: 400000, want: 0},
		{name: "zero rate", totalLessons: 20, perLessonAmount: 0, maxBudget: 400000, want: 0},
		{name: "all zero", totalLessons: 0, perLessonAmount: 0, maxBudget: 0, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := budget.Allocation(tt.totalLessons, tt.perLessonAmount, tt.maxBudget); got != tt.want {
				t.Errorf("Allocation() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestService_Recalculate(t *testing.T) {
	ctx := context.Background()
	field := "한국어교육"

	t.Run("no rows is not an error", func(t *testing.T) {
		svc, _, _ := setup(t)

		res, err := svc.Recalculate(ctx, field, budget.Setting{Field: field, PerLessonAmount: 15000, MaxBudget: 400000})
		if err != nil {
			t.Fatalf("Recalculate() error = %v", err)
		}
		if res.Updated != 0 || res.Total != 0 {
			t.Errorf("Recalculate() = {updated: %d, total: %d}, want {0, 0}", res.Updated, res.Total)
		}
	})

	t.Run("reallocates and clamps usage", func(t *testing.T) {
		svc, repo, profiles := setup(t)

		// 20 lessons -> 300000, under the 400000 cap
		testutil.CreateProfile(t, profiles, 1, "Amara", field, 20)
		testutil.CreateStudentBudget(t, repo, 1, field, 100000, 50000)

		// 40 lessons -> 600000, capped at 400000; prior spend above the new cap
		testutil.CreateProfile(t, profiles, 2, "Bora", field, 40)
		testutil.CreateStudentBudget(t, repo, 2, field, 700000, 450000)

		res, err := svc.Recalculate(ctx, field, budget.Setting{Field: field, PerLessonAmount: 15000, MaxBudget: 400000})
		if err != nil {
			t.Fatalf("Recalculate() error = %v", err)
		}
		if res.Updated != 2 || res.Total != 2 {
			t.Errorf("Recalculate() = {updated: %d, total: %d}, want {2, 2}", res.Updated, res.Total)
		}

		got1, _ := repo.GetStudentBudget(ctx, 1, field)
		if got1.Allocated != 300000 || got1.Used != 50000 {
			t.Errorf("student 1 = {allocated: %d, used: %d}, want {300000, 50000}", got1.Allocated, got1.Used)
		}
		got2, _ := repo.GetStudentBudget(ctx, 2, field)
		if got2.Allocated != 400000 || got2.Used != 400000 {
			t.Errorf("student 2 = {allocated: %d, used: %d}, want {400000, 400000}", got2.Allocated, got2.Used)
		}
		if got2.Used > got2.Allocated {
			t.Error("used budget exceeds allocation after recalculation")
		}
	})

	t.Run("zero cap leaves allocation uncapped", func(t *testing.T) {
		svc, repo, profiles := setup(t)

		testutil.CreateProfile(t, profiles, 1, "Amara", field, 40)
		testutil.CreateStudentBudget(t, repo, 1, field, 100000, 0)

		res, err := svc.Recalculate(ctx, field, budget.Setting{Field: field, PerLessonAmount: 15000})
		if err != nil {
			t.Fatalf("Recalculate() error = %v", err)
		}
		if res.Updated != 1 {
			t.Fatalf("Recalculate() updated = %d, want 1", res.Updated)
		}
		got, _ := repo.GetStudentBudget(ctx, 1, field)
		if got.Allocated != 600000 {
			t.Errorf("allocated = %d, want 600000", got.Allocated)
		}
	})

	t.Run("missing profile defaults to 20 lessons", func(t *testing.T) {
		svc, repo, _ := setup(t)

		testutil.CreateStudentBudget(t, repo, 7, field, 0, 0)

		if _, err := svc.Recalculate(ctx, field, budget.Setting{Field: field, PerLessonAmount: 15000, MaxBudget: 400000}); err != nil {
			t.Fatalf("Recalculate() error = %v", err)
		}
		got, _ := repo.GetStudentBudget(ctx, 7, field)
		if got.Allocated != 300000 { // 20 * 15000
			t.Errorf("allocated = %d, want 300000", got.Allocated)
		}
	})

	t.Run("zero lesson count defaults to 20 lessons", func(t *testing.T) {
		svc, repo, profiles := setup(t)

		testutil.CreateProfile(t, profiles, 7, "Chin-sun", field, 0)
		testutil.CreateStudentBudget(t, repo, 7, field, 0, 0)

		if _, err := svc.Recalculate(ctx, field, budget.Setting{Field: field, PerLessonAmount: 15000, MaxBudget: 400000}); err != nil {
			t.Fatalf("Recalculate() error = %v", err)
		}
		got, _ := repo.GetStudentBudget(ctx, 7, field)
		if got.Allocated != 300000 {
			t.Errorf("allocated = %d, want 300000", got.Allocated)
		}
	})

	t.Run("failed row updates are counted, not raised", func(t *testing.T) {
		_, repo, profiles := setup(t)

		var budgets []budget.StudentBudget
		for uid := 1; uid <= 5; uid++ {
			testutil.CreateProfile(t, profiles, uid, "Student", field, 20)
			budgets = append(budgets, testutil.CreateStudentBudget(t, repo, uid, field, 0, 0))
		}

		failing := &failingRepo{
			Repository: repo,
			failIDs:    map[int]bool{budgets[1].ID: true, budgets[3].ID: true},
		}
		svc := budget.NewService(failing, profiles, nil, noopLogger{})

		res, err := svc.Recalculate(ctx, field, budget.Setting{Field: field, PerLessonAmount: 15000, MaxBudget: 400000})
		if err != nil {
			t.Fatalf("Recalculate() error = %v", err)
		}
		if res.Updated != 3 || res.Total != 5 {
			t.Errorf("Recalculate() = {updated: %d, total: %d}, want {3, 5}", res.Updated, res.Total)
		}

		var failed int
		for _, out := range res.Outcomes {
			if out.Err != nil {
				failed++
			}
		}
		if failed != 2 {
			t.Errorf("failed outcomes = %d, want 2", failed)
		}
	})

	t.Run("fetch failure aborts before any write", func(t *testing.T) {
		_, repo, profiles := setup(t)

		testutil.CreateProfile(t, profiles, 1, "Amara", field, 20)
		sb := testutil.CreateStudentBudget(t, repo, 1, field, 111, 11)

		svc := budget.NewService(&fetchFailRepo{Repository: repo}, profiles, nil, noopLogger{})
		if _, err := svc.Recalculate(ctx, field, budget.Setting{Field: field, PerLessonAmount: 15000}); err == nil {
			t.Fatal("Recalculate() expected an error")
		}

		got, _ := repo.GetStudentBudget(ctx, 1, field)
		if got.Allocated != sb.Allocated || got.Used != sb.Used {
			t.Error("row was written despite fetch failure")
		}
	})
}

type failingRepo struct {
	budget.Repository
	failIDs map[int]bool
}

func (r *failingRepo) UpdateStudentBudget(ctx context.Context, sb budget.StudentBudget) (budget.StudentBudget, error) {
	if r.failIDs[sb.ID] {
		return budget.StudentBudget{}, errors.New("update refused")
	}
	return r.Repository.UpdateStudentBudget(ctx, sb)
}

type fetchFailRepo struct {
	budget.Repository
}

func (r *fetchFailRepo) QueryStudentBudgetsByField(context.Context, string) ([]budget.StudentBudget, error) {
	return nil, errors.New("connection refused")
}

func TestService_ApplySetting(t *testing.T) {
	ctx := context.Background()
	field := "전통음악"

	t.Run("inserts then recalculates", func(t *testing.T) {
		svc, repo, profiles := setup(t)

		testutil.CreateProfile(t, profiles, 1, "Amara", field, 20)
		testutil.CreateStudentBudget(t, repo, 1, field, 0, 0)

		res, err := svc.ApplySetting(ctx, budget.NewSetting{Field: field, PerLessonAmount: 10000, MaxBudget: 150000})
		if err != nil {
			t.Fatalf("ApplySetting() error = %v", err)
		}
		if res.Setting == nil || res.Setting.PerLessonAmount != 10000 {
			t.Fatalf("ApplySetting() setting = %+v", res.Setting)
		}
		if res.Updated != 1 || res.Total != 1 {
			t.Errorf("ApplySetting() = {updated: %d, total: %d}, want {1, 1}", res.Updated, res.Total)
		}

		got, _ := repo.GetStudentBudget(ctx, 1, field)
		if got.Allocated != 150000 { // 20*10000 capped at 150000
			t.Errorf("allocated = %d, want 150000", got.Allocated)
		}
	})

	t.Run("updates an existing setting", func(t *testing.T) {
		svc, repo, _ := setup(t)

		testutil.CreateSetting(t, repo, field, 5000, 0)
		res, err := svc.ApplySetting(ctx, budget.NewSetting{Field: field, PerLessonAmount: 7000, MaxBudget: 90000})
		if err != nil {
			t.Fatalf("ApplySetting() error = %v", err)
		}

		set, err := repo.GetSettingByField(ctx, field)
		if err != nil {
			t.Fatalf("GetSettingByField() error = %v", err)
		}
		if set.PerLessonAmount != 7000 || set.MaxBudget != 90000 {
			t.Errorf("setting = %+v", set)
		}
		if set.ID != res.Setting.ID {
			t.Error("upsert created a second row for the field")
		}
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		svc, _, _ := setup(t)

		if _, err := svc.ApplySetting(ctx, budget.NewSetting{Field: "", PerLessonAmount: 1000}); err == nil {
			t.Error("ApplySetting() expected a validation error for empty field")
		}
		if _, err := svc.ApplySetting(ctx, budget.NewSetting{Field: field, PerLessonAmount: -1}); err == nil {
			t.Error("ApplySetting() expected a validation error for negative amount")
		}
	})
}

func TestService_ApplyAll(t *testing.T) {
	ctx := context.Background()

	svc, repo, profiles := setup(t)
	testutil.CreateProfile(t, profiles, 1, "Amara", "한국어교육", 20)
	testutil.CreateStudentBudget(t, repo, 1, "한국어교육", 0, 0)

	results := svc.ApplyAll(ctx, []budget.NewSetting{
		{Field: "한국어교육", PerLessonAmount: 15000, MaxBudget: 400000},
		{Field: "", PerLessonAmount: 1000}, // invalid, must not stop the batch
		{Field: "전통음악", PerLessonAmount: 8000, MaxBudget: 0},
	})
	if len(results) != 3 {
		t.Fatalf("ApplyAll() returned %d results, want 3", len(results))
	}

	if results[0].Error != "" || results[0].Updated != 1 {
		t.Errorf("results[0] = %+v", results[0])
	}
	if results[1].Error == "" {
		t.Error("results[1] should carry the validation error")
	}
	if results[2].Error != "" || results[2].Total != 0 {
		t.Errorf("results[2] = %+v", results[2])
	}

	// both valid settings must have been written
	sets, _ := repo.QueryAllSettings(ctx)
	if len(sets) != 2 {
		t.Errorf("settings written = %d, want 2", len(sets))
	}
}

func TestService_ApplyAll_notifiesCoordinators(t *testing.T) {
	ctx := context.Background()

	origEmails := core.Conf.CoordinatorEmails
	core.Conf.CoordinatorEmails = []mail.Address{{Address: "coord@gyoryu.kr"}}
	defer func() { core.Conf.CoordinatorEmails = origEmails }()
	emailsvc.ClearSentMessages()

	db, _ := dummydb.Open()
	repo := dummydb.NewBudgetRepository(db)
	profiles := dummydb.NewProfileRepository(db)
	svc := budget.NewService(repo, profiles, emailsvc.NewConsoleServiceMock(), noopLogger{})

	svc.ApplyAll(ctx, []budget.NewSetting{{Field: "한국어교육", PerLessonAmount: 15000, MaxBudget: 400000}})

	if !assert.Len(t, emailsvc.SentMessages, 1) {
		return
	}
	msg := emailsvc.SentMessages[0]
	assert.Equal(t, "Budget settings updated", msg.Subject)
	assert.Contains(t, msg.TextContent, "한국어교육")
}

func TestService_EnsureStudentBudget(t *testing.T) {
	ctx := context.Background()
	field := "한국어교육"

	t.Run("creates from the current setting", func(t *testing.T) {
		svc, repo, profiles := setup(t)

		testutil.CreateSetting(t, repo, field, 15000, 400000)
		testutil.CreateProfile(t, profiles, 1, "Amara", field, 40)

		sb, err := svc.EnsureStudentBudget(ctx, 1, field)
		if err != nil {
			t.Fatalf("EnsureStudentBudget() error = %v", err)
		}
		if sb.Allocated != 400000 || sb.Used != 0 {
			t.Errorf("budget = {allocated: %d, used: %d}, want {400000, 0}", sb.Allocated, sb.Used)
		}
	})

	t.Run("returns the existing row untouched", func(t *testing.T) {
		svc, repo, _ := setup(t)

		testutil.CreateSetting(t, repo, field, 15000, 400000)
		existing := testutil.CreateStudentBudget(t, repo, 1, field, 123, 45)

		sb, err := svc.EnsureStudentBudget(ctx, 1, field)
		if err != nil {
			t.Fatalf("EnsureStudentBudget() error = %v", err)
		}
		if sb.ID != existing.ID || sb.Allocated != 123 || sb.Used != 45 {
			t.Errorf("budget = %+v, want the existing row back", sb)
		}
	})

	t.Run("unknown field is a validation error", func(t *testing.T) {
		svc, _, _ := setup(t)

		_, err := svc.EnsureStudentBudget(ctx, 1, "미술")
		var vErr *core.ValidationError
		if !errors.As(err, &vErr) {
			t.Errorf("EnsureStudentBudget() error = %v, want *core.ValidationError", err)
		}
	})
}

func TestService_RecordUsage(t *testing.T) {
	ctx := context.Background()
	field := "한국어교육"

	svc, repo, _ := setup(t)
	testutil.CreateStudentBudget(t, repo, 1, field, 300000, 250000)

	t.Run("records a spend", func(t *testing.T) {
		sb, err := svc.RecordUsage(ctx, 1, field, 30000)
		if err != nil {
			t.Fatalf("RecordUsage() error = %v", err)
		}
		if sb.Used != 280000 {
			t.Errorf("used = %d, want 280000", sb.Used)
		}
	})

	t.Run("rejects a spend over the remaining funds", func(t *testing.T) {
		_, err := svc.RecordUsage(ctx, 1, field, 30000)
		var vErr *core.ValidationError
		if !errors.As(err, &vErr) {
			t.Errorf("RecordUsage() error = %v, want an over-budget validation error", err)
		}
	})

	t.Run("rejects non-positive amounts", func(t *testing.T) {
		if _, err := svc.RecordUsage(ctx, 1, field, 0); err == nil {
			t.Error("RecordUsage() expected a validation error")
		}
	})

	t.Run("unknown row", func(t *testing.T) {
		if _, err := svc.RecordUsage(ctx, 99, field, 1000); errors.Cause(err) != budget.ErrBudgetNotFound {
			t.Errorf("RecordUsage() error = %v, want ErrBudgetNotFound", err)
		}
	})
}

func TestService_Summarize(t *testing.T) {
	ctx := context.Background()

	svc, repo, _ := setup(t)
	testutil.CreateStudentBudget(t, repo, 1, "한국어교육", 300000, 150000)
	testutil.CreateStudentBudget(t, repo, 2, "한국어교육", 400000, 200000)
	testutil.CreateStudentBudget(t, repo, 3, "전통음악", 100000, 0)

	summaries, err := svc.Summarize(ctx)
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("Summarize() returned %d fields, want 2", len(summaries))
	}

	bySumField := make(map[string]budget.FieldSummary, len(summaries))
	for _, sum := range summaries {
		bySumField[sum.Field] = sum
	}

	korean := bySumField["한국어교육"]
	assert.Equal(t, 2, korean.Students)
	assert.Equal(t, 700000, korean.TotalAllocated)
	assert.Equal(t, 350000, korean.TotalUsed)
	assert.InDelta(t, 50.0, korean.UsagePct, 0.001)

	music := bySumField["전통음악"]
	assert.Equal(t, 1, music.Students)
	assert.Equal(t, 0.0, music.UsagePct)
}
