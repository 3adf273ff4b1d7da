package budget

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/haneul/gyoryu/core"
	"github.com/haneul/gyoryu/core/student"
)

type Service struct {
	repo     Repository
	profiles student.Repository
	mailSvc  core.EmailService
	logger   core.Logger
}

func NewService(repo Repository, profiles student.Repository, mailSvc core.EmailService, logger core.Logger) *Service {
	return &Service{
		repo:     repo,
		profiles: profiles,
		mailSvc:  mailSvc,
		logger:   logger,
	}
}

func (svc *Service) QuerySettings(ctx context.Context) ([]Setting, error) {
	return svc.repo.QueryAllSettings(ctx)
}

func (svc *Service) GetSettingByField(ctx context.Context, field string) (Setting, error) {
	return svc.repo.GetSettingByField(ctx, core.CleanString(field))
}

// Recalculate re-derives every ledger row of the field from the given setting:
// Allocated from the student's lesson count, Used clamped down to the new
// allocation. Row updates are issued concurrently and all settled before
// returning; a failed row is counted out of Updated but never aborts its
// siblings, and nothing is rolled back.
func (svc *Service) Recalculate(ctx context.Context, field string, set Setting) (RecalcResult, error) {
	res := RecalcResult{
		Field:           field,
		PerLessonAmount: set.PerLessonAmount,
		MaxBudget:       set.MaxBudget,
	}

	rows, err := svc.repo.QueryStudentBudgetsByField(ctx, field)
	if err != nil {
		return RecalcResult{}, errors.Wrap(err, "querying student budgets")
	}
	res.Total = len(rows)
	if len(rows) == 0 {
		return res, nil
	}

	lessons, err := svc.lessonCounts(ctx, rows)
	if err != nil {
		return RecalcResult{}, errors.Wrap(err, "querying student profiles")
	}

	now := time.Now().UTC()
	res.Outcomes = make([]RowOutcome, len(rows))

	var wg sync.WaitGroup
	for i, row := range rows {
		wg.Add(1)
		go func(i int, sb StudentBudget) {
			defer wg.Done()

			sb.Allocated = Allocation(lessons[sb.UserID], set.PerLessonAmount, set.MaxBudget)
			if sb.Used > sb.Allocated {
				// a lowered cap must not leave the student with negative
				// remaining funds; excess recorded spend is truncated
				svc.logger.Warn(
					fmt.Sprintf("budget: clamping used budget %d -> %d", sb.Used, sb.Allocated),
					map[string]interface{}{"field": field, "user_id": sb.UserID},
				)
				sb.Used = sb.Allocated
			}
			sb.UpdatedAt = now

			out := RowOutcome{BudgetID: sb.ID, UserID: sb.UserID, Allocated: sb.Allocated, Used: sb.Used}
			if _, err := svc.repo.UpdateStudentBudget(ctx, sb); err != nil {
				out.Err = errors.Wrap(err, "updating student budget")
				out.Error = out.Err.Error()
			}
			res.Outcomes[i] = out
		}(i, row)
	}
	wg.Wait()

	for _, out := range res.Outcomes {
		if out.Err == nil {
			res.Updated++
		}
	}
	return res, nil
}

// lessonCounts resolves the lesson count per affected user; students without a
// profile get student.DefaultTotalLessons.
func (svc *Service) lessonCounts(ctx context.Context, rows []StudentBudget) (map[int]int, error) {
	ids := make([]int, 0, len(rows))
	seen := make(map[int]bool, len(rows))
	for _, row := range rows {
		if !seen[row.UserID] {
			seen[row.UserID] = true
			ids = append(ids, row.UserID)
		}
	}

	profs, err := svc.profiles.QueryProfilesByUserID(ctx, ids...)
	if err != nil {
		return nil, err
	}

	lessons := make(map[int]int, len(ids))
	for _, id := range ids {
		lessons[id] = student.DefaultTotalLessons
	}
	for _, prof := range profs {
		lessons[prof.UserID] = prof.Lessons()
	}
	return lessons, nil
}

// ApplySetting writes the field's setting (update or insert) and, on success,
// immediately recalculates every affected student. The two steps are sequential,
// not transactional: a partially failed recalculation leaves the setting in place.
func (svc *Service) ApplySetting(ctx context.Context, ns NewSetting) (ApplyResult, error) {
	if err := ns.Validate(); err != nil {
		return ApplyResult{}, err
	}

	now := time.Now().UTC()
	set, err := svc.repo.UpsertSetting(ctx, Setting{
		Field:           ns.Field,
		PerLessonAmount: ns.PerLessonAmount,
		MaxBudget:       ns.MaxBudget,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if err != nil {
		return ApplyResult{}, errors.Wrap(err, "upserting budget setting")
	}

	recalc, err := svc.Recalculate(ctx, set.Field, set)
	if err != nil {
		return ApplyResult{}, err
	}

	return ApplyResult{
		Field:   set.Field,
		Setting: &set,
		Updated: recalc.Updated,
		Total:   recalc.Total,
	}, nil
}

// ApplyAll processes the admin form submission: field-by-field, sequentially, in
// submitted order. A failed field is recorded in its result and does not stop
// later fields. Coordinators are emailed a summary afterwards.
func (svc *Service) ApplyAll(ctx context.Context, settings []NewSetting) []ApplyResult {
	results := make([]ApplyResult, 0, len(settings))
	for _, ns := range settings {
		res, err := svc.ApplySetting(ctx, ns)
		if err != nil {
			svc.logger.Error(fmt.Sprintf("budget: applying setting for field %q", ns.Field), err)
			res = ApplyResult{Field: ns.Field, Error: err.Error()}
		}
		results = append(results, res)
	}
	svc.notifyCoordinators(results)
	return results
}

func (svc *Service) notifyCoordinators(results []ApplyResult) {
	to := core.Conf.CoordinatorEmails
	if svc.mailSvc == nil || len(to) == 0 || len(results) == 0 {
		return
	}

	var body strings.Builder
	body.WriteString("Budget settings were updated:\n\n")
	for _, res := range results {
		if res.Error != "" {
			fmt.Fprintf(&body, "- %s: FAILED (%s)\n", res.Field, res.Error)
			continue
		}
		fmt.Fprintf(&body, "- %s: %d원/lesson, cap %d원; %d/%d students recalculated\n",
			res.Field, res.Setting.PerLessonAmount, res.Setting.MaxBudget, res.Updated, res.Total)
	}

	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:          append([]mail.Address(nil), to...),
		Subject:     "Budget settings updated",
		TextContent: body.String(),
	})
}

// EnsureStudentBudget creates the student's ledger row for the field when their
// lesson plan is approved; an existing row is returned untouched.
func (svc *Service) EnsureStudentBudget(ctx context.Context, userID int, field string) (StudentBudget, error) {
	field = core.CleanString(field)

	if sb, err := svc.repo.GetStudentBudget(ctx, userID, field); err == nil {
		return sb, nil
	} else if err != ErrBudgetNotFound {
		return StudentBudget{}, errors.Wrap(err, "getting student budget")
	}

	set, err := svc.repo.GetSettingByField(ctx, field)
	if err != nil {
		if err == ErrSettingNotFound {
			return StudentBudget{}, core.NewValidationError(err, core.FieldError{Field: "field", Error: err.Error()})
		}
		return StudentBudget{}, errors.Wrap(err, "getting budget setting")
	}

	totalLessons := student.DefaultTotalLessons
	if prof, err := svc.profiles.GetProfileByUserID(ctx, userID); err == nil {
		totalLessons = prof.Lessons()
	} else if err != student.ErrNotFound {
		return StudentBudget{}, errors.Wrap(err, "getting student profile")
	}

	now := time.Now().UTC()
	return svc.repo.CreateStudentBudget(ctx, StudentBudget{
		UserID:    userID,
		Field:     field,
		Allocated: Allocation(totalLessons, set.PerLessonAmount, set.MaxBudget),
		CreatedAt: now,
		UpdatedAt: now,
	})
}

// RecordUsage records an approved spend against the student's allocation.
func (svc *Service) RecordUsage(ctx context.Context, userID int, field string, amount int) (StudentBudget, error) {
	if amount <= 0 {
		return StudentBudget{}, core.NewValidationError(nil,
			core.FieldError{Field: "amount", Error: "amount must be positive"})
	}

	sb, err := svc.repo.GetStudentBudget(ctx, userID, core.CleanString(field))
	if err != nil {
		if err == ErrBudgetNotFound {
			return StudentBudget{}, err
		}
		return StudentBudget{}, errors.Wrap(err, "getting student budget")
	}
	if amount > sb.Remaining() {
		return StudentBudget{}, core.NewValidationError(ErrOverBudget,
			core.FieldError{Field: "amount", Error: ErrOverBudget.Error()})
	}

	sb.Used += amount
	sb.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateStudentBudget(ctx, sb)
}

func (svc *Service) QueryStudentBudgets(ctx context.Context, filter QueryFilter) ([]StudentBudget, error) {
	filter.Field = core.CleanString(filter.Field)
	return svc.repo.FilterStudentBudgets(ctx, filter)
}

// Summarize aggregates the whole ledger per field for the admin dashboard.
func (svc *Service) Summarize(ctx context.Context) ([]FieldSummary, error) {
	rows, err := svc.repo.FilterStudentBudgets(ctx, QueryFilter{})
	if err != nil {
		return nil, errors.Wrap(err, "querying student budgets")
	}

	byField := make(map[string]*FieldSummary)
	order := make([]string, 0)
	for _, row := range rows {
		sum, ok := byField[row.Field]
		if !ok {
			sum = &FieldSummary{Field: row.Field}
			byField[row.Field] = sum
			order = append(order, row.Field)
		}
		sum.Students++
		sum.TotalAllocated += row.Allocated
		sum.TotalUsed += row.Used
	}

	summaries := make([]FieldSummary, 0, len(order))
	for _, field := range order {
		sum := byField[field]
		if sum.TotalAllocated > 0 {
			sum.UsagePct = float64(sum.TotalUsed) / float64(sum.TotalAllocated) * 100
		}
		summaries = append(summaries, *sum)
	}
	return summaries, nil
}
