package repo_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/promptflow/internal/domain"
	"github.com/shaiso/promptflow/internal/orchestrator"
	"github.com/shaiso/promptflow/internal/repo"
)

var _ orchestrator.Store = (*repo.Store)(nil)

// testPool подключается к TEST_DB_URL; без него тест пропускается.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv("TEST_DB_URL")
	if dsn == "" {
		t.Skip("TEST_DB_URL not set")
	}

	ctx := context.Background()
	pool, err := repo.NewPool(ctx, dsn)
	if err != nil {
		t.Fatalf("NewPool() error = %v", err)
	}
	t.Cleanup(pool.Close)

	if err := repo.Migrate(ctx, pool); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return pool
}

func testSpec(t *testing.T) *domain.RequestSpec {
	t.Helper()

	params, err := domain.ParseJSON([]byte(`{"max_tokens": 64, "tags": ["a", "b"]}`))
	if err != nil {
		t.Fatal(err)
	}

	return &domain.RequestSpec{Steps: []domain.StepSpec{
		{Prompt: "first {{topic}}", Engine: "echo", Model: "m", ModelParameters: params,
			PromptParameters: []domain.ParameterSpec{{Name: "topic", Value: "go"}}},
		{Prompt: "second {{content}}", Engine: "echo"},
	}}
}

func TestStore_RequestLifecycle(t *testing.T) {
	pool := testPool(t)
	store := repo.NewStore(pool)
	ctx := context.Background()
	protocol := uuid.NewString()

	req, err := store.CreateRequestTx(ctx, protocol, testSpec(t), nil)
	if err != nil {
		t.Fatalf("CreateRequestTx() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Requests.Delete(context.Background(), protocol) })

	if req.Status != domain.RequestStatusCreated {
		t.Errorf("status = %s, want created", req.Status)
	}

	steps, err := store.GetStepsByRequest(ctx, req.ID)
	if err != nil {
		t.Fatalf("GetStepsByRequest() error = %v", err)
	}
	if len(steps) != 2 || steps[0].Order != 1 || steps[1].Order != 2 {
		t.Fatalf("steps = %+v", steps)
	}
	if n, _ := steps[0].Parameters.IntField("max_tokens"); n != 64 {
		t.Errorf("parameters.max_tokens = %d, want 64", n)
	}

	params, err := store.GetParametersByStep(ctx, steps[0].ID)
	if err != nil {
		t.Fatalf("GetParametersByStep() error = %v", err)
	}
	if len(params) != 1 || params[0].Name != "topic" || params[0].Value != "go" {
		t.Errorf("params = %+v", params)
	}

	if _, err := store.GetLastStepResult(ctx, req.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Errorf("GetLastStepResult() on empty log error = %v, want ErrNotFound", err)
	}

	if err := store.UpdateRequestStatus(ctx, protocol, domain.Processing()); err != nil {
		t.Fatalf("UpdateRequestStatus(processing) error = %v", err)
	}

	for _, s := range steps {
		result := domain.Object(map[string]domain.Value{"order": domain.Int(int64(s.Order))})
		if err := store.InsertStepResult(ctx, req.ID, s.ID, s.Order, result); err != nil {
			t.Fatalf("InsertStepResult(%d) error = %v", s.Order, err)
		}
	}

	err = store.InsertStepResult(ctx, req.ID, steps[0].ID, 1, domain.Null())
	if !errors.Is(err, repo.ErrAlreadyExists) {
		t.Errorf("duplicate InsertStepResult() error = %v, want ErrAlreadyExists", err)
	}

	last, err := store.GetLastStepResult(ctx, req.ID)
	if err != nil || last.Order != 2 {
		t.Fatalf("GetLastStepResult() = %+v, %v", last, err)
	}

	aggregate := domain.Object(map[string]domain.Value{"done": domain.Bool(true)})
	if err := store.UpdateRequestStatus(ctx, protocol, domain.Completed(aggregate)); err != nil {
		t.Fatalf("UpdateRequestStatus(completed) error = %v", err)
	}

	done, err := store.GetRequestByProtocol(ctx, protocol)
	if err != nil {
		t.Fatalf("GetRequestByProtocol() error = %v", err)
	}
	if done.Status != domain.RequestStatusCompleted || done.Result == nil || !done.Result.Equal(aggregate) {
		t.Errorf("completed request = %+v", done)
	}
	if done.StartedAt == nil || done.FinishedAt == nil {
		t.Error("StartedAt/FinishedAt should be set")
	}

	if err := store.ResetStepResults(ctx, req.ID); err != nil {
		t.Fatalf("ResetStepResults() error = %v", err)
	}
	if n, _ := store.Results.CountByRequest(ctx, req.ID); n != 0 {
		t.Errorf("results after reset = %d, want 0", n)
	}
}

func TestStore_DuplicateProtocol(t *testing.T) {
	store := repo.NewStore(testPool(t))
	ctx := context.Background()
	protocol := uuid.NewString()

	if _, err := store.CreateRequest(ctx, protocol); err != nil {
		t.Fatalf("CreateRequest() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Requests.Delete(context.Background(), protocol) })

	if _, err := store.CreateRequest(ctx, protocol); !errors.Is(err, repo.ErrAlreadyExists) {
		t.Errorf("second CreateRequest() error = %v, want ErrAlreadyExists", err)
	}
}

func TestStore_ScheduleDue(t *testing.T) {
	store := repo.NewStore(testPool(t))
	ctx := context.Background()
	protocol := uuid.NewString()

	now := time.Now().UTC().Truncate(time.Second)
	due := now.Add(-time.Minute)
	schedule := &domain.Schedule{
		CronExpr:  "*/5 * * * *",
		Timezone:  "UTC",
		Enabled:   true,
		NextDueAt: &due,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if _, err := store.CreateRequestTx(ctx, protocol, testSpec(t), schedule); err != nil {
		t.Fatalf("CreateRequestTx() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Requests.Delete(context.Background(), protocol) })

	list, err := store.Schedules.ListDue(ctx, now, 1000)
	if err != nil {
		t.Fatalf("ListDue() error = %v", err)
	}

	var found *domain.Schedule
	for i := range list {
		if list[i].ID == schedule.ID {
			found = &list[i]
		}
	}
	if found == nil {
		t.Fatalf("schedule %d not due", schedule.ID)
	}
	if found.Protocol != protocol {
		t.Errorf("Protocol = %q, want %q", found.Protocol, protocol)
	}

	found.Disable()
	if err := store.Schedules.Update(ctx, found); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	got, err := store.Schedules.GetByID(ctx, found.ID)
	if err != nil || got.Enabled {
		t.Errorf("GetByID() = %+v, %v; want disabled", got, err)
	}
}

func TestStore_RequestNotFound(t *testing.T) {
	store := repo.NewStore(testPool(t))

	if _, err := store.GetRequestByProtocol(context.Background(), uuid.NewString()); !errors.Is(err, repo.ErrNotFound) {
		t.Errorf("GetRequestByProtocol() error = %v, want ErrNotFound", err)
	}
	if err := store.UpdateRequestStatus(context.Background(), uuid.NewString(), domain.Processing()); !errors.Is(err, repo.ErrNotFound) {
		t.Errorf("UpdateRequestStatus() error = %v, want ErrNotFound", err)
	}
}

func TestStore_ClaimRequest(t *testing.T) {
	store := repo.NewStore(testPool(t))
	ctx := context.Background()

	protocol := uuid.NewString()
	if _, err := store.CreateRequest(ctx, protocol); err != nil {
		t.Fatalf("CreateRequest() error = %v", err)
	}

	fromCreated := domain.Claim{From: []domain.RequestStatus{domain.RequestStatusCreated}}
	claimed, err := store.ClaimRequest(ctx, protocol, fromCreated)
	if err != nil {
		t.Fatalf("ClaimRequest() error = %v", err)
	}
	if claimed.Status != domain.RequestStatusProcessing || claimed.StartedAt == nil {
		t.Errorf("claimed request = %+v", claimed)
	}

	if _, err := store.ClaimRequest(ctx, protocol, fromCreated); !errors.Is(err, repo.ErrInvalidState) {
		t.Errorf("second ClaimRequest() error = %v, want ErrInvalidState", err)
	}

	resume := domain.Claim{
		From:        []domain.RequestStatus{domain.RequestStatusProcessing, domain.RequestStatusFailed},
		StaleBefore: time.Now().Add(-time.Minute),
	}
	if _, err := store.ClaimRequest(ctx, protocol, resume); !errors.Is(err, repo.ErrInvalidState) {
		t.Errorf("ClaimRequest() of live request error = %v, want ErrInvalidState", err)
	}

	if err := store.TouchRequest(ctx, protocol); err != nil {
		t.Errorf("TouchRequest() error = %v", err)
	}

	resume.StaleBefore = time.Now().Add(time.Minute)
	if _, err := store.ClaimRequest(ctx, protocol, resume); err != nil {
		t.Errorf("ClaimRequest() of stale request error = %v", err)
	}

	if err := store.UpdateRequestStatus(ctx, protocol, domain.Failed("boom")); err != nil {
		t.Fatalf("UpdateRequestStatus(failed) error = %v", err)
	}
	if err := store.UpdateRequestStatus(ctx, protocol, domain.Completed(domain.Null())); !errors.Is(err, repo.ErrInvalidState) {
		t.Errorf("UpdateRequestStatus(failed -> completed) error = %v, want ErrInvalidState", err)
	}
	if err := store.TouchRequest(ctx, protocol); !errors.Is(err, repo.ErrInvalidState) {
		t.Errorf("TouchRequest() of failed request error = %v, want ErrInvalidState", err)
	}

	if _, err := store.ClaimRequest(ctx, uuid.NewString(), fromCreated); !errors.Is(err, repo.ErrNotFound) {
		t.Errorf("ClaimRequest() of missing request error = %v, want ErrNotFound", err)
	}
}

func TestNewPool_BadDSN(t *testing.T) {
	_, err := repo.NewPool(context.Background(), "postgres://%zz")
	if err == nil || !strings.Contains(err.Error(), "parse dsn") {
		t.Errorf("NewPool() error = %v, want parse error", err)
	}
}

func TestAdvisoryLock_Exclusive(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	key := time.Now().UnixNano()

	leader := repo.NewAdvisoryLock(pool, key)
	follower := repo.NewAdvisoryLock(pool, key)

	if ok, err := leader.TryLock(ctx); err != nil || !ok {
		t.Fatalf("leader.TryLock() = %v, %v; want true", ok, err)
	}
	if ok, err := follower.TryLock(ctx); err != nil || ok {
		t.Fatalf("follower.TryLock() = %v, %v; want false", ok, err)
	}

	// повторный захват тем же владельцем не блокирует
	if ok, _ := leader.TryLock(ctx); !ok {
		t.Error("leader.TryLock() second call = false")
	}

	if err := leader.Unlock(ctx); err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	if ok, err := follower.TryLock(ctx); err != nil || !ok {
		t.Errorf("follower.TryLock() after unlock = %v, %v; want true", ok, err)
	}
	follower.Unlock(ctx)
}

func TestCleaner_Truncate(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	store := repo.NewStore(pool)

	if _, err := store.CreateRequestTx(ctx, uuid.NewString(), testSpec(t), nil); err != nil {
		t.Fatalf("CreateRequestTx() error = %v", err)
	}

	if err := repo.NewCleaner(pool).Truncate(ctx); err != nil {
		t.Fatalf("Truncate() error = %v", err)
	}

	requests, err := store.ListRequests(ctx, repo.RequestFilter{Limit: 10})
	if err != nil {
		t.Fatalf("ListRequests() error = %v", err)
	}
	if len(requests) != 0 {
		t.Errorf("ListRequests() after Truncate = %d rows, want 0", len(requests))
	}
}
