package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/goleak"

	apperrors "github.com/chaosarchitect/missions/internal/platform/errors"
	"github.com/chaosarchitect/missions/internal/services/missions/mission"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var fixedNow = time.Date(2026, time.March, 3, 9, 30, 0, 0, time.UTC)

type harness struct {
	directory *fakeDirectory
	store     *fakeStore
	generator *fakeGenerator
	ctrl      *Controller
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		directory: newFakeDirectory("agent@example.com", "ghost@example.com", "race@example.com"),
		store:     newFakeStore(),
		generator: &fakeGenerator{content: testContent},
	}
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	h.ctrl = NewController(h.directory, h.store, h.generator, opts...)
	return h
}

func assertCode(t *testing.T, err error, want apperrors.Code) {
	t.Helper()
	if got := apperrors.CodeOf(err); got != want {
		t.Fatalf("error code = %q, want %q (err = %v)", got, want, err)
	}
}

func storedRecord(t *testing.T, email string, status mission.Status) mission.Record {
	t.Helper()
	record, err := mission.NewRecord(email, testContent, fixedNow.Add(-time.Hour))
	if err != nil {
		t.Fatalf("new record: %v", err)
	}
	record.Status = status
	return record
}

func TestRequestMissionIssuesOnFirstContact(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	issued, err := h.ctrl.RequestMission(context.Background(), "agent@example.com")
	if err != nil {
		t.Fatalf("request mission: %v", err)
	}
	if !issued.IsNew {
		t.Fatal("expected first request to be new")
	}
	if issued.Record.Status != mission.StatusActive {
		t.Fatalf("status = %q, want active", issued.Record.Status)
	}
	if issued.Record.Content != testContent {
		t.Fatalf("content = %+v, want %+v", issued.Record.Content, testContent)
	}
	if !issued.Record.Timestamp.Equal(fixedNow) {
		t.Fatalf("timestamp = %v, want %v", issued.Record.Timestamp, fixedNow)
	}
	stored, ok := h.store.get("agent@example.com")
	if !ok {
		t.Fatal("expected record to be persisted")
	}
	if stored != issued.Record {
		t.Fatalf("stored = %+v, want %+v", stored, issued.Record)
	}
}

func TestRequestMissionIsIdempotent(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	first, err := h.ctrl.RequestMission(context.Background(), "agent@example.com")
	if err != nil {
		t.Fatalf("first request: %v", err)
	}
	second, err := h.ctrl.RequestMission(context.Background(), "  AGENT@Example.com ")
	if err != nil {
		t.Fatalf("second request: %v", err)
	}
	if second.IsNew {
		t.Fatal("expected second request to return the stored mission")
	}
	if second.Record != first.Record {
		t.Fatalf("second = %+v, want %+v", second.Record, first.Record)
	}
	if got := h.generator.calls.Load(); got != 1 {
		t.Fatalf("generator calls = %d, want 1", got)
	}
}

func TestRequestMissionRefusesRejectedIdentity(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.store.put(storedRecord(t, "agent@example.com", mission.StatusRejected))

	_, err := h.ctrl.RequestMission(context.Background(), "agent@example.com")
	assertCode(t, err, apperrors.CodePermanentlyBanned)
	domainErr, ok := apperrors.As(err)
	if !ok || domainErr.Metadata["Email"] != "agent@example.com" {
		t.Fatalf("metadata = %v, want Email", domainErr)
	}
	if got := h.generator.calls.Load(); got != 0 {
		t.Fatalf("generator calls = %d, want 0", got)
	}
	gets, creates, puts := h.store.counts()
	if gets != 1 || creates != 0 || puts != 0 {
		t.Fatalf("store calls = %d/%d/%d, want 1/0/0", gets, creates, puts)
	}
}

func TestRequestMissionRejectsUnregisteredWithoutStoreAccess(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	_, err := h.ctrl.RequestMission(context.Background(), "stranger@example.com")
	assertCode(t, err, apperrors.CodeUnauthorized)
	gets, creates, puts := h.store.counts()
	if gets+creates+puts != 0 {
		t.Fatalf("store calls = %d/%d/%d, want none", gets, creates, puts)
	}
	if got := h.generator.calls.Load(); got != 0 {
		t.Fatalf("generator calls = %d, want 0", got)
	}
}

func TestRequestMissionRejectsInvalidEmailBeforeDirectory(t *testing.T) {
	t.Parallel()

	for _, email := range []string{"not-an-email", "", "Agent <agent@example.com>", "agent@localhost"} {
		h := newHarness(t)
		_, err := h.ctrl.RequestMission(context.Background(), email)
		assertCode(t, err, apperrors.CodeInvalidInput)
		if got := h.directory.callCount(); got != 0 {
			t.Fatalf("directory calls for %q = %d, want 0", email, got)
		}
	}
}

func TestRequestMissionDirectoryFailureIsNotUnauthorized(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.directory.err = errors.New("directory offline")
	_, err := h.ctrl.RequestMission(context.Background(), "agent@example.com")
	assertCode(t, err, apperrors.CodeStoreFailure)
}

func TestRequestMissionGeneratorFailurePersistsNothing(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		generator *fakeGenerator
	}{
		{name: "error", generator: &fakeGenerator{err: errors.New("provider down")}},
		{name: "incomplete content", generator: &fakeGenerator{content: mission.Content{Title: "Operation Half Done"}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			store := newFakeStore()
			ctrl := NewController(newFakeDirectory("agent@example.com"), store, tc.generator)
			_, err := ctrl.RequestMission(context.Background(), "agent@example.com")
			assertCode(t, err, apperrors.CodeGenerationFailure)
			if _, ok := store.get("agent@example.com"); ok {
				t.Fatal("expected no record after generation failure")
			}
			if _, creates, _ := store.counts(); creates != 0 {
				t.Fatalf("create calls = %d, want 0", creates)
			}
		})
	}
}

func TestRequestMissionGenerationTimeout(t *testing.T) {
	t.Parallel()

	h := newHarness(t, WithGenerationTimeout(20*time.Millisecond))
	h.generator.block = true
	_, err := h.ctrl.RequestMission(context.Background(), "agent@example.com")
	assertCode(t, err, apperrors.CodeGenerationFailure)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded cause", err)
	}
	if _, ok := h.store.get("agent@example.com"); ok {
		t.Fatal("expected no record after timeout")
	}
}

func TestRequestMissionStoreFailures(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.store.getErr = errors.New("disk on fire")
	_, err := h.ctrl.RequestMission(context.Background(), "agent@example.com")
	assertCode(t, err, apperrors.CodeStoreFailure)

	h = newHarness(t)
	h.store.createErr = errors.New("disk full")
	_, err = h.ctrl.RequestMission(context.Background(), "agent@example.com")
	assertCode(t, err, apperrors.CodeStoreFailure)
}

func TestRequestMissionAdoptsRecordFromLostCreateRace(t *testing.T) {
	t.Parallel()

	winner := storedRecord(t, "race@example.com", mission.StatusActive)
	winner.Title = "Operation Faster Process"

	h := newHarness(t)
	h.store.beforeCreate = func(s *fakeStore) { s.put(winner) }
	issued, err := h.ctrl.RequestMission(context.Background(), "race@example.com")
	if err != nil {
		t.Fatalf("request mission: %v", err)
	}
	if issued.IsNew {
		t.Fatal("expected lost race to report isNew=false")
	}
	if issued.Record.Title != winner.Title {
		t.Fatalf("title = %q, want winner %q", issued.Record.Title, winner.Title)
	}
}

func TestRequestMissionLostCreateRaceToRejectedRecord(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.store.beforeCreate = func(s *fakeStore) {
		s.put(storedRecord(t, "race@example.com", mission.StatusRejected))
	}
	_, err := h.ctrl.RequestMission(context.Background(), "race@example.com")
	assertCode(t, err, apperrors.CodePermanentlyBanned)
}

func TestRequestMissionConcurrentCallsIssueExactlyOnce(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	const callers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		newOnes int
		titles  = map[string]int{}
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			issued, err := h.ctrl.RequestMission(context.Background(), "race@example.com")
			if err != nil {
				t.Errorf("request mission: %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if issued.IsNew {
				newOnes++
			}
			titles[issued.Record.Title]++
		}()
	}
	wg.Wait()

	if newOnes != 1 {
		t.Fatalf("new issuances = %d, want 1", newOnes)
	}
	if got := h.generator.calls.Load(); got != 1 {
		t.Fatalf("generator calls = %d, want 1", got)
	}
	if len(titles) != 1 {
		t.Fatalf("distinct missions = %v, want one", titles)
	}
	if got := h.ctrl.locks.size(); got != 0 {
		t.Fatalf("lock entries = %d, want 0", got)
	}
}

func TestRejectMission(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	active := storedRecord(t, "agent@example.com", mission.StatusActive)
	h.store.put(active)

	if err := h.ctrl.RejectMission(context.Background(), "Agent@Example.com"); err != nil {
		t.Fatalf("reject mission: %v", err)
	}
	got, _ := h.store.get("agent@example.com")
	if got.Status != mission.StatusRejected {
		t.Fatalf("status = %q, want rejected", got.Status)
	}
	if got.Content != active.Content {
		t.Fatalf("content = %+v, want unchanged", got.Content)
	}
	if !got.Timestamp.Equal(fixedNow) {
		t.Fatalf("timestamp = %v, want %v", got.Timestamp, fixedNow)
	}
	if !got.CreatedAt.Equal(active.CreatedAt) {
		t.Fatalf("created_at = %v, want %v", got.CreatedAt, active.CreatedAt)
	}

	err := h.ctrl.RejectMission(context.Background(), "agent@example.com")
	assertCode(t, err, apperrors.CodePermanentlyBanned)

	_, err = h.ctrl.RequestMission(context.Background(), "agent@example.com")
	assertCode(t, err, apperrors.CodePermanentlyBanned)
	if got := h.generator.calls.Load(); got != 0 {
		t.Fatalf("generator calls = %d, want 0", got)
	}
}

func TestRejectMissionErrors(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	assertCode(t, h.ctrl.RejectMission(context.Background(), "ghost@example.com"), apperrors.CodeNotFound)
	assertCode(t, h.ctrl.RejectMission(context.Background(), "stranger@example.com"), apperrors.CodeUnauthorized)
	assertCode(t, h.ctrl.RejectMission(context.Background(), "not-an-email"), apperrors.CodeInvalidInput)
	if _, _, puts := h.store.counts(); puts != 0 {
		t.Fatalf("put calls = %d, want 0", puts)
	}

	h.store.put(storedRecord(t, "agent@example.com", mission.StatusActive))
	h.store.putErr = errors.New("read only")
	assertCode(t, h.ctrl.RejectMission(context.Background(), "agent@example.com"), apperrors.CodeStoreFailure)
}

func TestGetStanding(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.store.put(storedRecord(t, "agent@example.com", mission.StatusActive))
	h.store.put(storedRecord(t, "race@example.com", mission.StatusRejected))

	tests := []struct {
		email string
		want  mission.Standing
	}{
		{email: "ghost@example.com", want: mission.StandingNone},
		{email: "agent@example.com", want: mission.StandingActive},
		{email: "race@example.com", want: mission.StandingRejected},
	}
	for _, tc := range tests {
		got, _, err := h.ctrl.GetStanding(context.Background(), tc.email)
		if err != nil {
			t.Fatalf("standing %s: %v", tc.email, err)
		}
		if got != tc.want {
			t.Fatalf("standing %s = %s, want %s", tc.email, got, tc.want)
		}
	}
	if _, creates, puts := h.store.counts(); creates+puts != 0 {
		t.Fatal("standing lookups must not write")
	}

	_, _, err := h.ctrl.GetStanding(context.Background(), "stranger@example.com")
	assertCode(t, err, apperrors.CodeUnauthorized)
}

func TestUnconfiguredController(t *testing.T) {
	t.Parallel()

	var ctrl *Controller
	_, err := ctrl.RequestMission(context.Background(), "agent@example.com")
	assertCode(t, err, apperrors.CodeUnknown)

	ctrl = NewController(nil, nil, nil)
	assertCode(t, ctrl.RejectMission(context.Background(), "agent@example.com"), apperrors.CodeUnknown)
}

func TestControllerRecordsSpans(t *testing.T) {
	t.Parallel()

	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	h := newHarness(t, WithTracer(provider.Tracer(TracerName)))
	if _, err := h.ctrl.RequestMission(context.Background(), "agent@example.com"); err != nil {
		t.Fatalf("request mission: %v", err)
	}
	_ = h.ctrl.RejectMission(context.Background(), "ghost@example.com")

	spans := recorder.Ended()
	names := make([]string, 0, len(spans))
	for _, span := range spans {
		names = append(names, span.Name())
	}
	want := []string{"Generate", "RequestMission", "RejectMission"}
	if len(names) != len(want) {
		t.Fatalf("spans = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("spans = %v, want %v", names, want)
		}
	}
	rejectAttrs := spans[2].Attributes()
	found := false
	for _, attr := range rejectAttrs {
		if attr.Key == attribute.Key("missions.error_code") && attr.Value.AsString() == string(apperrors.CodeNotFound) {
			found = true
		}
	}
	if !found {
		t.Fatalf("reject span attributes = %v, want error code", rejectAttrs)
	}
}
