// Package lifecycle issues, returns, and rejects missions for registered
// students.
package lifecycle

import (
	"context"
	"errors"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/chaosarchitect/missions/internal/platform/errors"
	"github.com/chaosarchitect/missions/internal/platform/timeouts"
	"github.com/chaosarchitect/missions/internal/services/missions/metrics"
	"github.com/chaosarchitect/missions/internal/services/missions/mission"
	"github.com/chaosarchitect/missions/internal/services/missions/storage"
)

// TracerName names the tracer lifecycle spans are recorded under.
const TracerName = "missions.lifecycle"

// Generator produces mission content. Each call is one attempt.
type Generator interface {
	Generate(ctx context.Context) (mission.Content, error)
}

// Issued is the result of a mission request.
type Issued struct {
	Record mission.Record
	// IsNew is true only for the call that generated and stored the record.
	IsNew bool
}

// Controller coordinates the student directory, the mission store, and the
// generator. It is safe for concurrent use.
type Controller struct {
	directory         storage.StudentDirectory
	store             storage.MissionStore
	generator         Generator
	metrics           *metrics.Metrics
	tracer            trace.Tracer
	clock             func() time.Time
	generationTimeout time.Duration
	storeTimeout      time.Duration
	locks             *keyedMutex
}

// Option configures a Controller.
type Option func(*Controller)

// WithMetrics records lifecycle outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithClock overrides the time source used for record timestamps.
func WithClock(clock func() time.Time) Option {
	return func(c *Controller) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithGenerationTimeout bounds each generator call. Zero disables the bound.
func WithGenerationTimeout(timeout time.Duration) Option {
	return func(c *Controller) { c.generationTimeout = timeout }
}

// WithStoreTimeout bounds each directory and store call. Zero disables the
// bound.
func WithStoreTimeout(timeout time.Duration) Option {
	return func(c *Controller) { c.storeTimeout = timeout }
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Controller) {
		if tracer != nil {
			c.tracer = tracer
		}
	}
}

// NewController builds a lifecycle controller.
func NewController(directory storage.StudentDirectory, store storage.MissionStore, generator Generator, opts ...Option) *Controller {
	c := &Controller{
		directory:         directory,
		store:             store,
		generator:         generator,
		tracer:            otel.Tracer(TracerName),
		clock:             time.Now,
		generationTimeout: timeouts.Generation,
		storeTimeout:      timeouts.StoreCall,
		locks:             newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RequestMission returns the identity's mission, generating and storing one on
// first contact. Rejected identities are refused before anything else is
// considered.
func (c *Controller) RequestMission(ctx context.Context, email string) (issued Issued, err error) {
	ctx, span := c.startSpan(ctx, "RequestMission")
	defer func() { c.finish(span, metrics.OperationRequest, err) }()

	if err := c.configured(); err != nil {
		return Issued{}, err
	}
	identity, err := c.authorize(ctx, email)
	if err != nil {
		return Issued{}, err
	}
	span.SetAttributes(attribute.String("missions.identity", identity))

	unlock, err := c.locks.Lock(ctx, identity)
	if err != nil {
		return Issued{}, apperrors.Wrap(apperrors.CodeUnknown, "wait for identity lock", err)
	}
	defer unlock()

	standing, record, err := c.lookup(ctx, identity)
	if err != nil {
		return Issued{}, err
	}
	switch standing {
	case mission.StandingRejected:
		return Issued{}, banned(identity)
	case mission.StandingActive:
		c.metrics.IncCachedReturn()
		span.SetAttributes(attribute.Bool("missions.is_new", false))
		return Issued{Record: record}, nil
	}

	issued, err = c.issue(ctx, identity)
	if err == nil {
		span.SetAttributes(attribute.Bool("missions.is_new", issued.IsNew))
	}
	return issued, err
}

// RejectMission moves the identity's active mission to the rejected state.
func (c *Controller) RejectMission(ctx context.Context, email string) (err error) {
	ctx, span := c.startSpan(ctx, "RejectMission")
	defer func() { c.finish(span, metrics.OperationReject, err) }()

	if err := c.configured(); err != nil {
		return err
	}
	identity, err := c.authorize(ctx, email)
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.String("missions.identity", identity))

	unlock, err := c.locks.Lock(ctx, identity)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeUnknown, "wait for identity lock", err)
	}
	defer unlock()

	standing, record, err := c.lookup(ctx, identity)
	if err != nil {
		return err
	}
	switch standing {
	case mission.StandingNone:
		return apperrors.WithMetadata(apperrors.CodeNotFound, "no mission to reject", map[string]string{"Email": identity})
	case mission.StandingRejected:
		return banned(identity)
	}

	rejected, err := record.Reject(c.clock())
	if err != nil {
		return banned(identity)
	}
	storeCtx, cancel := c.storeContext(ctx)
	defer cancel()
	if err := c.store.PutMission(storeCtx, rejected); err != nil {
		log.Printf("reject mission for %s: put mission: %v", identity, err)
		return apperrors.Wrap(apperrors.CodeStoreFailure, "store rejected mission", err)
	}
	c.metrics.IncRejected()
	log.Printf("mission rejected for %s", identity)
	return nil
}

// GetStanding reports the identity's lifecycle standing without writing.
// The record is only meaningful when the standing is not StandingNone.
func (c *Controller) GetStanding(ctx context.Context, email string) (standing mission.Standing, record mission.Record, err error) {
	ctx, span := c.startSpan(ctx, "GetStanding")
	defer func() { c.finish(span, metrics.OperationStatus, err) }()

	if err := c.configured(); err != nil {
		return mission.StandingNone, mission.Record{}, err
	}
	identity, err := c.authorize(ctx, email)
	if err != nil {
		return mission.StandingNone, mission.Record{}, err
	}
	return c.lookup(ctx, identity)
}

// issue generates and conditionally stores a mission. The caller holds the
// identity lock; the create-if-absent write covers other processes.
func (c *Controller) issue(ctx context.Context, identity string) (Issued, error) {
	content, err := c.generate(ctx)
	if err != nil {
		log.Printf("request mission for %s: generate: %v", identity, err)
		return Issued{}, apperrors.Wrap(apperrors.CodeGenerationFailure, "generate mission", err)
	}
	record, err := mission.NewRecord(identity, content, c.clock())
	if err != nil {
		log.Printf("request mission for %s: build record: %v", identity, err)
		return Issued{}, apperrors.Wrap(apperrors.CodeGenerationFailure, "build mission record", err)
	}

	storeCtx, cancel := c.storeContext(ctx)
	err = c.store.CreateMission(storeCtx, record)
	cancel()
	if errors.Is(err, storage.ErrAlreadyExists) {
		c.metrics.IncCreateConflict()
		return c.adoptExisting(ctx, identity)
	}
	if err != nil {
		log.Printf("request mission for %s: create mission: %v", identity, err)
		return Issued{}, apperrors.Wrap(apperrors.CodeStoreFailure, "store new mission", err)
	}
	c.metrics.IncIssued()
	log.Printf("mission issued for %s", identity)
	return Issued{Record: record, IsNew: true}, nil
}

// adoptExisting resolves a lost create race by returning whatever the winner
// stored.
func (c *Controller) adoptExisting(ctx context.Context, identity string) (Issued, error) {
	standing, record, err := c.lookup(ctx, identity)
	if err != nil {
		return Issued{}, err
	}
	switch standing {
	case mission.StandingActive:
		c.metrics.IncCachedReturn()
		return Issued{Record: record}, nil
	case mission.StandingRejected:
		return Issued{}, banned(identity)
	default:
		log.Printf("request mission for %s: create conflict but no record visible", identity)
		return Issued{}, apperrors.New(apperrors.CodeStoreFailure, "mission create conflicted with a missing record")
	}
}

func (c *Controller) generate(ctx context.Context) (mission.Content, error) {
	if c.generationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.generationTimeout)
		defer cancel()
	}
	ctx, span := c.tracer.Start(ctx, "Generate")
	defer span.End()

	start := time.Now()
	content, err := c.generator.Generate(ctx)
	c.metrics.ObserveGeneration(time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generate mission")
		return mission.Content{}, err
	}
	return content, nil
}

// authorize validates the identity and checks directory membership. The
// mission store is never consulted for identities that fail here.
func (c *Controller) authorize(ctx context.Context, email string) (string, error) {
	identity, err := mission.NormalizeEmail(email)
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeInvalidInput, "invalid email", err)
	}
	storeCtx, cancel := c.storeContext(ctx)
	defer cancel()
	ok, err := c.directory.ContainsStudent(storeCtx, identity)
	if err != nil {
		log.Printf("authorize %s: directory lookup: %v", identity, err)
		return "", apperrors.Wrap(apperrors.CodeStoreFailure, "student directory lookup", err)
	}
	if !ok {
		return "", apperrors.WithMetadata(apperrors.CodeUnauthorized, "email is not a registered student", map[string]string{"Email": identity})
	}
	return identity, nil
}

// lookup derives the identity's standing from a single store read.
func (c *Controller) lookup(ctx context.Context, identity string) (mission.Standing, mission.Record, error) {
	storeCtx, cancel := c.storeContext(ctx)
	defer cancel()
	record, err := c.store.GetMission(storeCtx, identity)
	if errors.Is(err, storage.ErrNotFound) {
		return mission.StandingNone, mission.Record{}, nil
	}
	if err != nil {
		log.Printf("lookup mission for %s: %v", identity, err)
		return mission.StandingNone, mission.Record{}, apperrors.Wrap(apperrors.CodeStoreFailure, "read mission", err)
	}
	return record.Standing(), record, nil
}

func (c *Controller) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.storeTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.storeTimeout)
}

func (c *Controller) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	tracer := otel.Tracer(TracerName)
	if c != nil && c.tracer != nil {
		tracer = c.tracer
	}
	return tracer.Start(ctx, name)
}

func (c *Controller) configured() error {
	if c == nil || c.directory == nil || c.store == nil || c.generator == nil {
		return apperrors.New(apperrors.CodeUnknown, "mission lifecycle is not configured")
	}
	return nil
}

func (c *Controller) finish(span trace.Span, operation string, err error) {
	defer span.End()
	if err == nil {
		if c != nil {
			c.metrics.ObserveCall(operation, metrics.OutcomeOK)
		}
		return
	}
	code := apperrors.CodeOf(err)
	span.SetAttributes(attribute.String("missions.error_code", string(code)))
	if code.HTTPStatus() >= 500 {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(code))
	}
	if c != nil {
		c.metrics.ObserveCall(operation, string(code))
	}
}

func banned(identity string) error {
	return apperrors.WithMetadata(apperrors.CodePermanentlyBanned, "mission was rejected", map[string]string{"Email": identity})
}
