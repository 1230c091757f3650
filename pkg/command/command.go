// Package command implements the server side of the execute-region-function
// request: decode, validate, resolve targets, run, and answer the client
// with exactly one terminal response.
package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dukex/gridfn/pkg/models"
	"github.com/dukex/gridfn/pkg/otelhelper"
	"github.com/dukex/gridfn/pkg/protocol"
	"github.com/dukex/gridfn/pkg/registry"
	"github.com/dukex/gridfn/pkg/wire"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Session is the per-connection state a call reads and temporarily
// overrides.
type Session interface {
	ID() string
	Principal() string
	ClientVersion() wire.Version
	Writer() io.Writer
	ReadTimeout() int32
	SetReadTimeout(millis int32)
	SetLocalOnly(localOnly bool)
	MarkResponded()
}

// Observer is told when a call is dispatched and when it finishes.
type Observer interface {
	ExecutionStarted(ctx context.Context, record models.ExecutionRecord)
	ExecutionFinished(ctx context.Context, record models.ExecutionRecord)
}

type Config struct {
	Codec                *wire.Codec
	Functions            FunctionLookup
	Regions              protocol.RegionLookup
	Engine               protocol.Engine
	Authorizer           protocol.Authorizer
	Observer             Observer
	Tracer               trace.Tracer
	Logger               *slog.Logger
	DefaultTimeoutMillis int32
	Clock                func() time.Time
	NewID                func() string
}

// Command holds no per-call state; one instance serves every connection.
type Command struct {
	codec    *wire.Codec
	decoder  *Decoder
	resolver *Resolver
	regions  protocol.RegionLookup
	engine   protocol.Engine
	authz    protocol.Authorizer
	observer Observer
	tracer   trace.Tracer
	logger   *slog.Logger
	clock    func() time.Time
	newID    func() string
}

func New(cfg Config) *Command {
	c := &Command{
		codec:    cfg.Codec,
		decoder:  NewDecoder(cfg.Codec, cfg.DefaultTimeoutMillis),
		resolver: NewResolver(cfg.Functions),
		regions:  cfg.Regions,
		engine:   cfg.Engine,
		authz:    cfg.Authorizer,
		observer: cfg.Observer,
		tracer:   cfg.Tracer,
		logger:   cfg.Logger,
		clock:    cfg.Clock,
		newID:    cfg.NewID,
	}

	if c.authz == nil {
		c.authz = protocol.AllowAll{}
	}

	if c.tracer == nil {
		c.tracer = noop.NewTracerProvider().Tracer("")
	}

	if c.logger == nil {
		c.logger = slog.Default()
	}

	if c.clock == nil {
		c.clock = time.Now
	}

	if c.newID == nil {
		c.newID = uuid.NewString
	}

	c.logger = c.logger.With("module", "execute_region_function")

	return c
}

// call is the state of one request. Nothing in it outlives Execute.
type call struct {
	id      string
	sess    Session
	logger  *slog.Logger
	sender  *ResultSender
	req     *models.ExecutionRequest
	fn      models.Function
	ec      *models.ExecutionContext
	name    string
	started time.Time
}

func (c *call) functionName() string {
	switch {
	case c.fn != nil:
		return c.fn.Descriptor().ID
	case c.req != nil:
		return c.req.Function.String()
	default:
		return c.name
	}
}

func (c *call) isHA() bool {
	return c.fn != nil && c.fn.Descriptor().HA
}

// overrides is the connection state a call changes. release puts it back
// and is the only cleanup path.
type overrides struct {
	sess        Session
	readTimeout int32
}

func acquireOverrides(sess Session) *overrides {
	return &overrides{sess: sess, readTimeout: sess.ReadTimeout()}
}

func (o *overrides) setReadTimeout(millis int32) {
	o.sess.SetReadTimeout(millis)
}

func (o *overrides) setLocalOnly() {
	o.sess.SetLocalOnly(true)
}

func (o *overrides) release() {
	o.sess.SetReadTimeout(o.readTimeout)
	o.sess.SetLocalOnly(false)
}

// Execute handles one request. Every failure is answered here; nothing
// propagates to the connection layer, which only tears down on transport
// failures it sees itself.
func (c *Command) Execute(ctx context.Context, msg *wire.Message, sess Session) {
	ov := acquireOverrides(sess)
	defer ov.release()

	cl := &call{
		id:      c.newID(),
		sess:    sess,
		logger:  c.logger.With("connection", sess.ID()),
		started: c.clock(),
	}
	cl.sender = NewResultSender(sess.Writer(), c.codec, msg.TransactionID, sess.MarkResponded)

	ctx, span := otelhelper.StartSpan(ctx, c.tracer, "ExecuteRegionFunction",
		attribute.String(otelhelper.ConnectionIDKey, sess.ID()),
		attribute.String(otelhelper.ExecutionIDKey, cl.id),
	)
	defer span.End()

	err := c.run(ctx, cl, msg, ov)

	var kind models.FailureKind
	if err != nil {
		kind = c.respond(cl, err)
		otelhelper.SetFailure(span, err, kind.String(), attribute.String(otelhelper.FunctionIDKey, cl.functionName()))
	}

	span.SetAttributes(attribute.String(otelhelper.FunctionIDKey, cl.functionName()))
	if cl.req != nil {
		span.SetAttributes(
			attribute.String(otelhelper.RegionNameKey, cl.req.RegionName),
			attribute.Bool(otelhelper.HasResultKey, cl.req.HasResult),
			attribute.Bool(otelhelper.ReExecuteKey, cl.req.IsReExecute),
		)
	}

	if c.observer != nil {
		c.observer.ExecutionFinished(ctx, c.record(cl, kind, err))
	}
}

func (c *Command) run(ctx context.Context, cl *call, msg *wire.Message, ov *overrides) error {
	req, err := c.decoder.Decode(msg, cl.sess.ClientVersion())
	if err != nil {
		var decodeErr *DecodeError
		if errors.As(err, &decodeErr) {
			cl.sender.SetHasResult(decodeErr.HasResult)
			cl.name = decodeErr.Function
		}

		return err
	}

	cl.req = req
	cl.sender.SetHasResult(req.HasResult)
	ov.setReadTimeout(req.TimeoutMillis)

	switch {
	case req.RegionName == "":
		return &FieldError{Field: "region"}
	case req.Function.IsZero():
		return &FieldError{Field: "function"}
	}

	region, err := c.regions.Region(ctx, req.RegionName)
	if err != nil {
		return err
	}

	fn, err := c.resolver.Resolve(req)
	if err != nil {
		return err
	}

	cl.fn = fn

	err = c.authorize(ctx, cl, region, fn)
	if err != nil {
		return err
	}

	err = registry.ValidateArgs(fn, req.Args)
	if err != nil {
		return err
	}

	cl.ec = BuildExecutionContext(cl.id, region, fn, req)
	if cl.ec.LocalOnly {
		ov.setLocalOnly()
	}

	cl.logger.Debug("Executing function",
		"function", fn.Descriptor().ID,
		"region", region.FullPath(),
		"topology", cl.ec.Topology.String(),
		"scope", cl.ec.Scope.String(),
		"functionState", req.State.String(),
		"reExecute", req.IsReExecute,
		"hasResult", req.HasResult,
	)

	if c.observer != nil {
		rec := c.record(cl, 0, nil)
		rec.Status = models.ExecutionStatusRunning
		rec.CompletedAt = time.Time{}
		c.observer.ExecutionStarted(ctx, rec)
	}

	if !req.HasResult {
		err = c.dispatch(ctx, region, fn, cl.ec, discardResults{})
		if err != nil {
			return err
		}

		_, err = cl.sender.SendReply()

		return err
	}

	err = c.dispatch(ctx, region, fn, cl.ec, cl.sender)
	if err != nil {
		return err
	}

	// no-op when the engine already sent the last result
	_, err = cl.sender.SendLastSuccess()

	return err
}

// dispatch turns a panic in user code into an ordinary failure.
func (c *Command) dispatch(ctx context.Context, region protocol.Region, fn models.Function, ec *models.ExecutionContext, results models.ResultSender) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("function %s panicked: %v", fn.Descriptor().ID, r)
		}
	}()

	return c.engine.Execute(ctx, region, fn, ec, results)
}

func (c *Command) authorize(ctx context.Context, cl *call, region protocol.Region, fn models.Function) error {
	permissions := protocol.DefaultPermissions(cl.req.RegionName)
	if p, ok := fn.(models.PermissionProvider); ok {
		permissions = p.RequiredPermissions(cl.req.RegionName)
	}

	principal := cl.sess.Principal()

	for _, permission := range permissions {
		err := c.authz.Authorize(ctx, principal, permission)
		if err != nil {
			return fmt.Errorf("%s is not authorized for %s: %w", principal, permission, err)
		}
	}

	return c.authz.AuthorizeExecute(ctx, protocol.AuthorizeRequest{
		Principal:        principal,
		FunctionID:       fn.Descriptor().ID,
		RegionPath:       region.FullPath(),
		Filter:           cl.req.Filter,
		Args:             cl.req.Args,
		OptimizeForWrite: fn.Descriptor().OptimizeForWrite,
	})
}

// respond translates err into the call's single response.
func (c *Command) respond(cl *call, err error) models.FailureKind {
	fnName := cl.functionName()

	if message, ok := validationMessage(cl, err); ok {
		cl.logger.Warn(message, "function", fnName)
		c.deliver(cl, func() (bool, error) { return cl.sender.SendError(message) })

		return models.FailureGeneric
	}

	kind := Classify(err, cl.isHA())
	env := models.NewFailureEnvelope(kind, err)

	if kind == models.FailureTransport {
		c.lastAttempt(cl, err)

		return kind
	}

	if cl.sender.Terminated() {
		cl.logger.Debug("Dropping failure after the last result was sent", "function", fnName, "failure", kind.String(), "error", err)

		return kind
	}

	switch kind {
	case models.FailureInternalRetryable:
		cl.logger.Debug("Exception on server while executing function", "function", fnName, "error", err)
	case models.FailureHARetryable:
		cl.logger.Warn("Exception on server while executing function", "function", fnName+" :"+err.Error())
	case models.FailureUserVisible:
		cl.logger.Warn("Exception on server while executing function", "function", fnName, "error", err, "trace", env.StackTrace)
	default:
		cl.logger.Warn("Exception on server while executing function", "function", fnName, "error", err, "trace", env.StackTrace)
	}

	c.deliver(cl, func() (bool, error) { return cl.sender.SendException(env) })

	return kind
}

// validationMessage recognizes failures found before dispatch, which are
// answered with an error message rather than an exception.
func validationMessage(cl *call, err error) (string, bool) {
	var (
		fieldErr *FieldError
		fnErr    *FunctionError
	)

	switch {
	case errors.As(err, &fieldErr):
		return fieldErr.Error(), true
	case errors.As(err, &fnErr):
		return fnErr.Error(), true
	case errors.Is(err, ErrRegionNotFound):
		return fmt.Sprintf("The region named %s was not found during execute Function request.", cl.req.RegionName), true
	default:
		return "", false
	}
}

func (c *Command) deliver(cl *call, send func() (bool, error)) {
	_, err := send()
	if err != nil {
		c.lastAttempt(cl, err)
	}
}

// lastAttempt makes the single best-effort report after a failed write.
func (c *Command) lastAttempt(cl *call, cause error) {
	cl.logger.Warn("Server could not send the reply", "function", cl.functionName(), "error", cause)

	env := models.NewFailureEnvelope(models.FailureTransport, fmt.Errorf("server could not send the reply: %w", cause))

	_, err := cl.sender.SendTransportFailure(env)
	if err != nil {
		cl.logger.Error("Failed to report send failure to client", "function", cl.functionName(), "error", err)
	}
}

func (c *Command) record(cl *call, kind models.FailureKind, err error) models.ExecutionRecord {
	rec := models.ExecutionRecord{
		ID:           cl.id,
		ConnectionID: cl.sess.ID(),
		FunctionID:   cl.functionName(),
		Status:       models.ExecutionStatusCompleted,
		Chunks:       cl.sender.Chunks(),
		StartedAt:    cl.started,
		CompletedAt:  c.clock(),
	}

	if cl.req != nil {
		rec.RegionName = cl.req.RegionName
		rec.HasResult = cl.req.HasResult
		rec.IsReExecute = cl.req.IsReExecute
		rec.Filter = cl.req.Filter.Strings()
		rec.ExcludedMembers = cl.req.ExcludedMembers.Strings()
	}

	if cl.ec != nil {
		rec.Topology = cl.ec.Topology.String()
	}

	if err != nil {
		rec.Status = models.ExecutionStatusFailed
		rec.FailureKind = kind.String()
		rec.Error = err.Error()
	}

	return rec
}
