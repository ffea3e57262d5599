package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/garyjia/p2p-approval/internal/application/dispatcher"
	"github.com/garyjia/p2p-approval/internal/application/port"
	"github.com/garyjia/p2p-approval/internal/application/service"
	"github.com/garyjia/p2p-approval/internal/domain/entity"
	"github.com/garyjia/p2p-approval/internal/domain/event"
	domainwf "github.com/garyjia/p2p-approval/internal/domain/workflow"
	"github.com/garyjia/p2p-approval/pkg/apperr"
	"github.com/garyjia/p2p-approval/pkg/utils"
)

const (
	actionCreate   = "CREATE"
	actionUpdate   = "UPDATE"
	actionProforma = "ATTACH_PROFORMA"

	defaultListLimit = 50
	maxListLimit     = 200
)

// Dependencies are the collaborators the engine cannot run without
type Dependencies struct {
	Requests  port.RequestRepository
	Orders    port.OrderRepository
	Receipts  port.ReceiptRepository
	History   port.HistoryRepository
	TxManager port.TransactionManager
	Locker    port.Locker
	Roles     port.RoleProvider
	Blobs     port.BlobStore
	Ledger    service.LedgerService
	Generator service.OrderGenerator
	Validator service.ReceiptValidator
}

// engineImpl is the concrete implementation of WorkflowEngine
type engineImpl struct {
	deps        Dependencies
	dispatcher  dispatcher.Dispatcher
	extractor   port.ReceiptExtractor
	metrics     port.MetricsRecorder
	logger      service.Logger
	validate    *validator.Validate
	lockTimeout time.Duration
	now         func() time.Time
}

// EngineOption configures the workflow engine
type EngineOption func(*engineImpl)

// WithDispatcher sets the event dispatcher for emitting events after commit
func WithDispatcher(d dispatcher.Dispatcher) EngineOption {
	return func(e *engineImpl) {
		e.dispatcher = d
	}
}

// WithExtractor enables reading receipt items from the uploaded document
func WithExtractor(x port.ReceiptExtractor) EngineOption {
	return func(e *engineImpl) {
		e.extractor = x
	}
}

// WithMetrics sets the metrics recorder
func WithMetrics(m port.MetricsRecorder) EngineOption {
	return func(e *engineImpl) {
		e.metrics = m
	}
}

// WithLogger sets the engine logger
func WithLogger(l service.Logger) EngineOption {
	return func(e *engineImpl) {
		e.logger = l
	}
}

// WithLockTimeout bounds how long a mutation waits for the request lock
func WithLockTimeout(d time.Duration) EngineOption {
	return func(e *engineImpl) {
		e.lockTimeout = d
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) EngineOption {
	return func(e *engineImpl) {
		e.now = now
	}
}

// NewEngine creates a new workflow engine
func NewEngine(deps Dependencies, opts ...EngineOption) WorkflowEngine {
	e := &engineImpl{
		deps:     deps,
		metrics:  nopMetrics{},
		logger:   nopLogger{},
		validate: utils.NewValidator(),
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// CreateRequest stores a new pending request owned by actor
func (e *engineImpl) CreateRequest(ctx context.Context, actor string, in CreateInput) (*entity.PurchaseRequest, error) {
	role, err := e.resolveRole(ctx, actor)
	if err != nil {
		return nil, err
	}
	if role != domainwf.RoleStaff {
		return nil, apperr.Forbidden("role %s cannot create purchase requests", role)
	}

	in.Title = utils.SanitizeString(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.Items = sanitizeItems(in.Items)
	if err := e.validateInput(in); err != nil {
		return nil, err
	}

	var proforma string
	if in.Proforma != nil && len(in.Proforma.Content) > 0 {
		proforma, err = e.deps.Blobs.Store(ctx, in.Proforma.Content, in.Proforma.ContentType)
		if err != nil {
			return nil, fmt.Errorf("store proforma: %w", err)
		}
	}

	now := e.now()
	req := &entity.PurchaseRequest{
		Title:       in.Title,
		Description: in.Description,
		Items:       in.Items,
		Amount:      entity.ComputeAmount(in.Items),
		Status:      entity.RequestStatusPending,
		State:       domainwf.StatePending.String(),
		CreatedBy:   actor,
		Proforma:    proforma,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = e.deps.TxManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := e.deps.Requests.Create(txCtx, req); err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		return e.deps.History.Create(txCtx, &entity.TransitionRecord{
			RequestID: req.ID,
			Actor:     actor,
			Action:    actionCreate,
			NewState:  req.State,
			CreatedAt: now,
		})
	})
	e.metrics.ObserveTransition(actionCreate, outcome(err))
	if err != nil {
		e.logger.Error("Failed to create request", "error", err, "actor", actor)
		return nil, err
	}

	e.logger.Info("Purchase request created", "request_id", req.ID, "actor", actor, "amount", req.Amount.String())
	e.dispatch(ctx, event.NewEvent(event.TypeRequestCreated, req.ID, actor, map[string]interface{}{
		"amount": req.Amount.String(),
	}))
	return req, nil
}

// UpdateRequest replaces title, description and items of a request no
// manager has decided on yet
func (e *engineImpl) UpdateRequest(ctx context.Context, actor string, id int64, in UpdateInput) (*entity.PurchaseRequest, error) {
	role, err := e.resolveRole(ctx, actor)
	if err != nil {
		return nil, err
	}

	in.Title = utils.SanitizeString(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.Items = sanitizeItems(in.Items)
	if err := e.validateInput(in); err != nil {
		return nil, err
	}

	var updated *entity.PurchaseRequest
	err = e.mutate(ctx, id, actionUpdate, func(txCtx context.Context, req *entity.PurchaseRequest) ([]*event.Event, error) {
		if role != domainwf.RoleStaff || !req.IsOwnedBy(actor) {
			return nil, apperr.Forbidden("only the requester may update request %d", id)
		}
		if !req.IsEditable() {
			return nil, apperr.InvalidState(req.State, "request %d is %s and can no longer be edited", id, req.State)
		}

		req.Title = in.Title
		req.Description = in.Description
		req.Items = in.Items
		req.Amount = entity.ComputeAmount(in.Items)
		req.UpdatedAt = e.now()

		if err := e.deps.Requests.Update(txCtx, req); err != nil {
			return nil, err
		}
		if err := e.recordHistory(txCtx, req, actor, actionUpdate, req.State, ""); err != nil {
			return nil, err
		}

		updated = req
		return []*event.Event{event.NewEvent(event.TypeRequestUpdated, id, actor, map[string]interface{}{
			"amount": req.Amount.String(),
		})}, nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// AttachProforma stores a proforma invoice for a request no manager has
// decided on yet
func (e *engineImpl) AttachProforma(ctx context.Context, actor string, id int64, doc Document) (*entity.PurchaseRequest, error) {
	role, err := e.resolveRole(ctx, actor)
	if err != nil {
		return nil, err
	}
	if len(doc.Content) == 0 {
		return nil, apperr.ValidationFailed(map[string]string{"file": "is required"})
	}

	ref, err := e.deps.Blobs.Store(ctx, doc.Content, doc.ContentType)
	if err != nil {
		return nil, fmt.Errorf("store proforma: %w", err)
	}

	var updated *entity.PurchaseRequest
	err = e.mutate(ctx, id, actionProforma, func(txCtx context.Context, req *entity.PurchaseRequest) ([]*event.Event, error) {
		if role != domainwf.RoleStaff || !req.IsOwnedBy(actor) {
			return nil, apperr.Forbidden("only the requester may attach a proforma to request %d", id)
		}
		if !req.IsEditable() {
			return nil, apperr.InvalidState(req.State, "request %d is %s and can no longer be edited", id, req.State)
		}

		if err := e.deps.Requests.SetProforma(txCtx, id, ref); err != nil {
			return nil, err
		}
		if err := e.recordHistory(txCtx, req, actor, actionProforma, req.State, ""); err != nil {
			return nil, err
		}

		req.Proforma = ref
		updated = req
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Decide records a manager decision and advances the request
func (e *engineImpl) Decide(ctx context.Context, actor string, id int64, approved bool, comments string) (*entity.PurchaseRequest, error) {
	role, err := e.resolveRole(ctx, actor)
	if err != nil {
		return nil, err
	}

	trigger := domainwf.TriggerReject
	if approved {
		trigger = domainwf.TriggerApprove
	}
	comments = strings.TrimSpace(comments)

	var decided *entity.PurchaseRequest
	err = e.mutate(ctx, id, trigger.String(), func(txCtx context.Context, req *entity.PurchaseRequest) ([]*event.Event, error) {
		machine, facts, err := machineFor(req)
		if err != nil {
			return nil, err
		}

		level, ok := role.DecisionLevel()
		if !ok || !machine.Grants(role, trigger) {
			return nil, apperr.Forbidden("role %s cannot decide on purchase requests", role)
		}

		snapshot, err := e.deps.Ledger.Snapshot(txCtx, id)
		if err != nil {
			return nil, err
		}
		if snapshot.Decided(level) {
			return nil, apperr.DuplicateDecision("level %d already decided for request %d", level, id)
		}
		facts.Level1Approved = snapshot.Level1Approved
		facts.Level2Approved = snapshot.Level2Approved

		if err := machine.Fire(txCtx, role, trigger); err != nil {
			return nil, fireError(err, req, role, trigger)
		}

		if _, err := e.deps.Ledger.Record(txCtx, id, level, actor, approved, comments); err != nil {
			return nil, err
		}
		if err := e.applyState(txCtx, req, actor, trigger.String(), machine.State(), comments); err != nil {
			return nil, err
		}

		decided = req
		return []*event.Event{event.NewEvent(event.TypeRequestDecided, id, actor, map[string]interface{}{
			"level":    level,
			"approved": approved,
			"state":    req.State,
		})}, nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Decision applied", "request_id", id, "actor", actor, "approved", approved, "state", decided.State)
	return decided, nil
}

// FinanceApprove approves the request and generates its purchase order
func (e *engineImpl) FinanceApprove(ctx context.Context, actor string, id int64, comments string) (*entity.PurchaseRequest, error) {
	role, err := e.resolveRole(ctx, actor)
	if err != nil {
		return nil, err
	}

	trigger := domainwf.TriggerFinanceApprove
	comments = strings.TrimSpace(comments)

	var approvedReq *entity.PurchaseRequest
	err = e.mutate(ctx, id, trigger.String(), func(txCtx context.Context, req *entity.PurchaseRequest) ([]*event.Event, error) {
		machine, facts, err := machineFor(req)
		if err != nil {
			return nil, err
		}
		if !machine.Grants(role, trigger) {
			return nil, apperr.Forbidden("role %s cannot give finance approval", role)
		}

		snapshot, err := e.deps.Ledger.Snapshot(txCtx, id)
		if err != nil {
			return nil, err
		}
		facts.Level1Approved = snapshot.Level1Approved
		facts.Level2Approved = snapshot.Level2Approved

		if err := machine.Fire(txCtx, role, trigger); err != nil {
			return nil, fireError(err, req, role, trigger)
		}

		order, created, err := e.deps.Generator.Generate(txCtx, req)
		if err != nil {
			return nil, fmt.Errorf("generate purchase order: %w", err)
		}
		if err := e.deps.Requests.AttachPurchaseOrder(txCtx, id, order.ID); err != nil {
			return nil, err
		}
		req.PurchaseOrderID = &order.ID

		if err := e.applyState(txCtx, req, actor, trigger.String(), machine.State(), comments); err != nil {
			return nil, err
		}

		approvedReq = req
		financeEvt := event.NewEvent(event.TypeRequestFinanceApproved, id, actor, map[string]interface{}{
			"order_id":  order.ID,
			"po_number": order.PONumber,
		})
		events := []*event.Event{financeEvt}
		if created {
			events = append(events, event.NewEventWithCorrelation(event.TypeOrderGenerated, id, actor, map[string]interface{}{
				"order_id":  order.ID,
				"po_number": order.PONumber,
			}, financeEvt.CorrelationID))
		}
		return events, nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Finance approval applied", "request_id", id, "actor", actor, "order_id", *approvedReq.PurchaseOrderID)
	return approvedReq, nil
}

// SubmitReceipt validates and stores a receipt. Extraction and blob storage
// run before the request lock is taken.
func (e *engineImpl) SubmitReceipt(ctx context.Context, actor string, id int64, in ReceiptInput) (*entity.ValidationResult, error) {
	role, err := e.resolveRole(ctx, actor)
	if err != nil {
		return nil, err
	}

	trigger := domainwf.TriggerSubmitReceipt

	// cheap ownership check so unauthorised callers never reach the extractor
	current, err := e.deps.Requests.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get request %d: %w", id, err)
	}
	if current == nil {
		return nil, apperr.NotFound("purchase request %d not found", id)
	}
	if err := checkReceiptActor(current, role, actor); err != nil {
		return nil, err
	}
	if machine, _, _ := machineFor(current); !machine.CanFire(role, trigger) {
		return nil, apperr.IllegalTransition(current.State, "%s is not allowed for request %d", trigger, id)
	}

	if len(in.Document.Content) == 0 {
		return nil, apperr.ValidationFailed(map[string]string{"file": "is required"})
	}
	in.Seller = utils.SanitizeString(in.Seller)
	in.Items = sanitizeItems(in.Items)

	if len(in.Items) == 0 {
		if e.extractor == nil {
			return nil, apperr.ValidationFailed(map[string]string{"items": "is required"})
		}
		extracted, err := e.extractor.Extract(ctx, in.Document.Content, in.Document.ContentType)
		if err != nil {
			return nil, fmt.Errorf("extract receipt: %w", err)
		}
		in.Items = sanitizeItems(extracted.Items)
		if in.Seller == "" {
			in.Seller = utils.SanitizeString(extracted.Seller)
		}
		if len(in.Items) == 0 {
			return nil, apperr.ValidationFailed(map[string]string{"items": "no line items could be read from the document"})
		}
	}
	if err := e.validateInput(in); err != nil {
		return nil, err
	}

	ref, err := e.deps.Blobs.Store(ctx, in.Document.Content, in.Document.ContentType)
	if err != nil {
		return nil, fmt.Errorf("store receipt: %w", err)
	}

	var result entity.ValidationResult
	err = e.mutate(ctx, id, trigger.String(), func(txCtx context.Context, req *entity.PurchaseRequest) ([]*event.Event, error) {
		machine, facts, err := machineFor(req)
		if err != nil {
			return nil, err
		}
		if err := checkReceiptActor(req, role, actor); err != nil {
			return nil, err
		}

		order, err := e.deps.Orders.GetByRequestID(txCtx, id)
		if err != nil {
			return nil, fmt.Errorf("get purchase order: %w", err)
		}
		if order != nil {
			result = e.deps.Validator.Validate(order, in.Seller, in.Items)
			facts.ReceiptValidated = result.Validated
		}

		if err := machine.Fire(txCtx, role, trigger); err != nil {
			return nil, fireError(err, req, role, trigger)
		}
		if order == nil {
			return nil, apperr.InvalidState(req.State, "request %d has no purchase order", id)
		}

		now := e.now()
		receipt := &entity.Receipt{
			RequestID:     id,
			UploadedBy:    actor,
			Document:      ref,
			Seller:        in.Seller,
			Items:         in.Items,
			Validated:     result.Validated,
			Discrepancies: result.Discrepancies,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := e.deps.Receipts.Upsert(txCtx, receipt); err != nil {
			return nil, err
		}
		if err := e.applyState(txCtx, req, actor, trigger.String(), machine.State(), ""); err != nil {
			return nil, err
		}

		return []*event.Event{event.NewEvent(event.TypeReceiptSubmitted, id, actor, map[string]interface{}{
			"validated":     result.Validated,
			"discrepancies": len(result.Discrepancies),
			"submissions":   receipt.Submissions,
		})}, nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Receipt submitted", "request_id", id, "actor", actor, "validated", result.Validated)
	return &result, nil
}

// ListRequests lists requests visible to actor. Staff only see their own.
func (e *engineImpl) ListRequests(ctx context.Context, actor string, filter ListFilter) ([]*entity.PurchaseRequest, error) {
	role, err := e.resolveRole(ctx, actor)
	if err != nil {
		return nil, err
	}

	f := entity.RequestFilter{
		OwnedBy: filter.OwnedBy,
		Status:  filter.Status,
		State:   filter.State,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}

	if role == domainwf.RoleStaff {
		if f.OwnedBy != "" && f.OwnedBy != actor {
			return nil, apperr.Forbidden("staff may only list their own requests")
		}
		f.OwnedBy = actor
	}

	fields := map[string]string{}
	switch filter.View {
	case ViewAll:
	case ViewFinancePending:
		f.FinancePending = true
	case ViewApproverPending:
		level, ok := role.DecisionLevel()
		if !ok {
			return nil, apperr.Forbidden("role %s has no approval level", role)
		}
		f.ApproverLevel = level
	default:
		fields["view"] = "must be finance-pending or approver-pending"
	}
	switch f.Status {
	case "", entity.RequestStatusPending, entity.RequestStatusApproved, entity.RequestStatusRejected:
	default:
		fields["status"] = "must be pending, approved or rejected"
	}
	if f.State != "" && !domainwf.State(f.State).IsValid() {
		fields["state"] = "unknown state"
	}
	if f.Offset < 0 {
		fields["offset"] = "must be greater than or equal to 0"
	}
	if len(fields) > 0 {
		return nil, apperr.ValidationFailed(fields)
	}

	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}

	requests, err := e.deps.Requests.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	return requests, nil
}

func (e *engineImpl) GetRequest(ctx context.Context, actor string, id int64) (*entity.PurchaseRequest, error) {
	return e.viewRequest(ctx, actor, id)
}

func (e *engineImpl) ListApprovals(ctx context.Context, actor string, id int64) ([]*entity.Approval, error) {
	if _, err := e.viewRequest(ctx, actor, id); err != nil {
		return nil, err
	}
	return e.deps.Ledger.ListFor(ctx, id)
}

func (e *engineImpl) GetPurchaseOrder(ctx context.Context, actor string, id int64) (*entity.PurchaseOrder, error) {
	if _, err := e.viewRequest(ctx, actor, id); err != nil {
		return nil, err
	}

	order, err := e.deps.Orders.GetByRequestID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get purchase order: %w", err)
	}
	if order == nil {
		return nil, apperr.NotFound("no purchase order for request %d", id)
	}
	return order, nil
}

func (e *engineImpl) PurchaseOrderDocument(ctx context.Context, actor string, id int64) ([]byte, *entity.PurchaseOrder, error) {
	order, err := e.GetPurchaseOrder(ctx, actor, id)
	if err != nil {
		return nil, nil, err
	}
	if order.POFile == "" {
		return nil, order, apperr.InvalidState(string(order.RenderStatus), "purchase order %s has not been rendered", order.PONumber)
	}

	content, err := e.deps.Blobs.Retrieve(ctx, order.POFile)
	if err != nil {
		return nil, order, fmt.Errorf("retrieve purchase order document: %w", err)
	}
	return content, order, nil
}

func (e *engineImpl) GetReceipt(ctx context.Context, actor string, id int64) (*entity.Receipt, error) {
	if _, err := e.viewRequest(ctx, actor, id); err != nil {
		return nil, err
	}

	receipt, err := e.deps.Receipts.GetByRequestID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get receipt: %w", err)
	}
	if receipt == nil {
		return nil, apperr.NotFound("no receipt for request %d", id)
	}
	return receipt, nil
}

func (e *engineImpl) History(ctx context.Context, actor string, id int64) ([]*entity.TransitionRecord, error) {
	if _, err := e.viewRequest(ctx, actor, id); err != nil {
		return nil, err
	}

	records, err := e.deps.History.GetByRequestID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}
	return records, nil
}

type mutation func(ctx context.Context, req *entity.PurchaseRequest) ([]*event.Event, error)

// mutate runs fn under the request lock inside one transaction. Events are
// dispatched only after commit and unlock.
func (e *engineImpl) mutate(ctx context.Context, id int64, action string, fn mutation) error {
	lockCtx := ctx
	if e.lockTimeout > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, e.lockTimeout)
		defer cancel()
	}

	started := time.Now()
	unlock, err := e.deps.Locker.Lock(lockCtx, lockKey(id))
	if err != nil {
		e.metrics.ObserveTransition(action, "lock_timeout")
		return fmt.Errorf("lock request %d: %w", id, err)
	}
	e.metrics.ObserveLockWait(time.Since(started))

	var events []*event.Event
	err = e.deps.TxManager.WithTransaction(ctx, func(txCtx context.Context) error {
		req, err := e.deps.Requests.GetByID(txCtx, id)
		if err != nil {
			return fmt.Errorf("get request %d: %w", id, err)
		}
		if req == nil {
			return apperr.NotFound("purchase request %d not found", id)
		}

		events, err = fn(txCtx, req)
		return err
	})
	unlock()

	e.metrics.ObserveTransition(action, outcome(err))
	if err != nil {
		if apperr.KindOf(err) == apperr.KindInternal {
			e.logger.Error("Transition failed", "error", err, "request_id", id, "action", action)
		}
		return err
	}

	for _, evt := range events {
		e.dispatch(ctx, evt)
	}
	return nil
}

// applyState persists the new state and its status projection with a history row
func (e *engineImpl) applyState(ctx context.Context, req *entity.PurchaseRequest, actor, action string, to domainwf.State, comments string) error {
	from := req.State
	status := statusFor(to)

	if err := e.deps.Requests.SetState(ctx, req.ID, to.String(), status); err != nil {
		return err
	}

	req.State = to.String()
	req.Status = status
	req.UpdatedAt = e.now()

	return e.recordHistory(ctx, req, actor, action, from, comments)
}

func (e *engineImpl) recordHistory(ctx context.Context, req *entity.PurchaseRequest, actor, action, from, comments string) error {
	record := &entity.TransitionRecord{
		RequestID:     req.ID,
		Actor:         actor,
		Action:        action,
		PreviousState: from,
		NewState:      req.State,
		Comments:      comments,
		CreatedAt:     e.now(),
	}
	if err := e.deps.History.Create(ctx, record); err != nil {
		return fmt.Errorf("create history record: %w", err)
	}
	return nil
}

func (e *engineImpl) resolveRole(ctx context.Context, actor string) (domainwf.Role, error) {
	if actor == "" {
		return "", apperr.New(apperr.KindUnauthorized, "actor is required")
	}

	role, err := e.deps.Roles.Role(ctx, actor)
	if err != nil {
		return "", err
	}
	if !role.IsValid() {
		return "", apperr.Forbidden("actor %s has no workflow role", actor)
	}
	return role, nil
}

// viewRequest loads a request for reading. Staff may only read their own.
func (e *engineImpl) viewRequest(ctx context.Context, actor string, id int64) (*entity.PurchaseRequest, error) {
	role, err := e.resolveRole(ctx, actor)
	if err != nil {
		return nil, err
	}

	req, err := e.deps.Requests.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get request %d: %w", id, err)
	}
	if req == nil {
		return nil, apperr.NotFound("purchase request %d not found", id)
	}
	if role == domainwf.RoleStaff && !req.IsOwnedBy(actor) {
		return nil, apperr.Forbidden("request %d belongs to another requester", id)
	}
	return req, nil
}

func (e *engineImpl) validateInput(in interface{}) error {
	if err := e.validate.Struct(in); err != nil {
		if fields := utils.ValidationFields(err); fields != nil {
			return apperr.ValidationFailed(fields)
		}
		return fmt.Errorf("validate input: %w", err)
	}
	return nil
}

func (e *engineImpl) dispatch(ctx context.Context, evt *event.Event) {
	if e.dispatcher != nil {
		e.dispatcher.DispatchAsync(ctx, evt)
	}
}

func machineFor(req *entity.PurchaseRequest) (domainwf.StateMachine, *Facts, error) {
	state := domainwf.State(req.State)
	if !state.IsValid() {
		return nil, nil, apperr.InvalidState(req.State, "request %d has an unknown state", req.ID)
	}
	facts := &Facts{}
	return BuildRequestStateMachine(state, facts), facts, nil
}

func checkReceiptActor(req *entity.PurchaseRequest, role domainwf.Role, actor string) error {
	machine, _, err := machineFor(req)
	if err != nil {
		return err
	}
	if !machine.Grants(role, domainwf.TriggerSubmitReceipt) || !req.IsOwnedBy(actor) {
		return apperr.Forbidden("only the requester may submit a receipt for request %d", req.ID)
	}
	return nil
}

// fireError maps state machine failures onto workflow error kinds
func fireError(err error, req *entity.PurchaseRequest, role domainwf.Role, trigger domainwf.Trigger) error {
	financeEarly := trigger == domainwf.TriggerFinanceApprove && awaitingManagers(domainwf.State(req.State))

	switch {
	case financeEarly && errors.Is(err, domainwf.ErrInvalidTransition):
		return apperr.Forbidden("finance cannot approve request %d before level 2 approval", req.ID)
	case errors.Is(err, domainwf.ErrInvalidTransition):
		return apperr.IllegalTransition(req.State, "%s is not allowed for request %d", trigger, req.ID)
	case errors.Is(err, domainwf.ErrRoleNotPermitted):
		return apperr.Forbidden("role %s cannot %s request %d in state %s", role, trigger, req.ID, req.State)
	case errors.Is(err, domainwf.ErrGuardFailed) && trigger == domainwf.TriggerFinanceApprove:
		return apperr.Forbidden("finance cannot approve request %d without both manager approvals", req.ID)
	case errors.Is(err, domainwf.ErrGuardFailed):
		return apperr.PreconditionFailed("request %d needs level 1 approval before a level 2 decision", req.ID)
	default:
		return fmt.Errorf("fire %s: %w", trigger, err)
	}
}

func sanitizeItems(items []entity.LineItem) []entity.LineItem {
	if items == nil {
		return nil
	}
	out := make([]entity.LineItem, len(items))
	for i, item := range items {
		item.Description = utils.SanitizeString(item.Description)
		out[i] = item
	}
	return out
}

func lockKey(id int64) string {
	return fmt.Sprintf("purchase_request:%d", id)
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return strings.ToLower(string(apperr.KindOf(err)))
}

type nopLogger struct{}

func (nopLogger) Info(msg string, keysAndValues ...interface{})  {}
func (nopLogger) Error(msg string, keysAndValues ...interface{}) {}

type nopMetrics struct{}

func (nopMetrics) ObserveTransition(trigger string, outcome string) {}
func (nopMetrics) ObserveLockWait(wait time.Duration)               {}
func (nopMetrics) ObserveRender(outcome string)                     {}
