package workflow

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/garyjia/p2p-approval/internal/application/dispatcher"
	"github.com/garyjia/p2p-approval/internal/application/port"
	"github.com/garyjia/p2p-approval/internal/domain/entity"
	"github.com/garyjia/p2p-approval/internal/domain/event"
	domainwf "github.com/garyjia/p2p-approval/internal/domain/workflow"
	"github.com/garyjia/p2p-approval/pkg/apperr"
)

// memState is a value copy of everything the fake store holds
type memState struct {
	requests  map[int64]entity.PurchaseRequest
	approvals []entity.Approval
	orders    []entity.PurchaseOrder
	receipts  map[int64]entity.Receipt
	history   []entity.TransitionRecord
	nextID    int64
}

func (s memState) clone() memState {
	c := memState{
		requests:  make(map[int64]entity.PurchaseRequest, len(s.requests)),
		approvals: append([]entity.Approval(nil), s.approvals...),
		orders:    append([]entity.PurchaseOrder(nil), s.orders...),
		receipts:  make(map[int64]entity.Receipt, len(s.receipts)),
		history:   append([]entity.TransitionRecord(nil), s.history...),
		nextID:    s.nextID,
	}
	for k, v := range s.requests {
		c.requests[k] = v
	}
	for k, v := range s.receipts {
		c.receipts[k] = v
	}
	return c
}

// memStore is a transactional in-memory store. Transactions are serialised
// and roll back to a snapshot on error.
type memStore struct {
	mu   sync.Mutex
	txMu sync.Mutex
	st   memState

	lastFilter entity.RequestFilter
}

func newMemStore() *memStore {
	return &memStore{st: memState{
		requests: map[int64]entity.PurchaseRequest{},
		receipts: map[int64]entity.Receipt{},
	}}
}

func (s *memStore) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	saved := s.st.clone()
	s.mu.Unlock()

	if err := fn(ctx); err != nil {
		s.mu.Lock()
		s.st = saved
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *memStore) id() int64 {
	s.st.nextID++
	return s.st.nextID
}

func (s *memStore) approvalsFor(requestID int64) []*entity.Approval {
	var out []*entity.Approval
	for i := range s.st.approvals {
		if s.st.approvals[i].RequestID == requestID {
			a := s.st.approvals[i]
			out = append(out, &a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Level < out[j].Level })
	return out
}

type memRequests struct{ s *memStore }

func (r memRequests) Create(ctx context.Context, req *entity.PurchaseRequest) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	req.ID = r.s.id()
	r.s.st.requests[req.ID] = *req
	return nil
}

func (r memRequests) GetByID(ctx context.Context, id int64) (*entity.PurchaseRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	req, ok := r.s.st.requests[id]
	if !ok {
		return nil, nil
	}
	return &req, nil
}

func (r memRequests) Update(ctx context.Context, req *entity.PurchaseRequest) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.st.requests[req.ID]
	if !ok {
		return fmt.Errorf("request %d not found", req.ID)
	}
	if !stored.IsEditable() {
		return apperr.InvalidState(stored.State, "request %d can no longer be edited", req.ID)
	}
	stored.Title, stored.Description, stored.Items, stored.Amount = req.Title, req.Description, req.Items, req.Amount
	stored.UpdatedAt = req.UpdatedAt
	r.s.st.requests[req.ID] = stored
	return nil
}

func (r memRequests) SetState(ctx context.Context, id int64, state string, status entity.RequestStatus) error {
	return r.modify(id, func(req *entity.PurchaseRequest) {
		req.State, req.Status = state, status
	})
}

func (r memRequests) AttachPurchaseOrder(ctx context.Context, id int64, orderID int64) error {
	return r.modify(id, func(req *entity.PurchaseRequest) {
		req.PurchaseOrderID = &orderID
	})
}

func (r memRequests) SetProforma(ctx context.Context, id int64, ref string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	req, ok := r.s.st.requests[id]
	if !ok {
		return fmt.Errorf("request %d not found", id)
	}
	if !req.IsEditable() {
		return apperr.InvalidState(req.State, "request %d can no longer be edited", id)
	}
	req.Proforma = ref
	r.s.st.requests[id] = req
	return nil
}

func (r memRequests) modify(id int64, fn func(req *entity.PurchaseRequest)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	req, ok := r.s.st.requests[id]
	if !ok {
		return fmt.Errorf("request %d not found", id)
	}
	fn(&req)
	r.s.st.requests[id] = req
	return nil
}

func (r memRequests) List(ctx context.Context, f entity.RequestFilter) ([]*entity.PurchaseRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.lastFilter = f

	var out []*entity.PurchaseRequest
	for _, req := range r.s.st.requests {
		req := req
		if f.OwnedBy != "" && req.CreatedBy != f.OwnedBy {
			continue
		}
		if f.Status != "" && req.Status != f.Status {
			continue
		}
		if f.State != "" && req.State != f.State {
			continue
		}
		snap := entity.NewLedgerSnapshot(r.s.approvalsFor(req.ID))
		pending := req.Status == entity.RequestStatusPending
		if f.FinancePending && !(pending && snap.Level1Approved && snap.Level2Approved) {
			continue
		}
		if f.ApproverLevel == entity.LevelOne && !(pending && !snap.Level1Decided) {
			continue
		}
		if f.ApproverLevel == entity.LevelTwo && !(pending && snap.Level1Approved && !snap.Level2Decided) {
			continue
		}
		out = append(out, &req)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })

	if f.Offset >= len(out) {
		return []*entity.PurchaseRequest{}, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

type memApprovals struct{ s *memStore }

func (r memApprovals) Create(ctx context.Context, approval *entity.Approval) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range r.s.st.approvals {
		if a.RequestID == approval.RequestID && a.Level == approval.Level {
			return fmt.Errorf("insert approval: %w", port.ErrDuplicateKey)
		}
	}
	approval.ID = r.s.id()
	r.s.st.approvals = append(r.s.st.approvals, *approval)
	return nil
}

func (r memApprovals) GetByRequestID(ctx context.Context, requestID int64) ([]*entity.Approval, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.approvalsFor(requestID), nil
}

type memOrders struct {
	s         *memStore
	createErr error
}

func (r *memOrders) Create(ctx context.Context, order *entity.PurchaseOrder) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, o := range r.s.st.orders {
		if o.PONumber == order.PONumber || o.RequestID == order.RequestID {
			return port.ErrDuplicateKey
		}
	}
	order.ID = r.s.id()
	r.s.st.orders = append(r.s.st.orders, *order)
	return nil
}

func (r *memOrders) find(match func(o entity.PurchaseOrder) bool) *entity.PurchaseOrder {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, o := range r.s.st.orders {
		if match(o) {
			o := o
			return &o
		}
	}
	return nil
}

func (r *memOrders) GetByID(ctx context.Context, id int64) (*entity.PurchaseOrder, error) {
	return r.find(func(o entity.PurchaseOrder) bool { return o.ID == id }), nil
}

func (r *memOrders) GetByRequestID(ctx context.Context, requestID int64) (*entity.PurchaseOrder, error) {
	return r.find(func(o entity.PurchaseOrder) bool { return o.RequestID == requestID }), nil
}

func (r *memOrders) LatestNumber(ctx context.Context, prefix string) (string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	latest := ""
	for _, o := range r.s.st.orders {
		if strings.HasPrefix(o.PONumber, prefix) && o.PONumber > latest {
			latest = o.PONumber
		}
	}
	return latest, nil
}

func (r *memOrders) GetPendingRender(ctx context.Context, limit int) ([]*entity.PurchaseOrder, error) {
	return nil, nil
}

func (r *memOrders) MarkRendered(ctx context.Context, id int64, ref string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range r.s.st.orders {
		if r.s.st.orders[i].ID == id {
			r.s.st.orders[i].POFile = ref
			r.s.st.orders[i].RenderStatus = entity.RenderStatusRendered
		}
	}
	return nil
}

func (r *memOrders) MarkRenderFailed(ctx context.Context, id int64, errMsg string, final bool) error {
	return nil
}

func (r *memOrders) List(ctx context.Context, limit, offset int) ([]*entity.PurchaseOrder, error) {
	return nil, nil
}

type memReceipts struct{ s *memStore }

func (r memReceipts) Upsert(ctx context.Context, receipt *entity.Receipt) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if prev, ok := r.s.st.receipts[receipt.RequestID]; ok {
		receipt.ID = prev.ID
		receipt.CreatedAt = prev.CreatedAt
		receipt.Submissions = prev.Submissions + 1
	} else {
		receipt.ID = r.s.id()
		receipt.Submissions = 1
	}
	r.s.st.receipts[receipt.RequestID] = *receipt
	return nil
}

func (r memReceipts) GetByRequestID(ctx context.Context, requestID int64) (*entity.Receipt, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	receipt, ok := r.s.st.receipts[requestID]
	if !ok {
		return nil, nil
	}
	return &receipt, nil
}

type memHistory struct{ s *memStore }

func (r memHistory) Create(ctx context.Context, record *entity.TransitionRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	record.ID = r.s.id()
	r.s.st.history = append(r.s.st.history, *record)
	return nil
}

func (r memHistory) GetByRequestID(ctx context.Context, requestID int64) ([]*entity.TransitionRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entity.TransitionRecord
	for _, h := range r.s.st.history {
		if h.RequestID == requestID {
			h := h
			out = append(out, &h)
		}
	}
	return out, nil
}

type testLocker struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func newTestLocker() *testLocker {
	return &testLocker{locks: map[string]chan struct{}{}}
}

func (l *testLocker) Lock(ctx context.Context, key string) (func(), error) {
	for {
		l.mu.Lock()
		ch, held := l.locks[key]
		if !held {
			ch = make(chan struct{})
			l.locks[key] = ch
			l.mu.Unlock()

			var once sync.Once
			return func() {
				once.Do(func() {
					l.mu.Lock()
					delete(l.locks, key)
					l.mu.Unlock()
					close(ch)
				})
			}, nil
		}
		l.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

type fakeRoles map[string]domainwf.Role

func (f fakeRoles) Role(ctx context.Context, actor string) (domainwf.Role, error) {
	role, ok := f[actor]
	if !ok {
		return "", apperr.Forbidden("unknown actor %s", actor)
	}
	return role, nil
}

type memBlobs struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func (b *memBlobs) Store(ctx context.Context, content []byte, contentType string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ref := fmt.Sprintf("blob-%d", len(b.blobs)+1)
	b.blobs[ref] = append([]byte(nil), content...)
	return ref, nil
}

func (b *memBlobs) Retrieve(ctx context.Context, ref string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	content, ok := b.blobs[ref]
	if !ok {
		return nil, fmt.Errorf("blob %s not found", ref)
	}
	return content, nil
}

type fakeExtractor struct {
	result *port.ExtractedReceipt
	calls  int
}

func (f *fakeExtractor) Extract(ctx context.Context, content []byte, contentType string) (*port.ExtractedReceipt, error) {
	f.calls++
	return f.result, nil
}

// recordingDispatcher captures dispatched events synchronously
type recordingDispatcher struct {
	mu     sync.Mutex
	events []*event.Event
}

func (d *recordingDispatcher) Subscribe(eventType event.Type, name string, handler dispatcher.Handler) {
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, evt *event.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, evt)
	return nil
}

func (d *recordingDispatcher) DispatchAsync(ctx context.Context, evt *event.Event) {
	_ = d.Dispatch(ctx, evt)
}

func (d *recordingDispatcher) Handlers(eventType event.Type) []string { return nil }

func (d *recordingDispatcher) Close() error { return nil }

func (d *recordingDispatcher) types() []event.Type {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]event.Type, 0, len(d.events))
	for _, evt := range d.events {
		out = append(out, evt.Type)
	}
	return out
}
