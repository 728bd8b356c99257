package module

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/veselinppetkov/orders-app-sub000/internal/cdperr"
	"github.com/veselinppetkov/orders-app-sub000/internal/cloud"
	"github.com/veselinppetkov/orders-app-sub000/internal/eventbus"
	"github.com/veselinppetkov/orders-app-sub000/internal/localstore"
	"github.com/veselinppetkov/orders-app-sub000/internal/model"
	"github.com/veselinppetkov/orders-app-sub000/internal/state"
)

// stubCloud is an in-memory cloud.API with switchable failure modes.
type stubCloud struct {
	mu            sync.Mutex
	failTransient bool
	failTerminal  bool
	nextID        int64
	orders        map[string]*model.Order
	clients       map[string]*model.Client
	expenses      map[int64]*model.Expense
	inventory     map[int64]*model.InventoryItem
	settings      *model.Settings
	calls         map[string]int
}

var _ cloud.API = (*stubCloud)(nil)

func newStubCloud() *stubCloud {
	return &stubCloud{
		nextID:    1,
		orders:    make(map[string]*model.Order),
		clients:   make(map[string]*model.Client),
		expenses:  make(map[int64]*model.Expense),
		inventory: make(map[int64]*model.InventoryItem),
		calls:     make(map[string]int),
	}
}

func (s *stubCloud) gate(op string) error {
	s.calls[op]++
	if s.failTerminal {
		return fmt.Errorf("%w: stub terminal failure", cdperr.ErrTerminalRemote)
	}
	if s.failTransient {
		return fmt.Errorf("%w: stub transient failure", cdperr.ErrTransientRemote)
	}
	return nil
}

func (s *stubCloud) callCount(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func (s *stubCloud) CreateOrder(_ context.Context, o *model.Order) (*model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.gate("orders.create"); err != nil {
		return nil, err
	}
	cp := o.Clone()
	cp.ID = strconv.FormatInt(s.nextID, 10)
	s.nextID++
	s.orders[cp.ID] = cp
	return cp.Clone(), nil
}

func (s *stubCloud) GetOrders(_ context.Context, monthKey string) ([]*model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.gate("orders.get"); err != nil {
		return nil, err
	}
	out := []*model.Order{}
	for _, o := range s.orders {
		if monthKey == "" || o.MonthKey() == monthKey {
			out = append(out, o.Clone())
		}
	}
	return out, nil
}

func (s *stubCloud) UpdateOrder(_ context.Context, o *model.Order) (*model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.gate("orders.update"); err != nil {
		return nil, err
	}
	if _, ok := s.orders[o.ID]; !ok {
		return nil, cdperr.NotFound("order %s", o.ID)
	}
	s.orders[o.ID] = o.Clone()
	return o.Clone(), nil
}

func (s *stubCloud) DeleteOrder(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.gate("orders.delete"); err != nil {
		return err
	}
	if _, ok := s.orders[id]; !ok {
		return cdperr.NotFound("order %s", id)
	}
	delete(s.orders, id)
	return nil
}

func (s *stubCloud) CreateClient(_ context.Context, c *model.Client) (*model.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.gate("clients.create"); err != nil {
		return nil, err
	}
	cp := c.Clone()
	cp.ID = "client_" + strconv.FormatInt(s.nextID, 10)
	s.nextID++
	s.clients[cp.ID] = cp
	return cp.Clone(), nil
}

func (s *stubCloud) GetClients(_ context.Context) ([]*model.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.gate("clients.get"); err != nil {
		return nil, err
	}
	out := []*model.Client{}
	for _, c := range s.clients {
		out = append(out, c.Clone())
	}
	return out, nil
}

func (s *stubCloud) UpdateClient(_ context.Context, c *model.Client) (*model.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.gate("clients.update"); err != nil {
		return nil, err
	}
	if _, ok := s.clients[c.ID]; !ok {
		return nil, cdperr.NotFound("client %s", c.ID)
	}
	s.clients[c.ID] = c.Clone()
	return c.Clone(), nil
}

func (s *stubCloud) DeleteClient(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.gate("clients.delete"); err != nil {
		return err
	}
	delete(s.clients, id)
	return nil
}

func (s *stubCloud) CreateExpense(_ context.Context, e *model.Expense) (*model.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.gate("expenses.create"); err != nil {
		return nil, err
	}
	cp := e.Clone()
	// Custom expense ids start above the template range.
	if s.nextID < 12 {
		s.nextID = 12
	}
	cp.ID = s.nextID
	s.nextID++
	s.expenses[cp.ID] = cp
	return cp.Clone(), nil
}

func (s *stubCloud) GetExpenses(_ context.Context, monthKey string) ([]*model.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.gate("expenses.get"); err != nil {
		return nil, err
	}
	out := []*model.Expense{}
	for _, e := range s.expenses {
		if monthKey == "" || e.Month == monthKey {
			out = append(out, e.Clone())
		}
	}
	return out, nil
}

func (s *stubCloud) UpdateExpense(_ context.Context, e *model.Expense) (*model.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.gate("expenses.update"); err != nil {
		return nil, err
	}
	if _, ok := s.expenses[e.ID]; !ok {
		return nil, cdperr.NotFound("expense %d", e.ID)
	}
	s.expenses[e.ID] = e.Clone()
	return e.Clone(), nil
}

func (s *stubCloud) DeleteExpense(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.gate("expenses.delete"); err != nil {
		return err
	}
	delete(s.expenses, id)
	return nil
}

func (s *stubCloud) CreateInventoryItem(_ context.Context, i *model.InventoryItem) (*model.InventoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.gate("inventory.create"); err != nil {
		return nil, err
	}
	cp := i.Clone()
	cp.DBID = s.nextID
	s.nextID++
	cp.ID = model.CompositeInventoryID(cp.DBID)
	s.inventory[cp.DBID] = cp
	return cp.Clone(), nil
}

func (s *stubCloud) GetInventory(_ context.Context) ([]*model.InventoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.gate("inventory.get"); err != nil {
		return nil, err
	}
	out := []*model.InventoryItem{}
	for _, i := range s.inventory {
		out = append(out, i.Clone())
	}
	return out, nil
}

func (s *stubCloud) UpdateInventoryItem(_ context.Context, i *model.InventoryItem) (*model.InventoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.gate("inventory.update"); err != nil {
		return nil, err
	}
	if _, ok := s.inventory[i.DBID]; !ok {
		return nil, cdperr.NotFound("inventory item %d", i.DBID)
	}
	s.inventory[i.DBID] = i.Clone()
	return i.Clone(), nil
}

func (s *stubCloud) DeleteInventoryItem(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.gate("inventory.delete"); err != nil {
		return err
	}
	for dbID, item := range s.inventory {
		if item.ID == id {
			delete(s.inventory, dbID)
			return nil
		}
	}
	return cdperr.NotFound("inventory item %s", id)
}

func (s *stubCloud) GetSettings(_ context.Context) (*model.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.gate("settings.get"); err != nil {
		return nil, err
	}
	if s.settings == nil {
		return nil, cdperr.NotFound("settings row missing")
	}
	return s.settings.Clone(), nil
}

func (s *stubCloud) SaveSettings(_ context.Context, st *model.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.gate("settings.save"); err != nil {
		return err
	}
	s.settings = st.Clone()
	return nil
}

func (s *stubCloud) UploadImage(_ context.Context, _, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.gate("images.upload"); err != nil {
		return "", err
	}
	return "order-images/stub_" + name, nil
}

func (s *stubCloud) SignedImageURL(path string) (string, error) {
	return "/api/images/" + path + "?token=stub", nil
}

func (s *stubCloud) DeleteImage(_ context.Context, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gate("images.delete")
}

func (s *stubCloud) TestConnection(_ context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.failTransient && !s.failTerminal
}

// recorder collects emitted bus events for assertions.
type recorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

type recordedEvent struct {
	topic   string
	payload eventbus.Payload
}

func (r *recorder) listen(bus *eventbus.Bus, topics ...string) {
	for _, topic := range topics {
		topic := topic
		bus.On(topic, func(p eventbus.Payload) error {
			r.mu.Lock()
			r.events = append(r.events, recordedEvent{topic: topic, payload: p})
			r.mu.Unlock()
			return nil
		})
	}
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

func (r *recorder) topics() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.topic)
	}
	return out
}

func (r *recorder) last(topic string) (eventbus.Payload, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].topic == topic {
			return r.events[i].payload, true
		}
	}
	return nil, false
}

func newTestDeps(t *testing.T) (Deps, *stubCloud) {
	t.Helper()
	log := zap.NewNop()
	bus := eventbus.New(log)
	t.Cleanup(bus.Destroy)
	stub := newStubCloud()
	return Deps{
		Bus:   bus,
		State: state.New(log),
		Local: localstore.NewPersistence(localstore.NewMemoryKV(), log),
		Cloud: stub,
		Log:   log,
	}, stub
}
