// Package state implements the keyed in-memory store behind the data plane.
// Writes are validated per key, notify per-key subscribers, and serialize
// through a re-entrance guard: a Set issued from inside a notification is
// queued and applied after the current write finishes.
package state

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/veselinppetkov/orders-app-sub000/internal/cdperr"
	"github.com/veselinppetkov/orders-app-sub000/internal/model"
)

// Root keys of the store.
const (
	KeyCurrentMonth    = "currentMonth"
	KeyAvailableMonths = "availableMonths"
	KeyMonthlyData     = "monthlyData"
	KeyClientsData     = "clientsData"
	KeyInventory       = "inventory"
	KeySettings        = "settings"
	KeyIsLoading       = "isLoading"
	KeyLastUpdate      = "lastUpdate"
	KeyVersion         = "version"
)

// changeLogCap bounds the diagnostic change log.
const changeLogCap = 50

var monthKeyRe = regexp.MustCompile(`^\d{4}-\d{2}$`)

// Subscriber receives the new value after a successful write to its key.
type Subscriber func(value any)

// ChangeRecord is one entry of the diagnostic change log.
type ChangeRecord struct {
	Key       string    `json:"key"`
	Timestamp time.Time `json:"timestamp"`
	Deferred  bool      `json:"deferred"`
}

type pendingWrite struct {
	key   string
	value any
}

// Store is the shared reactive state container.
type Store struct {
	mu          sync.Mutex
	values      map[string]any
	subscribers map[string][]Subscriber
	validators  map[string]func(any) error
	notifying   bool
	queue       []pendingWrite
	changeLog   []ChangeRecord
	log         *zap.Logger
}

// New returns a store seeded with the fixed root shape.
func New(log *zap.Logger) *Store {
	s := &Store{
		subscribers: make(map[string][]Subscriber),
		log:         log.Named("state"),
	}
	s.validators = map[string]func(any) error{
		KeyCurrentMonth:    validateCurrentMonth,
		KeyAvailableMonths: validateAvailableMonths,
		KeyMonthlyData:     validateNonNilMap[*model.MonthBucket](KeyMonthlyData),
		KeyClientsData:     validateNonNilMap[*model.Client](KeyClientsData),
		KeyInventory:       validateNonNilMap[*model.InventoryItem](KeyInventory),
		KeySettings:        validateSettings,
	}
	s.values = initialValues()
	return s
}

func initialValues() map[string]any {
	return map[string]any{
		KeyCurrentMonth:    model.CurrentMonthKey(),
		KeyAvailableMonths: []model.MonthOption{},
		KeyMonthlyData:     map[string]*model.MonthBucket{},
		KeyClientsData:     map[string]*model.Client{},
		KeyInventory:       map[string]*model.InventoryItem{},
		KeySettings:        model.DefaultSettings(),
		KeyIsLoading:       false,
		KeyLastUpdate:      time.Time{},
		KeyVersion:         1,
	}
}

// Get returns the current value for key, or nil when absent.
func (s *Store) Get(key string) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[key]
}

// Set validates and applies one write, then notifies the key's subscribers.
// A Set issued while notifications are running is deferred to after the
// current write and logged.
func (s *Store) Set(key string, value any) error {
	s.mu.Lock()
	if s.notifying {
		s.queue = append(s.queue, pendingWrite{key: key, value: value})
		s.appendChange(key, true)
		s.mu.Unlock()
		s.log.Debug("re-entrant set deferred", zap.String("key", key))
		return nil
	}
	if err := s.validateLocked(key, value); err != nil {
		s.mu.Unlock()
		return err
	}
	s.applyLocked(key, value)
	subs := append([]Subscriber(nil), s.subscribers[key]...)
	s.notifying = true
	s.mu.Unlock()

	s.notify(key, value, subs)
	s.drainQueue()
	return nil
}

// Update validates every entry of the batch before applying any of them;
// a single failure aborts the whole batch. Subscribers are notified per key
// after the batch is applied.
func (s *Store) Update(batch map[string]any) error {
	s.mu.Lock()
	for k, v := range batch {
		if err := s.validateLocked(k, v); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("update aborted: %w", err)
		}
	}
	type note struct {
		key   string
		value any
		subs  []Subscriber
	}
	notes := make([]note, 0, len(batch))
	for k, v := range batch {
		s.applyLocked(k, v)
		notes = append(notes, note{k, v, append([]Subscriber(nil), s.subscribers[k]...)})
	}
	s.notifying = true
	s.mu.Unlock()

	for _, n := range notes {
		s.notify(n.key, n.value, n.subs)
	}
	s.drainQueue()
	return nil
}

func (s *Store) notify(key string, value any, subs []Subscriber) {
	for _, fn := range subs {
		if fn == nil { // unsubscribed
			continue
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.log.Error("subscriber panic", zap.String("key", key), zap.Any("panic", r))
				}
			}()
			fn(value)
		}()
	}
}

// drainQueue applies writes deferred during notification, one at a time so
// their own notifications can defer further writes.
func (s *Store) drainQueue() {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.notifying = false
			s.mu.Unlock()
			return
		}
		w := s.queue[0]
		s.queue = s.queue[1:]
		if err := s.validateLocked(w.key, w.value); err != nil {
			s.log.Warn("deferred set rejected", zap.String("key", w.key), zap.Error(err))
			s.mu.Unlock()
			continue
		}
		s.applyLocked(w.key, w.value)
		subs := append([]Subscriber(nil), s.subscribers[w.key]...)
		s.mu.Unlock()

		s.notify(w.key, w.value, subs)
	}
}

func (s *Store) validateLocked(key string, value any) error {
	if fn, ok := s.validators[key]; ok {
		if err := fn(value); err != nil {
			return fmt.Errorf("%w: state key %s: %s", cdperr.ErrValidation, key, err.Error())
		}
	}
	// Unknown keys are permitted.
	return nil
}

func (s *Store) applyLocked(key string, value any) {
	s.values[key] = value
	if key != KeyLastUpdate {
		s.values[KeyLastUpdate] = time.Now()
	}
	s.appendChange(key, false)
}

func (s *Store) appendChange(key string, deferred bool) {
	s.changeLog = append(s.changeLog, ChangeRecord{Key: key, Timestamp: time.Now(), Deferred: deferred})
	if len(s.changeLog) > changeLogCap {
		s.changeLog = s.changeLog[len(s.changeLog)-changeLogCap:]
	}
}

// Subscribe registers fn for key and returns an unsubscribe function.
func (s *Store) Subscribe(key string, fn Subscriber) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers[key] = append(s.subscribers[key], fn)
	idx := len(s.subscribers[key]) - 1
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		subs := s.subscribers[key]
		if idx < len(subs) && subs[idx] != nil {
			subs[idx] = nil
		}
	}
}

// Reset restores the initial root shape and clears the change log.
// Subscribers stay registered.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = initialValues()
	s.changeLog = nil
	s.log.Info("state reset")
}

// Snapshot returns a deep copy of the whole state via a JSON round-trip.
func (s *Store) Snapshot() map[string]any {
	s.mu.Lock()
	raw, err := json.Marshal(s.values)
	s.mu.Unlock()
	if err != nil {
		s.log.Error("snapshot marshal failed", zap.Error(err))
		return map[string]any{}
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		s.log.Error("snapshot unmarshal failed", zap.Error(err))
		return map[string]any{}
	}
	return out
}

// ChangeLog returns a copy of the bounded diagnostic log.
func (s *Store) ChangeLog() []ChangeRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ChangeRecord(nil), s.changeLog...)
}

// MonthlyData returns the current monthlyData map (typed accessor).
func (s *Store) MonthlyData() map[string]*model.MonthBucket {
	if m, ok := s.Get(KeyMonthlyData).(map[string]*model.MonthBucket); ok {
		return m
	}
	return map[string]*model.MonthBucket{}
}

// ClientsData returns the current clientsData map (typed accessor).
func (s *Store) ClientsData() map[string]*model.Client {
	if m, ok := s.Get(KeyClientsData).(map[string]*model.Client); ok {
		return m
	}
	return map[string]*model.Client{}
}

// Inventory returns the current inventory map (typed accessor).
func (s *Store) Inventory() map[string]*model.InventoryItem {
	if m, ok := s.Get(KeyInventory).(map[string]*model.InventoryItem); ok {
		return m
	}
	return map[string]*model.InventoryItem{}
}

// Settings returns the current settings (typed accessor).
func (s *Store) Settings() *model.Settings {
	if v, ok := s.Get(KeySettings).(*model.Settings); ok && v != nil {
		return v
	}
	return model.DefaultSettings()
}

func validateCurrentMonth(v any) error {
	str, ok := v.(string)
	if !ok || !monthKeyRe.MatchString(str) {
		return fmt.Errorf("must match YYYY-MM")
	}
	return nil
}

func validateAvailableMonths(v any) error {
	months, ok := v.([]model.MonthOption)
	if !ok {
		return fmt.Errorf("must be a list of month options")
	}
	for _, m := range months {
		if m.Key == "" || m.Name == "" {
			return fmt.Errorf("month options need key and name")
		}
	}
	return nil
}

func validateNonNilMap[T any](name string) func(any) error {
	return func(v any) error {
		m, ok := v.(map[string]T)
		if !ok || m == nil {
			return fmt.Errorf("%s must be a non-nil map", name)
		}
		return nil
	}
}

func validateSettings(v any) error {
	st, ok := v.(*model.Settings)
	if !ok || st == nil {
		return fmt.Errorf("settings must be present")
	}
	if st.EURRate <= 0 && st.USDRate <= 0 {
		return fmt.Errorf("settings need a positive eurRate or usdRate")
	}
	if st.Origins == nil || st.Vendors == nil {
		return fmt.Errorf("settings need origins and vendors lists")
	}
	return nil
}
