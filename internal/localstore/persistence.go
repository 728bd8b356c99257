package localstore

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/veselinppetkov/orders-app-sub000/internal/cdperr"
	"github.com/veselinppetkov/orders-app-sub000/internal/model"
)

// Namespace is the prefix of every regular durable key.
const Namespace = "orderSystem_"

// Durable keys under the namespace.
const (
	KeyMonthlyData     = Namespace + "monthlyData"
	KeyClientsData     = Namespace + "clientsData"
	KeyInventory       = Namespace + "inventory"
	KeySettings        = Namespace + "settings"
	KeyCurrentMonth    = Namespace + "currentMonth"
	KeyAvailableMonths = Namespace + "availableMonths"
	KeyLastSave        = Namespace + "lastSave"
)

// Emergency keys live outside the namespace so a corrupted namespace export
// never drags them along.
const (
	EmergencyBackupPrefix = "emergency_backup_"
	EmergencyTabCloseKey  = "EMERGENCY_BACKUP_TAB_CLOSE"
)

// emergencyBackupKeep bounds how many timestamped emergency backups are
// retained.
const emergencyBackupKeep = 3

// quotaBytes is the soft budget mirrored from the browser heritage of this
// store; crossing ~80% degrades the health signal.
const quotaBytes = 5 * 1024 * 1024

// Health statuses.
const (
	HealthHealthy  = "healthy"
	HealthDegraded = "degraded"
	HealthError    = "error"
)

// Health is the storage health signal polled by the lifecycle guard.
type Health struct {
	Status     string   `json:"status"`
	UsedBytes  int64    `json:"usedBytes"`
	QuotaBytes int64    `json:"quotaBytes"`
	Issues     []string `json:"issues,omitempty"`
}

// Persistence is the typed facade over a DurableKV.
type Persistence struct {
	kv  DurableKV
	log *zap.Logger
}

// NewPersistence wraps kv.
func NewPersistence(kv DurableKV, log *zap.Logger) *Persistence {
	return &Persistence{kv: kv, log: log.Named("localstore")}
}

func (p *Persistence) putJSON(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if err := p.kv.Put(key, string(raw)); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (p *Persistence) getJSON(key string, out any) (bool, error) {
	raw, ok, err := p.kv.Get(key)
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	if !ok || raw == "" {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, fmt.Errorf("%w: %s holds unreadable JSON: %s", cdperr.ErrLocalCorruption, key, err.Error())
	}
	return true, nil
}

// SaveMonthlyData persists the whole month-bucket map.
func (p *Persistence) SaveMonthlyData(m map[string]*model.MonthBucket) error {
	return p.putJSON(KeyMonthlyData, m)
}

// LoadMonthlyData returns the month-bucket map, never nil.
func (p *Persistence) LoadMonthlyData() (map[string]*model.MonthBucket, error) {
	out := map[string]*model.MonthBucket{}
	if _, err := p.getJSON(KeyMonthlyData, &out); err != nil {
		return map[string]*model.MonthBucket{}, err
	}
	for k, b := range out {
		out[k] = b.Ensure()
	}
	return out, nil
}

// SaveClientsData persists the client map.
func (p *Persistence) SaveClientsData(m map[string]*model.Client) error {
	return p.putJSON(KeyClientsData, m)
}

// LoadClientsData returns the client map, never nil.
func (p *Persistence) LoadClientsData() (map[string]*model.Client, error) {
	out := map[string]*model.Client{}
	if _, err := p.getJSON(KeyClientsData, &out); err != nil {
		return map[string]*model.Client{}, err
	}
	return out, nil
}

// SaveInventory persists the inventory map.
func (p *Persistence) SaveInventory(m map[string]*model.InventoryItem) error {
	return p.putJSON(KeyInventory, m)
}

// LoadInventory returns the inventory map, never nil.
func (p *Persistence) LoadInventory() (map[string]*model.InventoryItem, error) {
	out := map[string]*model.InventoryItem{}
	if _, err := p.getJSON(KeyInventory, &out); err != nil {
		return map[string]*model.InventoryItem{}, err
	}
	return out, nil
}

// SaveSettings persists the settings mirror.
func (p *Persistence) SaveSettings(s *model.Settings) error {
	return p.putJSON(KeySettings, s)
}

// LoadSettings returns the stored settings or nil when absent.
func (p *Persistence) LoadSettings() (*model.Settings, error) {
	var out model.Settings
	ok, err := p.getJSON(KeySettings, &out)
	if err != nil || !ok {
		return nil, err
	}
	return &out, nil
}

// SaveCurrentMonth persists the selected month key.
func (p *Persistence) SaveCurrentMonth(month string) error {
	return p.kv.Put(KeyCurrentMonth, month)
}

// LoadCurrentMonth returns the stored month key or "".
func (p *Persistence) LoadCurrentMonth() (string, error) {
	v, _, err := p.kv.Get(KeyCurrentMonth)
	return v, err
}

// SaveAvailableMonths persists the month list.
func (p *Persistence) SaveAvailableMonths(months []model.MonthOption) error {
	return p.putJSON(KeyAvailableMonths, months)
}

// LoadAvailableMonths returns the stored month list, never nil.
func (p *Persistence) LoadAvailableMonths() ([]model.MonthOption, error) {
	out := []model.MonthOption{}
	if _, err := p.getJSON(KeyAvailableMonths, &out); err != nil {
		return []model.MonthOption{}, err
	}
	return out, nil
}

// TouchLastSave records the time of the latest successful full save.
func (p *Persistence) TouchLastSave(at time.Time) error {
	return p.kv.Put(KeyLastSave, at.Format(time.RFC3339))
}

// LastSave returns the recorded save time, zero when never saved.
func (p *Persistence) LastSave() (time.Time, error) {
	v, ok, err := p.kv.Get(KeyLastSave)
	if err != nil || !ok {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, nil
	}
	return t, nil
}

// EmergencySnapshot is the payload of a timestamped emergency backup.
type EmergencySnapshot struct {
	MonthlyData map[string]*model.MonthBucket   `json:"monthlyData"`
	ClientsData map[string]*model.Client        `json:"clientsData"`
	Inventory   map[string]*model.InventoryItem `json:"inventory"`
	Settings    *model.Settings                 `json:"settings"`
	SavedAt     time.Time                       `json:"savedAt"`
	Reason      string                          `json:"reason"`
}

// WriteEmergencyBackup stores a timestamped backup and prunes old ones so
// at most three remain.
func (p *Persistence) WriteEmergencyBackup(snap *EmergencySnapshot) error {
	key := EmergencyBackupPrefix + strconv.FormatInt(snap.SavedAt.UnixMilli(), 10)
	if err := p.putJSON(key, snap); err != nil {
		return err
	}
	return p.pruneEmergencyBackups()
}

// WriteTabCloseBackup stores the single shutdown backup.
func (p *Persistence) WriteTabCloseBackup(snap *EmergencySnapshot) error {
	return p.putJSON(EmergencyTabCloseKey, snap)
}

// EmergencyBackupKeys returns the timestamped backup keys, oldest first.
func (p *Persistence) EmergencyBackupKeys() ([]string, error) {
	keys, err := p.kv.Keys(EmergencyBackupPrefix)
	if err != nil {
		return nil, err
	}
	sort.Slice(keys, func(i, j int) bool {
		return backupTimestamp(keys[i]) < backupTimestamp(keys[j])
	})
	return keys, nil
}

func backupTimestamp(key string) int64 {
	n, _ := strconv.ParseInt(strings.TrimPrefix(key, EmergencyBackupPrefix), 10, 64)
	return n
}

func (p *Persistence) pruneEmergencyBackups() error {
	keys, err := p.EmergencyBackupKeys()
	if err != nil {
		return err
	}
	for len(keys) > emergencyBackupKeep {
		if err := p.kv.Remove(keys[0]); err != nil {
			return err
		}
		keys = keys[1:]
	}
	return nil
}

// StorageHealth probes the substrate with a write/read/delete cycle and
// reports usage against the soft quota.
func (p *Persistence) StorageHealth() Health {
	h := Health{Status: HealthHealthy, QuotaBytes: quotaBytes}

	probeKey := Namespace + "healthProbe"
	probeValue := strconv.FormatInt(time.Now().UnixNano(), 10)
	if err := p.kv.Put(probeKey, probeValue); err != nil {
		h.Status = HealthError
		h.Issues = append(h.Issues, "write probe failed: "+err.Error())
		return h
	}
	got, ok, err := p.kv.Get(probeKey)
	if err != nil || !ok || got != probeValue {
		h.Status = HealthError
		h.Issues = append(h.Issues, "read probe mismatch")
		return h
	}
	_ = p.kv.Remove(probeKey)

	used, err := p.kv.SizeBytes()
	if err != nil {
		h.Status = HealthDegraded
		h.Issues = append(h.Issues, "size probe failed: "+err.Error())
		return h
	}
	h.UsedBytes = used
	if used > quotaBytes*8/10 {
		h.Status = HealthDegraded
		h.Issues = append(h.Issues, "storage above 80% of quota")
	}
	return h
}

// ExportAll serializes every namespaced key (emergency keys included) into
// one JSON document for manual recovery.
func (p *Persistence) ExportAll() (string, error) {
	out := map[string]json.RawMessage{}

	collect := func(prefix string) error {
		keys, err := p.kv.Keys(prefix)
		if err != nil {
			return err
		}
		for _, k := range keys {
			v, ok, err := p.kv.Get(k)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			if json.Valid([]byte(v)) {
				out[k] = json.RawMessage(v)
			} else {
				raw, _ := json.Marshal(v)
				out[k] = raw
			}
		}
		return nil
	}

	for _, prefix := range []string{Namespace, EmergencyBackupPrefix, EmergencyTabCloseKey} {
		if err := collect(prefix); err != nil {
			return "", err
		}
	}

	doc, err := json.MarshalIndent(map[string]any{
		"exportedAt": time.Now().Format(time.RFC3339),
		"keys":       out,
	}, "", "  ")
	if err != nil {
		return "", err
	}
	return string(doc), nil
}

// ImportAll restores a document produced by ExportAll. Existing keys are
// overwritten; keys outside the known prefixes are ignored.
func (p *Persistence) ImportAll(doc string) error {
	var parsed struct {
		Keys map[string]json.RawMessage `json:"keys"`
	}
	if err := json.Unmarshal([]byte(doc), &parsed); err != nil {
		return fmt.Errorf("%w: import document unreadable: %s", cdperr.ErrLocalCorruption, err.Error())
	}
	imported := 0
	for k, v := range parsed.Keys {
		if !strings.HasPrefix(k, Namespace) &&
			!strings.HasPrefix(k, EmergencyBackupPrefix) &&
			k != EmergencyTabCloseKey {
			continue
		}
		value := string(v)
		var asString string
		if err := json.Unmarshal(v, &asString); err == nil {
			value = asString
		}
		if err := p.kv.Put(k, value); err != nil {
			return err
		}
		imported++
	}
	p.log.Info("import finished", zap.Int("keys", imported))
	return nil
}
