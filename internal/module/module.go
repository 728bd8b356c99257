// Package module holds the five entity modules of the data plane. Every
// module follows the same write protocol: validate, emit the before-event
// with the prior value, apply the optimistic mutation, try the cloud tier,
// fall back to the local tier, then emit the after-event tagged with the
// source that actually served the write.
package module

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/veselinppetkov/orders-app-sub000/internal/cloud"
	"github.com/veselinppetkov/orders-app-sub000/internal/eventbus"
	"github.com/veselinppetkov/orders-app-sub000/internal/localstore"
	"github.com/veselinppetkov/orders-app-sub000/internal/state"
)

// Event source tags.
const (
	SourceCloud = "cloud"
	SourceLocal = "local"
)

// Deps is the dependency bundle shared by all modules.
type Deps struct {
	Bus   *eventbus.Bus
	State *state.Store
	Local *localstore.Persistence
	Cloud cloud.API
	Log   *zap.Logger
}

// Statistics counts module activity. Snapshot copies are returned to
// callers; the live struct is guarded by each module's mutex.
type Statistics struct {
	TotalLoads         int `json:"totalLoads"`
	CacheHits          int `json:"cacheHits"`
	CacheMisses        int `json:"cacheMisses"`
	CloudOperations    int `json:"cloudOperations"`
	FallbackOperations int `json:"fallbackOperations"`
}

var tempIDMu sync.Mutex

// TempID synthesizes an optimistic entity id: temp_<ts>_<rand>.
func TempID() string {
	tempIDMu.Lock()
	defer tempIDMu.Unlock()
	return fmt.Sprintf("temp_%d_%04d", time.Now().UnixMilli(), rand.Intn(10000))
}

// LocalID synthesizes a timestamp-derived local identity for entities
// created while the cloud tier is unreachable.
func LocalID() string {
	tempIDMu.Lock()
	defer tempIDMu.Unlock()
	return fmt.Sprintf("%d", time.Now().UnixMilli())
}
