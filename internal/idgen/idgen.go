package idgen

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	TypeUUIDv4 = "uuidv4"
	TypeUUIDv7 = "uuidv7"
	TypeNanoid = "nanoid"

	nanoidSize = 21
)

// IDGenConfig selects the ID scheme shared by all generated IDs and the prefix
// for each entity kind. A prefix is joined to the ID with an underscore.
type IDGenConfig struct {
	Type           string
	WorkerPrefix   string
	DeliveryPrefix string
}

type generator struct {
	gen    func() string
	prefix string
}

func (g generator) next() string {
	id := g.gen()
	if g.prefix == "" {
		return id
	}
	return g.prefix + "_" + id
}

var (
	mu                sync.RWMutex
	workerGenerator   = generator{gen: newUUIDv4}
	deliveryGenerator = generator{gen: newUUIDv4}
)

// Configure replaces the package generators. Call it once at startup before
// concurrent use.
func Configure(cfg IDGenConfig) error {
	gen, err := genFunc(cfg.Type)
	if err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()
	workerGenerator = generator{gen: gen, prefix: cfg.WorkerPrefix}
	deliveryGenerator = generator{gen: gen, prefix: cfg.DeliveryPrefix}
	return nil
}

func genFunc(idType string) (func() string, error) {
	switch idType {
	case "", TypeUUIDv4:
		return newUUIDv4, nil
	case TypeUUIDv7:
		return newUUIDv7, nil
	case TypeNanoid:
		return newNanoid, nil
	default:
		return nil, fmt.Errorf("unsupported id type %q", idType)
	}
}

// Worker returns an ID for a periodic delivery worker.
func Worker() string {
	mu.RLock()
	defer mu.RUnlock()
	return workerGenerator.next()
}

// Delivery returns an ID for a single callback delivery.
func Delivery() string {
	mu.RLock()
	defer mu.RUnlock()
	return deliveryGenerator.next()
}

func newUUIDv4() string {
	return uuid.New().String()
}

func newUUIDv7() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

func newNanoid() string {
	id, err := gonanoid.New(nanoidSize)
	if err != nil {
		return uuid.New().String()
	}
	return id
}
