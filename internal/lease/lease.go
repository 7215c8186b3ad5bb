// Package lease - короткие аренды на изменение отдельной сущности.
// Аренда берётся по ключу (например "order:42") и истекает сама через ttl.
package lease

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ErrHeld - аренда по ключу уже занята
var ErrHeld = errors.New("lease is held")

// Locker выдаёт аренды. release безопасно вызывать повторно и после истечения ttl.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

// Memory - аренды в памяти процесса, для одного экземпляра и тестов
type Memory struct {
	mu     sync.Mutex
	leases map[string]memoryLease
	now    func() time.Time
}

type memoryLease struct {
	token   uuid.UUID
	expires time.Time
}

func NewMemory() *Memory {
	return &Memory{leases: make(map[string]memoryLease), now: time.Now}
}

// WithClock подменяет часы (для тестов)
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.now = now
	return m
}

func (m *Memory) Acquire(_ context.Context, key string, ttl time.Duration) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if l, ok := m.leases[key]; ok && now.Before(l.expires) {
		return nil, ErrHeld
	}
	token := uuid.New()
	m.leases[key] = memoryLease{token: token, expires: now.Add(ttl)}

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			// чужую аренду, взятую после истечения нашей, не трогаем
			if l, ok := m.leases[key]; ok && l.token == token {
				delete(m.leases, key)
			}
		})
	}, nil
}

// Сравнить владельца и удалить одним шагом
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis - аренды в Redis (SET NX PX), общие для всех экземпляров сервиса
type Redis struct {
	client *redis.Client
	prefix string
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client, prefix: "lease:"}
}

func (r *Redis) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, r.prefix+key, token, ttl).Result()
	if err != nil {
		return nil, errors.Wrap(err, "failed to acquire lease")
	}
	if !ok {
		return nil, ErrHeld
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = releaseScript.Run(ctx, r.client, []string{r.prefix + key}, token).Err()
		})
	}, nil
}

// New выбирает Redis, если клиент есть, иначе память
func New(client *redis.Client) Locker {
	if client != nil {
		return NewRedis(client)
	}
	return NewMemory()
}
