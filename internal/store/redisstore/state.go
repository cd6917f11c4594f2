package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/suPer8Hu/ads-dashboard/internal/apperr"
	"github.com/suPer8Hu/ads-dashboard/internal/dashboard"
	"github.com/suPer8Hu/ads-dashboard/internal/logger"
)

var _ dashboard.Store = (*StateStore)(nil)

const (
	stateKeyPrefix = "dash:state:"
	turnKeyPrefix  = "dash:turn:"
)

// releaseTurn deletes the lock only if it still carries our token.
var releaseTurn = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// StateStore keeps dashboard.State as JSON with a sliding TTL.
type StateStore struct {
	rdb     goredis.UniversalClient
	ttl     time.Duration
	lockTTL time.Duration
	log     *logger.Logger
}

// NewStateStore: lockTTL bounds how long a crashed turn can block its dashboard session.
func NewStateStore(rdb goredis.UniversalClient, ttl, lockTTL time.Duration, log *logger.Logger) *StateStore {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	if lockTTL <= 0 {
		lockTTL = 3 * time.Minute
	}
	if log == nil {
		log = logger.Nop()
	}
	return &StateStore{rdb: rdb, ttl: ttl, lockTTL: lockTTL, log: log.With("component", "RedisStateStore")}
}

func (s *StateStore) Load(ctx context.Context, id string) (*dashboard.State, error) {
	const op = "redisstore.load_state"
	raw, err := s.rdb.Get(ctx, stateKeyPrefix+id).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, apperr.NotFound(op)
	}
	if err != nil {
		return nil, apperr.Persistence(op, err)
	}
	st, err := dashboard.Decode(raw)
	if err != nil {
		s.log.Warn("dropping undecodable dashboard state", "dashboard_session", id, "error", err)
		return nil, apperr.NotFound(op)
	}
	return st, nil
}

func (s *StateStore) Save(ctx context.Context, id string, st *dashboard.State) error {
	const op = "redisstore.save_state"
	raw, err := json.Marshal(st)
	if err != nil {
		return apperr.Persistence(op, err)
	}
	if err := s.rdb.Set(ctx, stateKeyPrefix+id, raw, s.ttl).Err(); err != nil {
		return apperr.Persistence(op, err)
	}
	return nil
}

func (s *StateStore) AcquireTurn(ctx context.Context, id string) (func(), error) {
	const op = "redisstore.acquire_turn"
	key := turnKeyPrefix + id
	token := uuid.NewString()

	ok, err := s.rdb.SetNX(ctx, key, token, s.lockTTL).Result()
	if err != nil {
		return nil, apperr.Persistence(op, err)
	}
	if !ok {
		return nil, apperr.Wrap(apperr.ErrBusy, op, nil)
	}

	return func() {
		// the request context may already be gone
		relCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseTurn.Run(relCtx, s.rdb, []string{key}, token).Err(); err != nil {
			s.log.Warn("failed to release turn lock", "dashboard_session", id, "error", err)
		}
	}, nil
}
