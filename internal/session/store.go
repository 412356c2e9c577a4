package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hackgods/pediatric-clinic-booking/internal/booking"
)

var (
	// ErrSuperseded means the stored conversation changed after it was
	// loaded, normally because the guardian cancelled meanwhile.
	ErrSuperseded = errors.New("conversation changed by another request")
)

// Key identifies one conversation: a guardian in one front-end session.
type Key struct {
	GuardianID string
	Session    string
}

func (k Key) redisKey() string {
	return fmt.Sprintf("conversation:%s:%s", k.GuardianID, k.Session)
}

func (k Key) String() string {
	return k.GuardianID + "/" + k.Session
}

// Store keeps conversation state in a Redis hash with two fields: rev and
// state. Every write bumps rev.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

// Load returns the stored state, or an idle state with revision 0.
func (s *Store) Load(ctx context.Context, key Key) (booking.State, error) {
	vals, err := s.client.HMGet(ctx, key.redisKey(), "rev", "state").Result()
	if err != nil {
		return booking.State{}, fmt.Errorf("load conversation %s: %w", key, err)
	}

	st := booking.State{Step: booking.StepIdle}
	if raw, ok := vals[1].(string); ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &st); err != nil {
			return booking.State{}, fmt.Errorf("decode conversation %s: %w", key, err)
		}
	}
	st.Revision = 0
	if rev, ok := vals[0].(string); ok {
		if _, err := fmt.Sscan(rev, &st.Revision); err != nil {
			return booking.State{}, fmt.Errorf("decode revision %s: %w", key, err)
		}
	}
	return st, nil
}

var saveScript = redis.NewScript(`
local cur = redis.call("HGET", KEYS[1], "rev")
if not cur then cur = "0" end
if cur ~= ARGV[1] then
  return -1
end
local nextRev = tonumber(cur) + 1
redis.call("HSET", KEYS[1], "rev", nextRev, "state", ARGV[2])
if tonumber(ARGV[3]) > 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[3])
end
return nextRev
`)

// Save writes st only if the stored revision still equals st.Revision.
// The returned state carries the new revision.
func (s *Store) Save(ctx context.Context, key Key, st booking.State) (booking.State, error) {
	data, err := json.Marshal(st)
	if err != nil {
		return st, fmt.Errorf("encode conversation %s: %w", key, err)
	}

	rev, err := saveScript.Run(ctx, s.client, []string{key.redisKey()},
		st.Revision, string(data), s.ttl.Milliseconds()).Int64()
	if err != nil {
		return st, fmt.Errorf("save conversation %s: %w", key, err)
	}
	if rev < 0 {
		return st, ErrSuperseded
	}

	st.Revision = rev
	return st, nil
}

var resetScript = redis.NewScript(`
local nextRev = redis.call("HINCRBY", KEYS[1], "rev", 1)
redis.call("HSET", KEYS[1], "state", ARGV[1])
if tonumber(ARGV[2]) > 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return nextRev
`)

// Reset unconditionally stores an idle state, invalidating any state loaded
// before.
func (s *Store) Reset(ctx context.Context, key Key) (booking.State, error) {
	st := booking.State{Step: booking.StepIdle}
	data, err := json.Marshal(st)
	if err != nil {
		return st, fmt.Errorf("encode conversation %s: %w", key, err)
	}

	rev, err := resetScript.Run(ctx, s.client, []string{key.redisKey()},
		string(data), s.ttl.Milliseconds()).Int64()
	if err != nil {
		return st, fmt.Errorf("reset conversation %s: %w", key, err)
	}
	st.Revision = rev
	return st, nil
}
