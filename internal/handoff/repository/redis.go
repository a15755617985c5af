package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"handoff_backend/internal/handoff/domain"
	"handoff_backend/platform/apperr"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const (
	redisKeyPrefix = "handoff:"
	redisIndexKey  = "handoffs"

	fieldData        = "data"
	fieldStatus      = "status"
	fieldClaimedBy   = "claimed_by"
	fieldClaimedAt   = "claimed_at"
	fieldCompletedAt = "completed_at"
)

// Script results: 0 = key absent, 1 = status guard failed, 2 = applied.
const (
	scriptNotFound = 0
	scriptConflict = 1
	scriptApplied  = 2
)

// claimScript flips a requested record to active and records the
// claiming operator in one atomic server-side step. Redis runs scripts
// without interleaving, which is what makes concurrent claims on the
// same ID yield exactly one success.
var claimScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'status')
if not cur then return 0 end
if cur ~= 'requested' then return 1 end
redis.call('HSET', KEYS[1], 'status', 'active', 'claimed_by', ARGV[1], 'claimed_at', ARGV[2])
return 2
`)

// setStatusScript applies a status override, optionally guarded on the
// current status (ARGV[2] empty means unconditional).
var setStatusScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'status')
if not cur then return 0 end
if ARGV[2] ~= '' and cur ~= ARGV[2] then return 1 end
if ARGV[1] == 'completed' then
  redis.call('HSET', KEYS[1], 'status', ARGV[1], 'completed_at', ARGV[3])
else
  redis.call('HSET', KEYS[1], 'status', ARGV[1])
end
return 2
`)

// RedisStore keeps one hash per record. The immutable registration
// payload lives in the data field as JSON; the mutable lifecycle fields
// (status, claimed_by, claimed_at, completed_at) are separate hash
// fields written by Lua scripts and overlaid on reads. An index set
// holds the live record IDs for listing.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a record store backed by the given Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Compile-time check that RedisStore implements Store.
var _ Store = (*RedisStore)(nil)

func redisKey(id string) string { return redisKeyPrefix + id }

// Put inserts or overwrites the record keyed by its ID.
func (s *RedisStore) Put(ctx context.Context, rec domain.CallHandoffRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "encode handoff record", err)
	}

	fields := map[string]interface{}{
		fieldData:   string(data),
		fieldStatus: string(rec.Status),
	}
	if rec.ClaimedBy != "" {
		fields[fieldClaimedBy] = rec.ClaimedBy
	}
	if rec.ClaimedAt != nil {
		fields[fieldClaimedAt] = rec.ClaimedAt.Format(time.RFC3339Nano)
	}
	if rec.CompletedAt != nil {
		fields[fieldCompletedAt] = rec.CompletedAt.Format(time.RFC3339Nano)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, redisKey(rec.ID))
		pipe.HSet(ctx, redisKey(rec.ID), fields)
		pipe.SAdd(ctx, redisIndexKey, rec.ID)
		return nil
	})
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "store handoff record", err)
	}
	return nil
}

// Get returns the record or apperr.NotFound.
func (s *RedisStore) Get(ctx context.Context, id string) (domain.CallHandoffRecord, error) {
	return s.readRecord(ctx, id)
}

// List returns records matching status ordered by creation time.
func (s *RedisStore) List(ctx context.Context, status domain.Status) ([]domain.CallHandoffRecord, error) {
	ids, err := s.client.SMembers(ctx, redisIndexKey).Result()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "list handoff records", err)
	}

	// The reads are independent; fetch them concurrently with a bound
	// so a large index does not fan out into one goroutine per record.
	loaded := make([]*domain.CallHandoffRecord, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			rec, err := s.readRecord(gctx, id)
			if err != nil {
				if apperr.Is(err, apperr.KindNotFound) {
					// Removed between SMEMBERS and the read.
					return nil
				}
				return err
			}
			loaded[i] = &rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	results := make([]domain.CallHandoffRecord, 0, len(ids))
	for _, rec := range loaded {
		if rec == nil {
			continue
		}
		if status != "" && rec.Status != status {
			continue
		}
		results = append(results, *rec)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].CreatedAt.Equal(results[j].CreatedAt) {
			return results[i].ID < results[j].ID
		}
		return results[i].CreatedAt.Before(results[j].CreatedAt)
	})
	return results, nil
}

// Delete removes the record. Absent IDs are a no-op.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, redisKey(id))
		pipe.SRem(ctx, redisIndexKey, id)
		return nil
	})
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "delete handoff record", err)
	}
	return nil
}

// Claim runs the atomic claim script and re-reads the updated record.
func (s *RedisStore) Claim(ctx context.Context, id, operator string, at time.Time) (domain.CallHandoffRecord, error) {
	res, err := claimScript.Run(ctx, s.client,
		[]string{redisKey(id)},
		operator, at.Format(time.RFC3339Nano),
	).Int()
	if err != nil {
		return domain.CallHandoffRecord{}, apperr.Wrap(apperr.KindInternal, "claim handoff record", err)
	}

	switch res {
	case scriptNotFound:
		return domain.CallHandoffRecord{}, apperr.NotFound(msgNotFound)
	case scriptConflict:
		return domain.CallHandoffRecord{}, apperr.Conflict(msgNotClaimable)
	}
	return s.readRecord(ctx, id)
}

// SetStatus unconditionally moves the record to the given status.
func (s *RedisStore) SetStatus(ctx context.Context, id string, to domain.Status, at time.Time) (domain.CallHandoffRecord, error) {
	return s.setStatus(ctx, id, "", to, at)
}

// SetStatusIf moves the record to the given status only from the
// expected current status.
func (s *RedisStore) SetStatusIf(ctx context.Context, id string, from, to domain.Status, at time.Time) (domain.CallHandoffRecord, error) {
	return s.setStatus(ctx, id, from, to, at)
}

func (s *RedisStore) setStatus(ctx context.Context, id string, from, to domain.Status, at time.Time) (domain.CallHandoffRecord, error) {
	res, err := setStatusScript.Run(ctx, s.client,
		[]string{redisKey(id)},
		string(to), string(from), at.Format(time.RFC3339Nano),
	).Int()
	if err != nil {
		return domain.CallHandoffRecord{}, apperr.Wrap(apperr.KindInternal, "update handoff status", err)
	}

	switch res {
	case scriptNotFound:
		return domain.CallHandoffRecord{}, apperr.NotFound(msgNotFound)
	case scriptConflict:
		return domain.CallHandoffRecord{}, apperr.Conflict(msgNotClaimable)
	}
	return s.readRecord(ctx, id)
}

// readRecord decodes the data JSON and overlays the mutable hash fields.
func (s *RedisStore) readRecord(ctx context.Context, id string) (domain.CallHandoffRecord, error) {
	fields, err := s.client.HGetAll(ctx, redisKey(id)).Result()
	if err != nil {
		return domain.CallHandoffRecord{}, apperr.Wrap(apperr.KindInternal, "read handoff record", err)
	}
	if len(fields) == 0 {
		return domain.CallHandoffRecord{}, apperr.NotFound(msgNotFound)
	}

	var rec domain.CallHandoffRecord
	if err := json.Unmarshal([]byte(fields[fieldData]), &rec); err != nil {
		return domain.CallHandoffRecord{}, apperr.Wrap(apperr.KindInternal, "decode handoff record", err)
	}

	if status, ok := fields[fieldStatus]; ok {
		rec.Status = domain.Status(status)
	}
	if operator, ok := fields[fieldClaimedBy]; ok && operator != "" {
		rec.ClaimedBy = operator
	}
	if raw, ok := fields[fieldClaimedAt]; ok && raw != "" {
		parsed, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return domain.CallHandoffRecord{}, apperr.Wrap(apperr.KindInternal, fmt.Sprintf("parse claimed_at for %s", id), err)
		}
		rec.ClaimedAt = &parsed
	}
	if raw, ok := fields[fieldCompletedAt]; ok && raw != "" {
		parsed, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return domain.CallHandoffRecord{}, apperr.Wrap(apperr.KindInternal, fmt.Sprintf("parse completed_at for %s", id), err)
		}
		rec.CompletedAt = &parsed
	}

	return rec, nil
}
