package stepup

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/mediscan/stepup/internal"
	"github.com/redis/go-redis/v9"
)

const challengeRecordVersionV1 = 1

type challengeStatus byte

const (
	challengePending challengeStatus = iota
	challengeVerified
	challengeExpired
	challengeExhausted
)

func (s challengeStatus) String() string {
	switch s {
	case challengePending:
		return "pending"
	case challengeVerified:
		return "verified"
	case challengeExpired:
		return "expired"
	case challengeExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

var (
	errChallengeNotFound         = errors.New("challenge record not found")
	errChallengeConsumed         = errors.New("challenge record already consumed")
	errChallengeExpired          = errors.New("challenge record expired")
	errChallengeExhausted        = errors.New("challenge record attempts exhausted")
	errChallengeCodeMismatch     = errors.New("challenge code mismatch")
	errChallengeSuperseded       = errors.New("challenge code superseded")
	errChallengeRedisUnavailable = errors.New("challenge redis unavailable")
)

// accessChallengeRecord is the persisted form of one verification challenge.
// One record exists per (user, scope); re-issuing overwrites it, carrying the
// predecessor's hash and salt so a stale code can be told apart from a bad
// guess.
type accessChallengeRecord struct {
	Status       challengeStatus
	Method       byte
	Attempts     uint16
	ExpiresAt    int64
	CreatedAt    int64
	Salt         internal.Salt
	CodeHash     [32]byte
	PrevCodeHash [32]byte
	PrevSalt     internal.Salt
	ChallengeID  string
	OriginIP     string
	OriginAgent  string
}

// Fixed offsets shared between the Go codec and the Lua scripts (1-based,
// Lua string indexing):
//
//	1      version
//	2      status
//	3      method
//	4-5    attempts (big-endian)
//	6-13   expiresAt (big-endian)
//	14-21  createdAt (big-endian)
//	22-37  salt
//	38-69  codeHash
//	70-101 prevCodeHash
//	102-117 prevSalt
//	118-   length-prefixed challengeID, originIP, originAgent

// putChallengeLua atomically installs a new challenge record, carrying the
// predecessor's code hash and salt into the prev slots when a live pending
// challenge is being superseded.
// KEYS[1] = record key
// ARGV[1] = encoded record (prev slots zeroed)
// ARGV[2] = retention TTL in milliseconds
// ARGV[3] = current unix timestamp
// Returns 1 when a live pending challenge was superseded, else 0.
var putChallengeLua = redis.NewScript(`
local old = redis.call('GET', KEYS[1])
local new = ARGV[1]
local ttlMs = tonumber(ARGV[2])
local nowUnix = tonumber(ARGV[3])
local superseded = 0

if old and string.byte(old, 1) == 1 and string.byte(old, 2) == 0 then
  local e0,e1,e2,e3,e4,e5,e6,e7 = string.byte(old, 6, 13)
  local expiresAt = e0
  for _, b in ipairs({e1,e2,e3,e4,e5,e6,e7}) do
    expiresAt = expiresAt * 256 + b
  end
  if nowUnix <= expiresAt then
    new = string.sub(new, 1, 69) .. string.sub(old, 38, 69) .. string.sub(old, 22, 37) .. string.sub(new, 118)
    superseded = 1
  end
end

redis.call('SET', KEYS[1], new, 'PX', ttlMs)
return superseded
`)

// consumeChallengeLua atomically performs the GET→validate→transition cycle
// for a code submission: expiry marking, attempt accounting, exhaustion, and
// the single pending→verified transition.
// KEYS[1] = record key
// ARGV[1] = provided hash (32 bytes)
// ARGV[2] = provided hash computed with the predecessor salt (32 bytes)
// ARGV[3] = max attempts (int string)
// ARGV[4] = current unix timestamp (int string)
//
// Returns:
//
//	record bytes (pre-transition) on success
//	error string: "not_found", "consumed", "expired", "exhausted",
//	              "superseded", "code_mismatch"
var consumeChallengeLua = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
  return {err='not_found'}
end

local providedHash = ARGV[1]
local providedPrevHash = ARGV[2]
local maxAttempts = tonumber(ARGV[3])
local nowUnix = tonumber(ARGV[4])

local version = string.byte(data, 1)
if version ~= 1 then
  redis.call('DEL', KEYS[1])
  return {err='not_found'}
end

local status = string.byte(data, 2)
if status == 1 then
  return {err='consumed'}
end
if status == 2 then
  return {err='expired'}
end
if status == 3 then
  return {err='exhausted'}
end

local attempts = string.byte(data, 4) * 256 + string.byte(data, 5)

local e0,e1,e2,e3,e4,e5,e6,e7 = string.byte(data, 6, 13)
local expiresAt = e0
for _, b in ipairs({e1,e2,e3,e4,e5,e6,e7}) do
  expiresAt = expiresAt * 256 + b
end

local ttlMs = redis.call('PTTL', KEYS[1])
if ttlMs <= 0 then
  redis.call('DEL', KEYS[1])
  return {err='expired'}
end

if nowUnix > expiresAt then
  redis.call('SET', KEYS[1], string.sub(data, 1, 1) .. string.char(2) .. string.sub(data, 3), 'PX', ttlMs)
  return {err='expired'}
end

if attempts >= maxAttempts then
  redis.call('SET', KEYS[1], string.sub(data, 1, 1) .. string.char(3) .. string.sub(data, 3), 'PX', ttlMs)
  return {err='exhausted'}
end

local storedHash = string.sub(data, 38, 69)
if storedHash == providedHash then
  redis.call('SET', KEYS[1], string.sub(data, 1, 1) .. string.char(1) .. string.sub(data, 3), 'PX', ttlMs)
  return data
end

-- A code minted for the superseded predecessor is stale, not a guess:
-- report it distinctly and burn no attempt. A zeroed prev slot can never
-- match a real sha256 output.
local prevHash = string.sub(data, 70, 101)
if prevHash == providedPrevHash then
  return {err='superseded'}
end

attempts = attempts + 1
local newStatus = 0
if attempts >= maxAttempts then
  newStatus = 3
end
local newData = string.sub(data, 1, 1) .. string.char(newStatus) .. string.sub(data, 3, 3) ..
  string.char(math.floor(attempts / 256), attempts % 256) .. string.sub(data, 6)
redis.call('SET', KEYS[1], newData, 'PX', ttlMs)
return {err='code_mismatch'}
`)

// markChallengeExpiredLua transitions a pending record past its deadline to
// expired, preserving the retention TTL. Used by the reaper.
// KEYS[1] = record key
// ARGV[1] = current unix timestamp
// Returns 1 when a transition happened, else 0.
var markChallengeExpiredLua = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
  return 0
end
if string.byte(data, 1) ~= 1 or string.byte(data, 2) ~= 0 then
  return 0
end

local e0,e1,e2,e3,e4,e5,e6,e7 = string.byte(data, 6, 13)
local expiresAt = e0
for _, b in ipairs({e1,e2,e3,e4,e5,e6,e7}) do
  expiresAt = expiresAt * 256 + b
end
if tonumber(ARGV[1]) <= expiresAt then
  return 0
end

local ttlMs = redis.call('PTTL', KEYS[1])
if ttlMs <= 0 then
  redis.call('DEL', KEYS[1])
  return 1
end
redis.call('SET', KEYS[1], string.sub(data, 1, 1) .. string.char(2) .. string.sub(data, 3), 'PX', ttlMs)
return 1
`)

type accessChallengeStore struct {
	redis  redis.UniversalClient
	prefix string
}

func newAccessChallengeStore(redisClient redis.UniversalClient, prefix string) *accessChallengeStore {
	if prefix == "" {
		prefix = "avc"
	}
	return &accessChallengeStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *accessChallengeStore) key(userID string, scope ResourceScope) string {
	return s.prefix + ":" + userID + ":" + scope.Key()
}

// Put installs a new pending challenge for (userID, scope), superseding any
// live pending one. Returns whether a predecessor was superseded.
func (s *accessChallengeStore) Put(
	ctx context.Context,
	userID string,
	scope ResourceScope,
	record *accessChallengeRecord,
	retention time.Duration,
) (bool, error) {
	encoded, err := encodeAccessChallengeRecord(record)
	if err != nil {
		return false, err
	}

	result, err := putChallengeLua.Run(ctx, s.redis,
		[]string{s.key(userID, scope)},
		string(encoded),
		retention.Milliseconds(),
		time.Now().Unix(),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", errChallengeRedisUnavailable, err)
	}

	return result == 1, nil
}

// Get reads the current challenge record without mutating it. The caller
// needs the salts before it can compute submission hashes for Consume.
func (s *accessChallengeStore) Get(ctx context.Context, userID string, scope ResourceScope) (*accessChallengeRecord, error) {
	data, err := s.redis.Get(ctx, s.key(userID, scope)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errChallengeNotFound
		}
		return nil, fmt.Errorf("%w: %v", errChallengeRedisUnavailable, err)
	}

	record, err := decodeAccessChallengeRecord(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errChallengeRedisUnavailable, err)
	}
	return record, nil
}

// Consume submits a code hash against the current challenge. On match it
// performs the single pending→verified transition and returns the record;
// otherwise it returns one of the store sentinel errors.
func (s *accessChallengeStore) Consume(
	ctx context.Context,
	userID string,
	scope ResourceScope,
	providedHash [32]byte,
	providedPrevHash [32]byte,
	maxAttempts int,
) (*accessChallengeRecord, error) {
	result, err := consumeChallengeLua.Run(ctx, s.redis,
		[]string{s.key(userID, scope)},
		string(providedHash[:]),
		string(providedPrevHash[:]),
		maxAttempts,
		time.Now().Unix(),
	).Result()

	if err != nil {
		switch err.Error() {
		case "not_found":
			return nil, errChallengeNotFound
		case "consumed":
			return nil, errChallengeConsumed
		case "expired":
			return nil, errChallengeExpired
		case "exhausted":
			return nil, errChallengeExhausted
		case "superseded":
			return nil, errChallengeSuperseded
		case "code_mismatch":
			return nil, errChallengeCodeMismatch
		default:
			return nil, fmt.Errorf("%w: %v", errChallengeRedisUnavailable, err)
		}
	}

	data, ok := result.(string)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected lua result type", errChallengeRedisUnavailable)
	}

	record, decErr := decodeAccessChallengeRecord([]byte(data))
	if decErr != nil {
		return nil, fmt.Errorf("%w: %v", errChallengeRedisUnavailable, decErr)
	}

	// Final constant-time comparison in Go as defense-in-depth
	// (Lua already checked, but Lua string comparison is not constant-time)
	if subtle.ConstantTimeCompare(record.CodeHash[:], providedHash[:]) != 1 {
		return nil, errChallengeCodeMismatch
	}

	return record, nil
}

// SweepExpired scans the challenge keyspace and transitions pending records
// past their deadline to expired. Returns the number of transitions.
func (s *accessChallengeStore) SweepExpired(ctx context.Context, scanCount int64) (int, error) {
	nowUnix := time.Now().Unix()
	expired := 0

	iter := s.redis.Scan(ctx, 0, s.prefix+":*", scanCount).Iterator()
	for iter.Next(ctx) {
		marked, err := markChallengeExpiredLua.Run(ctx, s.redis, []string{iter.Val()}, nowUnix).Int64()
		if err != nil {
			return expired, fmt.Errorf("%w: %v", errChallengeRedisUnavailable, err)
		}
		if marked == 1 {
			expired++
		}
	}
	if err := iter.Err(); err != nil {
		return expired, fmt.Errorf("%w: %v", errChallengeRedisUnavailable, err)
	}

	return expired, nil
}

func encodeAccessChallengeRecord(record *accessChallengeRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(challengeRecordVersionV1)
	buf.WriteByte(byte(record.Status))
	buf.WriteByte(record.Method)

	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.CreatedAt); err != nil {
		return nil, err
	}

	buf.Write(record.Salt[:])
	buf.Write(record.CodeHash[:])
	buf.Write(record.PrevCodeHash[:])
	buf.Write(record.PrevSalt[:])

	for _, field := range []string{record.ChallengeID, record.OriginIP, record.OriginAgent} {
		if len(field) > 65535 {
			return nil, errors.New("challenge record string field too long")
		}
		if err := binary.Write(&buf, binary.BigEndian, uint16(len(field))); err != nil {
			return nil, err
		}
		buf.WriteString(field)
	}

	return buf.Bytes(), nil
}

func decodeAccessChallengeRecord(data []byte) (*accessChallengeRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != challengeRecordVersionV1 {
		return nil, errors.New("invalid challenge record version")
	}

	status, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	method, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}

	record := &accessChallengeRecord{
		Status: challengeStatus(status),
		Method: method,
	}

	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.CreatedAt); err != nil {
		return nil, err
	}

	if _, err := io.ReadFull(reader, record.Salt[:]); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(reader, record.CodeHash[:]); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(reader, record.PrevCodeHash[:]); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(reader, record.PrevSalt[:]); err != nil {
		return nil, err
	}

	for _, target := range []*string{&record.ChallengeID, &record.OriginIP, &record.OriginAgent} {
		var length uint16
		if err := binary.Read(reader, binary.BigEndian, &length); err != nil {
			return nil, err
		}
		field := make([]byte, length)
		if _, err := io.ReadFull(reader, field); err != nil {
			return nil, err
		}
		*target = string(field)
	}

	return record, nil
}
