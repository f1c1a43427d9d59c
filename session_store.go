package stepup

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const sessionRecordVersionV1 = 1

var (
	errAccessSessionNotFound         = errors.New("access session not found")
	errAccessSessionRedisUnavailable = errors.New("access session redis unavailable")
)

// accessSessionRecord is the persisted form of a granted step-up session.
// Read-only after creation; validity is computed at check time against
// ExpiresAt, the key TTL is just a purge backstop.
type accessSessionRecord struct {
	UserID    string
	Scope     ResourceScope
	IssuedAt  int64
	ExpiresAt int64
}

type accessSessionStore struct {
	redis  redis.UniversalClient
	prefix string
}

func newAccessSessionStore(redisClient redis.UniversalClient, prefix string) *accessSessionStore {
	if prefix == "" {
		prefix = "avs"
	}
	return &accessSessionStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *accessSessionStore) key(token string) string {
	return s.prefix + ":" + token
}

func (s *accessSessionStore) Save(ctx context.Context, token string, record *accessSessionRecord, ttl time.Duration) error {
	encoded, err := encodeAccessSessionRecord(record)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.key(token), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", errAccessSessionRedisUnavailable, err)
	}

	return nil
}

// Get is the Authorize hot path: a single key lookup plus a live expiry
// check. Expired records are deleted opportunistically but the TTL would
// purge them anyway.
func (s *accessSessionStore) Get(ctx context.Context, token string) (*accessSessionRecord, error) {
	data, err := s.redis.Get(ctx, s.key(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errAccessSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", errAccessSessionRedisUnavailable, err)
	}

	record, err := decodeAccessSessionRecord(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errAccessSessionRedisUnavailable, err)
	}

	if time.Now().Unix() > record.ExpiresAt {
		_ = s.redis.Del(ctx, s.key(token)).Err()
		return nil, errAccessSessionNotFound
	}

	return record, nil
}

func (s *accessSessionStore) Delete(ctx context.Context, token string) error {
	if err := s.redis.Del(ctx, s.key(token)).Err(); err != nil {
		return fmt.Errorf("%w: %v", errAccessSessionRedisUnavailable, err)
	}
	return nil
}

func encodeAccessSessionRecord(record *accessSessionRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(sessionRecordVersionV1)
	buf.WriteByte(byte(record.Scope.Type))

	if err := binary.Write(&buf, binary.BigEndian, record.Scope.ResourceID); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.IssuedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}

	if len(record.UserID) > 65535 {
		return nil, errors.New("session record user id too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.UserID))); err != nil {
		return nil, err
	}
	buf.WriteString(record.UserID)

	return buf.Bytes(), nil
}

func decodeAccessSessionRecord(data []byte) (*accessSessionRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != sessionRecordVersionV1 {
		return nil, errors.New("invalid session record version")
	}

	scopeType, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}

	record := &accessSessionRecord{
		Scope: ResourceScope{Type: ResourceType(scopeType)},
	}

	if err := binary.Read(reader, binary.BigEndian, &record.Scope.ResourceID); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.IssuedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}

	var userIDLen uint16
	if err := binary.Read(reader, binary.BigEndian, &userIDLen); err != nil {
		return nil, err
	}
	userID := make([]byte, userIDLen)
	if _, err := io.ReadFull(reader, userID); err != nil {
		return nil, err
	}
	record.UserID = string(userID)

	return record, nil
}
