package securestore

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/nacl/secretbox"

	"github.com/transfa/transfa-core/internal/domain"
)

const (
	keyPrefix = "transfa:securestore:pin:"
	nonceSize = 24
)

// argon2id parameters for deriving the sealing key
const (
	kdfMemory      = 19 * 1024 // 19 MB
	kdfIterations  = 2
	kdfParallelism = 1
)

// ErrCorrupted is returned when a stored value cannot be opened with the store key
var ErrCorrupted = errors.New("stored credential could not be decrypted")

// RedisStore keeps the biometric PIN surrogate of each user in Redis, sealed with NaCl secretbox.
// It implements domain.CredentialStore for one user.
type RedisStore struct {
	client   *redis.Client
	key      [32]byte
	username string
	ttl      time.Duration
	logger   *zap.Logger
}

// NewRedisStore creates a new RedisStore for username. The sealing key is derived
// from secret with argon2id, salted per user.
// ttl of zero keeps the credential until it is deleted.
func NewRedisStore(client *redis.Client, secret, username string, ttl time.Duration, logger *zap.Logger) (*RedisStore, error) {
	if secret == "" {
		return nil, errors.New("secure store secret is required")
	}
	if username == "" {
		return nil, errors.New("secure store username is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	normalized := domain.NormalizeUsername(username)
	return &RedisStore{
		client:   client,
		key:      deriveKey(secret, normalized),
		username: normalized,
		ttl:      ttl,
		logger:   logger,
	}, nil
}

func deriveKey(secret, username string) [32]byte {
	var key [32]byte
	derived := argon2.IDKey([]byte(secret), []byte(keyPrefix+username), kdfIterations, kdfMemory, kdfParallelism, uint32(len(key)))
	copy(key[:], derived)
	return key
}

// Save seals and stores the credential, replacing any previous one
func (s *RedisStore) Save(ctx context.Context, cred domain.Credential) error {
	if cred.IsZero() {
		return errors.New("cannot store an empty credential")
	}

	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return fmt.Errorf("generate nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], []byte(cred.Reveal()), &nonce, &s.key)

	if err := s.client.Set(ctx, s.redisKey(), sealed, s.ttl).Err(); err != nil {
		return fmt.Errorf("store credential: %w", err)
	}
	s.logger.Info("stored credential for biometric authorization", zap.String("username", s.username))
	return nil
}

// StoredCredential implements domain.CredentialStore
func (s *RedisStore) StoredCredential(ctx context.Context) (domain.Credential, bool, error) {
	sealed, err := s.client.Get(ctx, s.redisKey()).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Credential{}, false, nil
	}
	if err != nil {
		return domain.Credential{}, false, fmt.Errorf("load credential: %w", err)
	}

	if len(sealed) < nonceSize+secretbox.Overhead {
		return domain.Credential{}, false, ErrCorrupted
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])

	plain, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &s.key)
	if !ok {
		s.logger.Warn("stored credential failed to decrypt", zap.String("username", s.username))
		return domain.Credential{}, false, ErrCorrupted
	}

	cred, err := domain.ParseCredential(string(plain))
	if err != nil {
		return domain.Credential{}, false, ErrCorrupted
	}
	return cred, true, nil
}

// Delete removes the stored credential, for example after the PIN was changed
func (s *RedisStore) Delete(ctx context.Context) error {
	if err := s.client.Del(ctx, s.redisKey()).Err(); err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	return nil
}

func (s *RedisStore) redisKey() string {
	return keyPrefix + s.username
}
