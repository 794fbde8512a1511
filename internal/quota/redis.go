package quota

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	valkey "github.com/valkey-io/valkey-go"
)

const (
	defaultRedisKey = "emailrep:quota:v1"
	defaultRedisTTL = 24 * time.Hour
)

type RedisTLSConfig struct {
	Enabled bool
	CAFile  string
}

type RedisConfig struct {
	Address  string
	Username string
	Password string
	DB       int
	TLS      RedisTLSConfig
	// Key defaults to emailrep:quota:v1.
	Key string
	// TTL bounds how long a snapshot survives without a fresh observation.
	TTL time.Duration
}

type redisStore struct {
	client valkey.Client
	key    string
	ttl    time.Duration
}

func NewRedis(cfg RedisConfig) (Store, error) {
	if cfg.Address == "" {
		return nil, errors.New("quota: redis address required")
	}

	option := valkey.ClientOption{
		InitAddress:       []string{cfg.Address},
		Username:          cfg.Username,
		Password:          cfg.Password,
		SelectDB:          cfg.DB,
		AlwaysRESP2:       true,
		ForceSingleClient: true,
		DisableCache:      true,
	}

	if cfg.TLS.Enabled {
		tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
		if cfg.TLS.CAFile != "" {
			caData, err := os.ReadFile(cfg.TLS.CAFile)
			if err != nil {
				return nil, fmt.Errorf("quota: read redis ca file: %w", err)
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(caData) {
				return nil, errors.New("quota: redis ca file contains no certificates")
			}
			tlsConfig.RootCAs = pool
		}
		option.TLSConfig = tlsConfig
	}

	client, err := valkey.NewClient(option)
	if err != nil {
		return nil, fmt.Errorf("quota: redis client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("quota: redis ping: %w", err)
	}

	key := cfg.Key
	if key == "" {
		key = defaultRedisKey
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultRedisTTL
	}
	return &redisStore{client: client, key: key, ttl: ttl}, nil
}

func (s *redisStore) Record(ctx context.Context, snap Snapshot) error {
	if snap.ObservedAt.IsZero() {
		snap.ObservedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("quota: redis marshal: %w", err)
	}
	cmd := s.client.B().Set().Key(s.key).Value(string(payload)).Px(s.ttl).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("quota: redis set: %w", err)
	}
	return nil
}

func (s *redisStore) Latest(ctx context.Context) (Snapshot, bool, error) {
	resp := s.client.Do(ctx, s.client.B().Get().Key(s.key).Build())
	if err := resp.Error(); err != nil {
		if errors.Is(err, valkey.Nil) {
			return Snapshot{}, false, nil
		}
		return Snapshot{}, false, fmt.Errorf("quota: redis get: %w", err)
	}
	payload, err := resp.AsBytes()
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("quota: redis get bytes: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return Snapshot{}, false, fmt.Errorf("quota: redis unmarshal: %w", err)
	}
	return snap, true, nil
}

func (s *redisStore) Close(context.Context) error {
	s.client.Close()
	return nil
}
