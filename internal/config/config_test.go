package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsAndEnv(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("PORT", "6001")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 6001, cfg.Server.Port)
	assert.Equal(t, DriverMemory, cfg.Store.Driver)
	assert.Equal(t, 25*time.Second, cfg.WebSocket.PingInterval)
	assert.Equal(t, 60*time.Second, cfg.WebSocket.PongWait)
	assert.True(t, cfg.WebSocket.VerifyHandshake)
	assert.Equal(t, 7*24*time.Hour, cfg.Auth.SessionTTL)
	assert.Equal(t, 100, cfg.RateLimit.GlobalPerWindow)
	assert.Equal(t, 15*time.Minute, cfg.RateLimit.GlobalWindow)
	assert.Equal(t, 30, cfg.RateLimit.MessagesPerMinute)
	assert.False(t, cfg.Assets.Enabled())
}

func TestLoad_RequiresSecret(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	assert.ErrorContains(t, err, "jwt_secret")
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Store:     StoreConfig{Driver: DriverMongo, URI: "mongodb://localhost:27017"},
			Auth:      AuthConfig{JWTSecret: "s", SessionTTL: time.Hour},
			WebSocket: WebSocketConfig{PingInterval: 25 * time.Second, PongWait: 60 * time.Second},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "missing uri", mutate: func(c *Config) { c.Store.URI = "" }, wantErr: "store.uri"},
		{name: "unknown driver", mutate: func(c *Config) { c.Store.Driver = "sqlite" }, wantErr: "unknown store.driver"},
		{name: "ping not shorter than pong", mutate: func(c *Config) { c.WebSocket.PingInterval = time.Minute }, wantErr: "ping_interval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestKafkaBrokerList(t *testing.T) {
	k := KafkaConfig{Brokers: " a:9092, ,b:9092"}
	assert.Equal(t, []string{"a:9092", "b:9092"}, k.BrokerList())
	assert.Empty(t, KafkaConfig{}.BrokerList())
}
