package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	c, err := Load([]string{"--jwt-key", "k"})
	require.NoError(t, err)
	require.Equal(t, ":8080", c.HTTPAddr)
	require.Equal(t, ":8443", c.GRPCAddr)
	require.Equal(t, StorePostgres, c.Store)
	require.Equal(t, 30, c.SendLimit)
	require.Equal(t, time.Minute, c.SendWindow)
	require.Equal(t, 5*time.Second, c.ShutdownTimeout)
	require.Equal(t, "offerchat.events", c.AMQPExchange)
	require.False(t, c.TLSEnabled())
}

func TestLoad_Precedence_FlagsOverEnvOverFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "offerchat.yaml")
	require.NoError(t, os.WriteFile(file, []byte("http-addr: \":7000\"\ngrpc-addr: \":7001\"\nsend-limit: 5\n"), 0o600))

	t.Setenv("OFFERCHAT_JWT_KEY", "from-env")
	t.Setenv("OFFERCHAT_GRPC_ADDR", ":9001")
	t.Setenv("OFFERCHAT_STORE", "memory")

	c, err := Load([]string{"--config", file, "--send-limit", "7"})
	require.NoError(t, err)
	require.Equal(t, "from-env", c.JWTKey)
	require.Equal(t, ":7000", c.HTTPAddr, "file beats default")
	require.Equal(t, ":9001", c.GRPCAddr, "env beats file")
	require.Equal(t, 7, c.SendLimit, "flag beats file")
	require.Equal(t, StoreMemory, c.Store)
}

func TestLoad_Validation(t *testing.T) {
	_, err := Load(nil)
	require.ErrorContains(t, err, "jwt")

	_, err = Load([]string{"--jwt-key", "k", "--store", "redis"})
	require.ErrorContains(t, err, "unknown store")

	_, err = Load([]string{"--jwt-key", "k", "--tls-cert", "c.pem"})
	require.ErrorContains(t, err, "together")

	_, err = Load([]string{"--jwt-key", "k", "--log-level", "loud"})
	require.Error(t, err)

	_, err = Load([]string{"--jwt-key", "k", "--send-limit", "-1"})
	require.Error(t, err)

	_, err = Load([]string{"--no-such-flag"})
	require.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	c := &Config{LogLevel: "debug", Dev: true}
	l, err := c.NewLogger()
	require.NoError(t, err)
	require.NotNil(t, l)

	c.LogLevel = "nope"
	_, err = c.NewLogger()
	require.Error(t, err)
}
