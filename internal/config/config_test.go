package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir()) // no stray .env
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, SourceAPI, cfg.Source)
	assert.Equal(t, 5, cfg.WorkerCount)
	assert.Equal(t, 100, cfg.QueueMaxSize)
	assert.Equal(t, "block", cfg.QueueFullPolicy)
	assert.Equal(t, "speaker", cfg.TurnFormat)
	assert.Equal(t, 10, cfg.RateLimitMaxCalls)
	assert.Equal(t, time.Second, cfg.RateLimitPeriod)
	assert.Equal(t, "calllive", cfg.MongoDatabase)
	assert.Equal(t, 5*time.Second, cfg.StorageProbeTimeout)
	assert.Equal(t, "data", cfg.FallbackDir)
	assert.Equal(t, "gemini-1.5-flash", cfg.LLMModel)
	assert.Equal(t, 25*time.Second, cfg.LLMTimeout)
	assert.Equal(t, 45*time.Second, cfg.LLMMaxRetryTime)
	assert.Equal(t, "transcripts.processed", cfg.KafkaTopic)
	assert.Equal(t, ":9000", cfg.MonitorAddr)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
}

func TestLoadFromEnvironment(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("CALLLIVE_BASE_URL", "http://localhost:8000/api")
	t.Setenv("CALLLIVE_API_KEY", "secret")
	t.Setenv("WORKER_COUNT", "12")
	t.Setenv("QUEUE_MAXSIZE", "0")
	t.Setenv("QUEUE_FULL_POLICY", "Reject")
	t.Setenv("RATE_LIMIT_PERIOD", "2.5")
	t.Setenv("USE_MOCK_LLM", "true")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")

	cfg, err := Load("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "http://localhost:8000/api", cfg.BaseURL)
	assert.Equal(t, 12, cfg.WorkerCount)
	assert.Equal(t, 0, cfg.QueueMaxSize)
	assert.Equal(t, "reject", cfg.QueueFullPolicy)
	assert.Equal(t, 2500*time.Millisecond, cfg.RateLimitPeriod)
	assert.True(t, cfg.UseMockLLM)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("WORKER_COUNT=3\nCALLLIVE_API_KEY=from-dotenv\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("WORKER_COUNT")
		os.Unsetenv("CALLLIVE_API_KEY")
	})

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.WorkerCount)
	assert.Equal(t, "from-dotenv", cfg.APIKey)
}

func TestLoadYAMLFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	path := filepath.Join(dir, "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte("worker_count: 7\nturn_format: plain\nsource: amqp\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.WorkerCount)
	assert.Equal(t, "plain", cfg.TurnFormat)
	assert.Equal(t, SourceAMQP, cfg.Source)
}

func TestLoadBadDuration(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("SHUTDOWN_TIMEOUT", "soon")
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SHUTDOWN_TIMEOUT")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Source: SourceAPI, BaseURL: "http://x", APIKey: "k",
			WorkerCount: 1, QueueMaxSize: 10, QueueFullPolicy: "block", TurnFormat: "speaker",
			RateLimitMaxCalls: 10, RateLimitPeriod: time.Second,
			UseMockLLM: true, FallbackDir: "data",
		}
	}
	require.NoError(t, valid().Validate())

	cases := map[string]func(c *Config){
		"missing api key":      func(c *Config) { c.APIKey = "" },
		"unknown source":       func(c *Config) { c.Source = "ftp" },
		"zero workers":         func(c *Config) { c.WorkerCount = 0 },
		"negative queue":       func(c *Config) { c.QueueMaxSize = -1 },
		"bad policy":           func(c *Config) { c.QueueFullPolicy = "drop" },
		"bad turn format":      func(c *Config) { c.TurnFormat = "xml" },
		"zero period":          func(c *Config) { c.RateLimitPeriod = 0 },
		"live llm without url": func(c *Config) { c.UseMockLLM = false },
		"kafka without broker": func(c *Config) { c.KafkaEnabled = true },
		"no fallback dir":      func(c *Config) { c.FallbackDir = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := valid()
			mutate(c)
			assert.Error(t, c.Validate())
		})
	}

	amqp := valid()
	amqp.Source, amqp.BaseURL, amqp.APIKey = SourceAMQP, "", ""
	amqp.AMQPURL, amqp.AMQPQueue = "amqp://localhost", "transcripts"
	assert.NoError(t, amqp.Validate())
}

// chdir changes the working directory for the duration of the test,
// restoring it on cleanup (equivalent of testing.T.Chdir, Go 1.24+).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}
