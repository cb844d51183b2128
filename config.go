package exq

import (
	"time"

	"github.com/spf13/viper"
)

// Config holds the recognized options of spec.md §6, with the
// documented defaults.
type Config struct {
	Host      string
	Port      int
	Database  int
	Password  string
	Namespace string
	Queues    []string

	PollTimeout       time.Duration
	ReconnectOnSleep  time.Duration
	Concurrency       int
	ReliableFetch     bool
	ShutdownTimeout   time.Duration
}

// DefaultConfig returns a Config populated with spec.md's documented
// defaults.
func DefaultConfig() *Config {
	return &Config{
		Host:             "127.0.0.1",
		Port:             6379,
		Database:         0,
		Password:         "",
		Namespace:        defaultNamespace,
		Queues:           []string{"default"},
		PollTimeout:      50 * time.Millisecond,
		ReconnectOnSleep: 100 * time.Millisecond,
		Concurrency:      25,
		ReliableFetch:    false,
		ShutdownTimeout:  -1 * time.Second,
	}
}

// LoadConfig reads configuration from (in increasing priority) the
// defaults above, an optional config file, EXQ_-prefixed environment
// variables, and whatever flags the caller has already bound into v.
// Grounded on od2-hive's viper.SetDefault/Get* pattern.
func LoadConfig(v *viper.Viper) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	def := DefaultConfig()
	v.SetDefault("host", def.Host)
	v.SetDefault("port", def.Port)
	v.SetDefault("database", def.Database)
	v.SetDefault("password", def.Password)
	v.SetDefault("namespace", def.Namespace)
	v.SetDefault("queues", def.Queues)
	v.SetDefault("poll_timeout_ms", def.PollTimeout.Milliseconds())
	v.SetDefault("reconnect_on_sleep_ms", def.ReconnectOnSleep.Milliseconds())
	v.SetDefault("concurrency", def.Concurrency)
	v.SetDefault("reliable_fetch", def.ReliableFetch)

	v.SetEnvPrefix("EXQ")
	v.AutomaticEnv()

	_ = v.ReadInConfig() // config file is optional

	return &Config{
		Host:             v.GetString("host"),
		Port:             v.GetInt("port"),
		Database:         v.GetInt("database"),
		Password:         v.GetString("password"),
		Namespace:        v.GetString("namespace"),
		Queues:           v.GetStringSlice("queues"),
		PollTimeout:      time.Duration(v.GetInt64("poll_timeout_ms")) * time.Millisecond,
		ReconnectOnSleep: time.Duration(v.GetInt64("reconnect_on_sleep_ms")) * time.Millisecond,
		Concurrency:      v.GetInt("concurrency"),
		ReliableFetch:    v.GetBool("reliable_fetch"),
		ShutdownTimeout:  def.ShutdownTimeout,
	}, nil
}
