// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/viper"

	"github.com/cardinalhq/thumbsync/internal/awsclient"
	"github.com/cardinalhq/thumbsync/internal/cloudstorage"
	"github.com/cardinalhq/thumbsync/internal/debugging"
	"github.com/cardinalhq/thumbsync/internal/enqueue"
	"github.com/cardinalhq/thumbsync/internal/healthcheck"
	"github.com/cardinalhq/thumbsync/internal/pubsub"
	"github.com/cardinalhq/thumbsync/internal/thumbnails"
)

// LegacyStorageConnectionEnv is read when no thumbnails storage is configured.
const LegacyStorageConnectionEnv = "AzureWebJobsGamesStorage"

// Config aggregates configuration for the application.
// Each field is owned by its respective package.
type Config struct {
	Queue   enqueue.Config      `mapstructure:"queue"`
	Storage cloudstorage.Config `mapstructure:"storage"`
	Cleanup CleanupConfig       `mapstructure:"cleanup"`
	API     APIConfig           `mapstructure:"api"`
	Health  healthcheck.Config  `mapstructure:"health"`
	Debug   debugging.Config    `mapstructure:"debug"`
}

type CleanupConfig struct {
	PathStrategy       string        `mapstructure:"path_strategy"`
	SourceContainer    string        `mapstructure:"source_container"`
	DeleteTimeout      time.Duration `mapstructure:"delete_timeout"`
	RedeliverTransient bool          `mapstructure:"redeliver_transient"`

	HTTP  HTTPConfig         `mapstructure:"http"`
	Queue pubsub.QueueConfig `mapstructure:"queue"`
	SQS   SQSTriggerConfig   `mapstructure:"sqs"`
}

type HTTPConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// SQSTriggerConfig points the cleanup trigger at S3 event notifications.
type SQSTriggerConfig struct {
	QueueURL string           `mapstructure:"queue_url"`
	AWS      awsclient.Config `mapstructure:"aws"`
}

type APIConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

func defaultConfig() *Config {
	tc := thumbnails.DefaultConfig()
	return &Config{
		Queue: enqueue.DefaultConfig(),
		Storage: cloudstorage.Config{
			Provider:  cloudstorage.ProviderAzure,
			Container: tc.Container,
		},
		Cleanup: CleanupConfig{
			PathStrategy:       tc.PathStrategy,
			SourceContainer:    tc.SourceContainer,
			DeleteTimeout:      tc.DeleteTimeout,
			RedeliverTransient: true,
			HTTP:               HTTPConfig{ListenAddr: ":8080"},
			Queue:              pubsub.DefaultQueueConfig(),
		},
		API:    APIConfig{ListenAddr: ":8081"},
		Health: healthcheck.DefaultConfig(),
	}
}

// Load reads configuration from files and environment variables.
// Environment variables use the prefix "THUMBSYNC" and the dot character
// in keys is replaced by an underscore. For example, "queue.azure.account"
// becomes "THUMBSYNC_QUEUE_AZURE_ACCOUNT".
func Load() (*Config, error) {
	cfg := defaultConfig()

	v := viper.New()
	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.SetEnvPrefix("THUMBSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, cfg)
	_ = v.ReadInConfig()

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	cfg.applyFallbacks()
	return cfg, nil
}

func (c *Config) applyFallbacks() {
	if c.Storage.Azure.IsZero() {
		c.Storage.Azure.ConnectionString = os.Getenv(LegacyStorageConnectionEnv)
	}
	if c.Queue.Azure.IsZero() {
		c.Queue.Azure = c.Storage.Azure
	}
}

// Thumbnails is the cleanup handler's view of the configuration.
func (c *Config) Thumbnails() thumbnails.Config {
	return thumbnails.Config{
		Container:       c.Storage.Container,
		PathStrategy:    c.Cleanup.PathStrategy,
		SourceContainer: c.Cleanup.SourceContainer,
		DeleteTimeout:   c.Cleanup.DeleteTimeout,
	}
}

func (c *Config) RedeliveryPolicy() thumbnails.RedeliveryPolicy {
	return thumbnails.RedeliveryPolicy{RedeliverTransient: c.Cleanup.RedeliverTransient}
}

// ValidateQueue checks what the enqueue paths need.
func (c *Config) ValidateQueue() error {
	var errs *multierror.Error

	if _, err := enqueue.ParseEncoding(c.Queue.Encoding); err != nil {
		errs = multierror.Append(errs, err)
	}
	switch c.Queue.Provider {
	case enqueue.ProviderAzure:
		if c.Queue.Azure.IsZero() {
			errs = multierror.Append(errs, fmt.Errorf("queue.azure: an account, endpoint or connection string is required"))
		}
	case enqueue.ProviderSQS:
	default:
		errs = multierror.Append(errs, fmt.Errorf("queue.provider: unknown provider %q", c.Queue.Provider))
	}
	return errs.ErrorOrNil()
}

// ValidateCleanup checks what the cleanup trigger needs.
func (c *Config) ValidateCleanup() error {
	var errs *multierror.Error

	if _, err := thumbnails.ParsePathStrategy(c.Cleanup.PathStrategy); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("cleanup.path_strategy: %w", err))
	}
	if c.Storage.Container == "" {
		errs = multierror.Append(errs, fmt.Errorf("storage.container is required"))
	}
	if c.Cleanup.DeleteTimeout < 0 {
		errs = multierror.Append(errs, fmt.Errorf("cleanup.delete_timeout must not be negative"))
	}
	switch c.Storage.Provider {
	case cloudstorage.ProviderAzure:
		if c.Storage.Azure.IsZero() {
			errs = multierror.Append(errs, fmt.Errorf("storage.azure: an account, endpoint or connection string is required (or set %s)", LegacyStorageConnectionEnv))
		}
	case cloudstorage.ProviderS3:
	default:
		errs = multierror.Append(errs, fmt.Errorf("storage.provider: unknown provider %q", c.Storage.Provider))
	}
	return errs.ErrorOrNil()
}

// bindEnvs registers all keys within cfg so that viper will look up
// corresponding environment variables when unmarshalling.
func bindEnvs(v *viper.Viper, cfg any, parts ...string) {
	val := reflect.ValueOf(cfg)
	typ := reflect.TypeOf(cfg)
	if typ.Kind() == reflect.Ptr {
		val = val.Elem()
		typ = typ.Elem()
	}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" {
			tag = strings.ToLower(f.Name)
		}
		key := append(parts, tag)
		if f.Type.Kind() == reflect.Struct {
			bindEnvs(v, val.Field(i).Interface(), key...)
			continue
		}
		_ = v.BindEnv(strings.Join(key, "."))
	}
}
