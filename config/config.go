/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package config

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"

	"github.com/kelseyhightower/envconfig"

	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORT = "5002"
)

var ConfigStore atomic.Value

type ServerConfig struct {
	Port string `json:"port" envconfig:"BOOKING_SERVER_PORT"`
}

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"BOOKING_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns string `json:"dns" envconfig:"BOOKING_REDIS_DNS"`
}

// ProviderConfig holds connectivity for the upstream booking provider.
type ProviderConfig struct {
	BaseURL       string `json:"base_url" envconfig:"BOOKING_PROVIDER_BASE_URL"`
	APIToken      string `json:"api_token" envconfig:"BOOKING_PROVIDER_API_TOKEN"`
	WebhookSecret string `json:"webhook_secret" envconfig:"BOOKING_PROVIDER_WEBHOOK_SECRET"`
}

// KMSKeyAliases selects a distinct master key per data class. A key alias
// is never shared across classes.
type KMSKeyAliases struct {
	General string `json:"general" envconfig:"BOOKING_KMS_GENERAL_ALIAS"`
	PII     string `json:"pii" envconfig:"BOOKING_KMS_PII_ALIAS"`
	Payment string `json:"payment" envconfig:"BOOKING_KMS_PAYMENT_ALIAS"`
}

type KMSConfig struct {
	PrimaryRegion      string        `json:"primary_region" envconfig:"BOOKING_KMS_PRIMARY_REGION"`
	FallbackRegions    []string      `json:"fallback_regions" envconfig:"BOOKING_KMS_FALLBACK_REGIONS"`
	KeyAliases         KMSKeyAliases `json:"key_aliases"`
	AwsAccessKeyId     string        `json:"aws_access_key_id" envconfig:"AWS_ACCESS_KEY_ID"`
	AwsSecretAccessKey string        `json:"aws_secret_access_key" envconfig:"AWS_SECRET_ACCESS_KEY"`
}

type Notification struct {
	Webhook struct {
		Url     string            `json:"url"`
		Headers map[string]string `json:"headers"`
	} `json:"webhook"`
}

type Configuration struct {
	ProjectName  string           `json:"project_name" envconfig:"BOOKING_PROJECT_NAME"`
	Server       ServerConfig     `json:"server"`
	DataSource   DataSourceConfig `json:"data_source"`
	Redis        RedisConfig      `json:"redis"`
	Provider     ProviderConfig   `json:"provider"`
	KMS          KMSConfig        `json:"kms"`
	Notification Notification     `json:"notification"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}

	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("booking", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return err
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called booking.json with your config ❌")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "Booking Core"
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	// Trim white spaces from fields
	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)
	cnf.Provider.BaseURL = strings.TrimSpace(cnf.Provider.BaseURL)

	// Set default value for Port if it's empty
	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	if cnf.KMS.PrimaryRegion == "" {
		cnf.KMS.PrimaryRegion = "us-east-1"
	}
	if len(cnf.KMS.FallbackRegions) == 0 {
		cnf.KMS.FallbackRegions = []string{"us-west-2", "eu-west-1"}
	}
	if cnf.KMS.KeyAliases.General == "" {
		cnf.KMS.KeyAliases.General = "alias/parker-flight-general-production"
	}
	if cnf.KMS.KeyAliases.PII == "" {
		cnf.KMS.KeyAliases.PII = "alias/parker-flight-pii-production"
	}
	if cnf.KMS.KeyAliases.Payment == "" {
		cnf.KMS.KeyAliases.Payment = "alias/parker-flight-payment-production"
	}

	return nil
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
