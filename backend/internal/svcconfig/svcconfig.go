/*

Package `svcconfig` loads the service config `rdvconfig.yml` shared by
`rdvaultd` and `rdvctl`: group directory location, MongoDB connection, PID
service, and vault copy settings.

A DEPRECATED `rdv.config.hcl` next to the configured path is still
recognized, so that deployments can migrate one file at a time.

*/
package svcconfig

import (
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/hcl"
	yaml "gopkg.in/yaml.v2"
)

// `DeprecatedConfigHcl` is the legacy config name.
const DeprecatedConfigHcl = "rdv.config.hcl"

type Logger interface {
	Warnw(msg string, kv ...interface{})
}

type Config struct {
	// `GroupsFile` is the YAML group directory; see package `identity`.
	GroupsFile string `yaml:"groupsFile" hcl:"groupsFile"`

	Mongo struct {
		URI  string `yaml:"uri" hcl:"uri"`
		CA   string `yaml:"ca" hcl:"ca"`
		Cert string `yaml:"cert" hcl:"cert"`
		Ns   string `yaml:"ns" hcl:"ns"`
	} `yaml:"mongo" hcl:"mongo"`

	Pid struct {
		BaseURL string `yaml:"baseURL" hcl:"baseURL"`
		Prefix  string `yaml:"prefix" hcl:"prefix"`
	} `yaml:"pid" hcl:"pid"`

	// `LandingBaseURL` is the resolve URL prefix for new handles.
	LandingBaseURL string `yaml:"landingBaseURL" hcl:"landingBaseURL"`

	VaultCopy struct {
		MaxRetries int    `yaml:"maxRetries" hcl:"maxRetries"`
		Backoff    string `yaml:"backoff" hcl:"backoff"`
		Compress   bool   `yaml:"compress" hcl:"compress"`
	} `yaml:"vaultCopy" hcl:"vaultCopy"`

	Metadata struct {
		RequiredFields []string `yaml:"requiredFields" hcl:"requiredFields"`
	} `yaml:"metadata" hcl:"metadata"`

	backoff time.Duration
}

func (cfg *Config) Backoff() time.Duration {
	return cfg.backoff
}

func Load(lg Logger, path string) (*Config, error) {
	var cfg Config
	cfgHcl := filepath.Join(filepath.Dir(path), DeprecatedConfigHcl)
	if exists(path) {
		dat, err := ioutil.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(dat, &cfg); err != nil {
			return nil, err
		}
	} else if exists(cfgHcl) {
		dat, err := ioutil.ReadFile(cfgHcl)
		if err != nil {
			return nil, err
		}
		if err := hcl.Unmarshal(dat, &cfg); err != nil {
			return nil, err
		}
		lg.Warnw(
			"DEPRECATED `rdv.config.hcl` config.  " +
				"You should migrate to `rdvconfig.yml`.",
		)
	} else {
		return nil, fmt.Errorf("missing config file `%s`", path)
	}

	if cfg.GroupsFile == "" {
		return nil, errors.New("config: missing `groupsFile`")
	}
	if cfg.Mongo.URI == "" {
		return nil, errors.New("config: missing `mongo.uri`")
	}
	if cfg.Mongo.Ns == "" {
		cfg.Mongo.Ns = "rdv"
	}
	if cfg.VaultCopy.MaxRetries == 0 {
		cfg.VaultCopy.MaxRetries = 5
	}
	if cfg.VaultCopy.Backoff == "" {
		cfg.VaultCopy.Backoff = "15m"
	}
	d, err := time.ParseDuration(cfg.VaultCopy.Backoff)
	if err != nil {
		return nil, fmt.Errorf(
			"config: invalid `vaultCopy.backoff`: %v", err,
		)
	}
	cfg.backoff = d

	return &cfg, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
