// SPDX-License-Identifier: GPL-3.0-or-later
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/CrawX/mailferry/domain"
	"github.com/CrawX/mailferry/log"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

type Encryption string

const (
	EncryptionSsl      = Encryption("ssl")
	EncryptionStartTls = Encryption("starttls")
	EncryptionNone     = Encryption("none")
)

const (
	DefaultPollInterval = 300
	DefaultTimeout      = 60
	DefaultConcurrency  = 4
	DefaultStateFile    = "state.db"
	DefaultFolder       = "INBOX"
	DefaultSearch       = "UNSEEN"
)

// Server holds everything needed to reach and log in to a mail server.
type Server struct {
	Host          string     `yaml:"host" json:"host" toml:"host"`
	Port          int        `yaml:"port" json:"port" toml:"port"`
	Encryption    Encryption `yaml:"encryption" json:"encryption" toml:"encryption"`
	Username      string     `yaml:"username" json:"username" toml:"username"`
	Password      string     `yaml:"password" json:"password" toml:"password"`
	TlsSkipVerify bool       `yaml:"tls_skip_verify" json:"tls_skip_verify" toml:"tls_skip_verify"`
	Compress      bool       `yaml:"compress" json:"compress" toml:"compress"`
}

func (s *Server) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

type Destination struct {
	Server `yaml:",inline" toml:",inline"`
	Folder string `yaml:"folder" json:"folder" toml:"folder"`
}

// Key identifies the account a destination logs in to. Sources with equal
// keys share one destination session per tick.
func (d *Destination) Key() string {
	return fmt.Sprintf("%s@%s", d.Username, d.Address())
}

type Source struct {
	Name     string          `yaml:"name" json:"name" toml:"name"`
	Protocol domain.Protocol `yaml:"protocol" json:"protocol" toml:"protocol"`
	Server   `yaml:",inline" toml:",inline"`

	Folder              string `yaml:"folder" json:"folder" toml:"folder"`
	SearchCriteria      string `yaml:"search_criteria" json:"search_criteria" toml:"search_criteria"`
	DeleteAfterTransfer bool   `yaml:"delete_after_transfer" json:"delete_after_transfer" toml:"delete_after_transfer"`
	PollIntervalSeconds int    `yaml:"poll_interval_seconds" json:"poll_interval_seconds" toml:"poll_interval_seconds"`
	// PollIntervalAlias is the older per-source key, also in seconds.
	PollIntervalAlias *int `yaml:"poll_interval" json:"poll_interval" toml:"poll_interval"`

	Destination Destination `yaml:"destination" json:"destination" toml:"destination"`
}

func (s *Source) PollInterval(global time.Duration) time.Duration {
	if s.PollIntervalSeconds > 0 {
		return time.Duration(s.PollIntervalSeconds) * time.Second
	}
	return global
}

type Config struct {
	PollIntervalSeconds int      `yaml:"poll_interval_seconds" json:"poll_interval_seconds" toml:"poll_interval_seconds"`
	StateFile           string   `yaml:"state_file" json:"state_file" toml:"state_file"`
	Loglevel            *string  `yaml:"log_level" json:"log_level" toml:"log_level"`
	TimeoutSeconds      int      `yaml:"timeout_seconds" json:"timeout_seconds" toml:"timeout_seconds"`
	Concurrency         int      `yaml:"concurrency" json:"concurrency" toml:"concurrency"`
	MetricsListen       string   `yaml:"metrics_listen" json:"metrics_listen" toml:"metrics_listen"`
	DryRun              bool     `yaml:"dry_run" json:"dry_run" toml:"dry_run"`
	MaxMessagesPerCycle int      `yaml:"max_messages_per_cycle" json:"max_messages_per_cycle" toml:"max_messages_per_cycle"`
	Sources             []Source `yaml:"sources" json:"sources" toml:"sources"`
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ReadConfig loads filename as TOML, JSON or YAML depending on its extension.
// Anything that is not .toml or .json is read as YAML. All errors are
// domain.ConfigError.
func ReadConfig(filename string) (*Config, error) {
	config, err := readConfig(filename)
	if err != nil {
		return nil, &domain.ConfigError{Err: err}
	}
	return config, nil
}

func readConfig(filename string) (*Config, error) {
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("could not read config file: %w", err)
	}

	config := &Config{}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".toml":
		_, err = toml.Decode(string(raw), config)
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		err = dec.Decode(config)
	default:
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		err = dec.Decode(config)
	}
	if err != nil {
		return nil, fmt.Errorf("could not parse config file %s: %w", filename, err)
	}

	config.applyDefaults(filepath.Dir(filename))

	err = config.validate()
	if err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) applyDefaults(baseDir string) {
	if c.PollIntervalSeconds == 0 {
		c.PollIntervalSeconds = DefaultPollInterval
	}
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = DefaultTimeout
	}
	if c.Concurrency == 0 {
		c.Concurrency = DefaultConcurrency
	}
	if len(strings.TrimSpace(c.StateFile)) == 0 {
		c.StateFile = DefaultStateFile
	}
	if !filepath.IsAbs(c.StateFile) {
		c.StateFile = filepath.Join(baseDir, c.StateFile)
	}

	for i := range c.Sources {
		s := &c.Sources[i]
		s.Protocol = domain.Protocol(strings.ToLower(string(s.Protocol)))
		s.Server.applyDefaults(s.Protocol)
		s.Destination.Server.applyDefaults(domain.ProtocolImap)

		if s.Protocol == domain.ProtocolImap {
			if len(s.Folder) == 0 {
				s.Folder = DefaultFolder
			}
			if len(strings.TrimSpace(s.SearchCriteria)) == 0 {
				s.SearchCriteria = DefaultSearch
			}
		}
		if len(s.Destination.Folder) == 0 {
			s.Destination.Folder = DefaultFolder
		}
		if len(strings.TrimSpace(s.Name)) == 0 {
			s.Name = s.derivedName()
		}
		if s.PollIntervalAlias != nil && s.PollIntervalSeconds == 0 {
			s.PollIntervalSeconds = *s.PollIntervalAlias
		}
	}
}

func (s *Server) applyDefaults(protocol domain.Protocol) {
	s.Encryption = Encryption(strings.ToLower(string(s.Encryption)))
	if len(s.Encryption) == 0 {
		s.Encryption = EncryptionSsl
	}
	s.Username = expandEnv(s.Username)
	s.Password = expandEnv(s.Password)

	if s.Port != 0 {
		return
	}
	switch {
	case protocol == domain.ProtocolPop3 && s.Encryption == EncryptionSsl:
		s.Port = 995
	case protocol == domain.ProtocolPop3:
		s.Port = 110
	case s.Encryption == EncryptionSsl:
		s.Port = 993
	default:
		s.Port = 143
	}
}

// expandEnv replaces ${NAME} references. Values without one are kept as is so
// passwords containing '$' survive.
func expandEnv(value string) string {
	if !strings.Contains(value, "${") {
		return value
	}
	return os.Expand(value, os.Getenv)
}

func (s *Source) derivedName() string {
	name := fmt.Sprintf("%s://%s@%s", s.Protocol, s.Username, s.Address())
	if s.Protocol == domain.ProtocolImap {
		name += "/" + s.Folder
	}
	return name
}

func (c *Config) validate() error {
	if c.PollIntervalSeconds < 0 {
		return errors.New("poll_interval_seconds must be positive")
	}
	if c.TimeoutSeconds < 0 {
		return errors.New("timeout_seconds must be positive")
	}
	if c.Concurrency < 0 {
		return errors.New("concurrency must be positive")
	}
	if c.MaxMessagesPerCycle < 0 {
		return errors.New("max_messages_per_cycle must be positive")
	}
	if c.Loglevel != nil && !log.ValidLevel(*c.Loglevel) {
		return fmt.Errorf("unknown log_level %q", *c.Loglevel)
	}
	if len(c.Sources) == 0 {
		return errors.New("at least one source must be defined in configuration")
	}

	names := map[string]bool{}
	for i := range c.Sources {
		s := &c.Sources[i]
		if names[s.Name] {
			return fmt.Errorf("source name %q is used more than once", s.Name)
		}
		names[s.Name] = true

		if err := s.validate(); err != nil {
			return fmt.Errorf("source %q: %w", s.Name, err)
		}
	}

	return nil
}

func (s *Source) validate() error {
	switch s.Protocol {
	case domain.ProtocolImap, domain.ProtocolPop3:
	case "":
		return errors.New("protocol must be set to imap or pop3")
	default:
		return fmt.Errorf("unsupported protocol %q", s.Protocol)
	}

	if s.PollIntervalSeconds < 0 {
		return errors.New("poll_interval_seconds must be positive")
	}
	if s.PollIntervalAlias != nil {
		if *s.PollIntervalAlias <= 0 {
			return errors.New("poll_interval must be positive")
		}
		if s.PollIntervalSeconds != *s.PollIntervalAlias {
			return errors.New("poll_interval and poll_interval_seconds disagree")
		}
	}

	if s.Protocol == domain.ProtocolPop3 {
		if len(s.Folder) > 0 && !strings.EqualFold(s.Folder, DefaultFolder) {
			return errors.New("folder is only supported for imap sources")
		}
		if len(strings.TrimSpace(s.SearchCriteria)) > 0 {
			return errors.New("search_criteria is only supported for imap sources")
		}
	}

	if err := s.Server.validate(); err != nil {
		return err
	}

	if err := s.Destination.Server.validate(); err != nil {
		return fmt.Errorf("destination: %w", err)
	}

	return nil
}

func (s *Server) validate() error {
	if err := validateNonEmptyStringField(s.Host, "host must not be empty"); err != nil {
		return err
	}

	if s.Port < 0 || s.Port > 65535 {
		return fmt.Errorf("port %d is out of range", s.Port)
	}

	switch s.Encryption {
	case EncryptionSsl, EncryptionStartTls, EncryptionNone:
	default:
		return fmt.Errorf("unsupported encryption mode %q", s.Encryption)
	}

	if err := validateNonEmptyStringField(s.Username, "username must not be empty"); err != nil {
		return err
	}

	if err := validateNonEmptyStringField(s.Password, "password must not be empty"); err != nil {
		return err
	}

	return nil
}

func validateNonEmptyStringField(field string, err string) error {
	if len(strings.TrimSpace(field)) == 0 {
		return errors.New(err)
	}

	return nil
}
