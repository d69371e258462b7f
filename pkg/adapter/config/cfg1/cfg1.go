// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package cfg1 makes it possible to load configuration settings with
// version 1.x.y since all minor and patch versions (which are known)
// with the same major version, can be loaded with one implementation.
// When trying to serialize and write out settings, the latest known
// minor and patch version will be used since older versions (with the
// same major version) can ignore the extra fields too.
//
// Besides holding the settings, Config instantiates the adapters and
// use cases which are configured by them, so the command line layer
// does not need to know about the individual settings.
package cfg1

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/coreos/go-systemd/v22/util"
	"github.com/go-playground/validator/v10"
	"github.com/momeni/dbinst/pkg/adapter/catalog/httpcat"
	"github.com/momeni/dbinst/pkg/adapter/cloud/rest"
	"github.com/momeni/dbinst/pkg/adapter/config/comment"
	"github.com/momeni/dbinst/pkg/adapter/config/settings"
	"github.com/momeni/dbinst/pkg/adapter/config/vers"
	"github.com/momeni/dbinst/pkg/adapter/db/postgres"
	"github.com/momeni/dbinst/pkg/adapter/hash/scram"
	"github.com/momeni/dbinst/pkg/adapter/install/tarball"
	"github.com/momeni/dbinst/pkg/adapter/meta/fsmeta"
	"github.com/momeni/dbinst/pkg/adapter/restful/gin"
	"github.com/momeni/dbinst/pkg/adapter/service/process"
	"github.com/momeni/dbinst/pkg/adapter/service/systemd"
	"github.com/momeni/dbinst/pkg/core/log"
	"github.com/momeni/dbinst/pkg/core/model"
	"github.com/momeni/dbinst/pkg/core/repo"
	scrami "github.com/momeni/dbinst/pkg/core/scram"
	"github.com/momeni/dbinst/pkg/core/usecase/upgradeuc"
	"gopkg.in/yaml.v3"
)

// These constants define the major, minor, and patch version of the
// configuration settings which are supported by the Config struct.
const (
	Major = 1
	Minor = 0
	Patch = 0
)

// Version is the semantic version of Config struct.
var Version = model.MustParseVersion(fmt.Sprintf("%d.%d.%d", Major, Minor, Patch))

// Default settings which are used when a setting is missing.
const (
	DefaultIndexURL  = "https://packages.dbinst.dev/v1/index.json"
	DefaultTokenEnv  = "DBINST_CLOUD_TOKEN"
	DefaultListen    = "127.0.0.1:10790"
	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
)

// Service manager names.
const (
	ManagerAuto    = "auto"
	ManagerSystemd = "systemd"
	ManagerProcess = "process"
)

// Config contains all settings which are required by different parts
// of the project following the v1.x.y format. It is implemented with
// primitive fields and locally defined structs, so the configuration
// can be versioned and kept intact while other layers change freely.
type Config struct {
	Dirs     Dirs     `yaml:"dirs"`
	Catalog  Catalog  `yaml:"catalog"`
	Cloud    Cloud    `yaml:"cloud"`
	Upgrade  Upgrade  `yaml:"upgrade"`
	Service  Service  `yaml:"service"`
	Database Database `yaml:"database"`
	Agent    Agent    `yaml:"agent"`
	Log      Log      `yaml:"log"`

	// Vers contains the configuration file version.
	Vers vers.Config `yaml:",inline"`

	// Comments keeps the comments of the loaded file, so they are
	// written back by MarshalYAML. It may be nil.
	Comments *comment.Comment `yaml:"-"`
}

// Dirs contains the directories of the managed instances and their
// supporting files. Relative paths are not accepted. Missing items
// take their XDG based defaults.
type Dirs struct {
	Config      string `yaml:"config"`      // config dir, holding projects/
	Data        string `yaml:"data"`        // parent of data directories
	Runtime     string `yaml:"runtime"`     // parent of socket directories
	Credentials string `yaml:"credentials"` // admin credentials files
	Packages    string `yaml:"packages"`    // unpacked server packages
	Units       string `yaml:"units"`       // systemd unit files
}

// Catalog contains the server packages catalog settings.
type Catalog struct {
	// IndexURL is an http(s) or file URL (or a local path) of the
	// packages index.
	IndexURL string `yaml:"index-url" validate:"required"`
}

// Cloud contains the cloud control plane settings.
type Cloud struct {
	APIURL string `yaml:"api-url" validate:"omitempty,url"`
	// TokenEnv names the environment variable which holds the API
	// token, so the token itself is not written in config files.
	TokenEnv string `yaml:"token-env"`
}

// Upgrade contains the upgrade use case settings.
// Fields are pointers, so missing settings can be detected and left to
// the use case defaults.
type Upgrade struct {
	// RestoreWait bounds the wait for a freshly initialized server to
	// accept connections during a dump and restore.
	RestoreWait *settings.Duration `yaml:"restore-wait"`
	// MinRestoreWait and MaxRestoreWait are the inclusive boundaries
	// of RestoreWait, if given.
	MinRestoreWait *settings.Duration `yaml:"restore-wait-minimum"`
	MaxRestoreWait *settings.Duration `yaml:"restore-wait-maximum"`

	// DumpWait bounds the wait for the old server before dumping.
	DumpWait *settings.Duration `yaml:"dump-wait"`

	// StopTimeout bounds the graceful stop of a server before it is
	// killed.
	StopTimeout *settings.Duration `yaml:"stop-timeout"`
}

// Service selects how instance servers are supervised.
type Service struct {
	// Manager is auto, systemd, or process. The auto manager picks
	// systemd when it is running and process otherwise.
	Manager string `yaml:"manager" validate:"omitempty,oneof=auto systemd process"`
	// Bus is the systemd bus, user or system.
	Bus string `yaml:"bus" validate:"omitempty,oneof=user system"`
}

// Database contains the settings of the managed servers.
type Database struct {
	// AuthMethod specifies how the administrator password of a freshly
	// initialized server is hashed. Currently, only scram-sha-1 and
	// scram-sha-256 methods are supported. The scram-sha-256 is the
	// default value.
	AuthMethod string `yaml:"auth-method,omitempty"`

	hasher scrami.Hasher
}

// Agent contains the REST agent settings.
type Agent struct {
	Listen   string `yaml:"listen" validate:"omitempty,hostname_port"`
	Logger   *bool  `yaml:"logger"`   // log one record per request
	Recovery *bool  `yaml:"recovery"` // recover from handler panics
}

// Log contains the logging settings.
type Log struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format" validate:"omitempty,oneof=text json"`
}

// Load unmarshals the data byte slice and loads a Config instance
// assuming that it contains the Config settings. Extra items in the
// data will be ignored and missing items will take their default
// values. Thereafter, loaded Config will be validated and normalized.
// The comments of data are kept in the returned Config.
func Load(data []byte) (*Config, error) {
	n := &yaml.Node{}
	if err := yaml.Unmarshal(data, n); err != nil {
		return nil, fmt.Errorf("unmarshalling yaml: %w", err)
	}
	if l := len(n.Content); l != 1 {
		return nil, fmt.Errorf(
			"found %d children nodes, instead of 1 mapping child", l,
		)
	}
	c := &Config{}
	if err := n.Decode(c); err != nil {
		return nil, fmt.Errorf("decoding yaml node: %w", err)
	}
	if err := c.ValidateAndNormalize(); err != nil {
		return nil, fmt.Errorf("validating configs: %w", err)
	}
	cmnts, err := comment.LoadFrom(n.Content[0])
	if err != nil {
		return nil, fmt.Errorf("parsing comments: %w", err)
	}
	c.Comments = cmnts
	return c, nil
}

// Default returns a Config with all settings at their defaults.
func Default() (*Config, error) {
	c := &Config{}
	c.Vers.Versions.Config = Version
	if err := c.ValidateAndNormalize(); err != nil {
		return nil, err
	}
	return c, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateAndNormalize validates the configuration settings and
// returns an error if they were not acceptable. It also replaces the
// missing settings with their default values.
func (c *Config) ValidateAndNormalize() error {
	if err := c.Vers.Validate(Major, Minor); err != nil {
		return fmt.Errorf(
			"expecting version v%d.%d: %w", Major, Minor, err,
		)
	}
	if err := c.Dirs.normalize(); err != nil {
		return fmt.Errorf("validating dirs: %w", err)
	}
	if c.Catalog.IndexURL == "" {
		c.Catalog.IndexURL = DefaultIndexURL
	}
	if c.Cloud.TokenEnv == "" {
		c.Cloud.TokenEnv = DefaultTokenEnv
	}
	if c.Service.Manager == "" {
		c.Service.Manager = ManagerAuto
	}
	if c.Service.Bus == "" {
		c.Service.Bus = "user"
		if os.Geteuid() == 0 {
			c.Service.Bus = "system"
		}
	}
	if c.Agent.Listen == "" {
		c.Agent.Listen = DefaultListen
	}
	settings.Default(&c.Agent.Logger, true)
	settings.Default(&c.Agent.Recovery, true)
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
	if err := validate.Struct(c); err != nil {
		return err
	}
	if err := c.Database.ValidateAndNormalize(); err != nil {
		return fmt.Errorf("validating database settings: %w", err)
	}
	u := &c.Upgrade
	if err := settings.VerifyRange(
		"restore wait", &u.RestoreWait, settings.Bounds[settings.Duration]{
			Min: u.MinRestoreWait, Max: u.MaxRestoreWait,
		}, str,
	); err != nil {
		return err
	}
	for _, d := range []*settings.Duration{u.RestoreWait, u.DumpWait, u.StopTimeout} {
		if d != nil && *d <= 0 {
			return fmt.Errorf("non-positive duration: %v", str(d))
		}
	}
	return nil
}

func str(d *settings.Duration) string {
	if s := d.Marshal(); s != nil {
		return *s
	}
	return "nil"
}

func (d *Dirs) normalize() error {
	home, _ := os.UserHomeDir()
	xdg := func(env, fallback string) string {
		if v := os.Getenv(env); v != "" {
			return v
		}
		return filepath.Join(home, fallback)
	}
	cfgHome := xdg("XDG_CONFIG_HOME", ".config")
	dataHome := xdg("XDG_DATA_HOME", filepath.Join(".local", "share"))
	runtimeHome := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeHome == "" {
		runtimeHome = os.TempDir()
	}
	defaults := []struct {
		dir  *string
		dflt string
	}{
		{&d.Config, filepath.Join(cfgHome, "dbinst")},
		{&d.Data, filepath.Join(dataHome, "dbinst", "data")},
		{&d.Runtime, filepath.Join(runtimeHome, "dbinst")},
		{&d.Credentials, filepath.Join(cfgHome, "dbinst", "credentials")},
		{&d.Packages, filepath.Join(dataHome, "dbinst", "packages")},
		{&d.Units, filepath.Join(cfgHome, "systemd", "user")},
	}
	for _, df := range defaults {
		if *df.dir == "" {
			*df.dir = df.dflt
		}
		if !filepath.IsAbs(*df.dir) {
			return fmt.Errorf("not an absolute path: %q", *df.dir)
		}
		*df.dir = filepath.Clean(*df.dir)
	}
	return nil
}

// ValidateAndNormalize checks the authentication method and creates
// its hasher.
func (d *Database) ValidateAndNormalize() error {
	if d.AuthMethod == "" {
		d.AuthMethod = "scram-sha-256"
	}
	h, err := scram.ByName(d.AuthMethod)
	if err != nil {
		return err
	}
	d.hasher = h
	return nil
}

// Registry creates the instances registry of the configured dirs.
func (c *Config) Registry() *fsmeta.Registry {
	return fsmeta.NewRegistry(
		fsmeta.NewStore(), c.Dirs.Data, c.Dirs.Runtime, c.Dirs.Credentials,
	)
}

// ServiceController creates the configured service controller.
func (c *Config) ServiceController(reg repo.InstanceRegistry) repo.ServiceController {
	m := c.Service.Manager
	if m == ManagerAuto {
		m = ManagerProcess
		if util.IsRunningSystemd() {
			m = ManagerSystemd
		}
	}
	if m == ManagerSystemd {
		bus := systemd.UserBus
		if c.Service.Bus == "system" {
			bus = systemd.SystemBus
		}
		return systemd.New(reg, c.Dirs.Units, bus)
	}
	return process.NewController(reg, nil)
}

// NewUpgradeUseCase instantiates the local upgrade use case and all of
// its collaborators based on the settings in c.
func (c *Config) NewUpgradeUseCase() (*upgradeuc.UseCase, error) {
	reg := c.Registry()
	cat, err := httpcat.New(c.Catalog.IndexURL)
	if err != nil {
		return nil, fmt.Errorf("creating catalog: %w", err)
	}
	var ropts []process.RunnerOption
	if c.Upgrade.StopTimeout != nil {
		ropts = append(ropts, process.WithStopTimeout(
			time.Duration(*c.Upgrade.StopTimeout),
		))
	}
	runner, err := process.NewRunner(reg, c.Database.hasher, ropts...)
	if err != nil {
		return nil, fmt.Errorf("creating server runner: %w", err)
	}
	opts := []upgradeuc.Option{
		upgradeuc.WithProjectLocator(fsmeta.NewProjectLocator(c.Dirs.Config)),
	}
	if c.Upgrade.RestoreWait != nil {
		opts = append(opts, upgradeuc.WithRestoreWait(
			time.Duration(*c.Upgrade.RestoreWait),
		))
	}
	if c.Upgrade.DumpWait != nil {
		opts = append(opts, upgradeuc.WithDumpWait(
			time.Duration(*c.Upgrade.DumpWait),
		))
	}
	return upgradeuc.New(upgradeuc.Collaborators{
		Registry:  reg,
		Catalog:   cat,
		Installer: tarball.New(c.Dirs.Packages, nil),
		Services:  c.ServiceController(reg),
		Runner:    runner,
		Connector: postgres.NewConnector(nil),
		Meta:      fsmeta.NewStore(),
	}, opts...)
}

// ErrNoCloudAPI is returned when a cloud operation is asked while no
// cloud API URL is configured.
var ErrNoCloudAPI = errors.New("cloud.api-url is not configured")

// NewCloudUseCase instantiates the cloud upgrade use case. The API
// token is read from the environment variable which is named by the
// cloud.token-env setting.
func (c *Config) NewCloudUseCase() (*upgradeuc.CloudUseCase, error) {
	if c.Cloud.APIURL == "" {
		return nil, ErrNoCloudAPI
	}
	client, err := rest.New(c.Cloud.APIURL, os.Getenv(c.Cloud.TokenEnv))
	if err != nil {
		return nil, fmt.Errorf("creating cloud client: %w", err)
	}
	return upgradeuc.NewCloud(client)
}

// NewEngine instantiates a new gin-gonic engine instance based on the
// agent settings.
func (c *Config) NewEngine() *gin.Engine {
	middlewares := make([]gin.HandlerFunc, 0, 2)
	if *c.Agent.Logger {
		middlewares = append(middlewares, gin.Logger())
	}
	if *c.Agent.Recovery {
		middlewares = append(middlewares, gin.Recovery())
	}
	return gin.New(middlewares...)
}

// SetupLogging installs the default slog logger which writes to w.
func (c *Config) SetupLogging(w io.Writer) error {
	return log.Setup(w, c.Log.Level, c.Log.Format)
}

// Marshalled mirrors Config, replacing the fields which need a custom
// YAML form by their primitive serialized values.
type Marshalled struct {
	Dirs     Dirs     `yaml:"dirs"`
	Catalog  Catalog  `yaml:"catalog"`
	Cloud    Cloud    `yaml:"cloud"`
	Upgrade  struct {
		RestoreWait    *string `yaml:"restore-wait,omitempty"`
		MinRestoreWait *string `yaml:"restore-wait-minimum,omitempty"`
		MaxRestoreWait *string `yaml:"restore-wait-maximum,omitempty"`
		DumpWait       *string `yaml:"dump-wait,omitempty"`
		StopTimeout    *string `yaml:"stop-timeout,omitempty"`
	} `yaml:"upgrade"`
	Service  Service          `yaml:"service"`
	Database Database         `yaml:"database"`
	Agent    Agent            `yaml:"agent"`
	Log      Log              `yaml:"log"`
	Vers     *vers.Marshalled `yaml:",inline"`
}

// MarshalYAML encodes the Marshalled form of c as a YAML node and
// restores the comments of c into it.
func (c *Config) MarshalYAML() (interface{}, error) {
	m := c.Marshal()
	n := &yaml.Node{}
	if err := n.Encode(m); err != nil {
		return nil, fmt.Errorf("encoding *Marshalled as YAML: %w", err)
	}
	if err := c.Comments.SaveInto(n); err != nil {
		return nil, fmt.Errorf("saving YAML nodes comments: %w", err)
	}
	return n, nil
}

// Marshal creates an instance of the Marshalled struct and fills it
// with the c Config contents.
func (c *Config) Marshal() *Marshalled {
	m := &Marshalled{
		Dirs:     c.Dirs,
		Catalog:  c.Catalog,
		Cloud:    c.Cloud,
		Service:  c.Service,
		Database: c.Database,
		Agent:    c.Agent,
		Log:      c.Log,
		Vers:     c.Vers.Marshal(),
	}
	m.Upgrade.RestoreWait = c.Upgrade.RestoreWait.Marshal()
	m.Upgrade.MinRestoreWait = c.Upgrade.MinRestoreWait.Marshal()
	m.Upgrade.MaxRestoreWait = c.Upgrade.MaxRestoreWait.Marshal()
	m.Upgrade.DumpWait = c.Upgrade.DumpWait.Marshal()
	m.Upgrade.StopTimeout = c.Upgrade.StopTimeout.Marshal()
	return m
}
