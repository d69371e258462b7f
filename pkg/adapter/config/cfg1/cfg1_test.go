// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package cfg1_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/momeni/dbinst/pkg/adapter/config/cfg1"
	"github.com/momeni/dbinst/pkg/adapter/config/settings"
	"github.com/momeni/dbinst/pkg/adapter/config/vers"
	"github.com/momeni/dbinst/pkg/core/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func ExampleConfig_MarshalYAML() {
	d := settings.Duration(90 * time.Second)
	l, r := true, false
	c := &cfg1.Config{
		Dirs: cfg1.Dirs{
			Config:      "/etc/dbinst",
			Data:        "/var/lib/dbinst",
			Runtime:     "/run/dbinst",
			Credentials: "/etc/dbinst/credentials",
			Packages:    "/opt/dbinst",
			Units:       "/etc/systemd/system",
		},
		Catalog: cfg1.Catalog{
			IndexURL: "https://packages.example.com/index.json",
		},
		Cloud: cfg1.Cloud{
			APIURL:   "https://api.example.com/v1",
			TokenEnv: "DBINST_CLOUD_TOKEN",
		},
		Upgrade: cfg1.Upgrade{
			RestoreWait: &d,
		},
		Service: cfg1.Service{
			Manager: "systemd",
			Bus:     "system",
		},
		Database: cfg1.Database{
			AuthMethod: "scram-sha-256",
		},
		Agent: cfg1.Agent{
			Listen:   "127.0.0.1:10790",
			Logger:   &l,
			Recovery: &r,
		},
		Log: cfg1.Log{
			Level:  "info",
			Format: "json",
		},
		Vers: vers.Config{
			Versions: vers.Versions{
				Config: model.MustParseVersion("1.0.0"),
			},
		},
	}
	b, err := yaml.Marshal(c)
	fmt.Println(err)
	fmt.Println(string(b))
	// Output:
	// <nil>
	// dirs:
	//     config: /etc/dbinst
	//     data: /var/lib/dbinst
	//     runtime: /run/dbinst
	//     credentials: /etc/dbinst/credentials
	//     packages: /opt/dbinst
	//     units: /etc/systemd/system
	// catalog:
	//     index-url: https://packages.example.com/index.json
	// cloud:
	//     api-url: https://api.example.com/v1
	//     token-env: DBINST_CLOUD_TOKEN
	// upgrade:
	//     restore-wait: 1m30s
	// service:
	//     manager: systemd
	//     bus: system
	// database:
	//     auth-method: scram-sha-256
	// agent:
	//     listen: 127.0.0.1:10790
	//     logger: true
	//     recovery: false
	// log:
	//     level: info
	//     format: json
	// versions:
	//     config: 1.0.0
}

func setHome(t *testing.T) {
	t.Setenv("HOME", "/home/tester")
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("XDG_DATA_HOME", "")
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")
}

func TestLoadDefaults(t *testing.T) {
	setHome(t)
	c, err := cfg1.Load([]byte("versions:\n  config: 1.0.0\n"))
	require.NoError(t, err)
	assert.Equal(t, cfg1.Dirs{
		Config:      "/home/tester/.config/dbinst",
		Data:        "/home/tester/.local/share/dbinst/data",
		Runtime:     "/run/user/1000/dbinst",
		Credentials: "/home/tester/.config/dbinst/credentials",
		Packages:    "/home/tester/.local/share/dbinst/packages",
		Units:       "/home/tester/.config/systemd/user",
	}, c.Dirs)
	assert.Equal(t, cfg1.DefaultIndexURL, c.Catalog.IndexURL)
	assert.Equal(t, cfg1.DefaultTokenEnv, c.Cloud.TokenEnv)
	assert.Equal(t, cfg1.ManagerAuto, c.Service.Manager)
	assert.Equal(t, "scram-sha-256", c.Database.AuthMethod)
	assert.Equal(t, cfg1.DefaultListen, c.Agent.Listen)
	require.NotNil(t, c.Agent.Logger)
	assert.True(t, *c.Agent.Logger)
	assert.Equal(t, "info", c.Log.Level)
	assert.Equal(t, "text", c.Log.Format)
	assert.Nil(t, c.Upgrade.RestoreWait)
}

func TestLoadKeepsComments(t *testing.T) {
	setHome(t)
	data := []byte(`# instances manager settings
catalog:
    # nightly mirror
    index-url: file:///srv/index.json
log:
    level: debug # noisy
versions:
    config: 1.0.0
`)
	c, err := cfg1.Load(data)
	require.NoError(t, err)
	assert.Equal(t, "file:///srv/index.json", c.Catalog.IndexURL)
	assert.Equal(t, "debug", c.Log.Level)

	out, err := yaml.Marshal(c)
	require.NoError(t, err)
	s := string(out)
	assert.Contains(t, s, "# instances manager settings")
	assert.Contains(t, s, "# nightly mirror")
	assert.Contains(t, s, "level: debug # noisy")
	assert.Contains(t, s, "index-url: file:///srv/index.json")

	again, err := cfg1.Load(out)
	require.NoError(t, err)
	assert.Equal(t, c.Dirs, again.Dirs)
	assert.Equal(t, c.Log, again.Log)
}

func TestLoadRejects(t *testing.T) {
	setHome(t)
	cases := map[string]string{
		"major":        "versions: {config: 2.0.0}",
		"minor":        "versions: {config: 1.1.0}",
		"relative dir": "dirs: {data: var/lib}\nversions: {config: 1.0.0}",
		"manager":      "service: {manager: runit}\nversions: {config: 1.0.0}",
		"bus":          "service: {bus: session}\nversions: {config: 1.0.0}",
		"auth method":  "database: {auth-method: md5}\nversions: {config: 1.0.0}",
		"api url":      "cloud: {api-url: not a url}\nversions: {config: 1.0.0}",
		"listen":       "agent: {listen: nowhere}\nversions: {config: 1.0.0}",
		"log level":    "log: {level: loud}\nversions: {config: 1.0.0}",
		"log format":   "log: {format: xml}\nversions: {config: 1.0.0}",
		"range": "upgrade: {restore-wait: 1h, restore-wait-maximum: 10m}\n" +
			"versions: {config: 1.0.0}",
		"inverted range": "upgrade: {restore-wait-minimum: 1h, " +
			"restore-wait-maximum: 10m}\nversions: {config: 1.0.0}",
		"negative": "upgrade: {dump-wait: -1s}\nversions: {config: 1.0.0}",
		"sequence": "- versions: {config: 1.0.0}",
	}
	for name, data := range cases {
		name, data := name, data
		t.Run(name, func(t *testing.T) {
			_, err := cfg1.Load([]byte(data))
			assert.Error(t, err)
		})
	}
}

func TestDefault(t *testing.T) {
	setHome(t)
	c, err := cfg1.Default()
	require.NoError(t, err)
	assert.True(t, c.Vers.Versions.Config.Equal(cfg1.Version))
	b, err := yaml.Marshal(c)
	require.NoError(t, err)
	again, err := cfg1.Load(b)
	require.NoError(t, err)
	assert.Equal(t, c.Dirs, again.Dirs)
	assert.Equal(t, c.Service, again.Service)
}

func TestBuilders(t *testing.T) {
	setHome(t)
	c, err := cfg1.Load([]byte(`dirs:
    config: /tmp/dbinst-test/config
service:
    manager: process
versions:
    config: 1.0.0
`))
	require.NoError(t, err)
	uc, err := c.NewUpgradeUseCase()
	require.NoError(t, err)
	assert.NotNil(t, uc)

	_, err = c.NewCloudUseCase()
	assert.ErrorIs(t, err, cfg1.ErrNoCloudAPI)

	c.Cloud.APIURL = "https://api.example.com/v1"
	t.Setenv(c.Cloud.TokenEnv, "secret")
	cuc, err := c.NewCloudUseCase()
	require.NoError(t, err)
	assert.NotNil(t, cuc)

	assert.NotNil(t, c.NewEngine())
}
