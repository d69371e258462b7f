// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package comment_test

import (
	"testing"

	"github.com/momeni/dbinst/pkg/adapter/config/comment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const doc = `# where instances live
dirs:
  # data directories
  data: /srv/dbinst # absolute
upgrade:
  restore-wait: 5m
`

func TestCommentsSurviveReencoding(t *testing.T) {
	n := &yaml.Node{}
	require.NoError(t, yaml.Unmarshal([]byte(doc), n))
	c, err := comment.LoadFrom(n.Content[0])
	require.NoError(t, err)

	type config struct {
		Dirs struct {
			Data    string `yaml:"data"`
			Runtime string `yaml:"runtime"`
		} `yaml:"dirs"`
		Upgrade struct {
			RestoreWait string `yaml:"restore-wait"`
		} `yaml:"upgrade"`
	}
	cfg := config{}
	require.NoError(t, n.Decode(&cfg))
	cfg.Dirs.Runtime = "/run/dbinst"

	out := &yaml.Node{}
	require.NoError(t, out.Encode(cfg))
	require.NoError(t, c.SaveInto(out))
	b, err := yaml.Marshal(out)
	require.NoError(t, err)
	out2 := string(b)
	assert.Contains(t, out2, "# where instances live\ndirs:\n")
	assert.Contains(t, out2, "    # data directories\n    data: /srv/dbinst # absolute\n")
	assert.Contains(t, out2, "    runtime: /run/dbinst\n")
	assert.Contains(t, out2, "upgrade:\n    restore-wait: 5m\n")
}

func TestLoadFromScalar(t *testing.T) {
	_, err := comment.LoadFrom(&yaml.Node{Kind: yaml.ScalarNode, Value: "x"})
	assert.Error(t, err)
}

func TestSaveNil(t *testing.T) {
	var c *comment.Comment
	assert.NoError(t, c.SaveInto(&yaml.Node{Kind: yaml.MappingNode}))
}
