// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package comment keeps the comments of a hand-written YAML document,
// so they survive when the document is loaded, normalized, and written
// out again (e.g., by the `dbinst config show` command).
//
// Comments are collected as a tree which follows the mapping keys and
// sequence indices of the document. Head and line comments of each
// node are kept, while foot comments are dropped.
package comment

import (
	"errors"
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Comment holds the comments of one YAML node and its descendants.
// The zero Comment holds nothing and a nil *Comment may be saved too.
type Comment struct {
	Head string
	Line string

	// children are indexed by mapping keys, or by the decimal index of
	// the items of a sequence.
	children map[string]*Comment
	seq      bool
}

// LoadFrom collects the comments of n, which must be a mapping or a
// sequence node.
func LoadFrom(n *yaml.Node) (*Comment, error) {
	if n.Kind != yaml.MappingNode && n.Kind != yaml.SequenceNode {
		return nil, errors.New("node must be a mapping or a sequence")
	}
	return load(n), nil
}

func load(n *yaml.Node) *Comment {
	c := &Comment{Head: n.HeadComment, Line: n.LineComment}
	switch n.Kind {
	case yaml.MappingNode:
		c.children = make(map[string]*Comment, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			k, v := n.Content[i], n.Content[i+1]
			child := load(v)
			// comments are attached to keys for scalar values
			child.Head = k.HeadComment
			if child.Line == "" {
				child.Line = k.LineComment
			}
			c.children[k.Value] = child
		}
	case yaml.SequenceNode:
		c.seq = true
		c.children = make(map[string]*Comment, len(n.Content))
		for i, v := range n.Content {
			c.children[strconv.Itoa(i)] = load(v)
		}
	}
	return c
}

// SaveInto writes the comments of c into n. Nodes without a recorded
// comment are left unchanged, so n may contain keys or items which
// did not exist when c was loaded.
func (c *Comment) SaveInto(n *yaml.Node) error {
	if c == nil {
		return nil
	}
	if n.Kind == yaml.DocumentNode && len(n.Content) == 1 {
		n = n.Content[0]
	}
	switch {
	case n.Kind == yaml.MappingNode && !c.seq:
		for i := 0; i+1 < len(n.Content); i += 2 {
			k, v := n.Content[i], n.Content[i+1]
			child, ok := c.children[k.Value]
			if !ok {
				continue
			}
			k.HeadComment = child.Head
			if v.Kind == yaml.ScalarNode {
				v.LineComment = child.Line
			}
			if err := child.saveNested(v); err != nil {
				return fmt.Errorf("saving comments of %q: %w", k.Value, err)
			}
		}
	case n.Kind == yaml.SequenceNode && c.seq:
		for i, v := range n.Content {
			child, ok := c.children[strconv.Itoa(i)]
			if !ok {
				break
			}
			v.HeadComment = child.Head
			v.LineComment = child.Line
			if err := child.saveNested(v); err != nil {
				return fmt.Errorf("saving comments of item %d: %w", i, err)
			}
		}
	default:
		return fmt.Errorf("node kind %d does not match the comments", n.Kind)
	}
	return nil
}

func (c *Comment) saveNested(n *yaml.Node) error {
	if n.Kind != yaml.MappingNode && n.Kind != yaml.SequenceNode {
		return nil
	}
	if c.children == nil {
		return nil
	}
	return c.SaveInto(n)
}
