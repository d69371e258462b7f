// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package settings

import (
	"cmp"
	"fmt"
)

// Bounds is an inclusive range of acceptable values for a setting.
// A nil Min or Max leaves that side of the range open.
type Bounds[T cmp.Ordered] struct {
	Min *T
	Max *T
}

// OutOfRangeError reports a setting which violated its Bounds.
// Value is nil when the Bounds were inverted.
type OutOfRangeError[T cmp.Ordered] struct {
	Value    *T
	Bounds   Bounds[T]
	Inverted bool // Min is greater than Max
}

func (e *OutOfRangeError[T]) Error() string {
	switch {
	case e.Inverted:
		return "minimum is greater than maximum"
	case e.Bounds.Min != nil && *e.Value < *e.Bounds.Min:
		return "value is less than minimum"
	default:
		return "value is greater than maximum"
	}
}

// Check validates b itself.
func (b Bounds[T]) Check() *OutOfRangeError[T] {
	if b.Min != nil && b.Max != nil && *b.Min > *b.Max {
		return &OutOfRangeError[T]{Bounds: b, Inverted: true}
	}
	return nil
}

// Clamp moves **value into b (if it is not nil) and reports the
// original value when it was out of range. Inverted bounds are
// reported without touching **value.
func (b Bounds[T]) Clamp(value **T) *OutOfRangeError[T] {
	if err := b.Check(); err != nil {
		return err
	}
	if *value == nil {
		return nil
	}
	v := **value
	switch {
	case b.Min != nil && v < *b.Min:
		**value = *b.Min
	case b.Max != nil && v > *b.Max:
		**value = *b.Max
	default:
		return nil
	}
	return &OutOfRangeError[T]{Value: &v, Bounds: b}
}

// VerifyRange is like Clamp, but it wraps the violation with the
// setting name and the violated values, as formatted by show.
func VerifyRange[T cmp.Ordered](
	name string, value **T, b Bounds[T], show func(*T) string,
) error {
	err := b.Clamp(value)
	if err == nil {
		return nil
	}
	return fmt.Errorf(
		"%s (value=%s, min=%s, max=%s): %w",
		name, show(err.Value), show(b.Min), show(b.Max), err,
	)
}
