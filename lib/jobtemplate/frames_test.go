// Copyright 2026 The Renderbeam Authors
// SPDX-License-Identifier: Apache-2.0

package jobtemplate

import (
	"errors"
	"reflect"
	"testing"
)

func TestParseFrameRange(t *testing.T) {
	cases := []struct {
		expression string
		want       []int
	}{
		{"7", []int{7}},
		{"1-4", []int{1, 2, 3, 4}},
		{"1-10:3", []int{1, 4, 7, 10}},
		{"1-10:4", []int{1, 5, 9}},
		{"1-3,10,20-22", []int{1, 2, 3, 10, 20, 21, 22}},
		{" 5 , 2-3 ", []int{5, 2, 3}},
		{"0-0", []int{0}},
		{"3,1-4", []int{3, 1, 2, 4}},
	}
	for _, c := range cases {
		got, err := ParseFrameRange(c.expression)
		if err != nil {
			t.Errorf("ParseFrameRange(%q): %v", c.expression, err)
			continue
		}
		if !reflect.DeepEqual(got, c.want) {
			t.Errorf("ParseFrameRange(%q) = %v, want %v", c.expression, got, c.want)
		}
	}
}

func TestParseFrameRangeRejects(t *testing.T) {
	for _, expression := range []string{
		"",
		",",
		"a",
		"4-2",
		"1-10:0",
		"1-10:-2",
		"1-10:x",
		"5:2",
		"-3",
		"1-",
	} {
		_, err := ParseFrameRange(expression)
		if err == nil {
			t.Errorf("ParseFrameRange(%q) succeeded, want error", expression)
			continue
		}
		var rangeError *FrameRangeError
		if !errors.As(err, &rangeError) {
			t.Errorf("ParseFrameRange(%q) err = %v, want FrameRangeError", expression, err)
		}
	}
}

func TestFormatFrameRange(t *testing.T) {
	cases := []struct {
		frames []int
		want   string
	}{
		{nil, ""},
		{[]int{5}, "5"},
		{[]int{1, 2, 3}, "1-3"},
		{[]int{1, 3, 5}, "1,3,5"},
	}
	for _, c := range cases {
		if got := FormatFrameRange(c.frames); got != c.want {
			t.Errorf("FormatFrameRange(%v) = %q, want %q", c.frames, got, c.want)
		}
	}
}
