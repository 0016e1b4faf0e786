// Copyright 2024 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package fheflag provides flag values for the fhelinalg tools.
package fheflag

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

type int64Lists struct {
	lists *[][]int64
}

var _ pflag.Value = (*int64Lists)(nil)

// Int64Lists returns a flag value collecting one list of integers
// each time the flag is given. Integers are separated by commas.
func Int64Lists(lists *[][]int64) pflag.Value {
	return &int64Lists{lists: lists}
}

func (il *int64Lists) String() string {
	var s []string
	for _, list := range *il.lists {
		var elts []string
		for _, v := range list {
			elts = append(elts, strconv.FormatInt(v, 10))
		}
		s = append(s, "["+strings.Join(elts, ",")+"]")
	}
	return strings.Join(s, " ")
}

func (il *int64Lists) Set(values string) error {
	var list []int64
	for _, value := range strings.Split(values, ",") {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		v, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return errors.Errorf("invalid integer %q", value)
		}
		list = append(list, v)
	}
	*il.lists = append(*il.lists, list)
	return nil
}

func (il *int64Lists) Type() string {
	return "ints"
}
