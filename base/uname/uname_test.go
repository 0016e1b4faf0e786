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

package uname_test

import (
	"testing"

	"github.com/gx-org/fhelinalg/base/uname"
)

func TestName(t *testing.T) {
	unames := uname.New()
	for _, name := range []string{"b1", "c"} {
		if !unames.Register(name) {
			t.Fatalf("cannot register %s", name)
		}
	}
	tests := []struct {
		name, want string
	}{
		{name: "a", want: "a"},
		{name: "a", want: "a1"},
		{name: "a", want: "a2"},
		{name: "b", want: "b"},
		{name: "b", want: "b2"},
		{name: "c", want: "c1"},
		{name: "a1", want: "a11"},
	}
	for i, test := range tests {
		got := unames.Name(test.name)
		if got != test.want {
			t.Errorf("test %d: for name %s, got %s but want %s", i, test.name, got, test.want)
		}
	}
}

func TestRegister(t *testing.T) {
	unames := uname.New()
	if got := unames.Name("x"); got != "x" {
		t.Errorf("got %s but want x", got)
	}
	if unames.Register("x") {
		t.Errorf("x registered twice")
	}
	if !unames.Register("x1") {
		t.Errorf("cannot register x1")
	}
	if got := unames.Name("x"); got != "x2" {
		t.Errorf("got %s but want x2", got)
	}
}
