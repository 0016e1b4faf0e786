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

// Package uname provides unique names.
package uname

import "fmt"

// Unique generates unique names.
type Unique struct {
	next  map[string]int
	taken map[string]bool
}

// New name generator.
func New() *Unique {
	return &Unique{
		next:  make(map[string]int),
		taken: make(map[string]bool),
	}
}

// Register a name so that it is never returned by Name.
// Returns false if the name has already been taken.
func (n *Unique) Register(name string) bool {
	if n.taken[name] {
		return false
	}
	n.taken[name] = true
	return true
}

// Name returns a unique name given a desired base name.
// If the base name is available, it is returned directly. Else, a unique suffix is appended.
func (n *Unique) Name(root string) string {
	if !n.taken[root] {
		n.taken[root] = true
		return root
	}
	for {
		n.next[root]++
		name := fmt.Sprintf("%s%d", root, n.next[root])
		if !n.taken[name] {
			n.taken[name] = true
			return name
		}
	}
}
