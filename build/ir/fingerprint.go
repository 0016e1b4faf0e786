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

package ir

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

const (
	functionDomain = "fhelinalg/function/v1"
	programDomain  = "fhelinalg/program/v1"
)

// Fingerprint is a digest of the textual form of a function or program.
type Fingerprint [blake2b.Size256]byte

func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

func digest(domain, text string) Fingerprint {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(domain))
	h.Write([]byte{0})
	h.Write([]byte(text))
	var f Fingerprint
	copy(f[:], h.Sum(nil))
	return f
}

// Fingerprint returns a digest of the function.
// Two functions with the same fingerprint print the same.
func (fn *Function) Fingerprint() Fingerprint {
	return digest(functionDomain, fn.String())
}

// Fingerprint returns a digest of all the functions in the program.
func (p *Program) Fingerprint() Fingerprint {
	return digest(programDomain, p.String())
}
