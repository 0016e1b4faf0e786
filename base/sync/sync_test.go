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

package sync_test

import (
	"sync/atomic"
	"testing"

	"github.com/gx-org/fhelinalg/base/sync"
)

func TestForEach(t *testing.T) {
	for _, workers := range []int{-1, 0, 1, 3, 100} {
		const n = 10
		var calls [n]atomic.Int32
		var running, peak atomic.Int32
		sync.ForEach(n, workers, func(i int) {
			cur := running.Add(1)
			for {
				p := peak.Load()
				if cur <= p || peak.CompareAndSwap(p, cur) {
					break
				}
			}
			calls[i].Add(1)
			running.Add(-1)
		})
		for i := range calls {
			if got := calls[i].Load(); got != 1 {
				t.Errorf("workers=%d: index %d called %d times", workers, i, got)
			}
		}
		if workers > 0 && int(peak.Load()) > workers {
			t.Errorf("workers=%d: %d calls ran concurrently", workers, peak.Load())
		}
	}
	sync.ForEach(0, 2, func(int) { t.Errorf("unexpected call") })
}
