/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package health

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_QuarantineAfterThreshold(t *testing.T) {
	tr := New(3)

	assert.Empty(t, tr.RecordFailure("r1"))
	assert.Empty(t, tr.RecordFailure("r1"))
	assert.True(t, tr.IsHealthy("r1"))
	assert.Equal(t, 2, tr.Failures("r1"))

	assert.Equal(t, []string{"r1"}, tr.RecordFailure("r1"))
	assert.False(t, tr.IsHealthy("r1"))

	// already quarantined registers are not reported again
	assert.Empty(t, tr.RecordFailure("r1"))
}

func TestTracker_SuccessResetsCount(t *testing.T) {
	tr := New(3)

	tr.RecordFailure("r1")
	tr.RecordFailure("r1")
	tr.RecordSuccess("r1")

	assert.Equal(t, 0, tr.Failures("r1"))

	tr.RecordFailure("r1")
	tr.RecordFailure("r1")
	assert.True(t, tr.IsHealthy("r1"))
}

func TestTracker_RecordFailureCountsEveryID(t *testing.T) {
	tr := New(2)

	tr.RecordFailure("a", "b", "c")
	crossed := tr.RecordFailure("a", "b")

	assert.ElementsMatch(t, []string{"a", "b"}, crossed)
	assert.True(t, tr.IsHealthy("c"))
	assert.Equal(t, []string{"a", "b"}, tr.Unhealthy())
}

func TestTracker_Reenable(t *testing.T) {
	var events []Transition

	tr := New(1, WithTransitionHook(func(ev Transition) {
		events = append(events, ev)
	}))

	tr.RecordFailure("r1")
	require.False(t, tr.IsHealthy("r1"))

	assert.True(t, tr.Reenable("r1"))
	assert.True(t, tr.IsHealthy("r1"))
	assert.Equal(t, 0, tr.Failures("r1"))
	assert.False(t, tr.Reenable("r1"))

	require.Len(t, events, 2)
	assert.Equal(t, Transition{RegisterID: "r1", Quarantined: true, Failures: 1}, events[0])
	assert.Equal(t, Transition{RegisterID: "r1"}, events[1])
}

func TestTracker_DefaultThreshold(t *testing.T) {
	assert.Equal(t, DefaultThreshold, New(0).Threshold())
	assert.Equal(t, 5, New(5).Threshold())
}

func TestTracker_UnknownIDIsHealthy(t *testing.T) {
	tr := New(3)

	assert.True(t, tr.IsHealthy("missing"))
	assert.Equal(t, 0, tr.Failures("missing"))
	assert.Empty(t, tr.Unhealthy())

	tr.RecordSuccess("missing")
}

func TestTracker_Concurrent(t *testing.T) {
	tr := New(100)

	var wg sync.WaitGroup

	for w := 0; w < 8; w++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for i := 0; i < 50; i++ {
				id := fmt.Sprintf("reg-%d", i%10)
				tr.RecordFailure(id)
				tr.IsHealthy(id)
			}
		}()
	}

	wg.Wait()

	total := 0
	for i := 0; i < 10; i++ {
		total += tr.Failures(fmt.Sprintf("reg-%d", i))
	}

	assert.Equal(t, 400, total)
	assert.Empty(t, tr.Unhealthy())
}
