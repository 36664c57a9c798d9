// Copyright (C) 2026 The detd Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package mapping

import (
	"testing"

	"github.com/avnu-tsn/detd/internal/stream"
	"github.com/stretchr/testify/require"
)

func TestAssignAndMapFirstStream(t *testing.T) {
	s := New(8)
	next, a, err := s.AssignAndMap(stream.Config{PCP: 6})
	require.NoError(t, err)
	require.Equal(t, 7, a.Priority)
	require.Equal(t, 1, a.TC)
	require.Equal(t, 7, a.Queue)

	tcMap := next.PriorityToTC()
	require.Equal(t, 1, tcMap[7])
	for p := 0; p < NumPriorities; p++ {
		if p != 7 {
			require.Equal(t, BestEffortTC, tcMap[p])
		}
	}

	pcpMap := next.PriorityToPCP()
	require.Equal(t, uint8(6), pcpMap[7])

	// s itself must be untouched.
	require.Equal(t, BestEffortTC, s.PriorityToTC()[7])
}

func TestAssignAndMapSecondStream(t *testing.T) {
	s := New(8)
	s, _, err := s.AssignAndMap(stream.Config{PCP: 6})
	require.NoError(t, err)
	next, a, err := s.AssignAndMap(stream.Config{PCP: 5})
	require.NoError(t, err)

	require.Equal(t, 6, a.Priority)
	require.Equal(t, 2, a.TC)
	require.Equal(t, 6, a.Queue)

	tcMap := next.TCToQueue()
	require.Equal(t, BestEffortQueue, tcMap[BestEffortTC])
	require.Equal(t, 7, tcMap[1])
	require.Equal(t, 6, tcMap[2])

	// distinct TCs on distinct queues
	require.NotEqual(t, tcMap[1], tcMap[2])
}

func TestCapacityExhaustion(t *testing.T) {
	s := New(8)
	for i := 0; i < 8; i++ {
		var err error
		s, _, err = s.AssignAndMap(stream.Config{PCP: uint8(i % 8)})
		require.NoError(t, err, "admission %d should succeed", i)
	}

	_, _, err := s.AssignAndMap(stream.Config{PCP: 0})
	require.Error(t, err)
}

func TestAssignAndMapIsPure(t *testing.T) {
	s := New(8)
	_, _, err := s.AssignAndMap(stream.Config{PCP: 6})
	require.NoError(t, err)
	require.Equal(t, BestEffortTC, s.PriorityToTC()[7], "AssignAndMap must not mutate the receiver")
}
