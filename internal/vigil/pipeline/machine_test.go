package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMachine_DefaultCadence(t *testing.T) {
	m := NewMachine(0, 5, 10)

	var (
		progress []int
		persists []int
		crossed  = map[int][]Milestone{}
		messages = map[int]string{}
		terminal Checkpoint
	)
	for !m.Done() {
		cp := m.Next()
		progress = append(progress, cp.Progress)
		messages[cp.Progress] = cp.Message
		if cp.Persist {
			persists = append(persists, cp.Progress)
		}
		if len(cp.Milestones) > 0 {
			crossed[cp.Progress] = cp.Milestones
		}
		if cp.Terminal {
			terminal = cp
		}
	}

	require.Len(t, progress, 20)
	for i, p := range progress {
		assert.Equal(t, (i+1)*5, p)
	}
	assert.Equal(t, []int{50}, persists)
	assert.Equal(t, map[int][]Milestone{
		20: {MilestoneExtracting},
		30: {MilestoneMetadata},
		60: {MilestoneClassify},
		90: {MilestoneFinalizing},
	}, crossed)

	assert.Equal(t, MessageProcessing, messages[5])
	assert.Equal(t, "Extracting metadata...", messages[20])
	assert.Equal(t, "Metadata extracted", messages[30])
	assert.Equal(t, "Running sensitivity analysis...", messages[60])
	assert.Equal(t, "Finalizing...", messages[90])
	assert.Equal(t, MessageComplete, messages[100])

	assert.True(t, terminal.Terminal)
	assert.False(t, terminal.Persist)
	assert.Equal(t, 100, terminal.Progress)
}

func TestMachine_LargeStepCrossesSeveralMilestones(t *testing.T) {
	m := NewMachine(0, 50, 1)

	first := m.Next()
	assert.Equal(t, 50, first.Progress)
	assert.Equal(t, []Milestone{MilestoneExtracting, MilestoneMetadata}, first.Milestones)
	assert.Equal(t, "Metadata extracted", first.Message)
	assert.True(t, first.Persist)

	second := m.Next()
	assert.Equal(t, 100, second.Progress)
	assert.Equal(t, []Milestone{MilestoneClassify, MilestoneFinalizing}, second.Milestones)
	assert.True(t, second.Terminal)
	assert.Equal(t, MessageComplete, second.Message)
}

func TestMachine_UnevenStepFiresEachMilestoneOnce(t *testing.T) {
	for _, step := range []int{3, 7, 11, 33, 99, 150} {
		m := NewMachine(0, step, 4)
		seen := map[Milestone]int{}
		last := 0
		checkpoints := 0

		for !m.Done() {
			cp := m.Next()
			checkpoints++
			assert.Greater(t, cp.Progress, last, "step %d", step)
			last = cp.Progress
			for _, ms := range cp.Milestones {
				seen[ms]++
				assert.GreaterOrEqual(t, cp.Progress, ms.Threshold(), "step %d milestone %s", step, ms)
			}
			require.LessOrEqual(t, checkpoints, 100)
		}

		assert.Equal(t, 100, last, "step %d", step)
		for _, ms := range []Milestone{MilestoneExtracting, MilestoneMetadata, MilestoneClassify, MilestoneFinalizing} {
			assert.Equal(t, 1, seen[ms], "step %d milestone %s", step, ms)
		}
	}
}

func TestMachine_ResumeSkipsPassedMilestones(t *testing.T) {
	m := NewMachine(50, 5, 10)
	assert.True(t, m.Fired(MilestoneExtracting))
	assert.True(t, m.Fired(MilestoneMetadata))
	assert.False(t, m.Fired(MilestoneClassify))

	cp := m.Next()
	assert.Equal(t, 55, cp.Progress)
	assert.Empty(t, cp.Milestones)

	cp = m.Next()
	assert.Equal(t, []Milestone{MilestoneClassify}, cp.Milestones)
}

func TestMachine_AfterTerminal(t *testing.T) {
	m := NewMachine(100, 5, 10)
	assert.True(t, m.Done())

	cp := m.Next()
	assert.True(t, cp.Terminal)
	assert.Equal(t, 100, cp.Progress)
	assert.Empty(t, cp.Milestones)

	m = NewMachine(-20, 0, 0)
	assert.Equal(t, 0, m.Progress())
	assert.Equal(t, 1, m.Next().Progress)
}
