package pipeline

// Milestone is a progress threshold where the job does side work.
type Milestone int

const (
	MilestoneExtracting Milestone = iota + 1
	MilestoneMetadata
	MilestoneClassify
	MilestoneFinalizing
)

var milestones = []struct {
	milestone Milestone
	threshold int
	message   string
}{
	{MilestoneExtracting, 20, "Extracting metadata..."},
	{MilestoneMetadata, 30, "Metadata extracted"},
	{MilestoneClassify, 60, "Running sensitivity analysis..."},
	{MilestoneFinalizing, 90, "Finalizing..."},
}

const (
	MessageProcessing = "Processing..."
	MessageComplete   = "Processing complete"
	MessageFailed     = "Processing failed"
	MessageCancelled  = "Processing cancelled"
)

// Threshold returns the progress percent at which m fires.
func (m Milestone) Threshold() int {
	for _, ms := range milestones {
		if ms.milestone == m {
			return ms.threshold
		}
	}
	return 0
}

func (m Milestone) String() string {
	switch m {
	case MilestoneExtracting:
		return "extracting"
	case MilestoneMetadata:
		return "metadata"
	case MilestoneClassify:
		return "classify"
	case MilestoneFinalizing:
		return "finalizing"
	default:
		return "unknown"
	}
}

// Checkpoint is the outcome of one advance.
type Checkpoint struct {
	Progress int
	// Milestones crossed by this advance, in threshold order. A large step
	// can cross several at once.
	Milestones []Milestone
	Message    string
	// Persist is set on every persistEvery-th non-terminal checkpoint.
	Persist  bool
	Terminal bool
}

// Machine is the checkpoint arithmetic of one job. It does no I/O and has no
// notion of time; the Manager decides when to call Next.
type Machine struct {
	step         int
	persistEvery int
	progress     int
	count        int
	fired        map[Milestone]bool
}

// NewMachine starts at the given progress. Milestones at or below start are
// treated as already passed, which is how a resumed job skips work it did
// before a restart.
func NewMachine(start, step, persistEvery int) *Machine {
	if step < 1 {
		step = 1
	}
	if persistEvery < 1 {
		persistEvery = 1
	}
	start = clamp(start)

	m := &Machine{
		step:         step,
		persistEvery: persistEvery,
		progress:     start,
		fired:        make(map[Milestone]bool, len(milestones)),
	}
	for _, ms := range milestones {
		if ms.threshold <= start {
			m.fired[ms.milestone] = true
		}
	}
	return m
}

func (m *Machine) Progress() int { return m.progress }

func (m *Machine) Done() bool { return m.progress >= 100 }

// Fired reports whether ms has been crossed.
func (m *Machine) Fired(ms Milestone) bool { return m.fired[ms] }

// Next advances by one step. Calling it after the terminal checkpoint keeps
// returning a terminal checkpoint at 100 with no milestones.
func (m *Machine) Next() Checkpoint {
	if m.Done() {
		return Checkpoint{Progress: 100, Message: MessageComplete, Terminal: true}
	}

	m.count++
	m.progress = clamp(m.progress + m.step)

	cp := Checkpoint{Progress: m.progress, Message: MessageProcessing}
	for _, ms := range milestones {
		if m.fired[ms.milestone] || m.progress < ms.threshold {
			continue
		}
		m.fired[ms.milestone] = true
		cp.Milestones = append(cp.Milestones, ms.milestone)
		cp.Message = ms.message
	}

	if m.Done() {
		cp.Terminal = true
		cp.Message = MessageComplete
		return cp
	}
	cp.Persist = m.count%m.persistEvery == 0
	return cp
}

func clamp(p int) int {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}
