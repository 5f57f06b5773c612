// Package debate runs fixed-round, rotating-speaker debates that end with a
// single judge turn.
package debate

import (
	"fmt"

	"github.com/dyike/cortextrader/pkg/errors"
)

// Transcript is the debate record a Coordinator drives. Both the research and
// the risk debate states implement it.
type Transcript interface {
	Rounds() int
	LastSpeaker() string
	Halted() bool
	Concluded() bool
	Record(speaker, argument string) error
	CompleteRound()
	Halt()
	Conclude(decision string)
}

type Phase int

const (
	PhaseSpeaker Phase = iota
	PhaseJudge
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseSpeaker:
		return "speaker"
	case PhaseJudge:
		return "judge"
	case PhaseDone:
		return "done"
	}
	return "unknown"
}

// Turn is whose move it is. Node is empty when Phase is PhaseDone.
type Turn struct {
	Phase Phase
	Node  string
}

// Coordinator holds the fixed speaker cycle, the judge and the round limit.
// It keeps no per-run state; everything lives in the Transcript.
type Coordinator struct {
	name      string
	speakers  []string
	judge     string
	maxRounds int
}

func NewCoordinator(name, judge string, maxRounds int, speakers ...string) (*Coordinator, error) {
	if len(speakers) < 2 {
		return nil, fmt.Errorf("debate %s needs at least two speakers", name)
	}
	if judge == "" {
		return nil, fmt.Errorf("debate %s needs a judge", name)
	}
	if maxRounds < 0 {
		maxRounds = 0
	}
	return &Coordinator{
		name:      name,
		speakers:  append([]string(nil), speakers...),
		judge:     judge,
		maxRounds: maxRounds,
	}, nil
}

func (c *Coordinator) Name() string      { return c.name }
func (c *Coordinator) Judge() string     { return c.judge }
func (c *Coordinator) MaxRounds() int    { return c.maxRounds }
func (c *Coordinator) Speakers() []string { return append([]string(nil), c.speakers...) }

// First is the speaker that opens the debate.
func (c *Coordinator) First() string { return c.speakers[0] }

// IsSpeaker reports whether node takes part in this debate.
func (c *Coordinator) IsSpeaker(node string) bool {
	return c.indexOf(node) >= 0
}

// Next returns the next turn. Once the round limit is reached, or the debate
// was halted, the judge is next regardless of rotation. With a limit of zero
// the judge opens the debate.
func (c *Coordinator) Next(t Transcript) Turn {
	if t.Concluded() {
		return Turn{Phase: PhaseDone}
	}
	if c.maxRounds <= 0 || t.Rounds() >= c.maxRounds || t.Halted() {
		return Turn{Phase: PhaseJudge, Node: c.judge}
	}
	idx := c.indexOf(t.LastSpeaker())
	if idx < 0 {
		return Turn{Phase: PhaseSpeaker, Node: c.speakers[0]}
	}
	return Turn{Phase: PhaseSpeaker, Node: c.speakers[(idx+1)%len(c.speakers)]}
}

// Record appends speaker's argument and closes the round after the last
// speaker in the cycle.
func (c *Coordinator) Record(t Transcript, speaker, argument string) error {
	turn := c.Next(t)
	if turn.Phase != PhaseSpeaker || turn.Node != speaker {
		return errors.Wrapf(errors.KindRoundLimit, "debate."+c.name,
			"%s spoke but next turn is %s %s: %w", speaker, turn.Phase, turn.Node, errors.ErrOutOfTurn)
	}
	if err := t.Record(speaker, argument); err != nil {
		return err
	}
	if speaker == c.speakers[len(c.speakers)-1] {
		t.CompleteRound()
	}
	return nil
}

// Halt stops the rotation so the judge runs on whatever history exists.
func (c *Coordinator) Halt(t Transcript) {
	t.Halt()
}

func (c *Coordinator) Conclude(t Transcript, decision string) {
	t.Conclude(decision)
}

func (c *Coordinator) indexOf(node string) int {
	for i, s := range c.speakers {
		if s == node {
			return i
		}
	}
	return -1
}
