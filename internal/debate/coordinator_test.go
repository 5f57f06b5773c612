package debate

import (
	"fmt"
	"testing"

	"github.com/dyike/cortextrader/consts"
	"github.com/dyike/cortextrader/models"
	"github.com/dyike/cortextrader/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func researchDebate(t *testing.T, rounds int) *Coordinator {
	t.Helper()
	c, err := NewCoordinator("research", consts.ResearchManager, rounds, consts.BullResearcher, consts.BearResearcher)
	require.NoError(t, err)
	return c
}

func riskDebate(t *testing.T, rounds int) *Coordinator {
	t.Helper()
	c, err := NewCoordinator("risk", consts.PortfolioManager, rounds,
		consts.RiskyAnalyst, consts.SafeAnalyst, consts.NeutralAnalyst)
	require.NoError(t, err)
	return c
}

// drive plays the debate to its judge turn and returns the speaking order.
func drive(t *testing.T, c *Coordinator, tr Transcript) []string {
	t.Helper()
	var order []string
	for i := 0; i < 100; i++ {
		turn := c.Next(tr)
		if turn.Phase != PhaseSpeaker {
			return order
		}
		order = append(order, turn.Node)
		require.NoError(t, c.Record(tr, turn.Node, fmt.Sprintf("argument %d", i)))
	}
	t.Fatal("debate did not reach the judge")
	return nil
}

func TestTwoWayRotation(t *testing.T) {
	c := researchDebate(t, 2)
	st := &models.InvestDebateState{}

	order := drive(t, c, st)
	assert.Equal(t, []string{
		consts.BullResearcher, consts.BearResearcher,
		consts.BullResearcher, consts.BearResearcher,
	}, order)
	assert.Equal(t, 2, st.RoundCount)
	assert.Equal(t, Turn{Phase: PhaseJudge, Node: consts.ResearchManager}, c.Next(st))

	c.Conclude(st, "buy it")
	assert.Equal(t, PhaseDone, c.Next(st).Phase)
	assert.Equal(t, "buy it", st.JudgeDecision)
}

func TestThreeWayRotation(t *testing.T) {
	c := riskDebate(t, 1)
	st := &models.RiskDebateState{}

	order := drive(t, c, st)
	assert.Equal(t, []string{consts.RiskyAnalyst, consts.SafeAnalyst, consts.NeutralAnalyst}, order)
	assert.Equal(t, 1, st.RoundCount)
	assert.Contains(t, st.History, "Risky Analyst: argument 0")
	assert.Contains(t, st.CurrentNeutralResponse, "Neutral Analyst:")
}

func TestRoundCountNeverExceedsLimit(t *testing.T) {
	for rounds := 0; rounds <= 5; rounds++ {
		c := researchDebate(t, rounds)
		st := &models.InvestDebateState{}
		drive(t, c, st)
		assert.LessOrEqual(t, st.RoundCount, rounds)

		rc := riskDebate(t, rounds)
		rst := &models.RiskDebateState{}
		drive(t, rc, rst)
		assert.LessOrEqual(t, rst.RoundCount, rounds)
	}
}

func TestZeroRoundsGoesStraightToJudge(t *testing.T) {
	c := researchDebate(t, 0)
	st := &models.InvestDebateState{}

	assert.Equal(t, Turn{Phase: PhaseJudge, Node: consts.ResearchManager}, c.Next(st))
	assert.Empty(t, st.BullHistory)
	assert.Empty(t, st.BearHistory)
}

func TestHistoriesOnlyGrow(t *testing.T) {
	c := researchDebate(t, 3)
	st := &models.InvestDebateState{}

	prevBull, prevBear, prevAll := 0, 0, 0
	for {
		turn := c.Next(st)
		if turn.Phase != PhaseSpeaker {
			break
		}
		require.NoError(t, c.Record(st, turn.Node, ""))
		assert.GreaterOrEqual(t, len(st.BullHistory), prevBull)
		assert.GreaterOrEqual(t, len(st.BearHistory), prevBear)
		assert.Greater(t, len(st.History), prevAll)
		prevBull, prevBear, prevAll = len(st.BullHistory), len(st.BearHistory), len(st.History)
	}
	assert.Contains(t, st.History, "(no argument provided)")
}

func TestHaltHandsOffToJudge(t *testing.T) {
	c := riskDebate(t, 3)
	st := &models.RiskDebateState{}

	require.NoError(t, c.Record(st, consts.RiskyAnalyst, "go big"))
	c.Halt(st)

	turn := c.Next(st)
	assert.Equal(t, PhaseJudge, turn.Phase)
	assert.Equal(t, consts.PortfolioManager, turn.Node)
	assert.Equal(t, 0, st.RoundCount)
	assert.Contains(t, st.RiskyHistory, "go big")
}

func TestRecordOutOfTurn(t *testing.T) {
	c := researchDebate(t, 1)
	st := &models.InvestDebateState{}

	err := c.Record(st, consts.BearResearcher, "me first")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrOutOfTurn))
	assert.Empty(t, st.History)
}

func TestNewCoordinatorValidation(t *testing.T) {
	_, err := NewCoordinator("solo", consts.ResearchManager, 1, consts.BullResearcher)
	assert.Error(t, err)

	_, err = NewCoordinator("nojudge", "", 1, consts.BullResearcher, consts.BearResearcher)
	assert.Error(t, err)

	c, err := NewCoordinator("neg", consts.ResearchManager, -2, consts.BullResearcher, consts.BearResearcher)
	require.NoError(t, err)
	assert.Equal(t, 0, c.MaxRounds())
}
