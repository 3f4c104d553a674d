package qlearn

import (
	"errors"
	"fmt"
	"time"

	"github.com/tsawler/go-mlplayground/dataset"
)

// DefaultInterval is the delay between ticks. The first tick also waits one interval.
const DefaultInterval = time.Second

// Snapshot is the published state of an Agent
type Snapshot struct {
	Position    int            `json:"position"`
	Episodes    int            `json:"episodes"` // Transitions since reset
	TotalReward float64        `json:"total_reward"`
	QTable      QTable         `json:"q_table"`
	Policy      []Action       `json:"policy"`  // Greedy action per cell
	Rewards     dataset.Series `json:"rewards"` // Cumulative reward after every transition
	Last        *Transition    `json:"last,omitempty"`
}

// Agent is the state container of the Q-learning demo. It is not safe for concurrent use.
type Agent struct {
	policy   Policy
	q        QTable
	pos      int
	episodes int
	total    float64
	rewards  []float64
	last     *Transition
}

// NewAgent creates an agent at cell 0 with an all-zero table
func NewAgent(policy Policy) (*Agent, error) {
	if policy == nil {
		return nil, errors.New("qlearn: policy is required")
	}
	return &Agent{policy: policy, q: NewQTable()}, nil
}

// Step makes one move and learns from it. It never reports exhaustion.
func (a *Agent) Step() bool {
	act := a.policy.Choose(a.pos, a.q)
	next := Move(a.pos, act)
	r := Reward(next)
	Update(a.q, a.pos, act, r, next)

	a.last = &Transition{From: a.pos, Action: act, To: next, Reward: r}
	a.pos = next
	a.episodes++
	a.total += r
	a.rewards = append(a.rewards, a.total)
	return true
}

// Reset returns the agent to cell 0 and forgets everything it learned
func (a *Agent) Reset() {
	a.q = NewQTable()
	a.pos = 0
	a.episodes = 0
	a.total = 0
	a.rewards = nil
	a.last = nil
}

// Position returns the current cell
func (a *Agent) Position() int {
	return a.pos
}

// Snapshot returns an independent copy of the agent state
func (a *Agent) Snapshot() Snapshot {
	s := Snapshot{
		Position:    a.pos,
		Episodes:    a.episodes,
		TotalReward: a.total,
		QTable:      a.q.Clone(),
		Policy:      make([]Action, len(a.q)),
		Rewards:     append(dataset.Series(nil), a.rewards...),
	}
	for i, v := range a.q {
		s.Policy[i] = v.Best()
	}
	if a.last != nil {
		t := *a.last
		s.Last = &t
	}
	return s
}

// Validate checks that a snapshot can be restored
func (s Snapshot) Validate() error {
	if len(s.QTable) != GridSize {
		return fmt.Errorf("invalid q-learning snapshot: table has %d cells, want %d", len(s.QTable), GridSize)
	}
	if s.Position < 0 || s.Position > Goal {
		return fmt.Errorf("invalid q-learning snapshot: position %d off the grid", s.Position)
	}
	if s.Episodes < 0 {
		return fmt.Errorf("invalid q-learning snapshot: negative episode count %d", s.Episodes)
	}
	if len(s.Rewards) != s.Episodes {
		return fmt.Errorf("invalid q-learning snapshot: %d rewards for %d episodes", len(s.Rewards), s.Episodes)
	}
	return nil
}

// Restore loads a previously captured snapshot
func (a *Agent) Restore(s Snapshot) error {
	if err := s.Validate(); err != nil {
		return err
	}

	a.q = s.QTable.Clone()
	a.pos = s.Position
	a.episodes = s.Episodes
	a.total = s.TotalReward
	a.rewards = append([]float64(nil), s.Rewards...)
	a.last = nil
	if s.Last != nil {
		t := *s.Last
		a.last = &t
	}
	return nil
}
