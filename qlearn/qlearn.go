// Package qlearn runs tabular Q-learning on a one-dimensional grid with a single goal cell.
//
// The agent moves one cell left or right per tick, chosen uniformly at random. Reaching the
// goal pays GoalReward and every other move costs StepReward. The agent is not returned to
// the start after reaching the goal, so it can sit at the goal cell and keep collecting the
// goal reward by bumping into the right wall.
package qlearn

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"

	"github.com/tsawler/go-mlplayground/dataset"
)

// Grid and learning constants
const (
	GridSize   = 5
	Goal       = GridSize - 1
	Alpha      = 0.1
	Gamma      = 0.9
	GoalReward = 10.0
	StepReward = -1.0
)

// Action is a move on the grid
type Action int

const (
	Left Action = iota
	Right
)

func (a Action) String() string {
	switch a {
	case Left:
		return "left"
	case Right:
		return "right"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

// MarshalText renders the action by name
func (a Action) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText parses "left" or "right"
func (a *Action) UnmarshalText(b []byte) error {
	switch string(b) {
	case "left":
		*a = Left
	case "right":
		*a = Right
	default:
		return fmt.Errorf("qlearn: unknown action %q", string(b))
	}
	return nil
}

// ActionValues holds the estimated return of each action in one cell
type ActionValues struct {
	Left  float64
	Right float64
}

// Get returns the value of a
func (v ActionValues) Get(a Action) float64 {
	if a == Left {
		return v.Left
	}
	return v.Right
}

// Set stores the value of a
func (v *ActionValues) Set(a Action, q float64) {
	if a == Left {
		v.Left = q
		return
	}
	v.Right = q
}

// Max returns the larger of the two values
func (v ActionValues) Max() float64 {
	return math.Max(v.Left, v.Right)
}

// Best returns the greedy action; ties go right, towards the goal
func (v ActionValues) Best() Action {
	if v.Left > v.Right {
		return Left
	}
	return Right
}

type actionValuesJSON struct {
	Left  dataset.Float `json:"left"`
	Right dataset.Float `json:"right"`
}

// MarshalJSON implements json.Marshaler
func (v ActionValues) MarshalJSON() ([]byte, error) {
	return json.Marshal(actionValuesJSON{Left: dataset.Float(v.Left), Right: dataset.Float(v.Right)})
}

// UnmarshalJSON implements json.Unmarshaler
func (v *ActionValues) UnmarshalJSON(b []byte) error {
	var aux actionValuesJSON
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	v.Left, v.Right = float64(aux.Left), float64(aux.Right)
	return nil
}

// QTable maps every cell to its action values
type QTable []ActionValues

// NewQTable returns an all-zero table for the grid
func NewQTable() QTable {
	return make(QTable, GridSize)
}

// Clone returns an independent copy
func (q QTable) Clone() QTable {
	return append(QTable(nil), q...)
}

// Move applies a to pos, clamping at both walls
func Move(pos int, a Action) int {
	next := pos + 1
	if a == Left {
		next = pos - 1
	}
	if next < 0 {
		return 0
	}
	if next > Goal {
		return Goal
	}
	return next
}

// Reward pays GoalReward for landing on the goal and StepReward otherwise
func Reward(next int) float64 {
	if next == Goal {
		return GoalReward
	}
	return StepReward
}

// Update applies one temporal-difference update in place and returns the new value
func Update(q QTable, pos int, a Action, reward float64, next int) float64 {
	old := q[pos].Get(a)
	v := old + Alpha*(reward+Gamma*q[next].Max()-old)
	q[pos].Set(a, v)
	return v
}

// Transition is the outcome of one agent move
type Transition struct {
	From   int     `json:"from"`
	Action Action  `json:"action"`
	To     int     `json:"to"`
	Reward float64 `json:"reward"`
}

// Policy chooses an action in a cell
type Policy interface {
	Choose(pos int, q QTable) Action
}

// PolicyFunc adapts a function into a Policy
type PolicyFunc func(pos int, q QTable) Action

// Choose calls f
func (f PolicyFunc) Choose(pos int, q QTable) Action {
	return f(pos, q)
}

type randomPolicy struct {
	rng *rand.Rand
}

// RandomPolicy moves right when a uniform draw exceeds 0.5 and left otherwise
func RandomPolicy(rng *rand.Rand) Policy {
	return randomPolicy{rng: rng}
}

func (p randomPolicy) Choose(int, QTable) Action {
	if p.rng.Float64() > 0.5 {
		return Right
	}
	return Left
}
