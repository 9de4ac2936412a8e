// Package mindreader implements the number trick: whatever the player
// picks, the answer is always 5.
package mindreader

// Steps are the instructions shown one at a time.
var Steps = []string{
	"Step 1: Think of any number from 1 to 9.",
	"Step 2: Multiply it by 2.",
	"Step 3: Add 10 to the result.",
	"Step 4: Divide the result by 2.",
	"Step 5: Finally, subtract the number you first thought of.",
}

// Answer is the number every player ends up with.
const Answer = 5

// Intro is shown before the first step.
const Intro = "I will read the number in your mind. Say next when you are ready."

// Reveal is shown after the last step.
const Reveal = "The number in your mind is... 5."

// Game walks through the steps.
type Game struct {
	started  bool
	step     int
	revealed bool
}

// New returns a game at the intro screen.
func New() *Game { return &Game{} }

// Next advances the trick and returns the text to show.
func (g *Game) Next() string {
	switch {
	case g.revealed:
		return Reveal
	case !g.started:
		g.started = true
		g.step = 0
		return Steps[0]
	case g.step < len(Steps)-1:
		g.step++
		return Steps[g.step]
	default:
		g.revealed = true
		return Reveal
	}
}

// Restart goes back to the intro.
func (g *Game) Restart() {
	*g = Game{}
}

// Started reports whether the first step has been shown.
func (g *Game) Started() bool { return g.started }

// Step returns the zero-based index of the current step.
func (g *Game) Step() int { return g.step }

// Revealed reports whether the answer has been shown.
func (g *Game) Revealed() bool { return g.revealed }

// LastStep reports whether the current step is the final instruction.
func (g *Game) LastStep() bool { return g.started && g.step == len(Steps)-1 }

// Check verifies the trick for a starting number. It is what makes the
// reveal true for every pick.
func Check(n int) int {
	return (n*2+10)/2 - n
}
