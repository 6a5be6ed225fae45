package rules

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/jwebster45206/campaign-engine/pkg/random"
)

const (
	maxDice  = 100
	maxSides = 1000
)

var diceFormula = regexp.MustCompile(`^(\d*)d(\d+)(?:([+-])(\d+))?$`)

// Dice is a parsed NdM+K formula.
type Dice struct {
	Count    int
	Sides    int
	Modifier int
}

func (d Dice) String() string {
	switch {
	case d.Modifier > 0:
		return fmt.Sprintf("%dd%d+%d", d.Count, d.Sides, d.Modifier)
	case d.Modifier < 0:
		return fmt.Sprintf("%dd%d%d", d.Count, d.Sides, d.Modifier)
	}
	return fmt.Sprintf("%dd%d", d.Count, d.Sides)
}

// ParseDice parses formulas such as "d20", "2d6+3" and "1d8-1". Spaces
// are ignored and N defaults to 1.
func ParseDice(formula string) (Dice, error) {
	f := strings.ToLower(strings.ReplaceAll(formula, " ", ""))
	m := diceFormula.FindStringSubmatch(f)
	if m == nil {
		return Dice{}, fmt.Errorf("invalid dice formula %q", formula)
	}
	d := Dice{Count: 1}
	if m[1] != "" {
		d.Count, _ = strconv.Atoi(m[1])
	}
	d.Sides, _ = strconv.Atoi(m[2])
	if m[4] != "" {
		d.Modifier, _ = strconv.Atoi(m[4])
		if m[3] == "-" {
			d.Modifier = -d.Modifier
		}
	}
	if d.Count < 1 || d.Count > maxDice || d.Sides < 1 || d.Sides > maxSides {
		return Dice{}, fmt.Errorf("dice formula %q out of range", formula)
	}
	return d, nil
}

// Roll rolls every die and returns the total with the individual rolls.
func (d Dice) Roll(src random.Source) (int, []int) {
	rolls := make([]int, d.Count)
	total := d.Modifier
	for i := range rolls {
		rolls[i] = src.IntN(d.Sides) + 1
		total += rolls[i]
	}
	return total, rolls
}
