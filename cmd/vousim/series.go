package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/talgya/vou/internal/agents"
	"github.com/talgya/vou/internal/engine"
)

var seriesHeader = []string{"tick", "time", "concentration", "habit", "effect", "desperation"}

// writeSeries writes one CSV row per executed tick.
func writeSeries(w io.Writer, p *agents.Person) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(seriesHeader); err != nil {
		return err
	}
	n := p.Ticks()
	if len(p.Habit) != n || len(p.Effect) != n || len(p.Desperation) != n {
		return fmt.Errorf("series lengths differ: concentration %d, habit %d, effect %d, desperation %d",
			n, len(p.Habit), len(p.Effect), len(p.Desperation))
	}
	for t := 0; t < n; t++ {
		row := []string{
			strconv.Itoa(t),
			engine.SimTime(t),
			formatFloat(p.Concentration[t]),
			formatFloat(p.Habit[t]),
			formatFloat(p.Effect[t]),
			formatFloat(p.Desperation[t]),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 8, 64)
}
