package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/danielpatrickdp/latent-twin/go-twin/internal/logging"
	"github.com/danielpatrickdp/latent-twin/go-twin/internal/replay"
	"github.com/danielpatrickdp/latent-twin/go-twin/internal/store"
	"github.com/danielpatrickdp/latent-twin/go-twin/internal/twin"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to twin_state.db (DB mode, requires --subject)")
	subject := flag.String("subject", "", "subject to replay in DB mode")
	fixturePath := flag.String("fixture", "", "path to fixture JSON (fixture mode)")
	flag.Parse()

	if (*dbPath == "" && *fixturePath == "") || (*dbPath != "" && *fixturePath != "") {
		fmt.Fprintln(os.Stderr, "usage: replay --db path/to/twin_state.db --subject id")
		fmt.Fprintln(os.Stderr, "       replay --fixture path/to/fixture.json")
		os.Exit(2)
	}

	var exitCode int
	if *fixturePath != "" {
		exitCode = runFixtureMode(*fixturePath)
	} else {
		if *subject == "" {
			fmt.Fprintln(os.Stderr, "DB mode requires --subject")
			os.Exit(2)
		}
		exitCode = runDBMode(*dbPath, *subject)
	}
	os.Exit(exitCode)
}

// #endregion main

// #region fixture-mode

func runFixtureMode(path string) int {
	f, err := replay.LoadFixture(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load fixture: %v\n", err)
		return 2
	}

	results, summary, err := replay.Replay(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "replay: %v\n", err)
		return 2
	}

	expected := make([]string, len(f.ExpectedResults))
	for i, e := range f.ExpectedResults {
		expected[i] = e.Action
	}

	code := printComparison(results, expected)
	printSummary(summary)

	if mismatches := replay.Verify(f, results); len(mismatches) > 0 {
		for _, m := range mismatches {
			fmt.Fprintf(os.Stderr, "mismatch: %s\n", m)
		}
		return 1
	}
	return code
}

// #endregion fixture-mode

// #region db-mode

// runDBMode rebuilds the recorded observation stream for a subject from the
// estimation log and replays it against the recorded decisions.
func runDBMode(dbPath, subjectID string) int {
	st, err := store.NewStore(dbPath, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		return 2
	}
	defer st.Close()

	f, expected, err := fixtureFromLog(st, subjectID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rebuild stream: %v\n", err)
		return 2
	}
	if len(f.Observations) == 0 {
		fmt.Fprintln(os.Stderr, "no replayable observation entries in estimation log")
		return 2
	}

	results, summary, err := replay.Replay(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "replay: %v\n", err)
		return 2
	}

	code := printComparison(results, expected)
	printSummary(summary)
	return code
}

// fixtureFromLog reconstructs observations and recorded decisions from
// estimation_log rows carrying a CycleRecord detail. Rows without a raw
// observation payload (batches, estimates) are skipped.
func fixtureFromLog(st *store.Store, subjectID string) (*replay.Fixture, []string, error) {
	entries, err := logging.ListRecent(st.DB(), subjectID, 0)
	if err != nil {
		return nil, nil, err
	}

	f := &replay.Fixture{
		Description: fmt.Sprintf("rebuilt from estimation log for %s", subjectID),
		SubjectID:   subjectID,
		Config:      replay.DefaultFixtureConfig(),
	}
	var expected []string

	// ListRecent returns newest first; walk backwards for stream order.
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if e.Trigger != "observation" || e.DetailJSON == "" {
			continue
		}
		var rec logging.CycleRecord
		if err := json.Unmarshal([]byte(e.DetailJSON), &rec); err != nil || rec.ObservationJSON == "" {
			continue
		}
		var obs twin.Observation
		if err := json.Unmarshal([]byte(rec.ObservationJSON), &obs); err != nil {
			continue
		}
		f.Observations = append(f.Observations, obs)
		expected = append(expected, e.Decision)
	}
	return f, expected, nil
}

// #endregion db-mode

// #region output

// printComparison outputs a comparison table and returns the exit code.
func printComparison(results []replay.Result, expected []string) int {
	fmt.Printf("%-24s| %-10s| %-10s| %s\n", "Observation", "Expected", "Replayed", "Match")
	fmt.Printf("%-24s+%-11s+%-11s+%s\n",
		"------------------------", "-----------", "-----------", "------")

	matches := 0
	total := len(results)
	if len(expected) < total {
		total = len(expected)
	}

	for i := 0; i < total; i++ {
		exp := expected[i]
		got := results[i].Action
		match := "DIFF"
		if actionsMatch(exp, got) {
			match = "OK"
			matches++
		}
		fmt.Printf("%-24s| %-10s| %-10s| %s\n", results[i].ObservationID, exp, got, match)
	}

	diverge := total - matches
	fmt.Printf("\n%d compared, %d match, %d diverge\n", total, matches, diverge)
	if diverge > 0 {
		return 1
	}
	return 0
}

func printSummary(s replay.Summary) {
	fmt.Printf("replayed %d observations: %d commits, %d rejects, %d eval failures\n",
		s.Total, s.Commits, s.Rejects, s.EvalFailures)
	if s.FinalState != nil {
		fmt.Printf("final state: version=%d wellbeing=%.3f stability=%s\n",
			s.FinalState.Version, s.FinalState.Composites.OverallWellbeing,
			s.FinalState.Composites.Stability)
	}
	for _, tp := range s.TippingPoints {
		fmt.Printf("tipping point: %s %s urgency=%s est=%.0fd score=%.2f\n",
			tp.VariableID, tp.Type, tp.Urgency, tp.EstimatedDays, tp.Score)
	}
}

// actionsMatch compares a recorded decision with a replayed one. The log
// records "commit"/"reject"; replay distinguishes eval failures from gate
// rejects, both of which the live path logged as rejects.
func actionsMatch(expected, replayed string) bool {
	if expected == replayed {
		return true
	}
	if expected == "reject" && replayed == "eval_fail" {
		return true
	}
	return false
}

// #endregion output
