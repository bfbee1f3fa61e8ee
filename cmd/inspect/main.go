package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/danielpatrickdp/latent-twin/go-twin/internal/logging"
	"github.com/danielpatrickdp/latent-twin/go-twin/internal/store"
	"github.com/danielpatrickdp/latent-twin/go-twin/internal/twin"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to twin_state.db")
	subject := flag.String("subject", "", "subject to inspect (omit to list subjects)")
	history := flag.Int("history", 0, "show snapshot trail over N days")
	logN := flag.Int("log", 0, "show N most recent estimation log entries")
	series := flag.String("series", "", "print the raw snapshot series for one variable")
	jsonOut := flag.Bool("json", false, "output as JSON instead of tables")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/twin_state.db [--subject id] [--history N] [--log N] [--series variable] [--json]")
		os.Exit(2)
	}

	st, err := store.NewStore(*dbPath, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	if *subject == "" {
		err = runListSubjects(st, *jsonOut)
	} else {
		err = runSubject(st, *subject, *history, *logN, *series, *jsonOut)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region subjects

func runListSubjects(st *store.Store, jsonOut bool) error {
	subjects, err := st.ListSubjects()
	if err != nil {
		return err
	}
	if len(subjects) == 0 {
		fmt.Fprintln(os.Stderr, "no subjects found")
		return nil
	}
	if jsonOut {
		return printJSON(subjects)
	}
	for _, id := range subjects {
		fmt.Println(id)
	}
	return nil
}

// #endregion subjects

// #region subject-detail

func runSubject(st *store.Store, subjectID string, historyDays, logN int, series string, jsonOut bool) error {
	t, ok, err := st.GetTwin(subjectID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("subject %s not found", subjectID)
	}

	if series != "" {
		return runSeries(st, subjectID, series, jsonOut)
	}

	if jsonOut {
		return printJSON(t)
	}

	printTwin(t)

	if historyDays > 0 {
		trail, err := st.History(subjectID, time.Duration(historyDays)*24*time.Hour)
		if err != nil {
			return err
		}
		printTrail(trail)
	}

	if logN > 0 {
		entries, err := logging.ListRecent(st.DB(), subjectID, logN)
		if err != nil {
			return err
		}
		printLog(entries)
	}

	return nil
}

func printTwin(t *twin.TwinState) {
	fmt.Printf("Subject:    %s\n", t.SubjectID)
	fmt.Printf("Version:    %d (%s)\n", t.Version, shortID(t.VersionID))
	fmt.Printf("Updated:    %s\n", t.UpdatedAt.Format(time.RFC3339))
	fmt.Printf("Wellbeing:  %.3f\n", t.Composites.OverallWellbeing)
	fmt.Printf("Stability:  %s\n", t.Composites.Stability)
	fmt.Printf("Attractor:  %s\n", t.Composites.DominantAttractor)
	fmt.Printf("Resilience: %.3f\n", t.Composites.Resilience)
	fmt.Printf("Quality:    %.3f\n", t.Composites.DataQuality)

	fmt.Printf("\nRegime belief (entropy %.3f):\n", t.RegimeEntropy)
	for _, r := range twin.Regimes {
		fmt.Printf("  %-10s %.3f\n", r, t.RegimeBelief[r])
	}

	fmt.Printf("\n%-20s  %7s  %8s  %8s  %6s  %4s  %s\n",
		"Variable", "Value", "Variance", "Velocity", "Conf", "Obs", "Last Observed")
	for _, id := range twin.VariableIDs() {
		v, ok := t.Variables[id]
		if !ok {
			continue
		}
		last := "—"
		if !v.LastObserved.IsZero() {
			last = v.LastObserved.Format("2006-01-02 15:04")
		}
		mark := " "
		if v.WasOutlier {
			mark = "!"
		}
		fmt.Printf("%-20s  %7.3f  %8.5f  %+8.4f  %6.2f  %4d  %s %s\n",
			id, v.Value, v.Variance, v.Velocity, v.Confidence, v.Observations, last, mark)
	}
}

func printTrail(trail []*twin.TwinState) {
	if len(trail) == 0 {
		fmt.Printf("\nNo snapshots in window.\n")
		return
	}
	fmt.Printf("\n%-8s  %9s  %-10s  %-9s  %s\n", "Version", "Wellbeing", "Stability", "Attractor", "Time")
	for _, s := range trail {
		fmt.Printf("%-8d  %9.3f  %-10s  %-9s  %s\n",
			s.Version, s.Composites.OverallWellbeing, s.Composites.Stability,
			s.Composites.DominantAttractor, s.UpdatedAt.Format(time.RFC3339))
	}
}

func printLog(entries []logging.EstimationEntry) {
	if len(entries) == 0 {
		fmt.Printf("\nNo estimation log entries.\n")
		return
	}
	fmt.Printf("\n%-12s  %-11s  %-18s  %-8s  %-30s  %s\n",
		"Version", "Trigger", "Source", "Decision", "Reason", "Time")
	for _, e := range entries {
		fmt.Printf("%-12s  %-11s  %-18s  %-8s  %-30s  %s\n",
			shortID(e.VersionID), e.Trigger, elide(e.Source, 18), e.Decision,
			elide(e.Reason, 30), e.CreatedAt.Format(time.RFC3339))
	}
}

// #endregion subject-detail

// #region series

func runSeries(st *store.Store, subjectID, variableID string, jsonOut bool) error {
	values, err := st.VariableSeries(subjectID, variableID)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(map[string]interface{}{
			"subject_id": subjectID,
			"variable":   variableID,
			"values":     values,
		})
	}
	fmt.Printf("%s / %s (%d snapshots):\n", subjectID, variableID, len(values))
	for i, v := range values {
		fmt.Printf("  %4d  %.4f  %s\n", i, v, sparkBar(v))
	}
	if len(values) > 1 {
		sorted := append([]float64(nil), values...)
		sort.Float64s(sorted)
		fmt.Printf("min=%.4f median=%.4f max=%.4f\n",
			sorted[0], sorted[len(sorted)/2], sorted[len(sorted)-1])
	}
	return nil
}

// sparkBar renders a unit-interval value as a crude horizontal bar.
func sparkBar(v float64) string {
	n := int(v * 40)
	if n < 0 {
		n = 0
	}
	if n > 40 {
		n = 40
	}
	bar := make([]byte, n)
	for i := range bar {
		bar[i] = '#'
	}
	return string(bar)
}

// #endregion series

// #region output

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func elide(s string, max int) string {
	if len(s) > max {
		return s[:max-1] + "…"
	}
	return s
}

// #endregion output
