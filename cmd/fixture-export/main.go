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
	dbPath := flag.String("db", "", "path to twin_state.db")
	subject := flag.String("subject", "", "subject whose observation stream to export")
	last := flag.Int("last", 50, "number of most recent observation rows to export")
	outPath := flag.String("out", "", "output fixture JSON path")
	flag.Parse()

	if *dbPath == "" || *subject == "" || *outPath == "" {
		fmt.Fprintln(os.Stderr, "usage: fixture-export --db path/to/db --subject id --out path/to/fixture.json [--last N]")
		os.Exit(2)
	}

	if err := run(*dbPath, *subject, *last, *outPath); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region extract

func run(dbPath, subjectID string, last int, outPath string) error {
	st, err := store.NewStore(dbPath, 0)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer st.Close()

	entries, err := logging.ListRecent(st.DB(), subjectID, last)
	if err != nil {
		return fmt.Errorf("query estimation log: %w", err)
	}

	fixture := replay.Fixture{
		Description: fmt.Sprintf("Production export: observation stream for %s", subjectID),
		SubjectID:   subjectID,
		Config:      replay.DefaultFixtureConfig(),
	}

	// ListRecent is newest first; walk backwards for stream order. Only
	// single-observation rows carry the raw payload needed for replay.
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
		fixture.Observations = append(fixture.Observations, obs)
		fixture.ExpectedResults = append(fixture.ExpectedResults, replay.FixtureExpectedResult{
			ObservationID: obs.ID,
			Action:        e.Decision,
		})
	}

	if len(fixture.Observations) == 0 {
		return fmt.Errorf("no replayable observation rows in last %d entries for %s", last, subjectID)
	}

	if err := replay.SaveFixture(outPath, &fixture); err != nil {
		return err
	}
	fmt.Printf("Wrote fixture to %s (%d observations)\n", outPath, len(fixture.Observations))
	return nil
}

// #endregion extract
