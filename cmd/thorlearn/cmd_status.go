package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"thorlearn/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print a JSON status document",
	Long: `Reports whether a learner is running and summarizes the knowledge
store: topic counts by status, knowledge totals, and 24-hour activity.`,
	RunE: runStatus,
}

// statusDoc is the JSON shape printed by the status command.
type statusDoc struct {
	Running       bool                 `json:"running"`
	PID           int                  `json:"pid,omitempty"`
	DatabaseStats *store.DatabaseStats `json:"database_stats,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	doc := statusDoc{}
	if pid, alive := readPIDFile(cfg.Workspace); alive {
		doc.Running = true
		doc.PID = pid
	}

	// Reads are safe alongside a running writer; the store serializes
	// through SQLite.
	st, err := store.Open(cfg.Store.DatabasePath)
	if err == nil {
		defer st.Close()
		if stats, err := st.GetDatabaseStats(); err == nil {
			doc.DatabaseStats = stats
		}
	}

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
