package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rodaine/table"

	"voxelfall.ai/internal/persistence/indexdb"
	persistlog "voxelfall.ai/internal/persistence/log"
	"voxelfall.ai/internal/sim/world"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "leaderboard":
			os.Exit(leaderboardCmd(os.Args[2:], os.Stdout))
		case "runs":
			os.Exit(runsCmd(os.Args[2:], os.Stdout))
		case "events":
			os.Exit(eventsCmd(os.Args[2:], os.Stdout))
		case "state":
			os.Exit(stateCmd(os.Args[2:], os.Stdout))
		}
	}
	os.Exit(listCmd(os.Args[1:], os.Stdout))
}

func listCmd(args []string, out io.Writer) int {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	entries, err := os.ReadDir(filepath.Join(*dataDir, "worlds"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		return 1
	}
	for _, e := range entries {
		if e.IsDir() {
			fmt.Fprintln(out, e.Name())
		}
	}
	return 0
}

func worldDir(dataDir, worldID string) string {
	return filepath.Join(dataDir, "worlds", worldID)
}

func openIndex(dataDir, worldID, dbPath string) (*indexdb.Reader, error) {
	path := strings.TrimSpace(dbPath)
	if path == "" {
		path = filepath.Join(worldDir(dataDir, worldID), "index", "races.sqlite")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return indexdb.OpenReader(path)
}

func leaderboardCmd(args []string, out io.Writer) int {
	fs := flag.NewFlagSet("leaderboard", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "voxel_fall", "world id")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	limit := fs.Int("limit", 20, "result limit")
	asJSON := fs.Bool("json", false, "print JSON lines instead of a table")
	_ = fs.Parse(args)

	r, err := openIndex(*dataDir, *worldID, *dbPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		return 1
	}
	defer r.Close()

	rows, err := r.Leaderboard(context.Background(), *limit)
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		return 1
	}
	if *asJSON {
		for _, row := range rows {
			printJSON(out, row)
		}
		return 0
	}
	t := table.New("#", "Player", "Best", "Finishes", "Falls", "Restarts", "Last Seen").WithWriter(out)
	for i, row := range rows {
		t.AddRow(i+1, row.PlayerID, fmt.Sprintf("%.2f", row.Best), row.Finishes, row.Falls, row.Restarts, row.LastSeen)
	}
	t.Print()
	return 0
}

func runsCmd(args []string, out io.Writer) int {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "voxel_fall", "world id")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	playerID := fs.String("player", "", "player filter (optional)")
	limit := fs.Int("limit", 20, "result limit")
	asJSON := fs.Bool("json", false, "print JSON lines instead of a table")
	_ = fs.Parse(args)

	r, err := openIndex(*dataDir, *worldID, *dbPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		return 1
	}
	defer r.Close()

	rows, err := r.Runs(context.Background(), strings.TrimSpace(*playerID), *limit)
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		return 1
	}
	if *asJSON {
		for _, row := range rows {
			printJSON(out, row)
		}
		return 0
	}
	t := table.New("Run", "Player", "Time", "Best", "New Best", "Tick", "Finished At").WithWriter(out)
	for _, row := range rows {
		t.AddRow(row.ID, row.PlayerID, fmt.Sprintf("%.2f", row.Elapsed), fmt.Sprintf("%.2f", row.Best), row.NewBest, row.Tick, row.FinishedAt)
	}
	t.Print()
	return 0
}

// eventsCmd streams race log entries as JSON lines, optionally filtered.
func eventsCmd(args []string, out io.Writer) int {
	fs := flag.NewFlagSet("events", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "voxel_fall", "world id")
	playerID := fs.String("player", "", "player filter (optional)")
	kind := fs.String("kind", "", "event kind filter, e.g. FINISH (optional)")
	limit := fs.Int("limit", 0, "stop after this many events (0 = all)")
	_ = fs.Parse(args)

	files, err := persistlog.ListRaceLogs(persistlog.RaceLogDir(worldDir(*dataDir, *worldID)))
	if err != nil {
		fmt.Fprintln(os.Stderr, "list:", err)
		return 1
	}
	wantKind := strings.ToUpper(strings.TrimSpace(*kind))
	n := 0
	for _, path := range files {
		stop := false
		err := persistlog.ReadRaceLog(path, func(e world.RaceLogEntry) bool {
			if *playerID != "" && e.PlayerID != *playerID {
				return true
			}
			if wantKind != "" && string(e.Kind) != wantKind {
				return true
			}
			printJSON(out, e)
			n++
			if *limit > 0 && n >= *limit {
				stop = true
				return false
			}
			return true
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "read %s: %v\n", filepath.Base(path), err)
			return 1
		}
		if stop {
			break
		}
	}
	return 0
}

func stateCmd(args []string, out io.Writer) int {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	endpoint := fs.String("endpoint", "state", "admin endpoint: state or leaderboard")
	_ = fs.Parse(args)

	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + "/admin/v1/" + strings.TrimSpace(*endpoint)
	cl := &http.Client{Timeout: 5 * time.Second}
	resp, err := cl.Get(u)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		return 1
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Fprintln(out, strings.TrimSpace(string(b)))
	if resp.StatusCode/100 != 2 {
		return 1
	}
	return 0
}

func printJSON(out io.Writer, v any) {
	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
