package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/touch-guard/internal/config"
	"github.com/kozaktomas/touch-guard/internal/database/postgres"
	"github.com/kozaktomas/touch-guard/internal/knn"
)

var examplesCmd = &cobra.Command{
	Use:   "examples",
	Short: "Inspect and remove stored training examples",
}

var examplesListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show example counts per session and label",
	Long: `Show how many examples are stored. With DATABASE_URL set every
session in the database is listed, otherwise the snapshot file is read.`,
	Args: cobra.NoArgs,
	RunE: runExamplesList,
}

var examplesClearCmd = &cobra.Command{
	Use:   "clear [label]",
	Short: "Delete stored examples of the session",
	Long: `Delete the examples of one label, or every example of the session
when no label is given.

Examples:
  touch-guard examples clear touched
  touch-guard examples clear --session desk --yes`,
	Args: cobra.MaximumNArgs(1),
	RunE: runExamplesClear,
}

var errNoStorage = errors.New("neither DATABASE_URL nor EXAMPLES_PATH is set, examples are kept in memory only")

func init() {
	rootCmd.AddCommand(examplesCmd)
	examplesCmd.AddCommand(examplesListCmd)
	examplesCmd.AddCommand(examplesClearCmd)

	examplesClearCmd.Flags().Bool("yes", false, "Skip the confirmation prompt")
}

func runExamplesList(cmd *cobra.Command, args []string) error {
	cfg := loadConfig(cmd)
	ctx := context.Background()

	if cfg.Database.URL == "" {
		if cfg.Session.ExamplesPath == "" {
			return errNoStorage
		}
		examples, err := knn.LoadSnapshot(cfg.Session.ExamplesPath)
		if err != nil {
			return err
		}
		fmt.Printf("Snapshot %s\n", cfg.Session.ExamplesPath)
		printSummary(summarize(cfg.Session.Name, examples))
		return nil
	}

	pool, _, err := postgres.Open(ctx, &cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	sessions, err := postgres.NewExampleRepository(pool).Sessions(ctx)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("No examples stored")
		return nil
	}
	for _, s := range sessions {
		printSummary(s)
	}
	return nil
}

func runExamplesClear(cmd *cobra.Command, args []string) error {
	cfg := loadConfig(cmd)
	var label knn.Label
	target := fmt.Sprintf("all examples of session %q", cfg.Session.Name)
	if len(args) == 1 {
		label = knn.Label(args[0])
		target = fmt.Sprintf("%q examples of session %q", label, cfg.Session.Name)
	}

	if cfg.Database.URL == "" && cfg.Session.ExamplesPath == "" {
		return errNoStorage
	}
	if !mustGetBool(cmd, "yes") && !confirmAction(fmt.Sprintf("Delete %s?", target)) {
		fmt.Println("Aborted")
		return nil
	}

	var removed int64
	var err error
	if cfg.Database.URL == "" {
		removed, err = clearSnapshot(cfg, label)
	} else {
		removed, err = clearDatabase(cfg, label)
	}
	if err != nil {
		return err
	}
	fmt.Printf("Deleted %d examples\n", removed)
	return nil
}

func clearDatabase(cfg *config.Config, label knn.Label) (int64, error) {
	ctx := context.Background()
	pool, _, err := postgres.Open(ctx, &cfg.Database)
	if err != nil {
		return 0, err
	}
	defer pool.Close()
	return postgres.NewExampleRepository(pool).DeleteExamples(ctx, cfg.Session.Name, label)
}

// clearSnapshot rewrites the snapshot without the removed examples.
func clearSnapshot(cfg *config.Config, label knn.Label) (int64, error) {
	examples, err := knn.LoadSnapshot(cfg.Session.ExamplesPath)
	if err != nil {
		return 0, err
	}
	if len(examples) == 0 {
		return 0, nil
	}
	classifier, err := newClassifier(cfg)
	if err != nil {
		return 0, err
	}
	if _, err := classifier.LoadExamples(examples); err != nil {
		return 0, err
	}

	store := classifier.Store()
	var removed int
	if label == "" {
		removed = store.Len()
		store.Reset()
	} else {
		removed = store.ClearLabel(label)
	}
	if removed == 0 {
		return 0, nil
	}
	if err := knn.SaveSnapshot(cfg.Session.ExamplesPath, store); err != nil {
		return 0, err
	}
	return int64(removed), nil
}

func summarize(name string, examples []knn.Example) postgres.SessionSummary {
	s := postgres.SessionSummary{Name: name, Counts: make(map[knn.Label]int)}
	for _, ex := range examples {
		s.Counts[ex.Label]++
		s.Dim = len(ex.Embedding)
	}
	return s
}

func printSummary(s postgres.SessionSummary) {
	total := 0
	for _, n := range s.Counts {
		total += n
	}
	fmt.Printf("Session %q: %d examples (dim %d)\n", s.Name, total, s.Dim)
	for _, label := range slices.Sorted(maps.Keys(s.Counts)) {
		fmt.Printf("  %-12s %d\n", label, s.Counts[label])
	}
}

// confirmAction asks a yes/no question on stdin and defaults to no.
func confirmAction(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	reader := bufio.NewReader(os.Stdin)
	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	response = strings.ToLower(strings.TrimSpace(response))
	return response == "y" || response == "yes"
}
