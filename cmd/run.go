package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/touch-guard/internal/detector"
	"github.com/kozaktomas/touch-guard/internal/knn"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Train interactively, then watch for face touches",
	Long: `Guide you through one training batch per label and then classify
frames until interrupted. Each touched frame shows an alert; the sound plays
again only once the previous one has finished.

With --skip-training the stored examples are used as they are.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Bool("skip-training", false, "Use stored examples without training")
	runCmd.Flags().Float64("threshold", 0, "Confidence the touched label must exceed (default TOUCHED_CONFIDENCE)")
	runCmd.Flags().String("on-source-error", "", "What to do when a frame cannot be read: stop or retry")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg := loadConfig(cmd)
	if threshold := mustGetFloat64(cmd, "threshold"); threshold > 0 {
		cfg.Inference.Threshold = threshold
	}
	if policy := mustGetString(cmd, "on-source-error"); policy != "" {
		cfg.Inference.OnSourceError = policy
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	if !mustGetBool(cmd, "skip-training") {
		labels := []knn.Label{knn.Label(cfg.Inference.NotTouchLabel), knn.Label(cfg.Inference.TouchedLabel)}
		prompts := map[knn.Label]string{
			labels[0]: "Keep your hands away from your face",
			labels[1]: "Touch your face and move your hand around",
		}
		reader := bufio.NewReader(os.Stdin)
		for _, label := range labels {
			fmt.Printf("%s, then press Enter to capture %d frames for %q...", prompts[label], cfg.Training.Times, label)
			if _, err := reader.ReadString('\n'); err != nil {
				return fmt.Errorf("reading input: %w", err)
			}
			if _, err := trainWithProgress(ctx, rt.session, label, cfg.Training.Times); err != nil {
				return err
			}
		}
	}

	status := rt.session.Status()
	printCounts(status)
	if status.Counts[cfg.Inference.TouchedLabel] == 0 {
		fmt.Printf("Warning: no examples for %q, alerts cannot fire\n", cfg.Inference.TouchedLabel)
	}

	fmt.Println("Watching... press Ctrl+C to stop")
	events := rt.session.Events()
	ch := events.Subscribe()
	defer events.Unsubscribe(ch)
	go printStateChanges(ch)

	if err := rt.session.Run(ctx); err != nil {
		return fmt.Errorf("detection stopped: %w", err)
	}
	stats := rt.session.Status().Stats
	fmt.Printf("\nStopped after %d frames, %d touched\n", stats.Frames, stats.Touched)
	return nil
}

func printStateChanges(ch <-chan detector.Event) {
	for ev := range ch {
		if ev.Type != detector.EventState {
			continue
		}
		state, _ := ev.Data.(map[string]bool)
		if state["touched"] {
			fmt.Printf("%s  %s\n", ev.Time.Format("15:04:05"), "TOUCH DETECTED")
		} else {
			fmt.Printf("%s  hands clear\n", ev.Time.Format("15:04:05"))
		}
	}
}
