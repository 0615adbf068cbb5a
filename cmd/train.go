package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/touch-guard/internal/detector"
	"github.com/kozaktomas/touch-guard/internal/knn"
)

var trainCmd = &cobra.Command{
	Use:   "train <label>",
	Short: "Capture training examples for a label",
	Long: `Capture a batch of frames from the camera and store them as examples
for the given label. Batches append to the existing examples, so run the
command several times in different poses to improve accuracy.

Examples:
  touch-guard train not_touch
  touch-guard train touched --times 80`,
	Args: cobra.ExactArgs(1),
	RunE: runTrain,
}

func init() {
	rootCmd.AddCommand(trainCmd)

	trainCmd.Flags().Int("times", 0, "Number of samples to capture (default TRAINING_TIMES)")
	trainCmd.Flags().Duration("delay", 0, "Pause between samples (default TRAINING_DELAY)")
}

func runTrain(cmd *cobra.Command, args []string) error {
	cfg := loadConfig(cmd)
	if times := mustGetInt(cmd, "times"); times > 0 {
		cfg.Training.Times = times
	}
	if delay := mustGetDuration(cmd, "delay"); delay > 0 {
		cfg.Training.Delay = delay
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	res, err := trainWithProgress(ctx, rt.session, knn.Label(args[0]), cfg.Training.Times)
	if err != nil {
		return err
	}
	fmt.Printf("Added %d examples for %q in %s\n", res.Added, res.Label, res.Duration.Round(time.Millisecond))
	printCounts(rt.session.Status())
	return nil
}

// trainWithProgress runs one batch and renders a progress bar.
func trainWithProgress(ctx context.Context, session *detector.Session, label knn.Label, times int) (detector.TrainingResult, error) {
	bar := progressbar.NewOptions(times,
		progressbar.OptionSetDescription(fmt.Sprintf("Training %s", label)),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("frames"),
		progressbar.OptionShowIts(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionFullWidth(),
	)
	res, err := session.Train(ctx, label, times, func(p detector.Progress) {
		_ = bar.Set(p.Done)
	})
	_ = bar.Finish()
	fmt.Println()
	if err != nil {
		if detector.IsCancellation(err) {
			return res, fmt.Errorf("training interrupted after %d examples", res.Added)
		}
		return res, fmt.Errorf("training %q failed after %d examples: %w", label, res.Added, err)
	}
	return res, nil
}

func printCounts(status detector.Status) {
	if len(status.Labels) == 0 {
		fmt.Println("No examples stored")
		return
	}
	fmt.Printf("Examples (dim %d):\n", status.Dim)
	for _, label := range status.Labels {
		fmt.Printf("  %-12s %d\n", label, status.Counts[label])
	}
}
