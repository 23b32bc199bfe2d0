package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/andresmejia3/lookout/internal/config"
	"github.com/andresmejia3/lookout/internal/query"
	"github.com/andresmejia3/lookout/internal/state"
	"github.com/andresmejia3/lookout/internal/types"
	"github.com/andresmejia3/lookout/internal/utils"
)

var checkThreshold float64

var checkCmd = &cobra.Command{
	Use:   "check <image_path>",
	Short: "Check a single photo against the suspect directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if cmd.Flags().Changed("threshold") {
			cfg.Recognition.SimilarityThreshold = checkThreshold
			if err := config.Validate(cfg); err != nil {
				return err
			}
		}
		return runCheck(cmd.Context(), args[0], cfg)
	},
}

func init() {
	checkCmd.Flags().Float64VarP(&checkThreshold, "threshold", "t", 0.5, "Similarity threshold for a suspect match")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(ctx context.Context, imagePath string, c *config.Config) error {
	info, err := os.Stat(imagePath)
	if err != nil {
		utils.ShowError("Input file does not exist", err, nil)
		return err
	}
	if info.IsDir() {
		err := fmt.Errorf("%s is a directory", imagePath)
		utils.ShowError("Input must be an image file", err, nil)
		return err
	}

	imgData, err := os.ReadFile(imagePath)
	if err != nil {
		utils.ShowError("Failed to read image file", err, nil)
		return err
	}

	fmt.Fprintln(os.Stderr, "🚀 Starting detection engine...")
	// One engine is enough for an ad-hoc check
	pool, err := startPool(ctx, c, 1)
	if err != nil {
		utils.ShowError("Failed to start detection engine", err, nil)
		return err
	}
	defer pool.Close()

	reg, err := loadRegistry(ctx, c.SuspectsDir, pool)
	if err != nil {
		utils.ShowError("Failed to load suspect directory", err, nil)
		return err
	}

	fmt.Fprintln(os.Stderr, "🔍 Analyzing face...")
	svc := query.NewService(state.NewDetectionState(), pool, reg, c.Recognition.SimilarityThreshold)
	res, err := svc.OneShotCheck(ctx, imgData)
	if errors.Is(err, types.ErrNoFaceDetected) {
		res = query.NoFaceResult()
	} else if err != nil {
		utils.ShowError("Face check failed", err, nil)
		return err
	}

	fmt.Println(formatCheckResult(res))
	return nil
}

func formatCheckResult(res query.CheckResult) string {
	switch res.Alert {
	case query.AlertRed:
		return fmt.Sprintf("🚨 %s: %s (Sim: %.2f)", res.Alert, res.Message, res.Confidence)
	case query.AlertSafe:
		return "✅ " + res.Message
	default:
		return "❌ " + res.Message
	}
}
