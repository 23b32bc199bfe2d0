package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/andresmejia3/lookout/internal/registry"
	"github.com/andresmejia3/lookout/internal/types"
	"github.com/andresmejia3/lookout/internal/utils"
)

var suspectsCmd = &cobra.Command{
	Use:   "suspects",
	Short: "Manage the suspect photo directory",
}

var suspectsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all suspect photos",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		reg, err := registry.New(cfg.SuspectsDir, nil)
		if err != nil {
			utils.ShowError("Failed to open suspect directory", err, nil)
			return err
		}
		names, err := reg.List()
		if err != nil {
			utils.ShowError("Failed to list suspects", err, nil)
			return err
		}
		printSuspects(os.Stdout, names)
		return nil
	},
}

var suspectsAddCmd = &cobra.Command{
	Use:   "add <name> <image_path>",
	Short: "Register a photo for a suspect",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		name, imagePath := args[0], args[1]

		if err := registry.ValidateIdentity(name); err != nil {
			utils.ShowError("Invalid suspect name", err, nil)
			return err
		}
		data, err := os.ReadFile(imagePath)
		if err != nil {
			utils.ShowError("Failed to read image file", err, nil)
			return err
		}

		fmt.Fprintln(os.Stderr, "🚀 Starting detection engine...")
		pool, err := startPool(cmd.Context(), cfg, 1)
		if err != nil {
			utils.ShowError("Failed to start detection engine", err, nil)
			return err
		}
		defer pool.Close()

		reg, err := registry.New(cfg.SuspectsDir, pool)
		if err != nil {
			utils.ShowError("Failed to open suspect directory", err, nil)
			return err
		}
		rec, err := reg.Add(cmd.Context(), name, filepath.Base(imagePath), data)
		if errors.Is(err, types.ErrNoFaceDetected) {
			fmt.Println("❌ No faces detected in the provided image.")
			return err
		}
		if err != nil {
			utils.ShowError("Failed to add suspect", err, nil)
			return err
		}

		fmt.Printf("✅ Suspect %s added as %s\n", name, filepath.Base(rec.SourcePath))
		return nil
	},
}

var suspectsRemoveCmd = &cobra.Command{
	Use:     "remove <name>",
	Aliases: []string{"rm"},
	Short:   "Delete every photo of a suspect",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		reg, err := registry.New(cfg.SuspectsDir, nil)
		if err != nil {
			utils.ShowError("Failed to open suspect directory", err, nil)
			return err
		}
		n, err := reg.Remove(args[0])
		if errors.Is(err, types.ErrNotFound) {
			fmt.Println("❌ Suspect not found.")
			return err
		}
		if err != nil {
			utils.ShowError("Failed to delete suspect", err, nil)
			return err
		}
		fmt.Printf("🗑️  Suspect %s deleted (%d photo(s)).\n", args[0], n)
		return nil
	},
}

func init() {
	suspectsCmd.AddCommand(suspectsListCmd, suspectsAddCmd, suspectsRemoveCmd)
	rootCmd.AddCommand(suspectsCmd)
}

func printSuspects(out io.Writer, names []string) {
	if len(names) == 0 {
		fmt.Fprintln(out, "No suspects registered.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "NAME\tPHOTO")
	fmt.Fprintln(w, "----\t-----")
	for _, n := range names {
		fmt.Fprintf(w, "%s\t%s\n", registry.DisplayName(n), n)
	}
	w.Flush()
}
