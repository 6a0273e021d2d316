package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/andresmejia3/spoofguard/internal/utils"
)

var (
	resetDB     bool
	resetScores bool
	resetYes    bool
	resetDir    string
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset stored state (results database, score dumps)",
	Long:  "Clears recorded results and score dumps. By default, it resets everything. Use flags to clear specific components.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		// If no flags are set, default to clearing EVERYTHING
		if !resetDB && !resetScores {
			resetDB = true
			resetScores = true
		}

		reader := bufio.NewReader(os.Stdin)

		if resetDB {
			if DB == nil {
				fmt.Println("ℹ️  No results database configured, skipping.")
			} else if resetYes || confirm(reader, os.Stdout, "⚠️  Are you sure you want to DROP all result tables?") {
				fmt.Println("🗑️  Clearing Database...")
				if err := DB.Reset(cmd.Context()); err != nil {
					utils.ShowError("Failed to reset database", err, nil)
					return err
				}
			}
		}

		if resetScores {
			dir := resetDir
			if dir == "" && Cfg != nil {
				dir = Cfg.ResultDir
			}
			scores := filepath.Join(dir, scoreDirName)
			if resetYes || confirm(reader, os.Stdout, fmt.Sprintf("⚠️  Are you sure you want to delete %s?", scores)) {
				fmt.Println("🗑️  Clearing Score Dumps...")
				removeDir(scores)
			}
		}

		fmt.Println("✨ Reset Complete.")
		return nil
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetDB, "results", false, "Clear the results database")
	resetCmd.Flags().BoolVar(&resetScores, "scores", false, "Clear score dumps under <output-dir>/scores")
	resetCmd.Flags().StringVarP(&resetDir, "output-dir", "d", "", "Output directory holding the score dumps (default: result_dir from config)")
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "Do not ask for confirmation")
	rootCmd.AddCommand(resetCmd)
}

func confirm(r *bufio.Reader, out io.Writer, prompt string) bool {
	fmt.Fprintf(out, "%s [y/N]: ", prompt)
	res, _ := r.ReadString('\n')
	res = strings.TrimSpace(strings.ToLower(res))
	return res == "y" || res == "yes"
}

func removeDir(path string) {
	if err := os.RemoveAll(path); err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  Failed to remove %s: %v\n", path, err)
	}
}
