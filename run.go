package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sudankdk/ceejudge/internal/model"
)

var (
	stdinFlag    string
	expectedFlag string
	timeoutFlag  int
	memoryFlag   string
)

var runCmd = &cobra.Command{
	Use:   "run <main.py>",
	Short: "Evaluate one program locally and print the outcome",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		code, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		sub := model.Submission{Code: string(code), TimeoutSeconds: timeoutFlag, MemoryLimit: memoryFlag}
		if sub.Stdin, err = readOptional(stdinFlag); err != nil {
			return err
		}
		if sub.ExpectedOutput, err = readOptional(expectedFlag); err != nil {
			return err
		}

		ctx, stop := signalContext()
		defer stop()
		cli, ex, err := newEngine(ctx, cfg, &log)
		if err != nil {
			return err
		}
		defer cli.Close()

		out := ex.Evaluate(ctx, sub)
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(out)
	},
}

func readOptional(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return string(b), nil
}

func init() {
	runCmd.Flags().StringVar(&stdinFlag, "stdin", "", "file whose contents become the program's input")
	runCmd.Flags().StringVar(&expectedFlag, "expected", "", "file holding the expected output")
	runCmd.Flags().IntVar(&timeoutFlag, "timeout", 0, "wall-clock limit in seconds")
	runCmd.Flags().StringVar(&memoryFlag, "memory", "", "memory limit, e.g. 256m")
	rootCmd.AddCommand(runCmd)
}
