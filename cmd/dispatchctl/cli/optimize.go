package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/odyssey-erp/truckdispatch/internal/schedule/optimizer"
)

// OptimizeInput is the file format read by `dispatchctl optimize`. YAML and
// JSON are both accepted.
type OptimizeInput struct {
	DailyLimit float64 `yaml:"daily_limit"`
	Orders     []struct {
		ID       string  `yaml:"id"`
		Quantity float64 `yaml:"quantity"`
		Priority int     `yaml:"priority"`
	} `yaml:"orders"`
	Trucks []struct {
		ID       string  `yaml:"id"`
		Capacity float64 `yaml:"capacity"`
	} `yaml:"trucks"`
}

type optimizeOptions struct {
	input      string
	dailyLimit float64
	timeBudget time.Duration
	maxNodes   int
}

func newOptimizeCommand() *cobra.Command {
	var opts optimizeOptions
	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Solve an assignment instance offline and print the result as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOptimize(cmd, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.input, "input", "i", "", "instance file, - for stdin")
	cmd.Flags().Float64Var(&opts.dailyLimit, "daily-limit", 0, "override the daily production limit in tons")
	cmd.Flags().DurationVar(&opts.timeBudget, "time-budget", 0, "search time budget (default 5s)")
	cmd.Flags().IntVar(&opts.maxNodes, "max-nodes", 0, "search node budget")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func runOptimize(cmd *cobra.Command, opts optimizeOptions) error {
	raw, err := readInput(cmd.InOrStdin(), opts.input)
	if err != nil {
		return err
	}
	var in OptimizeInput
	if err := yaml.Unmarshal(raw, &in); err != nil {
		return fmt.Errorf("parse %s: %w", opts.input, err)
	}
	limit := in.DailyLimit
	if opts.dailyLimit > 0 {
		limit = opts.dailyLimit
	}
	if limit <= 0 {
		return errors.New("daily limit must be positive")
	}

	orders := make([]optimizer.Order, len(in.Orders))
	for i, o := range in.Orders {
		orders[i] = optimizer.Order{ID: o.ID, Quantity: o.Quantity, Priority: o.Priority}
	}
	trucks := make([]optimizer.Truck, len(in.Trucks))
	for i, t := range in.Trucks {
		trucks[i] = optimizer.Truck{ID: t.ID, Capacity: t.Capacity}
	}

	result := optimizer.Optimize(cmd.Context(), orders, trucks, limit, optimizer.Options{
		TimeBudget: opts.timeBudget,
		MaxNodes:   opts.maxNodes,
	})
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return data, nil
}
