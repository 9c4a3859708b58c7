package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	companion "github.com/cyberFlowTech/zapry-companion-go"
	"github.com/cyberFlowTech/zapry-companion-go/behavior"
	"github.com/cyberFlowTech/zapry-companion-go/policy"
	"github.com/cyberFlowTech/zapry-companion-go/signal"
)

var (
	envFile    string
	atFlag     string
	seedFlag   int64
	textOnly   bool
	turnsFlag  int
	recallFlag string
)

var rootCmd = &cobra.Command{
	Use:   "companionctl",
	Short: "Run turns through the companion behavior core",
}

var turnCmd = &cobra.Command{
	Use:   "turn [utterance...]",
	Short: "Run utterances as consecutive turns and print each bundle",
	Long: "Each argument is one user turn. Without arguments, turns are read from stdin, one per line.\n" +
		"A line of the form \"...30s\" is a silence event of that length.",
	RunE: runTurn,
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run random turns and report question rate and ambient counts",
	RunE:  runSimulate,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the resolved configuration",
	RunE:  runConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "Optional .env file")
	rootCmd.PersistentFlags().Int64Var(&seedFlag, "seed", 0, "Random seed, 0 = time based")
	rootCmd.PersistentFlags().StringVar(&atFlag, "at", "", "Simulated start time (RFC3339), default now")
	rootCmd.PersistentFlags().StringVar(&recallFlag, "recall", "", "Fixed text returned by the recall source; empty disables recall")

	turnCmd.Flags().BoolVar(&textOnly, "text", false, "Print only the backend instruction text")
	simulateCmd.Flags().IntVarP(&turnsFlag, "turns", "n", 500, "Number of turns")

	rootCmd.AddCommand(turnCmd, simulateCmd, configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newEngine builds an engine on a simulated clock so turns can be spaced
// deterministically.
func newEngine(ctx context.Context) (*companion.Engine, *companion.FixedClock, func(), error) {
	cfg, err := companion.LoadConfig(envFile)
	if err != nil {
		return nil, nil, nil, err
	}
	logger, closer, err := companion.NewLogger(cfg.Log)
	if err != nil {
		return nil, nil, nil, err
	}

	loc, _ := cfg.Location()
	start := time.Now().In(loc)
	if atFlag != "" {
		t, err := time.Parse(time.RFC3339, atFlag)
		if err != nil {
			closer.Close()
			return nil, nil, nil, fmt.Errorf("parse --at: %w", err)
		}
		start = t.In(loc)
	}
	seed := seedFlag
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	clk := companion.NewFixedClock(start)

	opts := []companion.Option{
		companion.WithClock(clk),
		companion.WithRand(behavior.NewRand(seed)),
		companion.WithLogger(logger),
	}
	if recallFlag != "" {
		text := recallFlag
		opts = append(opts, companion.WithRecallSource(behavior.RecallSourceFunc(
			func(context.Context, behavior.Trigger) (string, error) { return text, nil })))
	}

	eng, err := companion.NewEngine(ctx, cfg, opts...)
	if err != nil {
		closer.Close()
		return nil, nil, nil, err
	}
	cleanup := func() {
		if err := eng.Close(); err != nil {
			logger.Warn().Err(err).Msg("close engine")
		}
		closer.Close()
	}
	return eng, clk, cleanup, nil
}

func runTurn(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	eng, clk, cleanup, err := newEngine(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	lines := args
	if len(lines) == 0 {
		lines, err = readLines(cmd.InOrStdin())
		if err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	for _, line := range lines {
		in := parseTurn(line)
		if in.Kind == signal.ReplySilence {
			clk.Advance(in.Silence)
		} else {
			clk.Advance(8 * time.Second)
		}
		b := eng.Turn(ctx, in)
		if textOnly {
			fmt.Fprintf(out, "%s\n\n", b.Text())
			continue
		}
		data, err := json.MarshalIndent(b, "", "  ")
		if err != nil {
			return fmt.Errorf("encode bundle: %w", err)
		}
		fmt.Fprintln(out, string(data))
	}
	return nil
}

// parseTurn reads "...45s" as a silence event and anything else as text.
func parseTurn(line string) companion.TurnInput {
	if rest, ok := strings.CutPrefix(strings.TrimSpace(line), "..."); ok {
		if d, err := time.ParseDuration(rest); err == nil {
			return companion.TurnInput{Kind: signal.ReplySilence, Silence: d}
		}
	}
	return companion.TurnInput{Utterance: line}
}

func readLines(r io.Reader) ([]string, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read stdin: %w", err)
	}
	return lines, nil
}

var sampleUtterances = []string{
	"ok", "k", "sure", "lol", "tired",
	"today was long but I finally finished the report and now I just want to sleep",
	"we got the apartment, I'm so excited!",
	"ugh this bug is driving me crazy, nothing works and the deadline is tomorrow",
	"not sure what to cook tonight, maybe pasta again",
	"went for a walk by the river, it was calm and quiet",
	"I miss my sister, she moved away last month",
	"working on the slides for tomorrow's meeting",
	"...45s", "...12s",
}

func runSimulate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	eng, clk, cleanup, err := newEngine(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	pick := behavior.NewRand(seedFlag + 7)
	var (
		questions int
		replies   int
		ambient   = map[behavior.Kind]int{}
		emotions  = map[signal.Emotion]int{}
	)
	for i := 0; i < turnsFlag; i++ {
		in := parseTurn(sampleUtterances[pick.Intn(len(sampleUtterances))])
		if in.Kind == signal.ReplySilence {
			clk.Advance(in.Silence)
		} else {
			clk.Advance(time.Duration(5+pick.Intn(60)) * time.Second)
			replies++
		}
		b := eng.Turn(ctx, in)
		if b.Taken == policy.Question {
			questions++
		}
		if b.Ambient != nil {
			ambient[b.Ambient.Kind]++
		}
		emotions[b.Emotion.Label]++
	}

	out := cmd.OutOrStdout()
	rate := 0.0
	if turnsFlag > 0 {
		rate = float64(questions) / float64(turnsFlag)
	}
	fmt.Fprintf(out, "turns: %d (replies %d)\n", turnsFlag, replies)
	fmt.Fprintf(out, "question rate: %.3f\n", rate)
	fmt.Fprintln(out, "ambient:")
	for _, k := range behavior.Kinds {
		if n := ambient[k]; n > 0 {
			fmt.Fprintf(out, "  %-17s %d\n", k, n)
		}
	}
	fmt.Fprintln(out, "emotions:")
	labels := make([]string, 0, len(emotions))
	for e := range emotions {
		labels = append(labels, string(e))
	}
	sort.Strings(labels)
	for _, l := range labels {
		fmt.Fprintf(out, "  %-10s %d\n", l, emotions[signal.Emotion(l)])
	}
	return nil
}

func runConfig(cmd *cobra.Command, _ []string) error {
	cfg, err := companion.LoadConfig(envFile)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
