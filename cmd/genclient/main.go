package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"github.com/drfengyu/dall-e/internal/client"
	"github.com/drfengyu/dall-e/internal/client/tui"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	_ = godotenv.Load()

	def := client.DefaultPollPolicy()
	fs := flag.NewFlagSet("genclient", flag.ContinueOnError)
	server := fs.String("server", envOr("DALLE_SERVER", "http://localhost:8080"), "image API base URL")
	plain := fs.Bool("plain", false, "print transitions line by line instead of the interactive view")
	interval := fs.Duration("interval", def.InitialInterval, "poll interval")
	maxInterval := fs.Duration("max-interval", def.MaxInterval, "upper bound for the poll interval")
	multiplier := fs.Float64("multiplier", def.Multiplier, "poll interval growth factor")
	jitter := fs.Float64("jitter", def.Jitter, "random spread applied to each interval, between 0 and 1")
	attempts := fs.Int("attempts", def.MaxAttempts, "maximum number of polls (0 for no limit)")
	deadline := fs.Duration("deadline", def.Deadline, "maximum time spent polling (0 for no limit)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	prompt := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if prompt == "" {
		return errors.New("usage: genclient [flags] <prompt>")
	}

	policy := client.PollPolicy{
		InitialInterval: *interval,
		MaxInterval:     *maxInterval,
		Multiplier:      *multiplier,
		Jitter:          *jitter,
		MaxAttempts:     *attempts,
		Deadline:        *deadline,
	}
	api := client.NewAPI(*server, nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *plain || !stdoutIsTTY() {
		return runPlain(ctx, api, policy, prompt)
	}
	return runInteractive(ctx, api, policy, prompt)
}

func runPlain(ctx context.Context, api client.Backend, policy client.PollPolicy, prompt string) error {
	start := time.Now()
	loop := client.NewLoop(api, policy, func(tr client.Transition) {
		line := fmt.Sprintf("%6s  %-10s -> %-10s", time.Since(start).Round(time.Second), tr.From, tr.To)
		if tr.To == client.StatePolling {
			line += fmt.Sprintf("  job=%s polls=%d", tr.Machine.JobID, tr.Machine.Polls)
		}
		if tr.PollErr != nil {
			line += "  poll error: " + tr.PollErr.Error()
		}
		fmt.Fprintln(os.Stderr, line)
	})
	m, err := loop.Run(ctx, prompt)
	if err != nil {
		return err
	}
	fmt.Println(m.ResultURL)
	return nil
}

func runInteractive(ctx context.Context, api client.Backend, policy client.PollPolicy, prompt string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(tui.New(prompt, cancel))
	go func() {
		loop := client.NewLoop(api, policy, func(tr client.Transition) {
			p.Send(tui.TransitionMsg(tr))
		})
		m, err := loop.Run(ctx, prompt)
		p.Send(tui.FinishedMsg{Machine: m, Err: err})
	}()

	final, err := p.Run()
	if err != nil {
		return err
	}
	fm, ok := final.(tui.Model)
	if !ok {
		return nil
	}
	m, err := fm.Result()
	if err != nil {
		return err
	}
	fmt.Println(m.ResultURL)
	return nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func stdoutIsTTY() bool {
	info, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
