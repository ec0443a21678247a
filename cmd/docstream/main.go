// Command docstream is a thin CLI over the client library: submit a task,
// watch it to completion over any transport, or fetch its current status.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"docstream"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

var (
	flagConfig  string
	flagBaseURL string
	flagToken   string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := &cobra.Command{
		Use:          "docstream",
		Short:        "Track long-running document-processing tasks",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flagConfig, "config", "", "path to a YAML config file")
	root.PersistentFlags().StringVar(&flagBaseURL, "base-url", "", "backend origin (overrides config)")
	root.PersistentFlags().StringVar(&flagToken, "token", "", "API bearer token (overrides config)")

	root.AddCommand(newStartCmd(), newWatchCmd(), newStatusCmd())

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, red("error:"), err)
		os.Exit(1)
	}
}

func buildClient() (*docstream.Client, error) {
	cfg, err := docstream.LoadConfig(flagConfig)
	if err != nil {
		return nil, err
	}
	if flagBaseURL != "" {
		cfg.BaseURL = flagBaseURL
	}
	if flagToken != "" {
		cfg.APIToken = flagToken
	}
	return docstream.New(cfg)
}

func newStartCmd() *cobra.Command {
	var (
		documentID string
		params     []string
		idemKey    string
		andWatch   bool
	)
	cmd := &cobra.Command{
		Use:   "start <operation>",
		Short: "Submit a task (verify_template, approve_mapping, run_agent, ...)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := buildClient()
			if err != nil {
				return err
			}
			req := docstream.StartRequest{
				Operation:  args[0],
				DocumentID: documentID,
			}
			if len(params) > 0 {
				req.Params = make(map[string]any, len(params))
				for _, pair := range params {
					key, value, ok := strings.Cut(pair, "=")
					if !ok {
						return fmt.Errorf("param %q is not key=value", pair)
					}
					req.Params[key] = value
				}
			}
			if idemKey == "" {
				idemKey = docstream.NewIdempotencyKey()
			}
			task, err := client.Start(cmd.Context(), req, docstream.StartOptions{IdempotencyKey: idemKey})
			if err != nil {
				return err
			}
			fmt.Printf("%s %s %s\n", green("started"), bold(task.ID), gray("("+string(task.Status)+")"))
			if !andWatch {
				return nil
			}
			return watchTask(cmd.Context(), client, task.ID, docstream.WatchOptions{})
		},
	}
	cmd.Flags().StringVar(&documentID, "document", "", "document id the operation applies to")
	cmd.Flags().StringArrayVar(&params, "param", nil, "operation parameter as key=value (repeatable)")
	cmd.Flags().StringVar(&idemKey, "idempotency-key", "", "idempotency key (generated when empty)")
	cmd.Flags().BoolVar(&andWatch, "watch", false, "watch the task after starting it")
	return cmd
}

func newWatchCmd() *cobra.Command {
	var (
		transportName string
		pollInterval  time.Duration
		pollTimeout   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch <task-id>",
		Short: "Watch a task until it completes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := buildClient()
			if err != nil {
				return err
			}
			return watchTask(cmd.Context(), client, args[0], docstream.WatchOptions{
				Transport:    docstream.Transport(transportName),
				PollInterval: pollInterval,
				PollTimeout:  pollTimeout,
			})
		},
	}
	cmd.Flags().StringVar(&transportName, "transport", "chunked", "chunked, push, or poll")
	cmd.Flags().DurationVar(&pollInterval, "poll-interval", 0, "polling interval (poll transport)")
	cmd.Flags().DurationVar(&pollTimeout, "poll-timeout", 0, "polling deadline (poll transport)")
	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <task-id>",
		Short: "Fetch the current task document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := buildClient()
			if err != nil {
				return err
			}
			task, err := client.GetTask(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s %s\n", bold(task.ID), renderStatus(task.Status))
			if task.Progress != nil {
				fmt.Printf("  %s %.0f%% %s\n", gray("progress"), task.Progress.Percent, task.Progress.Stage)
			}
			if task.Error != nil {
				fmt.Printf("  %s [%s] %s\n", red("error"), task.Error.Code, task.Error.Message)
			}
			printArtifacts(task)
			return nil
		},
	}
}

func watchTask(ctx context.Context, client *docstream.Client, taskID string, opts docstream.WatchOptions) error {
	opts.OnProgress = func(p docstream.Progress) {
		if p.Stage != "" {
			fmt.Printf("  %s %s\n", yellow("stage"), p.Stage)
		}
		if p.Percent > 0 {
			fmt.Printf("  %s %.0f%%\n", gray("progress"), p.Percent)
		}
	}
	task, err := client.Watch(ctx, taskID, opts)
	if err != nil {
		if docstream.IsCanceled(err) {
			fmt.Println(gray("watch canceled"))
			return nil
		}
		return err
	}
	fmt.Printf("%s %s %s\n", green("done"), bold(task.ID), renderStatus(task.Status))
	printArtifacts(task)
	return nil
}

func renderStatus(status docstream.Status) string {
	switch status {
	case docstream.StatusCompleted:
		return green(string(status))
	case docstream.StatusFailed:
		return red(string(status))
	case docstream.StatusCancelled:
		return gray(string(status))
	default:
		return yellow(string(status))
	}
}

func printArtifacts(task *docstream.Task) {
	for name, url := range task.Artifacts {
		fmt.Printf("  %s %s %s\n", gray("artifact"), name, url)
	}
}
