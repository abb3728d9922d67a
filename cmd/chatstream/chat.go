package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"chatstream/internal/core"
	"chatstream/internal/core/stream"
)

var chatOpts struct {
	provider    string
	model       string
	system      string
	temperature float64
	noStream    bool
}

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Send one message and print the reply",
	Long: `Send a single user message to a provider and print the reply as it streams.
Press Ctrl-C to stop the generation.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().StringVarP(&chatOpts.provider, "provider", "P", "", "provider kind (default: routed by model)")
	chatCmd.Flags().StringVarP(&chatOpts.model, "model", "m", "", "model name")
	chatCmd.Flags().StringVarP(&chatOpts.system, "system", "s", "", "system prompt")
	chatCmd.Flags().Float64VarP(&chatOpts.temperature, "temperature", "t", 0.7, "sampling temperature")
	chatCmd.Flags().BoolVar(&chatOpts.noStream, "no-stream", false, "wait for the complete reply")
}

func runChat(cmd *cobra.Command, args []string) error {
	// stdout carries the reply
	a, err := bootstrap("stderr")
	if err != nil {
		return err
	}
	defer a.log.Sync()

	req := &core.ChatRequest{
		Model:       chatOpts.model,
		Temperature: chatOpts.temperature,
		Stream:      !chatOpts.noStream,
	}
	if chatOpts.system != "" {
		req.Messages = append(req.Messages, core.Message{Role: core.RoleSystem, Content: chatOpts.system})
	}
	req.Messages = append(req.Messages, core.Message{Role: core.RoleUser, Content: strings.Join(args, " ")})

	kind := core.ProviderKind(strings.ToLower(chatOpts.provider))
	if kind == "" {
		kind = core.ProviderKind(a.routes.FindRoute(req.Model))
	}
	if kind == "" {
		return errors.New("no provider selected: pass --provider or configure engine.default_provider")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	gen := core.NewGeneration(ctx, a.log.Zap())
	defer gen.Cancel()

	res, err := a.dispatcher.Dispatch(gen, kind, req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	out := cmd.OutOrStdout()
	st := res.Stream(gen, stream.WithLogger(gen.Log))
	for fragment, err := range st.Fragments() {
		if err != nil {
			fmt.Fprintln(out)
			return err
		}
		fmt.Fprint(out, fragment)
	}
	fmt.Fprintln(out)

	if st.State() == stream.StateCancelled {
		fmt.Fprintln(cmd.ErrOrStderr(), "[generation cancelled]")
	}
	return nil
}
