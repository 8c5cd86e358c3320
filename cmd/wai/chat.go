package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/flemzord/wai/internal/provider"
	"github.com/flemzord/wai/modules/provider/workersai"
)

func chatCmd() *cobra.Command {
	var (
		flags  providerFlags
		model  string
		system string
		stream bool
		pace   int
	)

	cmd := &cobra.Command{
		Use:   "chat <prompt>...",
		Short: "Send a single prompt and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wcfg, logger, err := flags.resolve(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("pace") {
				wcfg.StreamPaceMS = &pace
			}

			client, err := workersai.New(wcfg, workersai.WithLogger(logger))
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			ctx = provider.WithRequestID(ctx, uuid.NewString())

			payload := provider.ChatPayload{
				Model:    model,
				Stream:   stream,
				Messages: buildMessages(system, strings.Join(args, " ")),
			}
			return runChat(ctx, client, payload, cmd)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVarP(&model, "model", "m", "", "Model name (default: the configured model)")
	cmd.Flags().StringVarP(&system, "system", "s", "", "System prompt")
	cmd.Flags().BoolVar(&stream, "stream", true, "Stream the reply as it is generated")
	cmd.Flags().IntVar(&pace, "pace", 0, "Pause after each streamed fragment, in milliseconds")
	return cmd
}

func buildMessages(system, prompt string) []provider.Message {
	var msgs []provider.Message
	if system != "" {
		msgs = append(msgs, provider.Message{Role: provider.MessageRoleSystem, Content: system})
	}
	return append(msgs, provider.Message{Role: provider.MessageRoleUser, Content: prompt})
}

// runChat prints streamed fragments as they arrive, or the whole reply once
// for a blocking call.
func runChat(ctx context.Context, chat provider.ChatCompleter, payload provider.ChatPayload, cmd *cobra.Command) error {
	out := cmd.OutOrStdout()

	var onProgress provider.ProgressFunc
	if payload.Stream {
		onProgress = func(fragment string) {
			if fragment == provider.DoneSentinel {
				return
			}
			fmt.Fprint(out, fragment)
		}
	}

	text, err := chat.ChatCompletion(ctx, payload, onProgress)
	if err != nil {
		if provider.IsCancelled(err) {
			fmt.Fprintln(out)
			return errors.New("interrupted")
		}
		return describeError(err)
	}

	if !payload.Stream {
		fmt.Fprint(out, text)
	}
	fmt.Fprintln(out)
	return nil
}

// describeError adds the upstream diagnostic to err, when there is one.
func describeError(err error) error {
	var pe *provider.Error
	if !errors.As(err, &pe) || pe.Diagnostic == nil {
		return err
	}
	return fmt.Errorf("%w\nupstream: %v", err, pe.Diagnostic)
}
