package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/martinemde/unifai/conversation"
	"github.com/martinemde/unifai/unifiedllm"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var chatCmd = &cobra.Command{
	Use:   "chat [prompt]",
	Short: "Send a prompt, or start an interactive chat",
	Long: "With a prompt argument, chat sends it once and prints the reply. Without one it reads prompts from stdin " +
		"until EOF or /exit; /reset clears the conversation.",
	RunE: runChat,
}

func init() {
	chatCmd.Flags().String("system", "", "System prompt")
	chatCmd.Flags().String("model", "", "Model name sent with each request (default: each provider's bound model)")
	chatCmd.Flags().Int("max-tokens", 0, "Maximum tokens per reply (0 = provider default)")
	chatCmd.Flags().Float64("temperature", -1, "Sampling temperature (negative = provider default)")

	_ = viper.BindPFlag("system", chatCmd.Flags().Lookup("system"))

	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	client, cleanup, err := openClient(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	cfg := conversation.DefaultConfig()
	cfg.SystemPrompt = viper.GetString("system")
	cfg.Model, _ = cmd.Flags().GetString("model")
	if n, _ := cmd.Flags().GetInt("max-tokens"); n > 0 {
		cfg.MaxTokens = unifiedllm.Int(n)
	}
	if temp, _ := cmd.Flags().GetFloat64("temperature"); temp >= 0 {
		cfg.Temperature = unifiedllm.Float64(temp)
	}

	session := conversation.NewSession(client.Chat.Completions, &cfg)
	defer session.Close()

	if len(args) > 0 {
		return chatOnce(ctx, cmd, session, strings.Join(args, " "))
	}
	return chatInteractive(ctx, cmd, session, cmd.InOrStdin())
}

func chatOnce(ctx context.Context, cmd *cobra.Command, session *conversation.Session, prompt string) error {
	resp, err := session.Submit(ctx, prompt)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), resp.Text())
	servedBy(cmd, resp)
	return nil
}

func chatInteractive(ctx context.Context, cmd *cobra.Command, session *conversation.Session, in io.Reader) error {
	out := cmd.OutOrStdout()
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		case "/reset":
			session.Reset()
			fmt.Fprintln(out, "(conversation cleared)")
			continue
		}

		resp, err := session.Submit(ctx, line)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
			continue
		}
		fmt.Fprintln(out, resp.Text())
		servedBy(cmd, resp)
	}
}
