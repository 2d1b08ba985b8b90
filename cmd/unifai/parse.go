package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/martinemde/unifai/unifiedllm"
	"github.com/spf13/cobra"
)

var parseCmd = &cobra.Command{
	Use:   "parse --schema <schema.json> <prompt>",
	Short: "Request JSON output that conforms to a schema",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runParse,
}

func init() {
	parseCmd.Flags().String("schema", "", "JSON Schema file the reply must conform to")
	parseCmd.Flags().String("name", "", "Schema name (default: the schema file's base name)")
	parseCmd.Flags().String("system", "", "System prompt")
	_ = parseCmd.MarkFlagRequired("schema")

	rootCmd.AddCommand(parseCmd)
}

func runParse(cmd *cobra.Command, args []string) error {
	schemaPath, _ := cmd.Flags().GetString("schema")
	name, _ := cmd.Flags().GetString("name")
	system, _ := cmd.Flags().GetString("system")

	schema, err := readSchema(schemaPath)
	if err != nil {
		return err
	}
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(schemaPath), filepath.Ext(schemaPath))
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	client, cleanup, err := openClient(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	var messages []unifiedllm.Message
	if system != "" {
		messages = append(messages, unifiedllm.SystemMessage(system))
	}
	messages = append(messages, unifiedllm.UserMessage(strings.Join(args, " ")))

	resp, err := client.Beta.Chat.Completions.Parse(ctx, unifiedllm.Request{
		Messages:       messages,
		ResponseFormat: unifiedllm.JSONSchemaFormat(name, schema),
	})
	if err != nil {
		return err
	}
	servedBy(cmd, resp)

	parsed := resp.Parsed()
	if parsed == nil {
		fmt.Fprintln(cmd.ErrOrStderr(), resp.Text())
		return errors.New("reply did not match the schema")
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(parsed)
}

func readSchema(path string) (map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading schema: %w", err)
	}
	var schema map[string]interface{}
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("parsing schema %s: %w", path, err)
	}
	return schema, nil
}
