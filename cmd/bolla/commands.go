package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/bolla/internal/config"
)

// outcome mirrors the router outcome fields of /v1/respond and /v1/route.
type outcome struct {
	Text         string   `json:"text"`
	Backend      string   `json:"backend"`
	Model        string   `json:"model"`
	Tier         string   `json:"tier"`
	FallbackUsed bool     `json:"fallback_used"`
	Attempted    []string `json:"attempted"`
	Errors       []string `json:"errors"`
	LatencyMs    int64    `json:"latency_ms"`
}

type memoryItem struct {
	ID          int64  `json:"id"`
	Content     string `json:"content"`
	Category    string `json:"category"`
	AccessCount int    `json:"access_count"`
}

func printOutcomeDetails(o outcome) {
	printStatus("Backend", "%s (%s)", o.Backend, o.Model)
	printStatus("Tier", "%s", o.Tier)
	printStatus("Latency", "%dms", o.LatencyMs)
	if o.FallbackUsed {
		printStatus("Fallback", "%s", strings.Join(o.Attempted, " -> "))
		for _, e := range o.Errors {
			printWarning("%s", e)
		}
	}
}

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <message>",
	Short: "Talk to Bolla with memories and personality",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conversation, _ := cmd.Flags().GetString("conversation")
		tier, _ := cmd.Flags().GetString("tier")
		verbose, _ := cmd.Flags().GetBool("verbose")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		var result struct {
			outcome
			Keywords []string     `json:"keywords"`
			Memories []memoryItem `json:"memories"`
		}
		if err := client.call(cmd.Context(), http.MethodPost, "/v1/respond", map[string]any{
			"message":         strings.Join(args, " "),
			"conversation_id": conversation,
			"source":          "cli",
			"channel":         "cli",
			"tier":            tier,
		}, &result); err != nil {
			return err
		}

		fmt.Fprintln(stdout, result.Text)
		if verbose {
			printOutcomeDetails(result.outcome)
			printStatus("Keywords", "%s", strings.Join(result.Keywords, ", "))
			printStatus("Memories used", "%d", len(result.Memories))
		}
		return nil
	},
}

func init() {
	askCmd.Flags().String("conversation", "cli", "conversation id for short-term memory")
	askCmd.Flags().String("tier", "", "force a complexity tier (simple, medium, complex)")
	askCmd.Flags().BoolP("verbose", "v", false, "show routing details")
}

// --- route ---

var routeCmd = &cobra.Command{
	Use:   "route <prompt>",
	Short: "Send a raw prompt through the fallback chain",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tier, _ := cmd.Flags().GetString("tier")
		system, _ := cmd.Flags().GetString("system")
		classify, _ := cmd.Flags().GetBool("classify")
		maxTokens, _ := cmd.Flags().GetInt("max-tokens")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		body := map[string]any{
			"prompt":        strings.Join(args, " "),
			"system_prompt": system,
			"tier":          tier,
			"classify":      classify,
			"max_tokens":    maxTokens,
		}
		if cmd.Flags().Changed("temperature") {
			temp, _ := cmd.Flags().GetFloat64("temperature")
			body["temperature"] = temp
		}

		var result outcome
		if err := client.call(cmd.Context(), http.MethodPost, "/v1/route", body, &result); err != nil {
			return err
		}

		fmt.Fprintln(stdout, result.Text)
		printOutcomeDetails(result)
		return nil
	},
}

func init() {
	routeCmd.Flags().String("tier", "", "complexity tier (default: classified from the prompt)")
	routeCmd.Flags().String("system", "", "system prompt")
	routeCmd.Flags().Bool("classify", false, "ask the local backend for the tier")
	routeCmd.Flags().Int("max-tokens", 0, "max output tokens (0: backend default)")
	routeCmd.Flags().Float64("temperature", 0, "sampling temperature")
}

// --- memory ---

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Manage long-term memories",
}

var memoryRememberCmd = &cobra.Command{
	Use:   "remember",
	Short: "Extract facts from text, a file or a URL and store them",
	Long: `Extract facts from text, a file or a URL and store them.

Examples:
  bolla memory remember --text "O Lucas prefere Go para backend"
  bolla memory remember --file ./notas.pdf --category fact
  bolla memory remember --url https://example.com/artigo --async`,
	RunE: func(cmd *cobra.Command, args []string) error {
		text, _ := cmd.Flags().GetString("text")
		file, _ := cmd.Flags().GetString("file")
		link, _ := cmd.Flags().GetString("url")
		category, _ := cmd.Flags().GetString("category")
		async, _ := cmd.Flags().GetBool("async")

		set := 0
		for _, v := range []string{text, file, link} {
			if v != "" {
				set++
			}
		}
		if set != 1 {
			return errors.New("exactly one of --text, --file or --url is required")
		}

		if file != "" {
			var err error
			if text, err = readSource(file); err != nil {
				return err
			}
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		var result struct {
			Status   string       `json:"status"`
			JobID    string       `json:"job_id"`
			Memories []memoryItem `json:"memories"`
		}
		if err := client.call(cmd.Context(), http.MethodPost, "/memories/remember", map[string]any{
			"text":     text,
			"url":      link,
			"source":   "cli",
			"category": category,
			"async":    async,
		}, &result); err != nil {
			return err
		}

		if result.JobID != "" {
			printSuccess("Queued job %s", result.JobID)
			return nil
		}
		if len(result.Memories) == 0 {
			printWarning("No facts worth remembering were found")
			return nil
		}
		for _, m := range result.Memories {
			printMemory(m.ID, m.Category, m.AccessCount, m.Content)
		}
		printSuccess("Stored %d memories", len(result.Memories))
		return nil
	},
}

var memorySearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search long-term memories",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		path := fmt.Sprintf("/memories/search?q=%s&limit=%d", url.QueryEscape(strings.Join(args, " ")), limit)
		return listMemories(cmd, path)
	},
}

var memoryTopCmd = &cobra.Command{
	Use:   "top",
	Short: "List the most accessed memories",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		return listMemories(cmd, fmt.Sprintf("/memories/top?limit=%d", limit))
	},
}

var memoryListCmd = &cobra.Command{
	Use:   "list <category>",
	Short: "List memories of a category",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		return listMemories(cmd, fmt.Sprintf("/memories?category=%s&limit=%d", url.QueryEscape(args[0]), limit))
	},
}

func listMemories(cmd *cobra.Command, path string) error {
	client, err := newAPIClient()
	if err != nil {
		return err
	}
	var items []memoryItem
	if err := client.call(cmd.Context(), http.MethodGet, path, nil, &items); err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Fprintln(stdout, "No memories found.")
		return nil
	}
	for _, m := range items {
		printMemory(m.ID, m.Category, m.AccessCount, m.Content)
	}
	return nil
}

var memoryAddCmd = &cobra.Command{
	Use:   "add <content>",
	Short: "Store a memory verbatim, without fact extraction",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		category, _ := cmd.Flags().GetString("category")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		var m memoryItem
		if err := client.call(cmd.Context(), http.MethodPost, "/memories", map[string]any{
			"content":  strings.Join(args, " "),
			"category": category,
			"source":   "cli",
		}, &m); err != nil {
			return err
		}
		printSuccess("Stored memory #%d [%s]", m.ID, m.Category)
		return nil
	},
}

func init() {
	memoryRememberCmd.Flags().String("text", "", "text to extract facts from")
	memoryRememberCmd.Flags().String("file", "", "text or PDF file to extract facts from")
	memoryRememberCmd.Flags().String("url", "", "web page to extract facts from")
	memoryRememberCmd.Flags().String("category", "", "category for every fact (default: classify each)")
	memoryRememberCmd.Flags().Bool("async", false, "queue the work and return immediately")

	memorySearchCmd.Flags().Int("limit", 7, "maximum number of results")
	memoryTopCmd.Flags().Int("limit", 10, "maximum number of results")
	memoryListCmd.Flags().Int("limit", 20, "maximum number of results")
	memoryAddCmd.Flags().String("category", "general", "memory category")

	memoryCmd.AddCommand(memoryRememberCmd)
	memoryCmd.AddCommand(memorySearchCmd)
	memoryCmd.AddCommand(memoryTopCmd)
	memoryCmd.AddCommand(memoryListCmd)
	memoryCmd.AddCommand(memoryAddCmd)
}

// --- personality ---

var personalityCmd = &cobra.Command{
	Use:   "personality",
	Short: "Show or change Bolla's personality traits",
}

var personalityShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show traits and the rendered system prompt",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		var result struct {
			Traits       map[string]string `json:"traits"`
			SystemPrompt string            `json:"system_prompt"`
		}
		if err := client.call(cmd.Context(), http.MethodGet, "/personality", nil, &result); err != nil {
			return err
		}

		if asJSON {
			enc := json.NewEncoder(stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(result.Traits)
		}

		keys := make([]string, 0, len(result.Traits))
		for k := range result.Traits {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(stdout, "  %s = %s\n", colorize(colorBold, k), result.Traits[k])
		}
		fmt.Fprintf(stdout, "\n%s\n", result.SystemPrompt)
		return nil
	},
}

var personalitySetCmd = &cobra.Command{
	Use:   "set <trait> <value>",
	Short: "Set a personality trait",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		trait, value := args[0], strings.Join(args[1:], " ")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		var result map[string]any
		if err := client.call(cmd.Context(), http.MethodPatch, "/personality", map[string]string{trait: value}, &result); err != nil {
			return err
		}

		printSuccess("Set %s = %s", trait, value)
		return nil
	},
}

func init() {
	personalityShowCmd.Flags().Bool("json", false, "print traits as JSON")
	personalityCmd.AddCommand(personalityShowCmd)
	personalityCmd.AddCommand(personalitySetCmd)
}

// --- conversation ---

var conversationCmd = &cobra.Command{
	Use:   "conversation",
	Short: "Manage short-term conversation history",
}

var conversationClearCmd = &cobra.Command{
	Use:   "clear <id>",
	Short: "Forget the recent turns of a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		var result struct {
			Turns int `json:"turns"`
		}
		if err := client.call(cmd.Context(), http.MethodDelete, "/conversations/"+url.PathEscape(args[0]), nil, &result); err != nil {
			return err
		}
		printSuccess("Cleared %d turns from %s", result.Turns, args[0])
		return nil
	},
}

func init() {
	conversationCmd.AddCommand(conversationClearCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			line := fmt.Sprintf("  %s = %s", colorize(colorBold, k.Key), k.Value)
			if k.FromEnv {
				line += fmt.Sprintf(" (from %s)", k.EnvVar)
			}
			fmt.Fprintln(stdout, line)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return fmt.Errorf("%w (valid keys: %s)", err, strings.Join(config.ValidKeys(), ", "))
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
