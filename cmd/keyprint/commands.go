package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"keyprint/internal/config"
)

// readEvents loads a JSON array of key events from a file, or from stdin when
// path is empty or "-". The events are forwarded to the server verbatim.
func readEvents(path string) (json.RawMessage, error) {
	var data []byte
	var err error
	if path == "" || path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading events: %w", err)
	}

	var events []json.RawMessage
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("events must be a JSON array: %w", err)
	}
	return json.RawMessage(data), nil
}

// --- enroll ---

var enrollCmd = &cobra.Command{
	Use:   "enroll <name>",
	Short: "Enroll a typist from a recorded key-event sample",
	Long: `Enroll a typist from a recorded key-event sample.

Examples:
  keyprint enroll alice --file sample.json
  cat sample.json | keyprint enroll alice`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")

		events, err := readEvents(file)
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post("/enroll", map[string]any{
			"name":   args[0],
			"events": events,
		})
		if err != nil {
			return err
		}

		var profile struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		}
		if err := decodeJSON(resp, &profile); err != nil {
			return err
		}

		printSuccess("Enrolled %s (profile %s)", profile.Name, profile.ID)
		return nil
	},
}

func init() {
	enrollCmd.Flags().String("file", "", "events JSON file (default: stdin)")
}

// --- identify ---

var identifyCmd = &cobra.Command{
	Use:   "identify",
	Short: "Identify the typist of a recorded key-event sample",
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")

		events, err := readEvents(file)
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post("/predict", map[string]any{"events": events})
		if err != nil {
			return err
		}

		var result struct {
			Match *struct {
				ProfileID string `json:"profile_id"`
				Name      string `json:"name"`
			} `json:"match"`
			Confidence float64 `json:"confidence"`
			Band       string  `json:"band"`
			EventCount int     `json:"event_count"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if result.Match != nil {
			printSuccess("Identified %s (confidence %.3f, band %s)", result.Match.Name, result.Confidence, result.Band)
		} else {
			printWarning("No match (confidence %.3f, band %s)", result.Confidence, result.Band)
		}
		printStatus("Events", "%d", result.EventCount)
		return nil
	},
}

func init() {
	identifyCmd.Flags().String("file", "", "events JSON file (default: stdin)")
}

// --- profiles ---

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "Manage enrolled typist profiles",
}

var profilesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List enrolled profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get("/profiles")
		if err != nil {
			return err
		}

		var profiles []struct {
			ID              string  `json:"id"`
			Name            string  `json:"name"`
			AttemptCount    int     `json:"attempt_count"`
			MatchCount      int     `json:"match_count"`
			RollingAccuracy float64 `json:"rolling_accuracy"`
		}
		if err := decodeJSON(resp, &profiles); err != nil {
			return err
		}

		if len(profiles) == 0 {
			fmt.Println("No profiles enrolled.")
			return nil
		}

		for _, p := range profiles {
			fmt.Printf("%s  %-20s  %d/%d matched  accuracy %.3f\n",
				colorize(colorCyan, p.ID[:8]),
				p.Name,
				p.MatchCount,
				p.AttemptCount,
				p.RollingAccuracy,
			)
		}
		return nil
	},
}

var profilesShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single profile as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get("/profiles/" + args[0])
		if err != nil {
			return err
		}

		var profile any
		if err := decodeJSON(resp, &profile); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(profile)
	},
}

var profilesDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a profile and its samples",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete("/profiles/" + args[0])
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Deleted profile %s", args[0])
		return nil
	},
}

func init() {
	profilesCmd.AddCommand(profilesListCmd)
	profilesCmd.AddCommand(profilesShowCmd)
	profilesCmd.AddCommand(profilesDeleteCmd)
}

// --- comparisons ---

var comparisonsCmd = &cobra.Command{
	Use:   "comparisons",
	Short: "List recent identification attempts",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(fmt.Sprintf("/comparisons?limit=%d", limit))
		if err != nil {
			return err
		}

		var comparisons []struct {
			ID         string  `json:"id"`
			ProfileID  string  `json:"profile_id"`
			Confidence float64 `json:"confidence"`
			Band       string  `json:"band"`
			EventCount int     `json:"event_count"`
			CreatedAt  string  `json:"created_at"`
		}
		if err := decodeJSON(resp, &comparisons); err != nil {
			return err
		}

		if len(comparisons) == 0 {
			fmt.Println("No comparisons recorded.")
			return nil
		}

		for _, c := range comparisons {
			target := c.ProfileID
			if target == "" {
				target = "-"
			} else if len(target) > 8 {
				target = target[:8]
			}
			fmt.Printf("%s  %s  %-8s  %.3f  %d events  %s\n",
				colorize(colorCyan, c.ID[:8]),
				c.CreatedAt,
				c.Band,
				c.Confidence,
				c.EventCount,
				target,
			)
		}
		return nil
	},
}

func init() {
	comparisonsCmd.Flags().Int("limit", 20, "maximum number of comparisons to list")
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

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
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
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
