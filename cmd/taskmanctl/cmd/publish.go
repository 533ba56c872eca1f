package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"os"

	"github.com/spf13/cobra"
)

var publishFile string

// publishCmd represents the publish command
var publishCmd = &cobra.Command{
	Use:   "publish <topic> [payload-json]",
	Short: "Publish a raw event onto a topic",
	Long: `Publish a raw JSON payload onto an event topic through nsqd's HTTP
interface. The payload is validated as JSON but not against any envelope
shape; this is a debugging escape hatch, not a producer.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		topic := args[0]

		var payload []byte
		switch {
		case publishFile != "":
			b, err := os.ReadFile(publishFile)
			if err != nil {
				return fmt.Errorf("read payload file: %w", err)
			}
			payload = b
		case len(args) == 2:
			payload = []byte(args[1])
		default:
			return fmt.Errorf("provide a payload argument or --file")
		}

		if !json.Valid(payload) {
			return fmt.Errorf("payload is not valid JSON")
		}

		endpoint := fmt.Sprintf("%s/pub?topic=%s", nsqdHTTP, url.QueryEscape(topic))
		resp, err := httpClient().Post(endpoint, "application/json", bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("publish to %s: %w", topic, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != 200 {
			return fmt.Errorf("publish to %s: HTTP %d", topic, resp.StatusCode)
		}

		fmt.Printf("Published %d bytes to %s\n", len(payload), topic)
		return nil
	},
}

func init() {
	publishCmd.Flags().StringVar(&publishFile, "file", "", "read the payload from a file")
	rootCmd.AddCommand(publishCmd)
}
