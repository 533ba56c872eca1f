package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskman/taskman/internal/event"
)

// userCmd groups user-scoped operations.
var userCmd = &cobra.Command{
	Use:   "user",
	Short: "User-scoped operations",
}

// userDeleteCmd emits the user-deleted event. There is no user service in
// this fleet; account deletion happens elsewhere and this event is how the
// pipeline hears about it.
var userDeleteCmd = &cobra.Command{
	Use:   "delete <user-id>",
	Short: "Emit a user-deleted event",
	Long: `Publish a USER_DELETED event for the given user id. The comment
service reacts by anonymizing and then removing every comment the user
wrote.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ev := event.UserEvent{
			EventID:   event.NewID(),
			EventType: event.UserDeleted,
			UserID:    args[0],
			Timestamp: time.Now().UTC(),
		}
		payload, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("marshal user event: %w", err)
		}

		endpoint := fmt.Sprintf("%s/pub?topic=%s", nsqdHTTP, url.QueryEscape(event.TopicUserEvents))
		resp, err := httpClient().Post(endpoint, "application/json", bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("publish user event: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != 200 {
			return fmt.Errorf("publish user event: HTTP %d", resp.StatusCode)
		}

		fmt.Printf("Published USER_DELETED for %s (event %s)\n", ev.UserID, ev.EventID)
		return nil
	},
}

func init() {
	userCmd.AddCommand(userDeleteCmd)
	rootCmd.AddCommand(userCmd)
}
