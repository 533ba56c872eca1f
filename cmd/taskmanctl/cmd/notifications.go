package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

var unreadOnly bool

// notificationsCmd lists the acting user's notifications.
var notificationsCmd = &cobra.Command{
	Use:   "notifications",
	Short: "List notifications for the acting user",
	Long: `Fetch the acting user's notifications from the notification service.
Use --as to pick the user and --unread to restrict to unread ones.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		token, err := bearerToken()
		if err != nil {
			return err
		}

		path := "/notifications/all"
		if unreadOnly {
			path = "/notifications/unread"
		}
		req, err := http.NewRequest(http.MethodGet, notifyURL+path, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := httpClient().Do(req)
		if err != nil {
			return fmt.Errorf("fetch notifications: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != 200 {
			return fmt.Errorf("fetch notifications: HTTP %d", resp.StatusCode)
		}

		var out struct {
			Notifications []struct {
				ID        string `json:"id"`
				Type      string `json:"type"`
				Content   string `json:"content"`
				IsRead    bool   `json:"is_read"`
				CreatedAt string `json:"created_at"`
			} `json:"notifications"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return fmt.Errorf("decode notifications: %w", err)
		}

		if len(out.Notifications) == 0 {
			fmt.Println("No notifications")
			return nil
		}
		for _, n := range out.Notifications {
			read := " "
			if !n.IsRead {
				read = "*"
			}
			fmt.Printf("%s [%s] %s  %s (%s)\n", read, n.ID, n.Type, n.Content, n.CreatedAt)
		}
		return nil
	},
}

func init() {
	notificationsCmd.Flags().BoolVar(&unreadOnly, "unread", false, "only unread notifications")
	rootCmd.AddCommand(notificationsCmd)
}
