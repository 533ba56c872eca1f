package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// healthCmd represents the health command
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the health of every taskman service",
	Long:  `Hit the /healthz endpoint of the task, project and notification services and report each result.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		services := []struct {
			name string
			url  string
		}{
			{"taskd", taskURL},
			{"projectd", projectURL},
			{"notifyd", notifyURL},
		}

		failed := 0
		for _, svc := range services {
			resp, err := httpClient().Get(svc.url + "/healthz")
			if err != nil {
				fmt.Printf("✗ %s unreachable: %v\n", svc.name, err)
				failed++
				continue
			}
			resp.Body.Close()
			if resp.StatusCode == 200 {
				fmt.Printf("✓ %s is healthy\n", svc.name)
			} else {
				fmt.Printf("✗ %s is unhealthy (HTTP %d)\n", svc.name, resp.StatusCode)
				failed++
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d service(s) unhealthy", failed)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
