package cmd

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/taskman/taskman/internal/auth"
)

var (
	cfgFile    string
	taskURL    string
	projectURL string
	notifyURL  string
	nsqdHTTP   string
	authSecret string
	authIssuer string
	timeout    time.Duration
	asUser     string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "taskmanctl",
	Short: "Taskman CLI - operate the task management event pipeline",
	Long: `Taskman CLI (taskmanctl) is a command line tool for operating the
taskman services.

You can use it to check service health, publish raw events onto a topic,
inspect a user's notifications, and emit the user-deleted event that drives
comment anonymization.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.taskmanctl.yaml)")
	rootCmd.PersistentFlags().StringVar(&taskURL, "task-url", "http://localhost:8081", "task service base URL")
	rootCmd.PersistentFlags().StringVar(&projectURL, "project-url", "http://localhost:8082", "project service base URL")
	rootCmd.PersistentFlags().StringVar(&notifyURL, "notify-url", "http://localhost:8084", "notification service base URL")
	rootCmd.PersistentFlags().StringVar(&nsqdHTTP, "nsqd-http", "http://localhost:4151", "nsqd HTTP address for raw publishes")
	rootCmd.PersistentFlags().StringVar(&authSecret, "secret", "", "JWT signing secret (or AUTH_SECRET env var)")
	rootCmd.PersistentFlags().StringVar(&authIssuer, "issuer", "taskman-system", "issuer claim the services expect")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "request timeout")
	rootCmd.PersistentFlags().StringVar(&asUser, "as", "system", "subject to act as for authenticated calls")

	viper.BindPFlag("task-url", rootCmd.PersistentFlags().Lookup("task-url"))
	viper.BindPFlag("project-url", rootCmd.PersistentFlags().Lookup("project-url"))
	viper.BindPFlag("notify-url", rootCmd.PersistentFlags().Lookup("notify-url"))
	viper.BindPFlag("nsqd-http", rootCmd.PersistentFlags().Lookup("nsqd-http"))
	viper.BindPFlag("secret", rootCmd.PersistentFlags().Lookup("secret"))
	viper.BindPFlag("timeout", rootCmd.PersistentFlags().Lookup("timeout"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".taskmanctl")
	}

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}

	for flag, target := range map[string]*string{
		"task-url":    &taskURL,
		"project-url": &projectURL,
		"notify-url":  &notifyURL,
		"nsqd-http":   &nsqdHTTP,
	} {
		if !rootCmd.PersistentFlags().Changed(flag) {
			if v := viper.GetString(flag); v != "" {
				*target = v
			}
		}
	}
	if !rootCmd.PersistentFlags().Changed("timeout") {
		if d := viper.GetDuration("timeout"); d > 0 {
			timeout = d
		}
	}
	if !rootCmd.PersistentFlags().Changed("secret") {
		if s := viper.GetString("secret"); s != "" {
			authSecret = s
		} else if s := os.Getenv("AUTH_SECRET"); s != "" {
			authSecret = s
		}
	}
}

// httpClient returns the shared client for service calls.
func httpClient() *http.Client {
	return &http.Client{Timeout: timeout}
}

// bearerToken mints a short-lived token for the acting subject.
func bearerToken() (string, error) {
	if authSecret == "" {
		return "", fmt.Errorf("no auth secret configured (--secret or AUTH_SECRET)")
	}
	svc := auth.NewService(authSecret, authIssuer, 10*time.Minute)
	if asUser == "" || asUser == auth.SystemSubject {
		return svc.SystemToken()
	}
	return svc.TokenFor(asUser)
}
