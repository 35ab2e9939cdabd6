package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/akozyrev/launchman/internal/account"
	"github.com/akozyrev/launchman/internal/script"
	"github.com/akozyrev/launchman/internal/settings"
)

func main() {
	if err := buildRoot().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds persistent flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
	APIUrl     string
	APITimeout time.Duration
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "settings.json"
	}
	return filepath.Join(dir, "launchman", "settings.json")
}

func buildRoot() *cobra.Command {
	flags := &GlobalFlags{}

	root := &cobra.Command{
		Use:           "launchman",
		Short:         "Manage game accounts and their client processes",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", defaultConfigPath(), "path to settings.json")
	root.PersistentFlags().StringVar(&flags.APIUrl, "api", "http://127.0.0.1:8832/api", "daemon API base URL")
	root.PersistentFlags().DurationVar(&flags.APITimeout, "api-timeout", 30*time.Second, "API request timeout")

	root.AddCommand(
		createServeCommand(flags),
		createStatusCommand(flags),
		createLaunchCommand(flags),
		createLaunchAllCommand(flags),
		createTerminateCommand(flags),
		createTerminateAllCommand(flags),
		createDelayCommand(flags),
		createAccountCommand(flags),
		createScriptCommand(flags),
		createBrowserCommand(flags),
	)
	return root
}

func api(flags *GlobalFlags) *APIClient {
	return NewAPIClient(flags.APIUrl, flags.APITimeout)
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func createStatusCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show tracked clients and queue state",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out map[string]any
			if err := api(flags).Get("/status", nil, &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	}
}

func createLaunchCommand(flags *GlobalFlags) *cobra.Command {
	var now bool
	cmd := &cobra.Command{
		Use:   "launch <login>",
		Short: "Queue a client launch for an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{"login": {args[0]}}
			if now {
				q.Set("now", "1")
			}
			if err := api(flags).Post("/launch", q, nil, nil); err != nil {
				return err
			}
			if now {
				fmt.Printf("launched %s\n", args[0])
			} else {
				fmt.Printf("queued %s\n", args[0])
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&now, "now", false, "launch synchronously instead of queueing")
	return cmd
}

func createLaunchAllCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "launch-all",
		Short: "Queue launches for every account without a live client",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out struct {
				Queued int `json:"queued"`
			}
			if err := api(flags).Post("/launch-all", nil, nil, &out); err != nil {
				return err
			}
			fmt.Printf("queued %d launches\n", out.Queued)
			return nil
		},
	}
}

func createTerminateCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "terminate <login>",
		Short: "Stop the client tracked for an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{"login": {args[0]}}
			if err := api(flags).Post("/terminate", q, nil, nil); err != nil {
				return err
			}
			fmt.Printf("terminated %s\n", args[0])
			return nil
		},
	}
}

func createTerminateAllCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "terminate-all",
		Short: "Stop every tracked client",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out struct {
				Terminated int `json:"terminated"`
			}
			if err := api(flags).Post("/terminate-all", nil, nil, &out); err != nil {
				return err
			}
			fmt.Printf("terminated %d clients\n", out.Terminated)
			return nil
		},
	}
}

func createDelayCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delay <seconds>",
		Short: "Set the pause between queued launches",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secs, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("seconds must be an integer: %w", err)
			}
			q := url.Values{"seconds": {strconv.Itoa(secs)}}
			var out struct {
				DelaySec int `json:"delay_sec"`
			}
			if err := api(flags).Post("/delay", q, nil, &out); err != nil {
				return err
			}
			fmt.Printf("inter-launch delay is now %ds\n", out.DelaySec)
			return nil
		},
	}
}

func createAccountCommand(flags *GlobalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage the account roster",
	}

	var (
		password    string
		character   string
		owner       string
		description string
	)
	add := &cobra.Command{
		Use:   "add <login>",
		Short: "Add an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := account.Account{
				Login:       args[0],
				Password:    password,
				Character:   character,
				Owner:       owner,
				Description: description,
			}
			if err := api(flags).Post("/accounts", nil, a, nil); err != nil {
				return err
			}
			fmt.Printf("added %s\n", a.Login)
			return nil
		},
	}
	add.Flags().StringVar(&password, "password", "", "account password")
	add.Flags().StringVar(&character, "character", "", "character to log in with")
	add.Flags().StringVar(&owner, "owner", "", "account owner")
	add.Flags().StringVar(&description, "description", "", "free-form note")
	_ = add.MarkFlagRequired("password")

	list := &cobra.Command{
		Use:   "list",
		Short: "List all accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out []account.Account
			if err := api(flags).Get("/accounts", nil, &out); err != nil {
				return err
			}
			// Passwords stay off the terminal.
			for i := range out {
				out[i].Password = ""
			}
			return printJSON(out)
		},
	}

	rm := &cobra.Command{
		Use:   "rm <login>",
		Short: "Delete an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{"login": {args[0]}}
			if err := api(flags).Do(http.MethodDelete, "/accounts", q, nil, nil); err != nil {
				return err
			}
			fmt.Printf("deleted %s\n", args[0])
			return nil
		},
	}

	imp := &cobra.Command{
		Use:   "import",
		Short: "Rebuild roster entries from launch scripts in the scripts folder",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out struct {
				Imported int `json:"imported"`
				Skipped  int `json:"skipped"`
			}
			if err := api(flags).Post("/accounts/import", nil, nil, &out); err != nil {
				return err
			}
			fmt.Printf("imported %d accounts, skipped %d\n", out.Imported, out.Skipped)
			return nil
		},
	}

	cmd.AddCommand(add, list, rm, imp)
	return cmd
}

func createScriptCommand(flags *GlobalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "script",
		Short: "Work with generated launch scripts",
	}
	gen := &cobra.Command{
		Use:   "generate <login>",
		Short: "Write the launch script for an account without starting it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := settings.Load(flags.ConfigPath)
			if err != nil {
				return err
			}
			roster, err := account.Open(cfg.AccountsPath)
			if err != nil {
				return err
			}
			a, err := roster.Get(args[0])
			if err != nil {
				return err
			}
			path, err := script.Generate(cfg.ScriptsDir, cfg.GameDir, script.Params{
				Login:       a.Login,
				Password:    a.Password,
				Character:   a.Character,
				Owner:       a.Owner,
				Description: a.Description,
			})
			if err != nil {
				return err
			}
			fmt.Println(path)
			return nil
		},
	}
	cmd.AddCommand(gen)
	return cmd
}

func createBrowserCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "browser <login>",
		Short: "Open the account site in a private browser window",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{"login": {args[0]}}
			return api(flags).Post("/browser", q, nil, nil)
		},
	}
}
