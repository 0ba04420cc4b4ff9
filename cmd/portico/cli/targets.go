package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/majorcontext/portico/internal/config"
	"github.com/majorcontext/portico/internal/id"
	"github.com/majorcontext/portico/internal/proxy"
	"github.com/majorcontext/portico/internal/target"
	"github.com/majorcontext/portico/internal/ui"
)

var (
	targetsRegistry string
	showSecrets     bool
	addTarget       target.Config
)

var targetsCmd = &cobra.Command{
	Use:     "targets",
	Aliases: []string{"target", "apps"},
	Short:   "Manage registered targets",
	Long: `Manage the target registry document directly.

A running server keeps its own copy of the registry and does not see
these edits until it restarts. Use the server's /applications endpoints
to change targets while it is running.`,
}

var targetsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List registered targets",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := openRegistry()
		if err != nil {
			return err
		}
		return listTargets(reg)
	},
}

var targetsShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show one target",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := openRegistry()
		if err != nil {
			return err
		}
		return showTarget(reg, args[0])
	},
}

var targetsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a target",
	Long: `Register a target. An id is generated when --id is omitted.

Examples:
  portico targets add --name orders --host orders.internal --port 8443 --protocol https \
      --auth bearer --token s3cr3t
  portico targets add --name billing --host billing.local --auth oauth \
      --client-id app --client-secret shh --token-url https://idp.local/oauth/token`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := openRegistry()
		if err != nil {
			return err
		}
		return addTargetTo(reg, addTarget)
	},
}

var targetsRemoveCmd = &cobra.Command{
	Use:     "remove ID",
	Aliases: []string{"rm"},
	Short:   "Remove a target",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := openRegistry()
		if err != nil {
			return err
		}
		return removeTarget(reg, args[0])
	},
}

func init() {
	targetsCmd.PersistentFlags().StringVar(&targetsRegistry, "registry", "", "path to the target registry document")

	targetsShowCmd.Flags().BoolVar(&showSecrets, "show-secrets", false, "print passwords, tokens, and client secrets")

	f := targetsAddCmd.Flags()
	f.StringVar(&addTarget.ID, "id", "", "target id (generated if empty)")
	f.StringVar(&addTarget.Name, "name", "", "display name")
	f.StringVar(&addTarget.Protocol, "protocol", target.DefaultProtocol, "upstream scheme")
	f.StringVar(&addTarget.Host, "host", "", "upstream host")
	f.StringVar(&addTarget.Port, "port", "", "upstream port")
	f.StringVar(&addTarget.AuthType, "auth", "none", "auth scheme: none, basic, bearer, oauth")
	f.StringVar(&addTarget.Username, "username", "", "basic auth username")
	f.StringVar(&addTarget.Password, "password", "", "basic auth password")
	f.StringVar(&addTarget.Token, "token", "", "bearer token")
	f.StringVar(&addTarget.ClientID, "client-id", "", "OAuth client id")
	f.StringVar(&addTarget.ClientSecret, "client-secret", "", "OAuth client secret")
	f.StringVar(&addTarget.TokenURL, "token-url", "", "OAuth token endpoint")
	_ = targetsAddCmd.MarkFlagRequired("host")

	targetsCmd.AddCommand(targetsListCmd, targetsShowCmd, targetsAddCmd, targetsRemoveCmd)
	rootCmd.AddCommand(targetsCmd)
}

func openRegistry() (*target.Registry, error) {
	path := targetsRegistry
	if path == "" {
		cfg, err := config.LoadGlobal()
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		path = cfg.Registry.Path
	}
	reg, err := target.NewRegistry(path)
	if err != nil {
		return nil, fmt.Errorf("opening registry: %w", err)
	}
	return reg, nil
}

// baseURL renders a target's upstream origin for display.
func baseURL(cfg target.Config) string {
	if cfg.Host == "" {
		return ui.Dim("(no host)")
	}
	return strings.TrimSuffix(proxy.BuildURL(cfg.Scheme(), cfg.Host, cfg.Port, "", "", false), "/")
}

func listTargets(reg *target.Registry) error {
	targets := reg.List()
	if jsonOut {
		sanitized := make([]target.Config, len(targets))
		for i, t := range targets {
			sanitized[i] = t.Sanitized()
		}
		enc := json.NewEncoder(ui.Stdout())
		enc.SetIndent("", "  ")
		return enc.Encode(sanitized)
	}

	if len(targets) == 0 {
		ui.Infof("No targets registered in %s", reg.Path())
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(ui.Stdout())
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"ID", "NAME", "URL", "AUTH"})
	for _, cfg := range targets {
		idCell := cfg.ID
		if id.IsGenerated(cfg.ID) {
			idCell = ui.Dim(cfg.ID)
		}
		t.AppendRow(table.Row{idCell, cfg.Name, baseURL(cfg), authLabel(cfg)})
	}
	t.Render()
	ui.Infof("%s %d", ui.Bold("Total:"), len(targets))
	return nil
}

// authLabel names the auth scheme, flagging values the proxy does not recognize.
func authLabel(cfg target.Config) string {
	a := cfg.Auth()
	if a == target.AuthUnrecognized {
		return ui.Yellow(fmt.Sprintf("%s (ignored)", cfg.AuthType))
	}
	return a.String()
}

func showTarget(reg *target.Registry, targetID string) error {
	cfg, ok := reg.Resolve(targetID)
	if !ok {
		return fmt.Errorf("target %q not found", targetID)
	}
	if !showSecrets {
		cfg = maskSecrets(cfg)
	}
	if jsonOut {
		enc := json.NewEncoder(ui.Stdout())
		enc.SetIndent("", "  ")
		return enc.Encode(cfg)
	}

	ui.Section(cfg.ID)
	const width = 13
	field := func(label, value string) {
		if value != "" {
			ui.Field(label, width, value)
		}
	}
	field("Name", cfg.Name)
	field("URL", baseURL(cfg))
	field("Auth", authLabel(cfg))
	field("Username", cfg.Username)
	field("Password", cfg.Password)
	field("Token", cfg.Token)
	field("Client ID", cfg.ClientID)
	field("Client secret", cfg.ClientSecret)
	field("Token URL", cfg.TokenURL)
	return nil
}

// maskSecrets replaces set secrets with a fixed placeholder.
func maskSecrets(cfg target.Config) target.Config {
	for _, s := range []*string{&cfg.Password, &cfg.Token, &cfg.ClientSecret} {
		if *s != "" {
			*s = "********"
		}
	}
	return cfg
}

func addTargetTo(reg *target.Registry, cfg target.Config) error {
	if strings.TrimSpace(cfg.Host) == "" {
		return errors.New("--host is required")
	}
	if _, exists := reg.Resolve(cfg.ID); cfg.ID != "" && exists {
		ui.Warnf("a target with id %q already exists; requests will keep resolving to the first one", cfg.ID)
	}
	if cfg.Auth() == target.AuthOAuth && (cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.TokenURL == "") {
		ui.Warnf("oauth targets need --client-id, --client-secret and --token-url; requests will be sent without credentials")
	}

	stored, err := reg.Add(cfg)
	if err != nil {
		return err
	}
	warnIfServing()
	ui.Successf("Added target %s (%s)", stored.ID, baseURL(stored))
	return nil
}

func removeTarget(reg *target.Registry, targetID string) error {
	if err := reg.Delete(targetID); err != nil {
		return fmt.Errorf("removing %q: %w", targetID, err)
	}
	warnIfServing()
	ui.Successf("Removed target %s", targetID)
	return nil
}

// warnIfServing reminds the user that a running server won't see file edits.
func warnIfServing() {
	lock, state, err := loadServerState(config.Dir())
	if err != nil || state != stateRunning {
		return
	}
	ui.Warnf("portico is running (pid %d) and will not see this change until restarted; use http://%s/applications instead",
		lock.PID, lock.Addr())
}
