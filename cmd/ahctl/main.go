package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vtt-om/arrowhead-client-go/pkg/client"
	"github.com/vtt-om/arrowhead-client-go/pkg/config"
)

// version is overridden via -ldflags "-X main.version=...".
var version = "dev"

var (
	cfgFile string
	verbose bool
	logger  = zap.NewNop()
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ahctl",
	Short: "Arrowhead Framework client CLI",
	Long: `ahctl talks to the core services of an Arrowhead local cloud on behalf of
the system described in a JSON configuration file.

It can wait for the core services to come up, register the system and its
services, orchestrate a service and manage intra-cloud authorization rules.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if verbose {
			logger, err = zap.NewDevelopment()
		} else {
			logger, err = zap.NewProduction()
		}
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config/arrowhead_system.json", "system configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "development logging")

	rootCmd.AddCommand(echoCmd)
	rootCmd.AddCommand(registerSystemCmd)
	rootCmd.AddCommand(registerServiceCmd)
	rootCmd.AddCommand(unregisterServiceCmd)
	rootCmd.AddCommand(servicesCmd)
	rootCmd.AddCommand(orchestrateCmd)
	rootCmd.AddCommand(authorizeCmd)
	rootCmd.AddCommand(authorizationsCmd)
	rootCmd.AddCommand(certsCmd)
	rootCmd.AddCommand(versionCmd)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// loadClient loads the configuration and checks it against role.
func loadClient(role config.Role) (*config.Config, *client.Client, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Require(role); err != nil {
		return nil, nil, err
	}
	c, err := cfg.NewClient(logger)
	if err != nil {
		return nil, nil, err
	}
	return cfg, c, nil
}

// ── echo ─────────────────────────────────────────────────────────────────────

var echoTimeout time.Duration

var echoCmd = &cobra.Command{
	Use:   "echo",
	Short: "Wait until the configured core services answer their echo endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, c, err := loadClient(config.RoleSystem)
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()
		if echoTimeout > 0 {
			ctx, cancel = context.WithTimeout(ctx, echoTimeout)
			defer cancel()
		}

		for _, base := range []string{cfg.ServiceRegistryURL, cfg.OrchestratorURL, cfg.AuthorizationURL} {
			if base == "" {
				continue
			}
			if err := c.WaitUntilAvailable(ctx, base); err != nil {
				return err
			}
			fmt.Printf("%s\tup\n", base)
		}
		return nil
	},
}

func init() {
	echoCmd.Flags().DurationVar(&echoTimeout, "timeout", 0, "Give up after this long; 0 waits until interrupted")
}

// ── register-system ──────────────────────────────────────────────────────────

var registerSystemCmd = &cobra.Command{
	Use:   "register-system",
	Short: "Wait for the core services and register this system",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, c, err := loadClient(config.RoleSystem)
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()

		if err := c.Bootstrap(ctx); err != nil {
			return err
		}
		fmt.Printf("System %q registered.\n", c.System().SystemName)
		return nil
	},
}

// ── register-service ─────────────────────────────────────────────────────────

var (
	regDefinition string
	regURI        string
	regInterface  string
)

var registerServiceCmd = &cobra.Command{
	Use:   "register-service",
	Short: "Register one service, or every configured service when --definition is omitted",
	RunE: func(cmd *cobra.Command, args []string) error {
		role := config.RoleSystem
		if regDefinition == "" {
			role = config.RoleProvider
		}
		cfg, c, err := loadClient(role)
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()

		if regDefinition != "" {
			if err := c.RegisterService(ctx, regDefinition, regURI, regInterface); err != nil {
				return err
			}
			fmt.Printf("Service %q registered.\n", regDefinition)
			return nil
		}
		if err := c.RegisterServices(ctx, cfg.Registrations()); err != nil {
			return err
		}
		fmt.Printf("%d services registered.\n", len(cfg.Services))
		return nil
	},
}

func init() {
	registerServiceCmd.Flags().StringVar(&regDefinition, "definition", "", "Service definition")
	registerServiceCmd.Flags().StringVar(&regURI, "uri", "", "Service URI path on this system")
	registerServiceCmd.Flags().StringVar(&regInterface, "interface", "", "Interface name (default depends on secure mode)")
}

// ── unregister-service ───────────────────────────────────────────────────────

var unregisterServiceCmd = &cobra.Command{
	Use:   "unregister-service [definition...]",
	Short: "Unregister the named services, or every configured service",
	RunE: func(cmd *cobra.Command, args []string) error {
		role := config.RoleSystem
		if len(args) == 0 {
			role = config.RoleProvider
		}
		cfg, c, err := loadClient(role)
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()

		defs := args
		if len(defs) == 0 {
			defs = cfg.ServiceDefinitions()
		}
		if err := c.UnregisterServices(ctx, defs); err != nil {
			return err
		}
		fmt.Printf("%d services unregistered.\n", len(defs))
		return nil
	},
}

// ── services ─────────────────────────────────────────────────────────────────

var servicesCmd = &cobra.Command{
	Use:   "services <definition>",
	Short: "List the registry entries offering a service definition",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, c, err := loadClient(config.RoleSystem)
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()

		records, err := c.ServicesByDefinition(ctx, args[0])
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tPROVIDER\tADDRESS\tURI\tINTERFACES")
		for _, r := range records {
			fmt.Fprintf(w, "%d\t%s (%d)\t%s:%d\t%s\t%s\n",
				r.ID, r.Provider.SystemName, r.Provider.ID, r.Provider.Address, r.Provider.Port,
				r.ServiceURI, interfaceNames(r.Interfaces))
		}
		return w.Flush()
	},
}

// ── orchestrate ──────────────────────────────────────────────────────────────

var (
	orchInterface string
	orchFormat    string
)

var orchestrateCmd = &cobra.Command{
	Use:   "orchestrate [definition]",
	Short: "Ask the orchestrator for a provider and show the binding",
	Long: `Orchestrate requests a provider of the given service definition and prints
the selected provider together with the handles bound for it.

Without a definition the orchestrator answers from its store.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, c, err := loadClient(config.RoleConsumer)
		if err != nil {
			return err
		}
		defer c.Close()
		ctx, cancel := signalContext()
		defer cancel()

		definition := ""
		if len(args) == 1 {
			definition = args[0]
		}
		res, err := c.Orchestrate(ctx, definition, orchInterface)
		if errors.Is(err, client.ErrNoProvider) {
			fmt.Fprintln(os.Stderr, "No provider available.")
			return err
		}
		if err != nil {
			return err
		}

		if orchFormat == "json" {
			return printOrchestrationJSON(res)
		}
		return printOrchestrationText(res)
	},
}

func init() {
	orchestrateCmd.Flags().StringVar(&orchInterface, "interface", "", "Interface requirement (default depends on secure mode)")
	orchestrateCmd.Flags().StringVar(&orchFormat, "format", "text", "Output format: text or json")
}

func printOrchestrationJSON(res *client.OrchestrationResult) error {
	type out struct {
		Provider   client.ProviderRecord `json:"provider"`
		Candidates int                   `json:"candidates"`
		Bound      bool                  `json:"bound"`
		HTTPURL    string                `json:"httpUrl,omitempty"`
		MQTTBroker string                `json:"mqttBroker,omitempty"`
	}
	o := out{Provider: res.Provider, Candidates: res.Candidates, Bound: res.Binding.Bound()}
	if res.Binding.HTTP != nil {
		o.HTTPURL = res.Binding.HTTP.BaseURL
	}
	if res.Binding.MQTT != nil {
		o.MQTTBroker = res.Binding.MQTT.Broker
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(o)
}

func printOrchestrationText(res *client.OrchestrationResult) error {
	p := res.Provider
	fmt.Printf("Provider:    %s (%s:%d)\n", p.System.SystemName, p.System.Address, p.System.Port)
	fmt.Printf("Service:     %s\n", p.Service.ServiceDefinition)
	fmt.Printf("Interfaces:  %s\n", interfaceNames(p.Interfaces))
	fmt.Printf("Candidates:  %d\n", res.Candidates)
	if !res.Binding.Bound() {
		fmt.Println("Binding:     none (no interface matches this system's mode)")
		return nil
	}
	if res.Binding.HTTP != nil {
		fmt.Printf("HTTP:        %s\n", res.Binding.HTTP.BaseURL)
	}
	if res.Binding.MQTT != nil {
		fmt.Printf("MQTT:        %s\n", res.Binding.MQTT.Broker)
	}
	return nil
}

func interfaceNames(ifaces []client.Interface) string {
	s := ""
	for i, iface := range ifaces {
		if i > 0 {
			s += ","
		}
		s += iface.InterfaceName
	}
	return s
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the ahctl version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("ahctl %s (Arrowhead Framework client)\n", version)
	},
}
