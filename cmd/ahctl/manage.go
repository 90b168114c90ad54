package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vtt-om/arrowhead-client-go/pkg/certs"
	"github.com/vtt-om/arrowhead-client-go/pkg/config"
)

// ── authorize ────────────────────────────────────────────────────────────────

var (
	authConsumerID int64
	authDefinition string
)

var authorizeCmd = &cobra.Command{
	Use:   "authorize",
	Short: "Grant a consumer access to every provider of a service definition",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, c, err := loadClient(config.RoleManager)
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()

		if err := c.AuthorizeSystem(ctx, authConsumerID, authDefinition); err != nil {
			return err
		}
		fmt.Printf("Consumer %d authorized for %q.\n", authConsumerID, authDefinition)
		return nil
	},
}

func init() {
	authorizeCmd.Flags().Int64Var(&authConsumerID, "consumer-id", 0, "System id of the consumer (required)")
	authorizeCmd.Flags().StringVar(&authDefinition, "definition", "", "Service definition (required)")
	_ = authorizeCmd.MarkFlagRequired("consumer-id")
	_ = authorizeCmd.MarkFlagRequired("definition")
}

// ── authorizations ───────────────────────────────────────────────────────────

var authorizationsCmd = &cobra.Command{
	Use:   "authorizations",
	Short: "List or delete intra-cloud authorization rules",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, c, err := loadClient(config.RoleManager)
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()

		rules, err := c.ListAuthorizations(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tCONSUMER\tPROVIDER\tSERVICE\tINTERFACES")
		for _, r := range rules {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
				r.ID, r.ConsumerSystem.SystemName, r.ProviderSystem.SystemName,
				r.ServiceDefinition.ServiceDefinition, interfaceNames(r.Interfaces))
		}
		return w.Flush()
	},
}

var deleteAllYes bool

var deleteAuthorizationsCmd = &cobra.Command{
	Use:   "delete-all",
	Short: "Delete every intra-cloud authorization rule",
	Long: `delete-all removes every intra-cloud authorization rule in list order.
It stops at the first failure and reports how many rules were removed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !deleteAllYes {
			return fmt.Errorf("refusing to delete every authorization rule without --yes")
		}
		_, c, err := loadClient(config.RoleManager)
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()

		n, err := c.DeleteAuthorizations(ctx)
		fmt.Printf("%d authorization rules deleted.\n", n)
		return err
	},
}

func init() {
	deleteAuthorizationsCmd.Flags().BoolVar(&deleteAllYes, "yes", false, "Confirm deletion")
	authorizationsCmd.AddCommand(deleteAuthorizationsCmd)
}

// ── certs ────────────────────────────────────────────────────────────────────

var certsCmd = &cobra.Command{
	Use:   "certs",
	Short: "Manage a development certificate authority for a local cloud",
}

var (
	certsCADir  string
	certsCloud  string
	certsOut    string
	certsHosts  []string
	certsTTL    time.Duration
	certsSystem string
)

var certsInitCmd = &cobra.Command{
	Use:   "init <system-name>",
	Short: "Create (or reuse) a development CA and issue a system certificate",
	Long: `init loads the CA in --ca-dir, creating it on first use, and issues a
certificate for the named system. The system's cert.pem, key.pem and ca.pem
are written to --out/<system-name>/.

  ahctl certs init thermometer --cloud testcloud.aitia.arrowhead.eu --host 10.0.0.7`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		certsSystem = args[0]

		ca := certs.NewDevCA(certsCADir, certsCloud)
		if err := ca.LoadOrCreate(); err != nil {
			return fmt.Errorf("load CA: %w", err)
		}
		m, err := ca.IssueSystem(certsSystem, certsHosts, certsTTL)
		if err != nil {
			return err
		}

		dir := filepath.Join(certsOut, certsSystem)
		if err := certs.WriteBundleDir(dir, m); err != nil {
			return err
		}
		logger.Info("system certificate issued",
			zap.String("system", certsSystem),
			zap.Strings("hosts", certsHosts),
			zap.String("dir", dir),
		)
		fmt.Printf("Certificates for %q written to %s\n", certsSystem, dir)
		fmt.Printf("  certificate:           %s\n", filepath.Join(dir, certs.BundleCertFile))
		fmt.Printf("  key:                   %s\n", filepath.Join(dir, certs.BundleKeyFile))
		fmt.Printf("  certificate_authority: %s\n", filepath.Join(dir, certs.BundleCAFile))
		return nil
	},
}

func init() {
	certsInitCmd.Flags().StringVar(&certsCADir, "ca-dir", "certs/ca", "Directory holding ca.crt and ca.key")
	certsInitCmd.Flags().StringVar(&certsCloud, "cloud", "", "Cloud name used in certificate common names")
	certsInitCmd.Flags().StringVar(&certsOut, "out", "certs", "Output directory")
	certsInitCmd.Flags().StringSliceVar(&certsHosts, "host", nil, "DNS name or IP address to include as a SAN (repeatable)")
	certsInitCmd.Flags().DurationVar(&certsTTL, "ttl", 0, "Certificate lifetime (default one year)")
	certsCmd.AddCommand(certsInitCmd)
}
