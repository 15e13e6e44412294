// Command vitalsctl administers a vitalsguard server: lockdown state, ledger
// verification and security event exports.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jmerrifield20/vitalsguard/internal/trustledger"
	"github.com/jmerrifield20/vitalsguard/pkg/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is overridden via -ldflags "-X main.version=...".
var version = "dev"

var (
	serverURL string
	cfgFile   string
	token     string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "vitalsctl",
	Short: "vitalsguard administration CLI",
	Long: `vitalsctl is the command-line interface for a vitalsguard server.

Log in once with "vitalsctl login"; the session token is kept in
~/.vitalsctl/token and sent with every later command.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			if dir, err := configDir(); err == nil {
				viper.AddConfigPath(dir)
			}
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.SetEnvPrefix("VITALSCTL")
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if serverURL == "" {
			serverURL = viper.GetString("server")
		}
		if serverURL == "" {
			serverURL = "http://localhost:8080"
		}
		if token == "" {
			token = viper.GetString("token")
		}
		if token == "" {
			token = readSavedToken()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.vitalsctl/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "vitalsguard server URL (default http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "session token (default: saved by login)")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(lockdownCmd)
	rootCmd.AddCommand(unlockCmd)
	rootCmd.AddCommand(ledgerCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(versionCmd)
}

func newClient() (*client.Client, error) {
	var opts []client.Option
	if token != "" {
		opts = append(opts, client.WithBearerToken(token))
	}
	return client.New(serverURL, opts...)
}

func commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// ── login ────────────────────────────────────────────────────────────────────

var (
	loginUser     string
	loginPassword string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate and save the session token",
	RunE: func(cmd *cobra.Command, args []string) error {
		if loginUser == "" {
			return errors.New("--username is required")
		}
		if loginPassword == "" {
			fmt.Fprint(os.Stderr, "Password: ")
			line, err := bufio.NewReader(os.Stdin).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("read password: %w", err)
			}
			loginPassword = strings.TrimSpace(line)
		}

		c, err := client.New(serverURL)
		if err != nil {
			return err
		}
		ctx, cancel := commandContext()
		defer cancel()
		if err := c.Login(ctx, loginUser, loginPassword); err != nil {
			if errors.Is(err, client.ErrSuspended) {
				return errors.New("system is locked down; only administrators may log in")
			}
			return err
		}
		if err := saveToken(c.Token()); err != nil {
			return err
		}
		fmt.Printf("Logged in as %s\n", loginUser)
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVarP(&loginUser, "username", "u", "", "username")
	loginCmd.Flags().StringVarP(&loginPassword, "password", "p", "", "password (prompted when empty)")
}

// ── status / lockdown / unlock ───────────────────────────────────────────────

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the lockdown state",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext()
		defer cancel()

		st, err := c.Status(ctx)
		if err != nil {
			return err
		}
		if statusJSON {
			return printJSON(st)
		}
		if !st.Active {
			fmt.Println("State:  NORMAL")
			return nil
		}
		fmt.Println("State:  LOCKDOWN")
		fmt.Printf("Reason: %s\n", st.Reason)
		if st.Since != nil {
			fmt.Printf("Since:  %s\n", st.Since.Local().Format(time.RFC1123))
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print JSON")
}

var lockdownCmd = &cobra.Command{
	Use:   "lockdown <reason>",
	Short: "Lock the system down (admin)",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext()
		defer cancel()

		tr, err := c.Lockdown(ctx, strings.Join(args, " "))
		if err != nil {
			return err
		}
		if !tr.Changed {
			fmt.Printf("Already locked down: %s\n", tr.Status.Reason)
			return nil
		}
		fmt.Println("System locked down.")
		return nil
	},
}

var unlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "Lift a lockdown (admin)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext()
		defer cancel()

		tr, err := c.Unlock(ctx)
		if err != nil {
			return err
		}
		if !tr.Changed {
			fmt.Println("System was not locked down.")
			return nil
		}
		fmt.Println("Lockdown lifted.")
		return nil
	},
}

// ── ledger ───────────────────────────────────────────────────────────────────

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect and verify the trust ledger",
}

var (
	verifyFile   string
	exportFormat string
	exportOut    string
)

var ledgerVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the hash chain",
	Long: `Verify downloads the full chain and re-checks every hash locally.

With --file it verifies a chain previously saved by "ledger export --format
json" without contacting the server.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var chain []trustledger.Block
		if verifyFile != "" {
			f, err := os.Open(verifyFile)
			if err != nil {
				return err
			}
			defer f.Close()
			if chain, err = trustledger.ReadJSON(f); err != nil {
				return fmt.Errorf("decode %s: %w", verifyFile, err)
			}
		} else {
			c, err := newClient()
			if err != nil {
				return err
			}
			ctx, cancel := commandContext()
			defer cancel()
			if err := c.VerifyLedger(ctx); err != nil {
				return fmt.Errorf("server verification: %w", err)
			}
			if chain, err = c.Chain(ctx); err != nil {
				return err
			}
		}

		if err := trustledger.VerifyBlocks(chain); err != nil {
			return fmt.Errorf("chain INVALID: %w", err)
		}
		fmt.Printf("Chain valid: %d blocks, root %s\n", len(chain), chain[len(chain)-1].Hash)
		return nil
	},
}

var ledgerExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the chain as CSV or JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		if exportFormat != "csv" && exportFormat != "json" {
			return fmt.Errorf("unsupported format %q (csv or json)", exportFormat)
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext()
		defer cancel()

		chain, err := c.Chain(ctx)
		if err != nil {
			return err
		}
		w, closeFn, err := output(exportOut)
		if err != nil {
			return err
		}
		defer closeFn()

		if exportFormat == "json" {
			return trustledger.WriteJSON(w, chain)
		}
		return trustledger.WriteCSV(w, chain)
	},
}

func init() {
	ledgerVerifyCmd.Flags().StringVar(&verifyFile, "file", "", "verify a saved JSON chain offline")
	ledgerExportCmd.Flags().StringVar(&exportFormat, "format", "csv", "csv or json")
	ledgerExportCmd.Flags().StringVarP(&exportOut, "output", "o", "", "output file (default stdout)")
	ledgerCmd.AddCommand(ledgerVerifyCmd, ledgerExportCmd)
}

// ── events ───────────────────────────────────────────────────────────────────

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List or export security events (admin)",
}

var eventsLimit int

var eventsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the most recent security events",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext()
		defer cancel()

		events, err := c.Events(ctx, eventsLimit)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tTYPE\tSEVERITY\tSOURCE\tDESCRIPTION")
		for _, e := range events {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				e.Timestamp.Local().Format(time.DateTime), e.Type, e.Severity, e.Source, e.Description)
		}
		return w.Flush()
	},
}

var eventsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Download the full security event log as CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext()
		defer cancel()

		w, closeFn, err := output(exportOut)
		if err != nil {
			return err
		}
		defer closeFn()
		return c.ExportEvents(ctx, w)
	},
}

func init() {
	eventsListCmd.Flags().IntVar(&eventsLimit, "limit", 50, "number of events")
	eventsExportCmd.Flags().StringVarP(&exportOut, "output", "o", "", "output file (default stdout)")
	eventsCmd.AddCommand(eventsListCmd, eventsExportCmd)
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the vitalsctl version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("vitalsctl", version)
	},
}

// ── helpers ──────────────────────────────────────────────────────────────────

func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".vitalsctl"), nil
}

func saveToken(tok string) error {
	dir, err := configDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	return os.WriteFile(filepath.Join(dir, "token"), []byte(tok+"\n"), 0o600)
}

func readSavedToken() string {
	dir, err := configDir()
	if err != nil {
		return ""
	}
	b, err := os.ReadFile(filepath.Join(dir, "token"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

// output opens path for writing, or returns stdout when path is empty.
func output(path string) (*os.File, func(), error) {
	if path == "" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
