package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/user"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-ezviz/internal/api"
	"github.com/nerrad567/gray-logic-ezviz/internal/audit"
	"github.com/nerrad567/gray-logic-ezviz/internal/command"
	"github.com/nerrad567/gray-logic-ezviz/internal/ezviz"
	"github.com/nerrad567/gray-logic-ezviz/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-ezviz/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-ezviz/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-ezviz/internal/observation"
	"github.com/nerrad567/gray-logic-ezviz/internal/session"
	"github.com/nerrad567/gray-logic-ezviz/internal/status"
)

// cliTimeout bounds one-shot commands, every unlock attempt included.
const cliTimeout = 60 * time.Second

// cloudCLI is what one-shot commands share: configuration, a logger on
// stderr and an open cloud session. The session is not logged out on
// close so a running bridge sharing the stored session keeps it.
type cloudCLI struct {
	cfg     *config.Config
	log     *logging.Logger
	db      *database.DB
	client  *ezviz.Client
	session *session.Session
}

// openCloudCLI loads the configuration and opens the cloud session.
func openCloudCLI(ctx context.Context, configPath string, stderr io.Writer) (*cloudCLI, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	log := logging.NewWithWriter(cfg.Logging, version, stderr)

	db, err := openDatabase(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	client := newCloudClient(cfg, log)
	sess, err := session.Open(ctx, client, session.Options{
		Account: accountName(cfg),
		Region:  strings.ToLower(cfg.EZVIZ.Region),
		Store:   session.NewSQLiteTokenStore(db.DB),
		Logger:  log,
	})
	if err != nil {
		db.Close() //nolint:errcheck // Already failing
		return nil, fmt.Errorf("opening cloud session: %w", err)
	}

	return &cloudCLI{cfg: cfg, log: log, db: db, client: client, session: sess}, nil
}

func (c *cloudCLI) close() {
	if err := c.db.Close(); err != nil {
		c.log.Error("error closing database", "error", err)
	}
}

// serial returns the configured device serial.
func (c *cloudCLI) serial() (string, error) {
	if !c.cfg.HasDevice() {
		return "", errors.New("ezviz.serial is not configured (see 'ezvizbridge devices')")
	}
	return strings.TrimSpace(c.cfg.EZVIZ.Serial), nil
}

// newDevicesCmd lists the devices of the account, the way to find the
// serial to configure.
func newDevicesCmd(configPath *string) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List the devices of the EZVIZ account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), cliTimeout)
			defer cancel()

			cli, err := openCloudCLI(ctx, *configPath, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer cli.close()

			devices, err := cli.session.ListDevices(ctx)
			if err != nil {
				return fmt.Errorf("listing devices: %w", err)
			}
			return printDevices(cmd.OutOrStdout(), devices, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}

func printDevices(w io.Writer, devices []session.Device, asJSON bool) error {
	if asJSON {
		return writeJSONTo(w, devices)
	}

	if len(devices) == 0 {
		fmt.Fprintln(w, "No devices found.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "SERIAL\tDISPLAY SERIAL\tNAME")
	fmt.Fprintln(tw, "------\t--------------\t----")
	for _, d := range devices {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", d.Serial, d.DisplaySerial, d.Name)
	}
	return tw.Flush()
}

// newUnlockCmd runs one unlock against the configured device.
func newUnlockCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:       "unlock door|gate",
		Short:     "Unlock the door or gate once",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"door", "gate"},
		RunE: func(cmd *cobra.Command, args []string) error {
			action, err := command.ParseAction(args[0])
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), cliTimeout)
			defer cancel()

			cli, err := openCloudCLI(ctx, *configPath, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer cli.close()

			serial, err := cli.serial()
			if err != nil {
				return err
			}

			dispatcher, err := command.NewDispatcher(command.Options{
				Unlocker: cli.client,
				Serial:   serial,
				UserID:   cli.session.UserID(),
				Logger:   cli.log,
			})
			if err != nil {
				return err
			}

			res := dispatcher.Execute(ctx, action)
			entry := audit.NewEntry(serial, audit.SourceCLI, cliActor(), res)
			if err := audit.NewSQLiteRepository(cli.db.DB).Create(ctx, entry); err != nil {
				cli.log.Warn("recording unlock failed", "error", err)
			}
			if err := writeJSONTo(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			if !res.Success {
				return fmt.Errorf("%s failed on every lock", action)
			}
			return nil
		},
	}
}

// cliActor names the local user running a command.
func cliActor() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "cli"
}

// newSnapshotCmd saves the picture of the most recent alarm.
func newSnapshotCmd(configPath *string) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Save the latest alarm picture",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), cliTimeout)
			defer cancel()

			cli, err := openCloudCLI(ctx, *configPath, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer cli.close()

			serial, err := cli.serial()
			if err != nil {
				return err
			}

			raw, err := cli.client.Status(ctx, serial)
			if err != nil {
				return fmt.Errorf("fetching status: %w", err)
			}
			snap := status.Normalize(raw, time.Now())

			camera := observation.NewSnapshotCamera(cli.client, fixedSnapshot{snap}, cli.log)
			img, err := camera.Image(ctx)
			if err != nil {
				return fmt.Errorf("fetching snapshot: %w", err)
			}

			if output == "" || output == "-" {
				_, err = cmd.OutOrStdout().Write(img)
				return err
			}
			if err := os.WriteFile(output, img, 0o600); err != nil {
				return fmt.Errorf("writing snapshot: %w", err)
			}
			cli.log.Info("snapshot saved", "path", output, "bytes", len(img))
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "file to write (default stdout)")
	return cmd
}

// fixedSnapshot serves one snapshot to a camera.
type fixedSnapshot struct {
	snap status.Snapshot
}

func (f fixedSnapshot) Snapshot() (status.Snapshot, bool) {
	return f.snap, true
}

// newTokenCmd mints an access token for the HTTP API.
func newTokenCmd(configPath *string) *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an access token for the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if cfg.Security.JWT.Secret == "" {
				return errors.New("security.jwt.secret is empty, API authentication is disabled")
			}

			if !cmd.Flags().Changed("ttl") {
				ttl = time.Duration(cfg.Security.JWT.AccessTokenTTL) * time.Minute
			}
			token, err := api.IssueToken(cfg.Security.JWT.Secret, subject, ttl)
			if err != nil {
				return fmt.Errorf("issuing token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "cli", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default security.jwt.access_token_ttl, 0 never expires)")
	return cmd
}

func writeJSONTo(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
