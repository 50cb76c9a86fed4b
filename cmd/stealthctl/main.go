package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"browserstealth/internal/api"
	"browserstealth/internal/browser"
	"browserstealth/internal/config"
	"browserstealth/internal/profile"
	"browserstealth/internal/stealth"
	"browserstealth/internal/storage"
	"browserstealth/pkg/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:           "stealthctl",
		Short:         "Human-like, anti-detection browser sessions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "configs/config.yaml", "config file")

	loadConfig := func() (*config.Config, logger.Logger, error) {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return nil, nil, err
		}
		return cfg, logger.NewWithWriter(os.Stderr, cfg.Logging.Level, cfg.Logging.Format), nil
	}

	rootCmd.AddCommand(
		newResolveCmd(),
		newScriptCmd(),
		newPathCmd(),
		newOpenCmd(loadConfig),
		newProfilesCmd(loadConfig),
	)
	return rootCmd
}

type profileFlags struct {
	preset string
	file   string
}

func (f *profileFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.preset, "preset", "", "preset name ("+strings.Join(profile.Presets(), ", ")+")")
	cmd.Flags().StringVarP(&f.file, "file", "f", "", "browser profile YAML file")
}

func (f *profileFlags) load() (profile.BrowserProfile, error) {
	var p profile.BrowserProfile
	if f.file != "" {
		data, err := os.ReadFile(f.file)
		if err != nil {
			return p, err
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&p); err != nil && err != io.EOF {
			return p, fmt.Errorf("failed to parse profile %s: %w", f.file, err)
		}
	}
	if f.preset != "" {
		p.Preset = f.preset
	}
	return p, nil
}

func newResolveCmd() *cobra.Command {
	var pf profileFlags
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Print the fully resolved settings of a profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := pf.load()
			if err != nil {
				return err
			}
			return printValue(cmd.OutOrStdout(), profile.Resolve(p), asJSON)
		},
	}
	pf.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of YAML")
	return cmd
}

func newScriptCmd() *cobra.Command {
	var pf profileFlags

	cmd := &cobra.Command{
		Use:   "script",
		Short: "Print the init script a profile injects",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := pf.load()
			if err != nil {
				return err
			}
			r := profile.Resolve(p)
			fmt.Fprintln(cmd.OutOrStdout(), browser.BuildStealthScript(r.AntiDetection, r.Fingerprint))
			return nil
		},
	}
	pf.register(cmd)
	return cmd
}

func newPathCmd() *cobra.Command {
	var pf profileFlags
	var from, to string
	var steps int
	var seed int64

	cmd := &cobra.Command{
		Use:   "path",
		Short: "Print a generated mouse path as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := pf.load()
			if err != nil {
				return err
			}
			start, err := parsePoint(from)
			if err != nil {
				return err
			}
			end, err := parsePoint(to)
			if err != nil {
				return err
			}

			var opts []stealth.Option
			if seed != 0 {
				opts = append(opts, stealth.WithSeed(seed))
			}
			human := stealth.NewHuman(profile.Resolve(p).Behavior, opts...)
			return printValue(cmd.OutOrStdout(), human.GenerateMousePath(start, end, steps), true)
		},
	}
	pf.register(cmd)
	cmd.Flags().StringVar(&from, "from", "0,0", "start point x,y")
	cmd.Flags().StringVar(&to, "to", "800,600", "end point x,y")
	cmd.Flags().IntVar(&steps, "steps", 25, "number of segments")
	cmd.Flags().Int64Var(&seed, "seed", 0, "random seed, 0 for a random one")
	return cmd
}

type configLoader func() (*config.Config, logger.Logger, error)

func newOpenCmd(loadConfig configLoader) *cobra.Command {
	var specFile, profileName, stateKey, url, statePath string
	var noStorage, noAPI bool

	cmd := &cobra.Command{
		Use:   "open",
		Short: "Open a session and serve its admin API until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			spec := browser.SessionSpec{}
			if specFile != "" {
				loaded, err := browser.LoadSessionSpec(specFile)
				if err != nil {
					return err
				}
				spec = *loaded
			}

			app, err := NewApp(cfg, log, !noStorage)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.prepareSpec(ctx, &spec, profileName, stateKey); err != nil {
				return err
			}

			session, err := app.builder.Build(ctx, spec)
			if err != nil {
				return err
			}
			closeCtx := context.WithoutCancel(ctx)
			defer session.Close(closeCtx)

			if url == "" {
				url = spec.BaseURL
			}
			if url != "" {
				page := session.Page.Context(ctx)
				if err := page.Navigate(url); err != nil {
					return fmt.Errorf("failed to open %s: %w", url, err)
				}
				if err := page.WaitLoad(); err != nil {
					log.Warn("page did not finish loading", "url", url, "error", err)
				}
			}

			if noAPI {
				<-ctx.Done()
			} else if err := api.New(session.Workers, session.Profile, log).ListenAndServe(ctx, cfg.API.Addr); err != nil {
				return err
			}

			saveCtx, cancel := context.WithTimeout(closeCtx, 10*time.Second)
			defer cancel()
			if stateKey != "" {
				if err := app.saveState(saveCtx, session, stateKey); err != nil {
					log.Error("failed to save session state", "key", stateKey, "error", err)
				}
			}
			if statePath != "" {
				if err := session.SaveStorageState(saveCtx, statePath); err != nil {
					log.Error("failed to write storage state", "path", statePath, "error", err)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&specFile, "spec", "s", "", "session spec YAML file")
	cmd.Flags().StringVar(&profileName, "profile", "", "stored profile to use")
	cmd.Flags().StringVar(&stateKey, "state", "", "stored cookie state to restore and save back")
	cmd.Flags().StringVar(&statePath, "save-state", "", "write cookies to this file on exit")
	cmd.Flags().StringVar(&url, "url", "", "page to open, defaults to the session spec's base_url")
	cmd.Flags().BoolVar(&noStorage, "no-storage", false, "run without MongoDB")
	cmd.Flags().BoolVar(&noAPI, "no-api", false, "do not serve the admin API")
	return cmd
}

func newProfilesCmd(loadConfig configLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "Manage stored browser profiles",
	}

	withDB := func(action func(ctx context.Context, db *storage.DB, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := openStorage(cfg)
			if err != nil {
				return fmt.Errorf("failed to init storage: %w", err)
			}
			defer db.Close()
			return action(cmd.Context(), db, cmd, args)
		}
	}

	var pf profileFlags
	var description string
	saveCmd := &cobra.Command{
		Use:   "save NAME",
		Short: "Store a profile under NAME",
		Args:  cobra.ExactArgs(1),
		RunE: withDB(func(ctx context.Context, db *storage.DB, cmd *cobra.Command, args []string) error {
			p, err := pf.load()
			if err != nil {
				return err
			}
			return db.SaveProfile(ctx, &storage.ProfileRecord{Name: args[0], Description: description, Profile: p})
		}),
	}
	pf.register(saveCmd)
	saveCmd.Flags().StringVar(&description, "description", "", "free-form description")

	var asJSON bool
	getCmd := &cobra.Command{
		Use:   "get NAME",
		Short: "Print a stored profile",
		Args:  cobra.ExactArgs(1),
		RunE: withDB(func(ctx context.Context, db *storage.DB, cmd *cobra.Command, args []string) error {
			rec, err := db.GetProfile(ctx, args[0])
			if err != nil {
				return err
			}
			return printValue(cmd.OutOrStdout(), rec.Profile, asJSON)
		}),
	}
	getCmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of YAML")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List stored profiles",
		RunE: withDB(func(ctx context.Context, db *storage.DB, cmd *cobra.Command, args []string) error {
			recs, err := db.ListProfiles(ctx)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tPRESET\tUPDATED\tDESCRIPTION")
			for _, r := range recs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Name, r.Profile.Preset, r.UpdatedAt.Format(time.RFC3339), r.Description)
			}
			return w.Flush()
		}),
	}

	deleteCmd := &cobra.Command{
		Use:   "delete NAME",
		Short: "Delete a stored profile",
		Args:  cobra.ExactArgs(1),
		RunE: withDB(func(ctx context.Context, db *storage.DB, cmd *cobra.Command, args []string) error {
			return db.DeleteProfile(ctx, args[0])
		}),
	}

	cmd.AddCommand(saveCmd, getCmd, listCmd, deleteCmd)
	return cmd
}

func printValue(w io.Writer, v any, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func parsePoint(s string) (stealth.Point, error) {
	x, y, ok := strings.Cut(s, ",")
	if !ok {
		return stealth.Point{}, fmt.Errorf("invalid point %q, want x,y", s)
	}
	px, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
	if err != nil {
		return stealth.Point{}, fmt.Errorf("invalid point %q: %w", s, err)
	}
	py, err := strconv.ParseFloat(strings.TrimSpace(y), 64)
	if err != nil {
		return stealth.Point{}, fmt.Errorf("invalid point %q: %w", s, err)
	}
	return stealth.Point{X: px, Y: py}, nil
}
