package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"microlab/internal/app"
	"microlab/internal/config"
	"microlab/internal/db"
	"microlab/internal/domain"
	"microlab/internal/engine"
	"microlab/internal/migrate"
	"microlab/internal/repo"
	"microlab/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "mlab",
	Short: "Microlab CLI",
	Long: `Microlab tracks microbiology QC sample forms through their reading lifecycle.
- Workspace: your .microlab directory holding the database; the lab config lives in microlab.yml.
- Form: a coordinator-created batch of samples submitted together for analysis.
- Bacteria selection: the species chosen for a form, each with its own incubation delay.
- Waiting room: every form with at least one unfinished bacteria reading, with per-species readiness.
- Demo mode: substitutes minutes for hours so the whole multi-day lifecycle can be observed quickly.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("MICROLAB")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("lab", "", "lab id (overrides config default)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("lab", rootCmd.PersistentFlags().Lookup("lab"))
}

func registerCommands() {
	rootCmd.AddCommand(formCmd())
	rootCmd.AddCommand(bacteriaCmd())
	rootCmd.AddCommand(waitingRoomCmd())
	rootCmd.AddCommand(readingCmd())
	rootCmd.AddCommand(sampleCmd())
	rootCmd.AddCommand(speciesCmd())
	rootCmd.AddCommand(thresholdsCmd())
	rootCmd.AddCommand(locationsCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func formCmd() *cobra.Command {
	form := &cobra.Command{Use: "form", Short: "Manage sample forms"}
	form.AddCommand(formCreateCmd())
	form.AddCommand(formListCmd())
	form.AddCommand(formShowCmd())
	form.AddCommand(formDeleteCmd())
	return form
}

func formCreateCmd() *cobra.Command {
	var title, brand, site, sampleDate, analysisDate, legacyRef string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a sample form",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				f, err := e.CreateForm(ctx, engine.FormCreateOptions{
					Title:        title,
					Brand:        brand,
					Site:         site,
					SampleDate:   sampleDate,
					AnalysisDate: analysisDate,
					LegacyRef:    legacyRef,
					ActorID:      viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(f)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "form title")
	cmd.Flags().StringVar(&brand, "brand", "", "brand")
	cmd.Flags().StringVar(&site, "site", "", "site")
	cmd.Flags().StringVar(&sampleDate, "sample-date", "", "sample date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&analysisDate, "analysis-date", "", "analysis date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&legacyRef, "legacy-ref", "", "legacy reference key")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func formListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sample forms",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListForms(ctx, e.Config.Lab.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Site", "Status", "Created"})
				for _, f := range items {
					tw.AppendRow(table.Row{f.ID, f.Title, f.Site, f.Status, f.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func formShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a sample form with its samples and bacteria",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				f, err := e.ResolveForm(ctx, args[0])
				if err != nil {
					return err
				}
				samples, err := e.Repo.ListSamplesByForm(ctx, f.ID)
				if err != nil {
					return err
				}
				bacteria, err := e.Repo.ListSelectionsByForm(ctx, f.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{
					"form":     f,
					"samples":  samples,
					"bacteria": bacteria,
				})
			})
		},
	}
	return cmd
}

func formDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a form and everything attached to it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteForm(ctx, args[0], viper.GetString("actor-id"))
			})
		},
	}
	return cmd
}

func bacteriaCmd() *cobra.Command {
	bac := &cobra.Command{Use: "bacteria", Short: "Manage the bacteria selection of a form"}
	bac.AddCommand(bacteriaSetCmd())
	bac.AddCommand(bacteriaListCmd())
	return bac
}

func bacteriaSetCmd() *cobra.Command {
	var formID string
	cmd := &cobra.Command{
		Use:   "set <species>...",
		Short: "Replace the bacteria selection of a form",
		Args:  cobra.MinimumNArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				sess := engine.NewSelectionSession(e, formID)
				sess.Load(ctx)
				if err := sess.Set(ctx, args, viper.GetString("actor-id")); err != nil {
					return err
				}
				f, err := e.ResolveForm(ctx, formID)
				if err != nil {
					return err
				}
				items, err := e.Repo.ListSelectionsByForm(ctx, f.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().StringVar(&formID, "form", "", "form id")
	_ = cmd.MarkFlagRequired("form")
	return cmd
}

func bacteriaListCmd() *cobra.Command {
	var formID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the bacteria selection of a form",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				f, err := e.ResolveForm(ctx, formID)
				if err != nil {
					return err
				}
				items, err := e.Repo.ListSelectionsByForm(ctx, f.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Species", "Delay", "Reading day", "Status"})
				for _, s := range items {
					tw.AppendRow(table.Row{s.BacteriaName, s.Delay, s.ReadingDay, s.Status})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&formID, "form", "", "form id")
	_ = cmd.MarkFlagRequired("form")
	return cmd
}

func waitingRoomCmd() *cobra.Command {
	var site string
	cmd := &cobra.Command{
		Use:   "waiting-room",
		Short: "Show forms with outstanding bacteria readings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				forms, err := e.WaitingRoom(ctx)
				if err != nil {
					return err
				}
				forms = engine.FilterBySite(forms, site)
				if viper.GetBool("json") {
					return printJSON(forms)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Form", "Title", "Site", "Species", "State", "Remaining"})
				for _, f := range forms {
					for _, b := range f.Bacteria {
						tw.AppendRow(table.Row{f.FormID, f.Title, f.Site, b.Selection.BacteriaName, b.State, b.Remaining})
					}
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&site, "site", "all", "filter by site")
	return cmd
}

func readingCmd() *cobra.Command {
	reading := &cobra.Command{Use: "reading", Short: "Record bacteria readings"}
	reading.AddCommand(readingStartCmd())
	reading.AddCommand(readingCompleteCmd())
	return reading
}

func readingStartCmd() *cobra.Command {
	var formID, name string
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a bacteria reading",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				sel, forced, err := e.StartReading(ctx, formID, name, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if forced {
					fmt.Println("warning: reading started before its incubation delay elapsed")
				}
				return printJSONOrTable(sel)
			})
		},
	}
	cmd.Flags().StringVar(&formID, "form", "", "form id")
	cmd.Flags().StringVar(&name, "bacteria", "", "species display name")
	_ = cmd.MarkFlagRequired("form")
	_ = cmd.MarkFlagRequired("bacteria")
	return cmd
}

func readingCompleteCmd() *cobra.Command {
	var formID, name string
	cmd := &cobra.Command{
		Use:   "complete",
		Short: "Complete a bacteria reading",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				sel, err := e.CompleteReading(ctx, formID, name, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(sel)
			})
		},
	}
	cmd.Flags().StringVar(&formID, "form", "", "form id")
	cmd.Flags().StringVar(&name, "bacteria", "", "species display name")
	_ = cmd.MarkFlagRequired("form")
	_ = cmd.MarkFlagRequired("bacteria")
	return cmd
}

func sampleCmd() *cobra.Command {
	sample := &cobra.Command{Use: "sample", Short: "Manage samples"}
	sample.AddCommand(sampleAddCmd())
	sample.AddCommand(sampleResultsCmd())
	sample.AddCommand(sampleToReadingCmd())
	return sample
}

func sampleAddCmd() *cobra.Command {
	var formID, product, site, sampleDate string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a sample on a form",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.AddSample(ctx, engine.SampleCreateOptions{
					FormID:     formID,
					Product:    product,
					Site:       site,
					SampleDate: sampleDate,
					ActorID:    viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().StringVar(&formID, "form", "", "form id")
	cmd.Flags().StringVar(&product, "product", "", "product name")
	cmd.Flags().StringVar(&site, "site", "", "site")
	cmd.Flags().StringVar(&sampleDate, "sample-date", "", "sample date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("form")
	_ = cmd.MarkFlagRequired("product")
	return cmd
}

func sampleResultsCmd() *cobra.Command {
	var organoleptic string
	var ph float64
	cmd := &cobra.Command{
		Use:   "results <sample-id>",
		Short: "Record organoleptic and pH results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var organolepticPtr *string
				var phPtr *float64
				if cmd.Flags().Changed("organoleptic") {
					organolepticPtr = &organoleptic
				}
				if cmd.Flags().Changed("ph") {
					phPtr = &ph
				}
				now := time.Now().UTC().Format(time.RFC3339)
				if err := e.Repo.UpdateSampleResults(ctx, args[0], organolepticPtr, phPtr, now); err != nil {
					return err
				}
				s, err := e.Repo.GetSample(ctx, args[0])
				if err != nil {
					return err
				}
				if phPtr != nil {
					ok, err := e.EvaluatePH(ctx, s.Product, *phPtr)
					if err == nil && !ok {
						fmt.Println("warning: pH outside the threshold for", s.Product)
					}
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().StringVar(&organoleptic, "organoleptic", "", "organoleptic observation")
	cmd.Flags().Float64Var(&ph, "ph", 0, "pH value")
	return cmd
}

func sampleToReadingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "to-reading <sample-id>",
		Short: "Move a sample to waiting for reading",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.MoveSampleToReading(ctx, args[0], viper.GetString("actor-id")); err != nil {
					return err
				}
				s, err := e.Repo.GetSample(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	return cmd
}

func speciesCmd() *cobra.Command {
	sp := &cobra.Command{Use: "species", Short: "Species catalog"}
	sp.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the species catalog with current delays",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items := e.Catalog.List()
				if viper.GetBool("json") {
					return printJSON(items)
				}
				usage, err := e.ListSpeciesUsage(ctx)
				if err != nil {
					return err
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Species", "Delay", "Open readings"})
				for _, s := range items {
					tw.AppendRow(table.Row{s.ID, s.DisplayName,
						e.Catalog.DelayLabel(s.DisplayName, e.Config.DemoMode), usage[s.DisplayName]})
				}
				tw.Render()
				return nil
			})
		},
	})
	return sp
}

func thresholdsCmd() *cobra.Command {
	thr := &cobra.Command{Use: "thresholds", Short: "Product thresholds"}

	var product, parameter, unit string
	var min, max float64
	set := &cobra.Command{
		Use:   "set",
		Short: "Upsert a product threshold",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var minPtr, maxPtr *float64
				if cmd.Flags().Changed("min") {
					minPtr = &min
				}
				if cmd.Flags().Changed("max") {
					maxPtr = &max
				}
				t, err := e.UpsertThreshold(ctx, product, parameter, minPtr, maxPtr, unit)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	set.Flags().StringVar(&product, "product", "", "product name")
	set.Flags().StringVar(&parameter, "parameter", "", "parameter (e.g. ph)")
	set.Flags().Float64Var(&min, "min", 0, "minimum acceptable value")
	set.Flags().Float64Var(&max, "max", 0, "maximum acceptable value")
	set.Flags().StringVar(&unit, "unit", "", "unit")
	_ = set.MarkFlagRequired("product")
	_ = set.MarkFlagRequired("parameter")
	thr.AddCommand(set)

	var listProduct string
	list := &cobra.Command{
		Use:   "list",
		Short: "List product thresholds",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListThresholds(ctx, listProduct)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	list.Flags().StringVar(&listProduct, "product", "", "filter by product")
	thr.AddCommand(list)
	return thr
}

func locationsCmd() *cobra.Command {
	loc := &cobra.Command{Use: "locations", Short: "Air static sampling locations"}

	var site, name, description string
	add := &cobra.Command{
		Use:   "add",
		Short: "Add or update a sampling location",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				l, err := e.UpsertLocation(ctx, site, name, description, true)
				if err != nil {
					return err
				}
				return printJSONOrTable(l)
			})
		},
	}
	add.Flags().StringVar(&site, "site", "", "site")
	add.Flags().StringVar(&name, "name", "", "location name")
	add.Flags().StringVar(&description, "description", "", "description")
	_ = add.MarkFlagRequired("site")
	_ = add.MarkFlagRequired("name")
	loc.AddCommand(add)

	var listSite string
	list := &cobra.Command{
		Use:   "list",
		Short: "List sampling locations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListLocations(ctx, listSite)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	list.Flags().StringVar(&listSite, "site", "", "filter by site")
	loc.AddCommand(list)
	return loc
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage lab config"}
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the active lab config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSONOrTable(e.Config)
			})
		},
	})
	cfg.AddCommand(configImportCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configImportCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import lab config from YAML into the DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.FromFile(filePath)
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if err := app.StoreConfig(ctx, r, c.Lab.ID, c); err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to YAML config")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func configValidateCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a YAML config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.FromFile(filePath); err != nil {
				return err
			}
			fmt.Println("config is valid")
			return nil
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to YAML config")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func apikeyCmd() *cobra.Command {
	key := &cobra.Command{Use: "apikey", Short: "Manage API keys"}

	var actor, name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an API key (printed once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				raw := uuid.NewString() + uuid.NewString()
				k := domain.APIKey{
					ID:        "key-" + uuid.NewString(),
					ActorID:   actor,
					Name:      name,
					KeyHash:   repo.HashAPIKey(raw),
					CreatedAt: time.Now().UTC().Format(time.RFC3339),
				}
				if err := r.InsertAPIKey(ctx, k); err != nil {
					return err
				}
				fmt.Println(raw)
				return nil
			})
		},
	}
	create.Flags().StringVar(&actor, "actor", "local-user", "actor id the key acts as")
	create.Flags().StringVar(&name, "name", "", "key name")
	key.AddCommand(create)

	key.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListAPIKeys(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	})
	return key
}

func logCmd() *cobra.Command {
	logc := &cobra.Command{Use: "log", Short: "Audit log"}
	logc.AddCommand(logTailCmd())
	return logc
}

func logTailCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail audit entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				entries, err := e.Repo.ListAudit(ctx, e.Config.Lab.ID, n)
				if err != nil {
					return err
				}
				return printJSONOrTable(entries)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of entries")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			r := repo.Repo{DB: conn}
			_, cfg, err := app.ResolveLabAndConfig(cmd.Context(), workspace, viper.GetString("lab"), r)
			if err != nil {
				return err
			}
			log := newLogger()
			defer log.Sync()
			e := engine.New(conn, cfg, log)
			authCfg := server.AuthConfig{
				JWTSecret:              os.Getenv("MICROLAB_JWT_SECRET"),
				AllowLegacyActorHeader: true,
				Logger:                 log,
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Microlab API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

func newLogger() *zap.Logger {
	log, err := zap.NewProduction()
	if err != nil {
		return zap.NewNop()
	}
	return log
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	r := repo.Repo{DB: conn}
	_, cfg, err := app.ResolveLabAndConfig(ctx, workspace, viper.GetString("lab"), r)
	if err != nil {
		return err
	}
	log := newLogger()
	defer log.Sync()
	e := engine.New(conn, cfg, log)
	return fn(ctx, e)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
