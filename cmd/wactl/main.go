// wactl es el CLI/daemon de administración de cuentas de conexión WhatsApp:
// maneja sesiones locales multi-identidad, consulta el Admin API y corre el
// daemon de sincronización (watch) con /healthz y /metrics.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wadesk/wactl/internal/apiclient"
	"github.com/wadesk/wactl/internal/cache"
	"github.com/wadesk/wactl/internal/config"
	"github.com/wadesk/wactl/internal/credstore"
	"github.com/wadesk/wactl/internal/metrics"
	"github.com/wadesk/wactl/internal/mutate"
	"github.com/wadesk/wactl/internal/observability/logger"
	"github.com/wadesk/wactl/internal/session"
	"github.com/wadesk/wactl/internal/syncer"
)

var (
	flagConfig  string
	flagEnvFile string
	flagAPIURL  string

	cfg   *config.Config
	store *credstore.Store
	sess  *session.Manager
	api   *apiclient.Client
)

// termNotifier es el "toast" del CLI.
type termNotifier struct{}

func (termNotifier) Success(msg string) { fmt.Println(msg) }
func (termNotifier) Error(msg string)   { fmt.Fprintln(os.Stderr, "error: "+msg) }

func initApp() error {
	if flagEnvFile != "" {
		if err := godotenv.Load(flagEnvFile); err != nil {
			return fmt.Errorf("load env file: %w", err)
		}
	} else {
		_ = godotenv.Load() // .env opcional
	}

	var err error
	cfg, err = config.Load(flagConfig)
	if err != nil {
		return err
	}
	if flagAPIURL != "" {
		cfg.API.BaseURL = flagAPIURL
	}
	if cfg.API.BaseURL == "" {
		return errors.New("falta la URL del Admin API (--api-url, WACTL_API_URL o config)")
	}

	logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.Log.Level, ServiceName: "wactl"})

	store = credstore.New(credstore.NewFSPort(cfg.Session.Dir))
	sess = session.New(store)
	api = apiclient.New(apiclient.Config{
		BaseURL: cfg.API.BaseURL,
		Timeout: cfg.APITimeout(),
		Tokens:  sess,
	})
	sess.Bind(api)
	return nil
}

func newOrchestrator(refresh mutate.Refresher) *mutate.Orchestrator {
	return mutate.New(mutate.Config{
		API:      api,
		Session:  sess,
		Refresh:  refresh,
		Notifier: termNotifier{},
	})
}

// confirmPrompt pide confirmación por stdin.
func confirmPrompt(action string) bool {
	fmt.Printf("%s? [y/N]: ", action)
	line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	line = strings.ToLower(strings.TrimSpace(line))
	return line == "y" || line == "yes"
}

// runConfirmed arma el flujo Request → (prompt) → Confirm/Cancel.
func runConfirmed(ctx context.Context, kind mutate.Kind, id, action string, yes bool) error {
	s := syncer.New(syncer.Config{API: api, Stamp: store.Stamp})
	orch := newOrchestrator(s)

	if err := orch.Request(kind, id); err != nil {
		return err
	}
	if !yes && !confirmPrompt(action) {
		orch.Cancel()
		fmt.Println("aborted")
		return nil
	}
	res, err := orch.Confirm(ctx)
	if err != nil {
		return err
	}
	if !res.OK {
		return errors.New(res.ErrorMessage())
	}
	if accounts := s.Accounts(); len(accounts) > 0 || kind == mutate.KindDelete {
		printAccounts(accounts)
	}
	return nil
}

func printAccounts(items []apiclient.SubAccountItem) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "IDENTITY\tNAME\tSESSIONS\tSTATUS\tREFRESH")
	for _, it := range items {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", it.IdentityID, it.Name, it.Sessions, it.Status, it.RefreshAt)
	}
	_ = w.Flush()
}

func printProfile(p apiclient.AdminProfile) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "identity:\t%s\n", p.IdentityID)
	fmt.Fprintf(w, "name:\t%s\n", p.Name)
	if p.Email != "" {
		fmt.Fprintf(w, "email:\t%s\n", p.Email)
	}
	if p.Phone != "" {
		fmt.Fprintf(w, "phone:\t%s\n", p.Phone)
	}
	if p.Code != "" {
		fmt.Fprintf(w, "code:\t%s\n", p.Code)
	}
	_ = w.Flush()
}

func main() {
	root := &cobra.Command{
		Use:           "wactl",
		Short:         "CLI admin para cuentas de conexión WhatsApp",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initApp()
		},
	}
	root.PersistentFlags().StringVar(&flagConfig, "config", "", "archivo de config YAML (default: solo env)")
	root.PersistentFlags().StringVar(&flagEnvFile, "env-file", "", "archivo .env a cargar")
	root.PersistentFlags().StringVar(&flagAPIURL, "api-url", "", "URL base del Admin API (env WACTL_API_URL)")

	// ===== login / logout / sessions =====

	var loginID, loginPwd string
	loginCmd := &cobra.Command{
		Use:   "login",
		Short: "Autenticarse y persistir la identidad como activa",
		RunE: func(cmd *cobra.Command, args []string) error {
			if loginID == "" || loginPwd == "" {
				return errors.New("--id y --password son requeridos")
			}
			data, res := sess.Login(cmd.Context(), loginID, loginPwd)
			if !res.OK {
				return errors.New(res.ErrorMessage())
			}
			fmt.Printf("logged in as %s\n", data.Profile.IdentityID)
			return nil
		},
	}
	loginCmd.Flags().StringVar(&loginID, "id", os.Getenv("WACTL_IDENTITY"), "identity id")
	loginCmd.Flags().StringVar(&loginPwd, "password", os.Getenv("WACTL_PASSWORD"), "password")

	var logoutID string
	logoutCmd := &cobra.Command{
		Use:   "logout",
		Short: "Eliminar una identidad local (default: la activa)",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess.Logout(logoutID)
			fmt.Println("ok")
			return nil
		},
	}
	logoutCmd.Flags().StringVar(&logoutID, "id", "", "identity id (vacío = activa)")

	sessionsCmd := &cobra.Command{Use: "sessions", Short: "Identidades persistidas"}
	sessionsCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Listar identidades",
		RunE: func(cmd *cobra.Command, args []string) error {
			act := sess.Active()
			for _, id := range sess.Identities() {
				marker := " "
				if act != nil && act.ID == id.ID {
					marker = "*"
				}
				fmt.Printf("%s %s\n", marker, id.ID)
			}
			return nil
		},
	})
	sessionsCmd.AddCommand(&cobra.Command{
		Use:   "use <identity-id>",
		Short: "Cambiar la identidad activa",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !sess.Use(args[0]) {
				return fmt.Errorf("identidad %s no encontrada", args[0])
			}
			fmt.Println("ok")
			return nil
		},
	})

	whoamiCmd := &cobra.Command{
		Use:   "whoami",
		Short: "Perfil del admin autenticado (GET /admin/check)",
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, res := api.Check(cmd.Context())
			if !res.OK {
				if res.TokenExpired() {
					return errors.New("token vencido: corré `wactl login` de nuevo")
				}
				return errors.New(res.ErrorMessage())
			}
			printProfile(profile)
			return nil
		},
	}

	// ===== accounts =====

	accountsCmd := &cobra.Command{Use: "accounts", Short: "Sub-cuentas administradas"}

	accountsCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Stats de suscripción + lista de sub-cuentas (GET /admin/info)",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, res := api.Info(cmd.Context())
			if !res.OK {
				return errors.New(res.ErrorMessage())
			}
			fmt.Printf("subscription expires: %s  subaccounts %d/%d  instances %d/%d\n",
				data.Stats.ExpiredAt,
				data.Stats.Subaccounts.Used, data.Stats.Subaccounts.Total,
				data.Stats.Instances.Used, data.Stats.Instances.Total)
			printAccounts(data.Subaccounts)
			return nil
		},
	})

	var createName string
	var createInstances int
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Crear una sub-cuenta",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(createName) == "" {
				return errors.New("--name es requerido")
			}
			item, res := api.CreateSubAccount(cmd.Context(), apiclient.CreateSubAccountRequest{
				Name: createName, Instances: createInstances,
			})
			if !res.OK {
				return errors.New(res.ErrorMessage())
			}
			fmt.Printf("created %s (%s)\n", item.Name, item.IdentityID)
			return nil
		},
	}
	createCmd.Flags().StringVar(&createName, "name", "", "nombre de la sub-cuenta")
	createCmd.Flags().IntVar(&createInstances, "instances", 1, "cantidad de instancias")
	accountsCmd.AddCommand(createCmd)

	var editName string
	var editInstances int
	editCmd := &cobra.Command{
		Use:   "edit <identity-id>",
		Short: "Editar nombre/instancias de una sub-cuenta",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := syncer.New(syncer.Config{API: api, Stamp: store.Stamp})
			orch := newOrchestrator(s)
			res, err := orch.Edit(cmd.Context(), args[0], editName, editInstances)
			if err != nil {
				return err
			}
			if !res.OK {
				return errors.New(res.ErrorMessage())
			}
			printAccounts(s.Accounts())
			return nil
		},
	}
	editCmd.Flags().StringVar(&editName, "name", "", "nombre nuevo")
	editCmd.Flags().IntVar(&editInstances, "instances", 0, "instancias nuevas")
	accountsCmd.AddCommand(editCmd)

	var yes bool
	deleteCmd := &cobra.Command{
		Use:   "delete <identity-id>",
		Short: "Eliminar una sub-cuenta (pide confirmación)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfirmed(cmd.Context(), mutate.KindDelete, args[0], "delete "+args[0], yes)
		},
	}
	resetCmd := &cobra.Command{
		Use:   "reset <identity-id>",
		Short: "Regenerar la password de una sub-cuenta (pide confirmación)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfirmed(cmd.Context(), mutate.KindResetPassword, args[0], "reset password for "+args[0], yes)
		},
	}
	disconnectCmd := &cobra.Command{
		Use:   "disconnect <identity-id>",
		Short: "Desconectar la sesión WhatsApp de una sub-cuenta (pide confirmación)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfirmed(cmd.Context(), mutate.KindDisconnect, args[0], "disconnect "+args[0], yes)
		},
	}
	for _, c := range []*cobra.Command{deleteCmd, resetCmd, disconnectCmd} {
		c.Flags().BoolVarP(&yes, "yes", "y", false, "no pedir confirmación")
		accountsCmd.AddCommand(c)
	}

	// ===== passwd =====

	var oldPwd, newPwd string
	passwdCmd := &cobra.Command{
		Use:   "passwd",
		Short: "Cambiar la password propia (re-loguea automáticamente)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if oldPwd == "" || newPwd == "" {
				return errors.New("--old y --new son requeridos")
			}
			orch := newOrchestrator(nil)
			res, err := orch.ChangePassword(cmd.Context(), oldPwd, newPwd)
			if err != nil {
				return err
			}
			if !res.OK {
				return errors.New(res.ErrorMessage())
			}
			return nil
		},
	}
	passwdCmd.Flags().StringVar(&oldPwd, "old", "", "password actual")
	passwdCmd.Flags().StringVar(&newPwd, "new", "", "password nueva")

	// ===== watch =====

	var watchAddr string
	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Daemon de sincronización con /healthz y /metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			var cacheCfg cache.Config
			cacheCfg.Kind = cfg.Cache.Kind
			cacheCfg.Redis.Addr = cfg.Cache.Redis.Addr
			cacheCfg.Redis.DB = cfg.Cache.Redis.DB
			cacheCfg.Redis.Prefix = cfg.Cache.Redis.Prefix
			cacheCfg.Memory.DefaultTTL = cfg.MemoryTTL()

			log := logger.Named("watch")

			var s *syncer.Syncer
			s = syncer.New(syncer.Config{
				API:             api,
				Stamp:           store.Stamp,
				ProfileInterval: cfg.ProfileInterval(),
				StampInterval:   cfg.StampInterval(),
				Cache:           cache.New(cacheCfg),
				CacheTTL:        cfg.MemoryTTL(),
				OnChange: func() {
					accounts := s.Accounts()
					connected := 0
					for _, a := range accounts {
						if a.IsConnected {
							connected++
						}
					}
					log.Info("snapshot updated",
						zap.Int("subaccounts", len(accounts)),
						zap.Int("connected", connected))
				},
			})

			r := chi.NewRouter()
			r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
				profile := s.Status(syncer.TrackProfile)
				info := s.Status(syncer.TrackInfo)
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				_ = json.NewEncoder(w).Encode(map[string]any{
					"profile": map[string]any{"state": profile.State.String(), "error": profile.LastError},
					"info":    map[string]any{"state": info.State.String(), "error": info.LastError},
				})
			})
			r.Handle("/metrics", metrics.Register(nil))

			srv := &http.Server{Addr: watchAddr, Handler: r}
			go func() {
				log.Info("status server listening", zap.String("addr", watchAddr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Error("status server stopped", zap.Error(err))
				}
			}()

			s.Run(ctx)

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	watchCmd.Flags().StringVar(&watchAddr, "addr", ":9090", "address del server de status")

	root.AddCommand(loginCmd, logoutCmd, sessionsCmd, whoamiCmd, accountsCmd, passwdCmd, watchCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		_ = logger.Sync()
		os.Exit(1)
	}
	_ = logger.Sync()
}
