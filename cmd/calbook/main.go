package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/calbook/internal/profile"
	"github.com/hrygo/calbook/server"
	"github.com/hrygo/calbook/store"
	"github.com/hrygo/calbook/store/db"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "0.1.0"

var (
	rootCmd = &cobra.Command{
		Use:   "calbook",
		Short: `A conversational calendar booking service.`,
		Run: func(cmd *cobra.Command, _ []string) {
			if err := runServe(cmd.Context()); err != nil {
				slog.Error("failed to serve", "error", err)
				os.Exit(1)
			}
		},
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
)

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("driver", "sqlite")
	viper.SetDefault("port", 8081)
	viper.SetDefault("backend", "local")
	viper.SetDefault("timezone", "Asia/Kolkata")

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (yaml, toml or json)")
	flags.String("mode", "dev", `mode of server, can be "prod" or "dev" or "demo"`)
	flags.String("addr", "", "address of server")
	flags.Int("port", 8081, "port of server")
	flags.String("data", "", "data directory")
	flags.String("driver", "sqlite", "database driver")
	flags.String("dsn", "", "database source name (aka. DSN)")
	flags.String("backend", "local", `calendar backend, "local" or "google"`)
	flags.String("timezone", "Asia/Kolkata", "display timezone")

	for _, name := range []string{"mode", "addr", "port", "data", "driver", "dsn", "backend", "timezone"} {
		if err := viper.BindPFlag(name, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("calbook")
	viper.AutomaticEnv()

	rootCmd.AddCommand(serveCmd, chatCmd, importCmd, tokenCmd)
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	configFile, _ := rootCmd.PersistentFlags().GetString("config")
	if configFile == "" {
		return
	}
	viper.SetConfigFile(configFile)
	if err := viper.ReadInConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to read config %s: %v\n", configFile, err)
		os.Exit(1)
	}
}

// setupLogger installs the default logger: text for development, JSON in
// production.
func setupLogger(p *profile.Profile) {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	var handler slog.Handler
	if p.IsDev() {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// loadProfile builds the profile from flags and CALBOOK_* variables.
func loadProfile() (*profile.Profile, error) {
	p := &profile.Profile{
		Mode:     viper.GetString("mode"),
		Addr:     viper.GetString("addr"),
		Port:     viper.GetInt("port"),
		Data:     viper.GetString("data"),
		Driver:   viper.GetString("driver"),
		DSN:      viper.GetString("dsn"),
		Backend:  viper.GetString("backend"),
		Timezone: viper.GetString("timezone"),
		Version:  version,
	}
	p.FromEnv()
	setupLogger(p)
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// openStore opens and migrates the database when the local backend needs it.
func openStore(ctx context.Context, p *profile.Profile) (*store.Store, error) {
	if p.UsesGoogle() {
		return nil, nil
	}
	driver, err := db.NewDBDriver(p)
	if err != nil {
		return nil, err
	}
	st := store.New(driver, p)
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	return st, nil
}

// newServer wires a server from flags and environment.
func newServer(ctx context.Context) (*server.Server, error) {
	p, err := loadProfile()
	if err != nil {
		return nil, err
	}
	st, err := openStore(ctx, p)
	if err != nil {
		return nil, err
	}
	s, err := server.NewServer(ctx, p, st)
	if err != nil {
		if st != nil {
			_ = st.Close()
		}
		return nil, err
	}
	return s, nil
}

func runServe(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s, err := newServer(ctx)
	if err != nil {
		return err
	}

	c := make(chan os.Signal, 1)
	// Trigger graceful shutdown on SIGINT or SIGTERM.
	// The default signal sent by the `kill` command is SIGTERM,
	// which is taken as the graceful shutdown signal for many systems, eg., Kubernetes, Gunicorn.
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	if err := s.Start(ctx); err != nil {
		s.Shutdown(ctx)
		return err
	}

	printGreetings(s.Profile)

	<-c
	s.Shutdown(context.Background())
	return nil
}

func printGreetings(p *profile.Profile) {
	fmt.Printf("calbook %s started successfully!\n", p.Version)
	fmt.Printf("Mode: %s, backend: %s, timezone: %s\n", p.Mode, p.Backend, p.Timezone)
	if p.Addr == "" {
		fmt.Printf("Server running on port %d\n", p.Port)
	} else {
		fmt.Printf("Server running on %s:%d\n", p.Addr, p.Port)
	}
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
