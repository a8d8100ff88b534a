package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ahmadzakiakmal/weldledger/access"
	"github.com/ahmadzakiakmal/weldledger/account"
	"github.com/ahmadzakiakmal/weldledger/config"
	"github.com/ahmadzakiakmal/weldledger/dashboard"
	"github.com/ahmadzakiakmal/weldledger/encryption"
	"github.com/ahmadzakiakmal/weldledger/ledger"
	"github.com/ahmadzakiakmal/weldledger/ledger/app"
	"github.com/ahmadzakiakmal/weldledger/ledger/gateway"
	"github.com/ahmadzakiakmal/weldledger/materials"
	"github.com/ahmadzakiakmal/weldledger/notify"
	"github.com/ahmadzakiakmal/weldledger/recordstore"
	"github.com/ahmadzakiakmal/weldledger/repository"
	"github.com/ahmadzakiakmal/weldledger/server"
	"github.com/ahmadzakiakmal/weldledger/srvreg"
	"github.com/ahmadzakiakmal/weldledger/workflow"

	cfg "github.com/cometbft/cometbft/config"
	cmtflags "github.com/cometbft/cometbft/libs/cli/flags"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	nm "github.com/cometbft/cometbft/node"
	"github.com/cometbft/cometbft/p2p"
	"github.com/cometbft/cometbft/privval"
	"github.com/cometbft/cometbft/proxy"
	cmtrpc "github.com/cometbft/cometbft/rpc/client/local"
	"github.com/dgraph-io/badger/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/viper"
	"github.com/urfave/cli/v3"
)

const shutdownTimeout = 15 * time.Second

func main() {
	root := &cli.Command{
		Name:  "weldledger",
		Usage: "Welded product lifecycle tracker on a CometBFT ledger",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "optional config file (yaml, toml or json)"},
		},
		Commands: []*cli.Command{
			serveCommand(),
			migrateCommand(),
			keygenCommand(),
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return runServe(ctx, c.String("config"))
		},
	}

	if err := root.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the ledger node and the HTTP API",
		Action: func(ctx context.Context, c *cli.Command) error {
			return runServe(ctx, c.String("config"))
		},
	}
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Create or update the metadata schema and exit",
		Action: func(ctx context.Context, c *cli.Command) error {
			conf, err := loadConfig(c.String("config"))
			if err != nil {
				return err
			}
			logger, err := newLogger(conf.LogLevel)
			if err != nil {
				return err
			}
			repo, err := openRepository(ctx, conf, logger)
			if err != nil {
				return err
			}
			defer repo.Close()
			logger.Info("Schema is up to date", "driver", conf.Database.Driver)

			accounts := account.NewService(repo, account.NewSigner(conf.Auth.AccessSecret, conf.Auth.RefreshSecret), notify.NewLogNotifier(logger), logger)
			return seedAdmin(ctx, conf, accounts, logger)
		},
	}
}

func keygenCommand() *cli.Command {
	return &cli.Command{
		Name:  "keygen",
		Usage: "Print a fresh hex encoded encryption key",
		Action: func(ctx context.Context, c *cli.Command) error {
			key, err := encryption.GenerateKey()
			if err != nil {
				return err
			}
			fmt.Println(key)
			return nil
		},
	}
}

func loadConfig(path string) (*config.Config, error) {
	conf, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return conf, nil
}

func newLogger(level string) (cmtlog.Logger, error) {
	logger := cmtlog.NewTMLogger(cmtlog.NewSyncWriter(os.Stdout))
	logger, err := cmtflags.ParseLogLevel(level, logger, cfg.DefaultLogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to parse log level: %w", err)
	}
	return logger, nil
}

func openRepository(ctx context.Context, conf *config.Config, logger cmtlog.Logger) (*repository.Repository, error) {
	if conf.Database.Driver == config.DriverPostgres {
		logger.Info("Connecting to PostgreSQL", "host", conf.Database.Host, "db", conf.Database.Name)
		return repository.ConnectPostgres(ctx, conf.GetDSN(), logger)
	}
	logger.Info("Opening SQLite database", "path", conf.Database.SQLitePath)
	return repository.OpenSQLite(ctx, conf.Database.SQLitePath, logger)
}

// seedAdmin creates the bootstrap admin when a password is configured and
// no admin exists.
func seedAdmin(ctx context.Context, conf *config.Config, accounts *account.Service, logger cmtlog.Logger) error {
	if conf.Admin.Password == "" {
		return nil
	}
	admin, err := accounts.EnsureAdmin(ctx, conf.Admin.Name, conf.Admin.Email, conf.Admin.Password)
	if err != nil {
		return fmt.Errorf("bootstrapping admin: %w", err)
	}
	if admin != nil {
		logger.Info("Bootstrapped admin account", "employee_id", admin.ID)
	}
	return nil
}

// loadCometConfig reads config/config.toml under home.
func loadCometConfig(home string) (*cfg.Config, error) {
	cometConfig := cfg.DefaultConfig()
	cometConfig.SetRoot(home)
	v := viper.New()
	v.SetConfigFile(filepath.Join(home, "config", "config.toml"))
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := v.Unmarshal(cometConfig); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cometConfig.ValidateBasic(); err != nil {
		return nil, fmt.Errorf("invalid configuration data: %w", err)
	}
	return cometConfig, nil
}

func runServe(ctx context.Context, configPath string) error {
	conf, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger, err := newLogger(conf.LogLevel)
	if err != nil {
		return err
	}
	logger.Info("=== Starting weldledger node ===", "home", conf.CometHome, "http_port", conf.HTTPPort)

	cometConfig, err := loadCometConfig(conf.CometHome)
	if err != nil {
		return err
	}

	codec, err := encryption.NewCodecFromHex(conf.EncryptionKey)
	if err != nil {
		return err
	}

	repo, err := openRepository(ctx, conf, logger)
	if err != nil {
		return err
	}
	defer repo.Close()

	// Badger holds the ledger state
	db, err := badger.Open(badger.DefaultOptions(filepath.Join(conf.CometHome, "badger")))
	if err != nil {
		return fmt.Errorf("opening badger database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("Closing badger database", "err", err)
		}
	}()

	abciApp := app.NewABCIApplication(db, logger.With("module", "ledger"))

	pv := privval.LoadFilePV(cometConfig.PrivValidatorKeyFile(), cometConfig.PrivValidatorStateFile())
	nodeKey, err := p2p.LoadNodeKey(cometConfig.NodeKeyFile())
	if err != nil {
		return fmt.Errorf("failed to load node's key: %w", err)
	}

	node, err := nm.NewNode(
		ctx,
		cometConfig,
		pv,
		nodeKey,
		proxy.NewLocalClientCreator(abciApp),
		nm.DefaultGenesisDocProviderFunc(cometConfig),
		cfg.DefaultDBProvider,
		nm.DefaultMetricsProvider(cometConfig.Instrumentation),
		logger,
	)
	if err != nil {
		return fmt.Errorf("creating CometBFT node: %w", err)
	}
	abciApp.SetNodeID(string(node.NodeInfo().ID()))

	logger.Info("Starting CometBFT node", "node_id", string(node.NodeInfo().ID()))
	if err := node.Start(); err != nil {
		return fmt.Errorf("starting CometBFT node: %w", err)
	}
	defer func() {
		logger.Info("Stopping CometBFT node")
		if err := node.Stop(); err != nil {
			logger.Error("Stopping CometBFT node", "err", err)
		}
		node.Wait()
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	rpc := cmtrpc.New(node)
	ledgerClient := gateway.NewClient(rpc, gateway.Config{
		WriteTimeout: conf.Ledger.WriteTimeout,
		ReadTimeout:  conf.Ledger.ReadTimeout,
	}, logger, gateway.NewMetrics(reg))

	var notifier notify.Notifier = notify.NewLogNotifier(logger)
	if conf.SMTP.Host != "" {
		notifier = notify.NewSMTPNotifier(notify.SMTPConfig{
			Host:     conf.SMTP.Host,
			Port:     conf.SMTP.Port,
			Username: conf.SMTP.User,
			Password: conf.SMTP.Pass,
			From:     conf.SMTP.From,
		})
	}

	accounts := account.NewService(repo, account.NewSigner(conf.Auth.AccessSecret, conf.Auth.RefreshSecret), notifier, logger)
	if err := seedAdmin(ctx, conf, accounts, logger); err != nil {
		return err
	}

	designs := recordstore.New(codec, ledgerClient.Table(ledger.DesignData))
	services := srvreg.Services{
		Repo:      repo,
		Accounts:  accounts,
		Access:    access.NewService(repo, notifier, logger),
		Workflow:  workflow.NewService(repo, logger),
		Dashboard: dashboard.NewRegistry(dashboard.Sources{Repo: repo, Designs: designs}),
		Products:  recordstore.New(codec, ledgerClient.Table(ledger.Products)),
		Designs:   designs,
		Analyses:  recordstore.New(codec, ledgerClient.Table(ledger.AnalysisData)),
		Ledger:    ledgerClient,
	}
	if conf.PredictorCommand != "" {
		services.Predictor = materials.NewScriptPredictor(conf.PredictorCommand, conf.PredictorArgs...)
	}

	serviceRegistry := srvreg.NewServiceRegistry(services, logger)
	serviceRegistry.RegisterDefaultServices()

	webserver := server.NewWebServer(server.Options{
		Addr:     ":" + conf.HTTPPort,
		Registry: serviceRegistry,
		Auth:     accounts,
		Node:     rpc,
		Gatherer: reg,
		Metrics:  server.NewMetrics(reg),
		Logger:   logger,
	})
	if err := webserver.Start(); err != nil {
		return fmt.Errorf("starting HTTP server: %w", err)
	}

	logger.Info("=== weldledger node started ===",
		"api", fmt.Sprintf("http://localhost:%s", conf.HTTPPort),
		"rpc", cometConfig.RPC.ListenAddress,
		"routes", len(serviceRegistry.Routes()))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("Received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := webserver.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down HTTP web server", "err", err)
	}
	logger.Info("weldledger node stopped")
	return nil
}
