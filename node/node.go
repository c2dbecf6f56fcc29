// Package node wires the l2node components together and runs them.
package node

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/gofrs/flock"
	"github.com/jonboulle/clockwork"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/btcl2/l2node/api"
	"github.com/btcl2/l2node/bridge"
	"github.com/btcl2/l2node/cmd"
	"github.com/btcl2/l2node/config"
	"github.com/btcl2/l2node/config/presets"
	"github.com/btcl2/l2node/consensus"
	"github.com/btcl2/l2node/executor"
	"github.com/btcl2/l2node/fraudproof"
	"github.com/btcl2/l2node/keys"
	"github.com/btcl2/l2node/l1"
	"github.com/btcl2/l2node/ledger"
	"github.com/btcl2/l2node/log"
	"github.com/btcl2/l2node/metrics"
	"github.com/btcl2/l2node/multisig"
	"github.com/btcl2/l2node/rollup"
	"github.com/btcl2/l2node/scheduler"
	"github.com/btcl2/l2node/sql"
	"github.com/btcl2/l2node/sql/statesql"
	"github.com/btcl2/l2node/taskgroup"
	"github.com/btcl2/l2node/validators"
)

const dbFile = "state.sql"

// Logger names.
const (
	AppLogger        = "app"
	DatabaseLogger   = "database"
	LedgerLogger     = "ledger"
	ExecutorLogger   = "executor"
	BridgeLogger     = "bridge"
	L1Logger         = "l1"
	RollupLogger     = "rollup"
	FraudLogger      = "fraud"
	ConsensusLogger  = "consensus"
	ValidatorsLogger = "validators"
	SchedulerLogger  = "scheduler"
	KeysLogger       = "keys"
	APILogger        = "api"
)

// GetCommand returns the root command of the l2node executable.
func GetCommand() *cobra.Command {
	conf := config.DefaultConfig()
	var configPath *string
	c := &cobra.Command{
		Use:   "l2node",
		Short: "start the settlement node",
		RunE: func(c *cobra.Command, args []string) error {
			if err := configure(c, *configPath, &conf); err != nil {
				return err
			}
			root, err := log.New(conf.LOGGING.Encoder)
			if err != nil {
				return err
			}
			app := New(WithConfig(&conf), WithLog(root))

			// os.Interrupt for all systems, syscall.SIGTERM is mainly for docker.
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if err := os.MkdirAll(app.Config.DataDir(), 0o700); err != nil {
				return log.ErrEnsureDataDir(app.Config.DataDir(), err)
			}
			if err := app.Lock(); err != nil {
				return fmt.Errorf("getting exclusive file lock: %w", err)
			}
			defer app.Unlock()

			if err := app.Initialize(); err != nil {
				return fmt.Errorf("initializing app: %w", err)
			}
			// Don't print usage on error from this point forward
			c.SilenceUsage = true

			// This blocks until the context is finished or until an error is produced
			err = app.Start(ctx)
			app.Cleanup()
			return err
		},
	}

	configPath = cmd.AddFlags(c.PersistentFlags(), &conf)

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version info",
		Run: func(c *cobra.Command, args []string) {
			fmt.Printf("%s (%s %s)\n", cmd.Version, cmd.Branch, cmd.Commit)
		},
	}
	c.AddCommand(versionCmd)
	c.AddCommand(keysCommand(&conf, configPath))
	c.AddCommand(custodyCommand(&conf, configPath))
	return c
}

func configure(c *cobra.Command, configPath string, conf *config.Config) error {
	preset := conf.Preset // might be set via CLI flag
	if err := loadConfig(conf, preset, configPath); err != nil {
		return log.ErrMalformedConfig(err)
	}
	// apply CLI args to config
	if err := c.ParseFlags(os.Args[1:]); err != nil {
		return log.ErrBadFlags(err)
	}
	return nil
}

// loadConfig loads config and preset (if provided) into the provided config.
// It first loads the preset and then overrides it with values from the config file.
func loadConfig(cfg *config.Config, preset, path string) error {
	v := viper.New()
	if err := config.LoadConfig(path, v); err != nil {
		return err
	}
	if len(preset) == 0 && v.IsSet("preset") {
		preset = v.GetString("preset")
	}
	if len(preset) > 0 {
		p, err := presets.Get(preset)
		if err != nil {
			return err
		}
		*cfg = p
	}
	if err := config.Decode(v, cfg); err != nil {
		return err
	}
	// the file's preset key must not override the one that was applied
	if len(preset) > 0 {
		cfg.Preset = preset
	}
	return nil
}

// Option to modify an App instance.
type Option func(app *App)

// WithLog sets the root logger. Module loggers are derived from it.
func WithLog(logger *zap.Logger) Option {
	return func(app *App) {
		app.root = logger
	}
}

// WithConfig overwrites default App config.
func WithConfig(conf *config.Config) Option {
	return func(app *App) {
		app.Config = conf
	}
}

func WithClock(clock clockwork.Clock) Option {
	return func(app *App) {
		app.clock = clock
	}
}

// WithL1Client replaces the L1 backends built from the config.
func WithL1Client(client l1.Client) Option {
	return func(app *App) {
		app.client = client
	}
}

// WithTransport replaces the HTTP consensus transport.
func WithTransport(transport consensus.Transport) Option {
	return func(app *App) {
		app.transport = transport
	}
}

// New creates an App. Nothing is opened until Start.
func New(opts ...Option) *App {
	defaultConfig := config.DefaultConfig()
	app := &App{
		Config:  &defaultConfig,
		root:    zap.NewNop(),
		clock:   clockwork.NewRealClock(),
		started: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(app)
	}
	app.log = app.addLogger(AppLogger)
	return app
}

// App is the l2node process: its database, its L1 connection and every
// component serving the ledger, the bridge and the rollup.
type App struct {
	Config *config.Config

	root     *zap.Logger
	log      *zap.Logger
	clock    clockwork.Clock
	fileLock *flock.Flock
	params   *chaincfg.Params

	db        *sql.Database
	client    l1.Client
	rpc       *l1.RPCClient
	signer    keys.Signer
	custody   *multisig.Descriptor
	transport consensus.Transport

	ledger     *ledger.Ledger
	executor   *executor.Executor
	bridge     *bridge.Bridge
	watcher    *bridge.Watcher
	aggregator *rollup.Aggregator
	registry   *validators.Registry
	fraud      *fraudproof.Checker
	consensus  *consensus.Node
	api        *api.Server
	supervisor *scheduler.Supervisor

	started chan struct{} // this channel is closed once the app has finished starting
}

// Started is closed once every service is running.
func (app *App) Started() <-chan struct{} {
	return app.started
}

// Lock locks the app for exclusive use. It returns an error if the app is already locked.
func (app *App) Lock() error {
	path := app.Config.LockFile()
	lockDir := filepath.Dir(path)
	if _, err := os.Stat(lockDir); errors.Is(err, fs.ErrNotExist) {
		if err := os.MkdirAll(lockDir, 0o700); err != nil {
			return fmt.Errorf("creating dir %s for lock %s: %w", lockDir, path, err)
		}
	}
	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil {
		return fmt.Errorf("flock %s: %w", path, err)
	} else if !locked {
		return log.ErrDataDirLocked(app.Config.DataDir(), fl.Path())
	}
	app.fileLock = fl
	return nil
}

// Unlock unlocks the app. It is a no-op if the app is not locked.
func (app *App) Unlock() {
	if app.fileLock == nil {
		return
	}
	if err := app.fileLock.Unlock(); err != nil {
		app.log.Error("failed to unlock file",
			zap.String("path", app.fileLock.Path()),
			zap.Error(err),
		)
	}
}

// Initialize validates the node configuration.
func (app *App) Initialize() error {
	if err := app.Config.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	params, err := app.Config.Params()
	if err != nil {
		return err
	}
	app.params = params
	app.log.Info("l2node is starting",
		zap.String("version", cmd.Version),
		zap.String("commit", cmd.Commit),
		zap.String("network", params.Name),
		zap.String("data dir", app.Config.DataDir()),
		zap.String("preset", app.Config.Preset),
	)
	return nil
}

func (app *App) addLogger(name string) *zap.Logger {
	lvl, err := decodeLoggerLevel(app.Config, name)
	if err != nil {
		app.root.Warn("failed to read log level", zap.String("module", name), zap.Error(err))
	}
	return log.Named(app.root, name, lvl)
}

func decodeLoggerLevel(cfg *config.Config, name string) (string, error) {
	loggers := map[string]string{}
	if err := mapstructure.Decode(cfg.LOGGING, &loggers); err != nil {
		return "", fmt.Errorf("error decoding mapstructure: %w", err)
	}
	return loggers[name], nil
}

func (app *App) setupDB() error {
	dbLog := app.addLogger(DatabaseLogger)
	db, err := statesql.Open(filepath.Join(app.Config.DataDir(), dbFile),
		sql.WithConnections(app.Config.Database.Connections),
		sql.WithLogger(dbLog),
		sql.WithLatencyMetering(app.Config.Database.LatencyMetering),
		sql.WithVacuum(app.Config.Database.Vacuum),
	)
	if err != nil {
		return fmt.Errorf("open state database: %w", err)
	}
	app.db = db
	return nil
}

// setupL1 connects to bitcoind, falls back to esplora when configured and
// applies the rate limit.
func (app *App) setupL1() error {
	if app.client != nil {
		return nil
	}
	cfg := app.Config.L1
	lg := app.addLogger(L1Logger)
	var client l1.Client
	if cfg.RPC.Host != "" {
		rpc, err := l1.NewRPCClient(cfg.RPC, app.params, l1.WithRPCLogger(lg))
		if err != nil {
			return err
		}
		app.rpc = rpc
		client = rpc
	}
	if cfg.Esplora.URL != "" {
		esplora, err := l1.NewEsploraClient(cfg.Esplora, l1.WithEsploraLogger(lg))
		if err != nil {
			return err
		}
		if client == nil {
			client = esplora
		} else {
			client = l1.NewFallback(client, esplora, lg)
		}
	}
	if cfg.RateLimit > 0 {
		client = l1.NewLimited(client, cfg.RateLimit, cfg.Burst)
	}
	app.client = client
	return nil
}

// setupKeys decrypts the local keys and derives the custody descriptor.
func (app *App) setupKeys() error {
	cfg := app.Config.Keys
	ks, err := keys.NewKeystore(app.Config.KeysDir(), keys.WithLogger(app.addLogger(KeysLogger)))
	if err != nil {
		return err
	}
	passphrase := os.Getenv(cfg.PassphraseEnv)
	locators := []keys.Locator{keys.Locator(cfg.Leader)}
	for _, name := range cfg.Committee {
		if name != cfg.Leader {
			locators = append(locators, keys.Locator(name))
		}
	}
	keyring, err := ks.Keyring(passphrase, locators...)
	if err != nil {
		return log.ErrLoadKeys(err)
	}
	app.signer = keyring

	app.custody, err = deriveCustody(ks, app.Config)
	if err != nil {
		return log.ErrDeriveMultisig(err)
	}
	app.log.Info("custody address", zap.Object("custody", app.custody))
	return nil
}

func custodyKeys(ks *keys.Keystore, cfg config.KeysConfig) ([][]byte, error) {
	if len(cfg.CustodyKeys) > 0 {
		return cfg.DecodeCustodyKeys()
	}
	rst := make([][]byte, 0, len(cfg.Committee))
	for _, name := range cfg.Committee {
		pub, err := ks.PublicKey(keys.Locator(name))
		if err != nil {
			return nil, err
		}
		rst = append(rst, pub)
	}
	return rst, nil
}

func committee(cfg config.KeysConfig) []keys.Locator {
	rst := make([]keys.Locator, 0, len(cfg.Committee))
	for _, name := range cfg.Committee {
		rst = append(rst, keys.Locator(name))
	}
	return rst
}

// initServices builds every component. It expects Initialize to have run.
func (app *App) initServices() error {
	if err := app.setupDB(); err != nil {
		return err
	}
	if err := app.setupL1(); err != nil {
		return err
	}
	if err := app.setupKeys(); err != nil {
		return err
	}
	cfg := app.Config

	app.ledger = ledger.New(app.db,
		ledger.WithLogger(app.addLogger(LedgerLogger)),
		ledger.WithClock(app.clock),
		ledger.WithNetwork(app.params),
	)
	app.executor = executor.New(app.db, app.ledger,
		executor.WithLogger(app.addLogger(ExecutorLogger)),
		executor.WithClock(app.clock),
		executor.WithGasSchedule(cfg.Ledger.Gas),
		executor.WithBurnPercent(cfg.Ledger.BurnPercent),
	)

	var err error
	app.bridge, err = bridge.New(app.db, app.ledger, app.client, app.custody, app.signer, committee(cfg.Keys),
		bridge.WithLogger(app.addLogger(BridgeLogger)),
		bridge.WithClock(app.clock),
		bridge.WithConfig(cfg.Bridge),
	)
	if err != nil {
		return fmt.Errorf("bridge: %w", err)
	}
	app.watcher, err = bridge.NewWatcher(app.bridge)
	if err != nil {
		return fmt.Errorf("deposit watcher: %w", err)
	}

	consensusLog := app.addLogger(ConsensusLogger)
	if app.transport == nil {
		app.transport = consensus.NewHTTPTransport(cfg.Consensus, consensusLog)
	}
	app.consensus, err = consensus.New(app.db, cfg.Consensus, app.transport,
		consensus.WithLogger(consensusLog),
		consensus.WithClock(app.clock),
	)
	if err != nil {
		return fmt.Errorf("consensus: %w", err)
	}

	app.aggregator, err = rollup.New(app.db, app.ledger, app.consensus, app.client, app.signer,
		keys.Locator(cfg.Keys.Leader), cfg.Consensus.ID,
		rollup.WithLogger(app.addLogger(RollupLogger)),
		rollup.WithClock(app.clock),
		rollup.WithConfig(cfg.Rollup),
	)
	if err != nil {
		return fmt.Errorf("rollup: %w", err)
	}

	app.registry = validators.New(app.db, app.ledger,
		validators.WithLogger(app.addLogger(ValidatorsLogger)),
		validators.WithClock(app.clock),
		validators.WithConfig(cfg.Validators),
	)
	app.fraud = fraudproof.New(app.db,
		fraudproof.WithLogger(app.addLogger(FraudLogger)),
		fraudproof.WithClock(app.clock),
		fraudproof.WithGasSchedule(cfg.Ledger.Gas),
	)

	app.api, err = api.NewServer(api.Services{
		DB:         app.db,
		Ledger:     app.ledger,
		Executor:   app.executor,
		Bridge:     app.bridge,
		Aggregator: app.aggregator,
		Validators: app.registry,
		Consensus:  app.consensus,
		Fraud:      app.fraud,
	}, api.WithLogger(app.addLogger(APILogger)), api.WithConfig(cfg.API))
	if err != nil {
		return fmt.Errorf("api: %w", err)
	}

	app.supervisor = scheduler.New(
		scheduler.WithLogger(app.addLogger(SchedulerLogger)),
		scheduler.WithClock(app.clock),
	)
	for _, task := range app.tasks() {
		if err := app.supervisor.Add(task); err != nil {
			return err
		}
	}
	return nil
}

func (app *App) tasks() []scheduler.Task {
	return []scheduler.Task{
		{
			Name:      "deposits",
			Interval:  app.Config.Bridge.PollInterval,
			Immediate: true,
			Run: func(ctx context.Context) error {
				rst, err := app.watcher.Poll(ctx)
				if err != nil {
					return err
				}
				if rst.New > 0 || rst.Claimed > 0 {
					app.log.Info("polled deposits",
						zap.Int("seen", rst.Seen),
						zap.Int("new", rst.New),
						zap.Int("claimed", rst.Claimed),
					)
				}
				return nil
			},
		},
		{
			Name:     "withdrawals",
			Interval: app.Config.Bridge.SweepInterval,
			Run: func(ctx context.Context) error {
				_, err := app.bridge.ProcessWithdrawals(ctx)
				return err
			},
		},
		{
			Name:     "produce",
			Interval: app.Config.Rollup.BuildInterval,
			Run: func(ctx context.Context) error {
				_, err := app.aggregator.Produce(ctx)
				return err
			},
		},
		{
			Name:     "finalize",
			Interval: app.Config.Rollup.FinalizeInterval,
			Run: func(ctx context.Context) error {
				_, err := app.aggregator.Finalize(ctx)
				return err
			},
		},
	}
}

// Start builds the services and runs them until ctx is canceled or one of
// them fails.
func (app *App) Start(ctx context.Context) error {
	if err := app.initServices(); err != nil {
		var fatal *log.FatalError
		if errors.As(err, &fatal) {
			app.log.Error("failed to start App", zap.Object("fatal", fatal))
		} else {
			app.log.Error("failed to start App", zap.Error(err))
		}
		return err
	}
	group := taskgroup.New(taskgroup.WithContext(ctx))
	services := map[string]func(context.Context) error{
		"consensus": app.consensus.Run,
		"api":       app.api.Run,
	}
	if app.Config.Metrics.Enabled {
		srv := metrics.NewServer(app.Config.Metrics.Listen, app.log)
		services["metrics"] = srv.Run
	}
	if app.Config.Metrics.PushURL != "" {
		pushCfg := metrics.PushConfig{
			URL:      app.Config.Metrics.PushURL,
			Username: app.Config.Metrics.PushUser,
			Password: app.Config.Metrics.PushPassword,
			Headers:  app.Config.Metrics.PushHeaders,
			Period:   app.Config.Metrics.PushPeriod,
			NodeID:   app.Config.Consensus.ID,
			Network:  app.params.Name,
		}
		services["push"] = func(ctx context.Context) error {
			return metrics.Push(ctx, pushCfg, app.clock, app.log)
		}
	}
	for name, run := range services {
		if err := group.Go(func(ctx context.Context) error {
			if err := run(ctx); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			return nil
		}); err != nil {
			return err
		}
	}
	if err := app.supervisor.Start(ctx); err != nil {
		return err
	}
	close(app.started)
	app.log.Info("l2node started",
		zap.String("validator", app.Config.Consensus.ID),
		zap.String("custody", app.custody.String()),
	)

	err := group.Wait()
	if err := app.supervisor.Stop(); err != nil && !errors.Is(err, scheduler.ErrNotStarted) {
		app.log.Warn("failed to stop scheduler", zap.Error(err))
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Cleanup releases the database and the L1 connection.
func (app *App) Cleanup() {
	app.log.Info("app cleanup starting...")
	if app.rpc != nil {
		app.rpc.Close()
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.log.Warn("failed to close state database", zap.Error(err))
		}
	}
	_ = app.root.Sync()
	app.log.Info("app cleanup completed")
}
