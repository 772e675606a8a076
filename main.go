package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/hannes/name-predictor/config"
	"github.com/hannes/name-predictor/predictor"
	"github.com/hannes/name-predictor/store"
	"github.com/joho/godotenv"
)

const TRUE = "true"

const usage = `usage: name-predictor [flags] <model> <input> <output>

  model    Path for the trained ONNX model
  input    Path for the input in tsv
  output   Path for the output in tsv

flags:
`

// errUsage marks command-line mistakes that exit with status 2
var errUsage = errors.New("usage error")

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// cliArgs holds the parsed command line
type cliArgs struct {
	positional []string
	configPath string
	set        map[string]bool

	verbosity     bool
	probabilities bool
	backend       string
	tokenizer     string
	inputName     string
	outputName    string
	batchSize     int
	threshold     float64
	truncating    string
}

// parseArgs accepts flags before, between and after the positional arguments
func parseArgs(args []string, stderr io.Writer) (*cliArgs, error) {
	a := &cliArgs{set: make(map[string]bool)}

	fs := flag.NewFlagSet("name-predictor", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}
	fs.BoolVar(&a.verbosity, "verbosity", false, "Print messages")
	fs.BoolVar(&a.probabilities, "probabilities", false, "Add probabilities to output file")
	fs.StringVar(&a.configPath, "config", "", "Path to JSON config file")
	fs.StringVar(&a.backend, "backend", "", "Model backend")
	fs.StringVar(&a.tokenizer, "tokenizer", "", "Path to tokenizer.json replacing the character encoder")
	fs.StringVar(&a.inputName, "input-name", "", "Model input name (discovered when empty)")
	fs.StringVar(&a.outputName, "output-name", "", "Model output name (discovered when empty)")
	fs.IntVar(&a.batchSize, "batch-size", 0, "Rows per inference call")
	fs.Float64Var(&a.threshold, "threshold", 0, "Scores strictly above this are person names")
	fs.StringVar(&a.truncating, "truncating", "", "Truncation side for long strings (pre or post)")

	for {
		if err := fs.Parse(args); err != nil {
			return nil, fmt.Errorf("%w: %w", errUsage, err)
		}
		args = fs.Args()
		if len(args) == 0 {
			break
		}
		a.positional = append(a.positional, args[0])
		args = args[1:]
	}
	if len(a.positional) > 3 {
		fs.Usage()
		return nil, fmt.Errorf("%w: unexpected arguments %v", errUsage, a.positional[3:])
	}

	fs.Visit(func(f *flag.Flag) { a.set[f.Name] = true })
	return a, nil
}

// applyFlags overrides the configuration with flags given on the command line
func applyFlags(a *cliArgs, cfg *config.Config) {
	if len(a.positional) > 0 {
		cfg.Model.Path = a.positional[0]
	}
	if len(a.positional) > 1 {
		cfg.InputPath = a.positional[1]
	}
	if len(a.positional) > 2 {
		cfg.OutputPath = a.positional[2]
	}

	if a.set["verbosity"] {
		cfg.Logging.LogVerbose = a.verbosity
	}
	if a.set["probabilities"] {
		cfg.Predict.Probabilities = a.probabilities
	}
	if a.set["backend"] {
		cfg.Model.Backend = a.backend
	}
	if a.set["tokenizer"] {
		cfg.Model.TokenizerPath = a.tokenizer
	}
	if a.set["input-name"] {
		cfg.Model.InputName = a.inputName
	}
	if a.set["output-name"] {
		cfg.Model.OutputName = a.outputName
	}
	if a.set["batch-size"] {
		cfg.Predict.BatchSize = a.batchSize
	}
	if a.set["threshold"] {
		cfg.Predict.Threshold = a.threshold
	}
	if a.set["truncating"] {
		cfg.Predict.Truncating = a.truncating
	}
}

// run executes one prediction run and returns the process exit status
func run(args []string, stdout, stderr io.Writer) int {
	// Load .env file if it exists
	envErr := godotenv.Load()

	a, err := parseArgs(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	// Load configuration
	cfg := config.DefaultConfig()
	if a.configPath != "" {
		if err := config.LoadFromFile(a.configPath, cfg); err != nil {
			fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
			return 1
		}
	}

	// Override configuration with environment variables, then flags
	loadConfigFromEnv(cfg)
	applyFlags(a, cfg)

	// No model, input or output file is opened before the model path is known
	if cfg.Model.Path == "" {
		fmt.Fprintln(stdout, "Need to specify model_path")
		return 1
	}
	if cfg.InputPath == "" || cfg.OutputPath == "" {
		fmt.Fprint(stderr, usage)
		fmt.Fprintln(stderr, "error: the following arguments are required: input, output")
		return 2
	}

	if err := cfg.ValidateConfig(); err != nil {
		fmt.Fprintf(stderr, "Invalid configuration: %v\n", err)
		return 1
	}

	if cfg.Logging.GetLogVerbose() {
		log.SetOutput(stderr)
	} else {
		log.SetOutput(io.Discard)
	}
	if envErr == nil {
		log.Println("Loaded .env file from current directory")
	}

	fmt.Fprintln(stdout, "Welcome to Name Predictor")

	flush := initSentry(cfg.Sentry)
	defer flush()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := predictRun(ctx, cfg); err != nil {
		sentry.CaptureException(err)
		log.Printf("Prediction failed: %v", err)
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	fmt.Fprintln(stdout, "Thanks for using Name Predictor")
	return 0
}

// initSentry enables error reporting when a DSN is configured and returns the flush function
func initSentry(cfg config.SentryConfig) func() {
	if cfg.DSN == "" {
		return func() {}
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.DSN,
		Environment: cfg.Environment,
	})
	if err != nil {
		log.Printf("Warning: failed to initialize Sentry: %v", err)
		return func() {}
	}
	return func() { sentry.Flush(2 * time.Second) }
}

// newEncoder picks the tokenizer encoder when configured, the character encoder otherwise
func newEncoder(cfg *config.Config) (predictor.Encoder, error) {
	if cfg.Model.TokenizerPath != "" {
		return newTokenizerEncoder(cfg.Model.TokenizerPath, cfg.Predict.SequenceLength, cfg.Predict.Truncating)
	}
	return predictor.NewCharEncoder(cfg.Predict.SequenceLength, cfg.Predict.Truncating), nil
}

// openRunStore connects to the database when run persistence is enabled
func openRunStore(ctx context.Context, cfg config.DatabaseConfig) (store.RunStore, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	s, err := store.NewPostgresRunStore(ctx, store.DatabaseConfig{
		Host:         cfg.Host,
		Port:         cfg.Port,
		Database:     cfg.Database,
		Username:     cfg.Username,
		Password:     cfg.Password,
		SSLMode:      cfg.SSLMode,
		MaxOpenConns: cfg.MaxOpenConns,
		MaxIdleConns: cfg.MaxIdleConns,
		MaxLifetime:  time.Duration(cfg.MaxLifetime) * time.Second,
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// predictRun loads the model, classifies the input file and records the run
func predictRun(ctx context.Context, cfg *config.Config) error {
	encoder, err := newEncoder(cfg)
	if err != nil {
		return err
	}

	log.Println("Loading Model...")
	model, err := predictor.NewModel(cfg.Model.Backend, predictor.ModelOptions{
		Path:              cfg.Model.Path,
		InputName:         cfg.Model.InputName,
		OutputName:        cfg.Model.OutputName,
		SharedLibraryPath: cfg.Model.SharedLibraryPath,
		SequenceLength:    cfg.Predict.SequenceLength,
	})
	if err != nil {
		_ = encoder.Close()
		return fmt.Errorf("failed to load model: %w", err)
	}
	log.Println("Model loaded!")

	threshold := cfg.Predict.Threshold
	p, err := predictor.New(model, encoder, predictor.Options{
		BatchSize: cfg.Predict.BatchSize,
		Threshold: &threshold,
		Verbose:   cfg.Logging.GetLogVerbose(),
	})
	if err != nil {
		_ = encoder.Close()
		_ = model.Close()
		return err
	}
	defer func() {
		if err := p.Close(); err != nil {
			log.Printf("Warning: failed to release model: %v", err)
		}
	}()

	runStore, err := openRunStore(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open run store: %w", err)
	}
	if runStore != nil {
		defer func() {
			if err := runStore.Close(); err != nil {
				log.Printf("Warning: failed to close run store: %v", err)
			}
		}()
	}

	return classifyFile(ctx, p, runStore, cfg)
}

// classifyFile runs the predictor over the configured files and persists the run when a store is given
func classifyFile(ctx context.Context, p *predictor.NamePredictor, runStore store.RunStore, cfg *config.Config) error {
	run := store.NewRun(cfg.Model.Path, cfg.InputPath, cfg.OutputPath)
	log.Printf("Starting run %s", run.ID)

	if runStore != nil {
		if err := runStore.StoreRun(ctx, run); err != nil {
			return fmt.Errorf("failed to store run: %w", err)
		}
	}

	predictions, err := p.PredictFile(ctx, cfg.InputPath, cfg.OutputPath, cfg.Predict.Probabilities)
	if err != nil {
		return err
	}
	run.Finish(predictions)
	log.Printf("Run %s classified %d rows, %d person names", run.ID, run.Rows, run.PersonNames)

	if runStore != nil {
		if err := runStore.StorePredictions(ctx, run.ID, predictions); err != nil {
			return fmt.Errorf("failed to store predictions: %w", err)
		}
		if err := runStore.StoreRun(ctx, run); err != nil {
			return fmt.Errorf("failed to store run: %w", err)
		}
		if hours := cfg.Database.CleanupHours; hours > 0 {
			removed, err := runStore.CleanupOldRuns(ctx, time.Duration(hours)*time.Hour)
			if err != nil {
				return fmt.Errorf("failed to clean up old runs: %w", err)
			}
			if removed > 0 {
				log.Printf("Removed %d runs older than %d hours", removed, hours)
			}
		}
	}
	return nil
}

// loadConfigFromEnv loads configuration from environment variables
func loadConfigFromEnv(cfg *config.Config) {
	loadModelConfig(cfg)
	loadPredictConfig(cfg)
	loadDatabaseConfig(cfg)
	loadLoggingConfig(cfg)
	loadSentryConfig(cfg)
}

// loadModelConfig loads model configuration from environment variables
func loadModelConfig(cfg *config.Config) {
	if modelPath := os.Getenv("MODEL_PATH"); modelPath != "" {
		cfg.Model.Path = modelPath
	}

	if backend := os.Getenv("MODEL_BACKEND"); backend != "" {
		cfg.Model.Backend = backend
	}

	if inputName := os.Getenv("MODEL_INPUT_NAME"); inputName != "" {
		cfg.Model.InputName = inputName
	}

	if outputName := os.Getenv("MODEL_OUTPUT_NAME"); outputName != "" {
		cfg.Model.OutputName = outputName
	}

	if libPath := os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH"); libPath != "" {
		cfg.Model.SharedLibraryPath = libPath
	}

	if tokenizerPath := os.Getenv("TOKENIZER_PATH"); tokenizerPath != "" {
		cfg.Model.TokenizerPath = tokenizerPath
	}
}

// loadPredictConfig loads prediction configuration from environment variables
func loadPredictConfig(cfg *config.Config) {
	if batchSize := os.Getenv("PREDICT_BATCH_SIZE"); batchSize != "" {
		if n, err := strconv.Atoi(batchSize); err == nil {
			cfg.Predict.BatchSize = n
		}
	}

	if threshold := os.Getenv("PREDICT_THRESHOLD"); threshold != "" {
		if f, err := strconv.ParseFloat(threshold, 64); err == nil {
			cfg.Predict.Threshold = f
		}
	}

	if truncating := os.Getenv("PREDICT_TRUNCATING"); truncating != "" {
		cfg.Predict.Truncating = truncating
	}

	if probabilities := os.Getenv("PREDICT_PROBABILITIES"); probabilities != "" {
		cfg.Predict.Probabilities = probabilities == TRUE
	}
}

// loadDatabaseConfig loads database configuration from environment variables
func loadDatabaseConfig(cfg *config.Config) {
	if dbEnabled := os.Getenv("DB_ENABLED"); dbEnabled != "" {
		cfg.Database.Enabled = dbEnabled == TRUE
	}

	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.Database.Host = host
	}

	if port := os.Getenv("DB_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Database.Port = p
		}
	}

	if dbName := os.Getenv("DB_NAME"); dbName != "" {
		cfg.Database.Database = dbName
	}

	if user := os.Getenv("DB_USER"); user != "" {
		cfg.Database.Username = user
	}

	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.Database.Password = password
	}

	if sslMode := os.Getenv("DB_SSL_MODE"); sslMode != "" {
		cfg.Database.SSLMode = sslMode
	}

	if cleanup := os.Getenv("DB_CLEANUP_HOURS"); cleanup != "" {
		if hours, err := strconv.Atoi(cleanup); err == nil {
			cfg.Database.CleanupHours = hours
		}
	}
}

// loadLoggingConfig loads logging configuration from environment variables
func loadLoggingConfig(cfg *config.Config) {
	if logVerbose := os.Getenv("LOG_VERBOSE"); logVerbose != "" {
		cfg.Logging.LogVerbose = logVerbose == TRUE
	}
}

// loadSentryConfig loads error reporting configuration from environment variables
func loadSentryConfig(cfg *config.Config) {
	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		cfg.Sentry.DSN = dsn
	}

	if environment := os.Getenv("SENTRY_ENVIRONMENT"); environment != "" {
		cfg.Sentry.Environment = environment
	}
}
