package config

const (
	defaultConfigPath       = "~/.config/featureflow/config.toml"
	defaultStateDir         = "~/.local/share/featureflow/state"
	defaultArtifactsDir     = "~/.local/share/featureflow/artifacts"
	defaultLogDir           = "~/.local/share/featureflow/logs"
	defaultStoreBackend     = StoreSQLite
	defaultConcurrency      = 4
	defaultFeatureTimeout   = 600
	defaultGeneratorKind    = GeneratorScaffold
	defaultGeneratorTimeout = 300
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
)

// Store backends.
const (
	StoreSQLite = "sqlite"
	StoreJSON   = "json"
)

// Generator kinds.
const (
	GeneratorScaffold = "scaffold"
	GeneratorCommand  = "command"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir:     defaultStateDir,
			ArtifactsDir: defaultArtifactsDir,
			LogDir:       defaultLogDir,
		},
		Store: Store{
			Backend: defaultStoreBackend,
		},
		Orchestrator: Orchestrator{
			ConcurrencyLimit: defaultConcurrency,
			FeatureTimeout:   defaultFeatureTimeout,
		},
		Generator: Generator{
			Kind:    defaultGeneratorKind,
			Timeout: defaultGeneratorTimeout,
		},
		Gate: Gate{
			RequireStageKind: true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
