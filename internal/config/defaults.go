package config

// Extractor grouping modes.
const (
	GroupBySource = "BySource"
	GroupByType   = "ByType"
)

const (
	defaultWorkDir             = "~/.local/share/assetsync/work"
	defaultOutputDir           = "~/assetsync/output"
	defaultGalleryDir          = "~/assetsync/gallery"
	defaultStateDir            = "~/.local/state/assetsync"
	defaultLogDir              = "~/.local/share/assetsync/logs"
	defaultLogRetentionDays    = 30
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultBaseURL             = "https://img.wcat.colopl.jp/assets/2020/a/"
	defaultIndexType           = "Card"
	defaultUserAgent           = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"
	defaultRequestTimeout      = 60
	defaultRetryAttempts       = 3
	defaultRetryBaseDelayMS    = 500
	defaultRetryMaxDelayMS     = 8000
	defaultExtractorBinary     = "AssetStudioModCLI"
	defaultExtractorGame       = "Normal"
	defaultExtractorExportType = "Convert"
	defaultExtractorTimeout    = 600
	defaultIndexIDPattern      = `card_(?P<id>\d+)_\d+_png$`
	defaultAudioSequence       = 55
	defaultBustTemplate        = "Card_1_bust_card_{id}_1_png"
	defaultBustKeyRegex        = `^Card_1_bust_card_(?P<id>\d{8})_1_png$`
	defaultConcurrencyLimit    = 4
	defaultNotifyTimeout       = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkDir:    defaultWorkDir,
			OutputDir:  defaultOutputDir,
			GalleryDir: defaultGalleryDir,
			StateDir:   defaultStateDir,
			LogDir:     defaultLogDir,
		},
		Remote: Remote{
			BaseURL:          defaultBaseURL,
			IndexType:        defaultIndexType,
			UserAgent:        defaultUserAgent,
			RequestTimeout:   defaultRequestTimeout,
			RetryAttempts:    defaultRetryAttempts,
			RetryBaseDelayMS: defaultRetryBaseDelayMS,
			RetryMaxDelayMS:  defaultRetryMaxDelayMS,
			SkipExisting:     true,
			VerifyMagic:      true,
		},
		Extractor: Extractor{
			Binary:      defaultExtractorBinary,
			Game:        defaultExtractorGame,
			ExportType:  defaultExtractorExportType,
			GroupAssets: GroupBySource,
			ExtraArgs:   []string{"--silent"},
			Timeout:     defaultExtractorTimeout,
		},
		Index: Index{
			IDPattern: defaultIndexIDPattern,
		},
		Targets: Targets{
			Categories:    []string{"image", "audio", "model"},
			Image:         DefaultImageTemplates(),
			Audio:         []string{"Sound_Voice_Player_{id}_{seq}_wav"},
			Model:         []string{"Character_Prefabs_Player_ply_{id}_prefab"},
			AudioSequence: defaultAudioSequence,
		},
		Bust: Bust{
			Template:     defaultBustTemplate,
			KeyRegex:     defaultBustKeyRegex,
			TypeAttempts: DefaultTypeAttempts(),
		},
		Workflow: Workflow{
			ConcurrencyLimit: defaultConcurrencyLimit,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
		},
	}
}

// DefaultImageTemplates lists the card artwork bundles published per entity.
func DefaultImageTemplates() []string {
	return []string{
		"Card_0_icon_card_{id}_0_png",
		"Card_1_bust_card_{id}_1_png",
		"Card_2_full_card_{id}_2_png",
		"Card_3_evol_card_{id}_3_png",
	}
}

// DefaultTypeAttempts is the ordered list of --types filters tried in bust mode.
// Each entry is a comma-separated set of type filters; an empty entry exports every type.
func DefaultTypeAttempts() []string {
	return []string{
		"Texture2D,Sprite:Both",
		"Texture2D,Sprite:Both,SpriteAtlas",
		"",
	}
}
