package config

// DefaultOverlapFraction is the share of a window repeated at the start of the next one.
const DefaultOverlapFraction = 0.1

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.IndexDir == "" {
		cfg.Storage.IndexDir = "/usr/local/var/kikoe/data/index"
	}
	if cfg.Transcripts.Directory == "" {
		cfg.Transcripts.Directory = "./transcripts"
	}
	if cfg.Transcripts.Extensions == nil {
		cfg.Transcripts.Extensions = []string{".txt"}
	}
	if cfg.Chunking.WindowSize == 0 {
		cfg.Chunking.WindowSize = 2000
	}
	if cfg.Chunking.OverlapFraction == nil {
		f := DefaultOverlapFraction
		cfg.Chunking.OverlapFraction = &f
	}
	if cfg.Chunking.Workers == 0 {
		cfg.Chunking.Workers = 1
	}
	if cfg.Chunking.LocalBatchSize == 0 {
		cfg.Chunking.LocalBatchSize = 32
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = ProviderRemote
	}
	local := &cfg.Embedding.Local
	if local.Encoder == "" {
		local.Encoder = "onnx"
	}
	if local.ModelPath == "" {
		local.ModelPath = "/usr/local/var/kikoe/data/models/all-MiniLM-L6-v2.onnx"
	}
	if local.Dimensions == 0 {
		local.Dimensions = 384
	}
	if local.MaxTokens == 0 {
		local.MaxTokens = 256
	}
	if local.CacheSize == 0 {
		local.CacheSize = 10000
	}
	remote := &cfg.Embedding.Remote
	if remote.BaseURL == "" {
		remote.BaseURL = "https://api.openai.com/v1"
	}
	if remote.APIKeyEnv == "" {
		remote.APIKeyEnv = "OPENAI_API_KEY"
	}
	if remote.Model == "" {
		remote.Model = "text-embedding-3-small"
	}
	if remote.Dimensions == 0 {
		remote.Dimensions = 1536
	}
	if remote.TimeoutSecs == 0 {
		remote.TimeoutSecs = 60
	}
	if remote.RequestsPerSecond == 0 {
		remote.RequestsPerSecond = 5
	}
	if remote.Burst == 0 {
		remote.Burst = 1
	}
	if remote.MaxAttempts == 0 {
		remote.MaxAttempts = 5
	}
	if remote.InitialBackoffMs == 0 {
		remote.InitialBackoffMs = 1000
	}
	if cfg.Search.DefaultTopK == 0 {
		cfg.Search.DefaultTopK = 10
	}
	if cfg.Search.MaxTopK == 0 {
		cfg.Search.MaxTopK = 100
	}
}
