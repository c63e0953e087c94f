package conf

// Build-time metadata, overridden via -ldflags "-X".
var (
	APP_NAME  = "tollfree"
	APP_DESC  = "local gateway for free-tier LLM endpoints"
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	Author    = "unknown"
	Repo      = "https://github.com/bestruirui/tollfree"
)
