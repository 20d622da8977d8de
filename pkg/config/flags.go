package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag is the single source of truth for a CLI flag.
// Commands reference flags by registry key rather than hard-coding names,
// shorthands, defaults, and descriptions inline.
type Flag struct {
	// Name is the long flag name (e.g. "base-url").
	Name string

	// Shorthand is the one-letter short flag. Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to (e.g. "server.base_url").
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet is a mapping of flag names to Flag structs that hold their name,
// shorthand, viper key, etc.
type FlagSet map[string]Flag

// Flag registry keys.
const (
	FlagBaseURL        = "base-url"
	FlagToken          = "token"
	FlagFeedPath       = "feed-path"
	FlagGenerationPath = "generation-path"
	FlagDisplayWindow  = "display-window"
	FlagClassifyWindow = "classify-window"
	FlagDedupe         = "dedupe"
	FlagEngines        = "engines"
	FlagLogJSON        = "log-json"
)

// Flags is the registry shared by every pulse command.
var Flags = FlagSet{
	FlagBaseURL:        {Name: "base-url", Shorthand: "u", ViperKey: "server.base_url", Description: "Pulse server base URL"},
	FlagToken:          {Name: "token", ViperKey: "server.token", Description: "Bearer token sent with every request"},
	FlagFeedPath:       {Name: "feed-path", ViperKey: "feed.path", Description: "Path of the live event feed"},
	FlagGenerationPath: {Name: "generation-path", ViperKey: "generation.path", Description: "Path of the generation endpoint"},
	FlagDisplayWindow:  {Name: "display-window", ViperKey: "feed.display_window", Description: "Number of recent events shown"},
	FlagClassifyWindow: {Name: "classify-window", ViperKey: "feed.classify_window", Description: "Number of recent events used for engine activity"},
	FlagDedupe:         {Name: "dedupe", ViperKey: "feed.dedupe_ids", Description: "Drop events whose id was already received"},
	FlagEngines:        {Name: "engines", Shorthand: "e", ViperKey: "feed.engines_file", Description: "TOML engine table (reloaded on change)"},
	FlagLogJSON:        {Name: "log-json", ViperKey: "log.json", Description: "Emit logs as JSON"},
}

// AddStringFlag registers a string flag on cmd from the given FlagSet.
// The flag's name, shorthand, default, and description all come from the
// FlagSet entry so they cannot drift across commands.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaultString(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().StringVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().StringVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddUintFlag registers a uint flag on cmd from the given FlagSet.
func AddUintFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *uint) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaults().GetUint(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().UintVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().UintVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddBoolFlag registers a bool flag on cmd from the given FlagSet.
func AddBoolFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *bool) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaults().GetBool(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().BoolVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().BoolVar(target, def.Name, defaultVal, def.Description)
	}
}

// BindRegisteredFlags binds already-registered flags to viper using definitions
// from the given FlagSet. Call this in PreRunE after InitViper to connect flags
// to the viper precedence chain (flag > env > config file > default).
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, registryKeys []string) {
	for _, registryKey := range registryKeys {
		def, ok := fs[registryKey]
		if !ok {
			continue
		}

		f := cmd.Flags().Lookup(def.Name)
		if f == nil {
			f = cmd.InheritedFlags().Lookup(def.Name)
		}
		if f == nil {
			continue
		}

		_ = v.BindPFlag(def.ViperKey, f)
	}
}

func defaults() *viper.Viper {
	v := viper.New()
	setViperDefaults(v)
	return v
}

func defaultString(viperKey string) string {
	return defaults().GetString(viperKey)
}
