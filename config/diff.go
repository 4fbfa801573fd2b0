package config

import (
	"os"
	"reflect"
	"strings"
)

// secretEnv maps each credential field's json key to the variable it is read from.
var secretEnv = map[string]string{
	"deepseek_api_key": "DEEPSEEK_API_KEY",
	"openai_api_key":   "OPENAI_API_KEY",
	"tavily_api_key":   "TAVILY_API_KEY",
	"exa_api_key":      "EXA_API_KEY",
}

// runtimeKeys are read per run by the command line, not baked into a built
// engine, so changing them never needs a rebuild.
var runtimeKeys = map[string]bool{
	"data_dir":           true,
	"db_path":            true,
	"available_funds":    true,
	"debug":              true,
	"log_level":          true,
	"log_format":         true,
	"eino_debug_enabled": true,
	"eino_debug_port":    true,
}

// Changed lists the json keys whose values differ between a and b, in field order.
func Changed(a, b Config) []string {
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	t := va.Type()

	var keys []string
	for i := 0; i < t.NumField(); i++ {
		if reflect.DeepEqual(va.Field(i).Interface(), vb.Field(i).Interface()) {
			continue
		}
		keys = append(keys, jsonKey(t.Field(i)))
	}
	return keys
}

// RebuildNeeded reports whether any changed key feeds the chat model, the
// providers or the compiled graph.
func RebuildNeeded(changed []string) bool {
	for _, key := range changed {
		if !runtimeKeys[key] {
			return true
		}
	}
	return false
}

func jsonKey(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "" || name == "-" {
		return f.Name
	}
	return name
}

// applySecretsFromEnv lets credentials from the environment override the file.
func (c *Config) applySecretsFromEnv() {
	for key, env := range secretEnv {
		if val := os.Getenv(env); val != "" {
			*c.secret(key) = val
		}
	}
}

// persisted is the copy written to config.json: credentials that come from
// the environment stay out of the file.
func (c Config) persisted() Config {
	for key, env := range secretEnv {
		field := c.secret(key)
		if *field != "" && *field == os.Getenv(env) {
			*field = ""
		}
	}
	return c
}

func (c *Config) secret(key string) *string {
	switch key {
	case "deepseek_api_key":
		return &c.DeepSeekAPIKey
	case "openai_api_key":
		return &c.OpenAIAPIKey
	case "tavily_api_key":
		return &c.TavilyAPIKey
	default:
		return &c.ExaAPIKey
	}
}
