package config

import (
	"strconv"
	"strings"

	"github.com/spaghettifunk/decimator/engine/core"
)

const envPrefix = "DECIMATOR_"

// EnvLookup matches os.LookupEnv.
type EnvLookup func(key string) (string, bool)

// ApplyEnv overrides c with every DECIMATOR_* variable that is set.
func (c *ApplicationConfig) ApplyEnv(lookup EnvLookup) error {
	get := func(name string) (string, bool) {
		v, ok := lookup(envPrefix + name)
		if !ok {
			return "", false
		}
		v = strings.TrimSpace(v)
		return v, v != ""
	}

	strs := map[string]*string{
		"INPUT_DIR":         &c.InputDir,
		"OUTPUT_DIR":        &c.OutputDir,
		"ENGINE":            &c.Engine,
		"OUTPUT_FORMAT":     &c.OutputFormat,
		"LOG_LEVEL":         &c.LogLevel,
		"UPLOAD_ENDPOINT":   &c.Upload.Endpoint,
		"UPLOAD_REGION":     &c.Upload.Region,
		"UPLOAD_ACCESS_KEY": &c.Upload.AccessKey,
		"UPLOAD_SECRET_KEY": &c.Upload.SecretKey,
		"UPLOAD_BUCKET":     &c.Upload.Bucket,
		"UPLOAD_PREFIX":     &c.Upload.Prefix,
	}
	for name, dst := range strs {
		if v, ok := get(name); ok {
			*dst = v
		}
	}

	bools := map[string]*bool{
		"CONTINUE_ON_ERROR": &c.ContinueOnError,
		"WATCH":             &c.Watch,
		"UPLOAD_ENABLED":    &c.Upload.Enabled,
		"UPLOAD_USE_SSL":    &c.Upload.UseSSL,
	}
	for name, dst := range bools {
		if v, ok := get(name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return core.Configurationf("%s%s: %v", envPrefix, name, err)
			}
			*dst = b
		}
	}

	ints := map[string]*int{
		"WORKERS":           &c.Workers,
		"WATCH_DEBOUNCE_MS": &c.WatchDebounceMS,
	}
	for name, dst := range ints {
		if v, ok := get(name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return core.Configurationf("%s%s: %v", envPrefix, name, err)
			}
			*dst = n
		}
	}

	if v, ok := get("RATIO"); ok {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return core.Configurationf("%sRATIO: %v", envPrefix, err)
		}
		c.DecimateRatio = r
	}
	if v, ok := get("EXTENSIONS"); ok {
		c.Extensions = splitList(v)
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
