package h5mobaku

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/ryuzot/h5mobaku/internal/matrix"
)

// EnvPrefix is the prefix viper binds store-related environment variables
// under, following the teacher's cmd/influxd viper.SetEnvPrefix convention.
const EnvPrefix = "H5MOBAKU"

// CreateConfig collects the parameters needed to create a new store,
// following the teacher's preference for a typed config struct over a
// generic map.
type CreateConfig struct {
	Geometry      matrix.Geometry
	StartDatetime string
	Cache         matrix.CacheOptions
}

// DefaultCreateConfig returns a CreateConfig with the standard chunk
// geometry and cache sizing.
func DefaultCreateConfig() CreateConfig {
	return CreateConfig{
		Geometry: matrix.DefaultGeometry,
		Cache:    matrix.CacheOptions{},
	}
}

// ResolveStorePath implements §6's "HDF5_FILE_PATH may be read from
// environment or from a .env file, first match wins": the OS environment is
// checked before the .env file, matching the reference implementation's
// explicit precedence rather than viper's default merge order. flagValue,
// if non-empty, takes priority over both (an explicit CLI flag always wins).
func ResolveStorePath(flagValue, envFilePath string) string {
	if flagValue != "" {
		return flagValue
	}
	if v := os.Getenv("HDF5_FILE_PATH"); v != "" {
		return v
	}
	if envFilePath == "" {
		envFilePath = ".env"
	}
	if v, ok := readEnvFile(envFilePath, "HDF5_FILE_PATH"); ok {
		return v
	}
	return ""
}

// readEnvFile scans a KEY=VALUE file for key, the same flat format §6
// documents for the .env fallback. It returns (v, false) on any read error
// or if key is absent, rather than surfacing the error: the .env file is an
// optional fallback, not a required config source.
func readEnvFile(path, key string) (string, bool) {
	f, err := os.Open(path)
	if err != nil {
		return "", false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		if strings.TrimSpace(parts[0]) == key {
			return strings.TrimSpace(parts[1]), true
		}
	}
	return "", false
}

// BindCacheEnv wires H5MOBAKU_CACHE_SLOTS and H5MOBAKU_CACHE_BYTES as
// optional overrides of a CacheOptions value, using viper.BindEnv the way
// the teacher's cmd/influxd init() wires each flag's environment override.
func BindCacheEnv(opts matrix.CacheOptions) matrix.CacheOptions {
	viper.SetEnvPrefix(EnvPrefix)
	viper.BindEnv("CACHE_SLOTS")
	viper.BindEnv("CACHE_BYTES")

	if s := viper.GetString("CACHE_SLOTS"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			opts.MaxSlots = n
		}
	}
	if s := viper.GetString("CACHE_BYTES"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			opts.MaxBytes = n
		}
	}
	return opts
}
