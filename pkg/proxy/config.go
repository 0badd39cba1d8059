package proxy

import (
	"fmt"
	"os"
	"strconv"

	"github.com/echonote-ai/echonote/pkg/stt"
)

// Config holds everything the proxy needs: where to listen, which vendor to
// use when the client does not say, and per-vendor credentials and base URLs.
type Config struct {
	Port            int
	DefaultProvider stt.Provider
	APIKeys         map[stt.Provider]string
	BaseURLs        map[stt.Provider]string
}

// ConfigFromEnv reads PORT, DEFAULT_STT_PROVIDER, and the per-vendor
// *_API_KEY variables.
func ConfigFromEnv() (Config, error) {
	cfg := Config{
		Port:            8787,
		DefaultProvider: stt.ProviderDeepgram,
		APIKeys:         make(map[stt.Provider]string),
		BaseURLs:        make(map[stt.Provider]string),
	}

	if port := os.Getenv("PORT"); port != "" {
		n, err := strconv.Atoi(port)
		if err != nil || n <= 0 || n > 65535 {
			return Config{}, fmt.Errorf("invalid PORT %q", port)
		}
		cfg.Port = n
	}

	if def := os.Getenv("DEFAULT_STT_PROVIDER"); def != "" {
		p, ok := stt.ParseProvider(def)
		if !ok {
			return Config{}, fmt.Errorf("unknown DEFAULT_STT_PROVIDER %q", def)
		}
		cfg.DefaultProvider = p
	}

	for _, p := range stt.AllProviders {
		if key := os.Getenv(p.EnvKeyName()); key != "" {
			cfg.APIKeys[p] = key
		}
	}

	return cfg, nil
}

// ResolveProvider applies the selection order: explicit query param,
// configured default, Deepgram.
func (c Config) ResolveProvider(queryProvider string) (stt.Provider, error) {
	if queryProvider != "" {
		p, ok := stt.ParseProvider(queryProvider)
		if !ok {
			return "", fmt.Errorf("unknown provider %q", queryProvider)
		}
		return p, nil
	}
	if c.DefaultProvider != "" {
		return c.DefaultProvider, nil
	}
	return stt.ProviderDeepgram, nil
}

func (c Config) apiKey(p stt.Provider) (string, error) {
	key, ok := c.APIKeys[p]
	if !ok || key == "" {
		return "", fmt.Errorf("no api key configured for %s (set %s)", p, p.EnvKeyName())
	}
	return key, nil
}

func (c Config) baseURL(p stt.Provider) string {
	if base, ok := c.BaseURLs[p]; ok {
		return base
	}
	return ""
}
