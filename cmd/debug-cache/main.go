package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/EasterCompany/dex-sylvr-service/cache"
	"github.com/EasterCompany/dex-sylvr-service/config"
	"github.com/spf13/cobra"
)

var configDir string

var rootCmd = &cobra.Command{
	Use:   "debug-cache",
	Short: "Dump every dex-sylvr-service key held in Redis",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadAllConfigs(configDir)
		if err != nil {
			return fmt.Errorf("fatal error loading config: %w", err)
		}

		debugCache, err := cache.New(cfg.Cache.Local)
		if err != nil {
			return fmt.Errorf("failed to initialize local cache: %w", err)
		}
		if debugCache == nil {
			return fmt.Errorf("no local cache configured in %s", config.CacheFile)
		}
		defer func() { _ = debugCache.Close() }()

		keys, err := debugCache.Keys()
		if err != nil {
			return fmt.Errorf("failed to get keys: %w", err)
		}

		for _, key := range keys {
			fmt.Printf("\n--- Key: %s ---\n", key)
			keyType, err := debugCache.Type(key)
			if err != nil {
				log.Printf("Failed to get type for key %s: %v", key, err)
				continue
			}
			fmt.Printf("Type: %s\n", keyType)
			if ttl, err := debugCache.TTL(key); err == nil && ttl > 0 {
				fmt.Printf("TTL: %s\n", ttl)
			}

			switch {
			case strings.Contains(key, ":audio:"):
				data, err := debugCache.GetAudio(strings.SplitN(key, ":audio:", 2)[1])
				if err != nil {
					log.Printf("Failed to get audio for key %s: %v", key, err)
					continue
				}
				fmt.Printf("Audio: %d bytes\n", len(data))
			case strings.Contains(key, ":session:"):
				id := strings.SplitN(key, ":session:", 2)[1]
				state, err := debugCache.LoadSessionState(id)
				if err != nil {
					log.Printf("Failed to load session %s: %v", id, err)
					continue
				}
				pretty, _ := json.MarshalIndent(state, "", "  ")
				fmt.Printf("State:\n%s\n", pretty)
			case keyType == "list":
				vals, err := debugCache.GetList(strings.TrimPrefix(key, cache.KeyPrefix))
				if err != nil {
					log.Printf("Failed to get list value for key %s: %v", key, err)
					continue
				}
				fmt.Printf("Values:\n")
				for _, val := range vals {
					fmt.Printf("  - %s\n", val)
				}
			default:
				fmt.Println("Value: (unsupported type for printing)")
			}
		}
		return nil
	},
}

func main() {
	rootCmd.Flags().StringVar(&configDir, "config-dir", "", "config directory")
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
