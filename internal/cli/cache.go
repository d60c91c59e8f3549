package cli

import (
	"fmt"
	"os"

	"github.com/ppiankov/decisio/internal/cache"
	"github.com/spf13/cobra"
)

var cacheNamespace string

// cacheCmd represents the cache command
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the search and page cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove cached search results and pages",
	Long: `Clear removes the on-disk cache, or one namespace of it.

Example:
  decisio cache clear
  decisio cache clear --namespace search`,
	RunE: func(cmd *cobra.Command, args []string) error {
		disk, a, err := diskCache()
		if err != nil {
			return err
		}

		switch cacheNamespace {
		case "":
			err = disk.Clear()
		case cache.NamespaceSearch, cache.NamespacePage:
			err = disk.ClearNamespace(cacheNamespace)
		default:
			return fmt.Errorf("unknown namespace %q (want %s or %s)", cacheNamespace, cache.NamespaceSearch, cache.NamespacePage)
		}
		if err != nil {
			return fmt.Errorf("clear cache: %w", err)
		}
		a.out.Success("Cleared %s", a.config.Cache.Dir)
		return nil
	},
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove expired cache entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		disk, a, err := diskCache()
		if err != nil {
			return err
		}
		removed, err := disk.Prune()
		if err != nil {
			return fmt.Errorf("prune cache: %w", err)
		}
		a.out.Success("Removed %d expired entries from %s", removed, a.config.Cache.Dir)
		return nil
	},
}

// diskCache opens the configured cache directory without touching the store
func diskCache() (*cache.DiskCache, *app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if cfg.Cache.Dir == "" {
		return nil, nil, fmt.Errorf("no cache directory configured")
	}
	return cache.NewDiskCache(cfg.Cache.Dir, cfg.Cache.TTL), &app{config: cfg, out: newPrinter(os.Stderr)}, nil
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cachePruneCmd)

	cacheClearCmd.Flags().StringVar(&cacheNamespace, "namespace", "", "only clear this namespace (search or page)")
}
