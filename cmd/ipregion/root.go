package main

import (
	"github.com/spf13/cobra"

	"ipregion/internal/config"
	"ipregion/internal/xdb"
)

// cli：命令共享的配置；环境变量给出默认值，全局参数覆盖
type cli struct {
	cfg       config.Config
	algorithm string
}

func newCLI(cfg config.Config) *cobra.Command {
	c := &cli{cfg: cfg, algorithm: cfg.Algorithm.String()}
	root := &cobra.Command{
		Use:          "ipregion",
		Short:        "Offline IPv4 to region lookup against an ip2region database",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, _ []string) {
			_ = cmd.Help()
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&c.cfg.DBPath, "db", cfg.DBPath, "path of the ip2region database file")
	pf.StringVar(&c.algorithm, "algorithm", c.algorithm, "search algorithm: vector, binary or memory")
	pf.BoolVar(&c.cfg.Cache.HeaderCache, "header-cache", cfg.Cache.HeaderCache, "preload the 8 byte super header")
	pf.BoolVar(&c.cfg.Cache.VectorIndexCache, "vector-cache", cfg.Cache.VectorIndexCache, "preload the 256x256 vector index")
	pf.BoolVar(&c.cfg.Cache.TotalCache, "total-cache", cfg.Cache.TotalCache, "load the whole database into memory")

	root.AddCommand(c.newSearchCmd())
	root.AddCommand(c.newBenchCmd())
	root.AddCommand(c.newVerifyCmd())
	root.AddCommand(c.newInfoCmd())
	root.AddCommand(newVersionCmd())
	return root
}

// resolve 把 --algorithm 合入配置
func (c *cli) resolve() (config.Config, error) {
	a, err := xdb.ParseAlgorithm(c.algorithm)
	if err != nil {
		return config.Config{}, err
	}
	cfg := c.cfg
	cfg.Algorithm = a
	return cfg, nil
}

func (c *cli) openSearcher() (*xdb.Searcher, xdb.Algorithm, error) {
	cfg, err := c.resolve()
	if err != nil {
		return nil, 0, err
	}
	s, err := xdb.Open(cfg.DBPath, cfg.Cache)
	if err != nil {
		return nil, 0, err
	}
	return s, cfg.Algorithm, nil
}
