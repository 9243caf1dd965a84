package server

import (
	"github.com/aep/docsql/config"
	"github.com/spf13/cobra"
)

var CMD = &cobra.Command{
	Use:   "server",
	Short: "serve documents over http",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cmd)
		if err != nil {
			return err
		}
		return Main(cfg)
	},
}

func init() {
	CMD.Flags().String("listen", ":5052", "address of the document api")
	CMD.Flags().String("stats-listen", ":27667", "address of /healthz and /metrics, empty disables")
	CMD.Flags().StringSlice("read-only", nil, "collections that reject writes")
	CMD.Flags().String("nats", "", "publish change events to this nats server")
	CMD.Flags().Int("embedded-nats", 0, "run a nats server in process on this port (-1 picks one)")
	CMD.Flags().Duration("cache-ttl", 0, "how long documents stay in the read cache")
	CMD.Flags().Int("max-page-size", 0, "upper bound for list limits")
}
