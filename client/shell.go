package client

import (
	"log/slog"

	"github.com/aep/docsql/config"
	"github.com/aep/docsql/history"
	"github.com/aep/docsql/session"
	"github.com/aep/docsql/shell"
	"github.com/aep/docsql/store"
	"github.com/spf13/cobra"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Interactive query shell",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cmd)
		if err != nil {
			return err
		}

		h, err := openHistory(cfg)
		if err != nil {
			return err
		}
		defer h.Close()

		sess, err := session.New(store.NewConn(nil), h, session.Options{
			DiscardStale: cfg.Shell.DiscardStale,
		})
		if err != nil {
			return err
		}
		defer sess.Close()

		sh := shell.New(sess, cmd.OutOrStdout(), shell.Options{
			Endpoint: cfg.Store.Endpoint,
			Dial: func(endpoint string) (store.Client, error) {
				return store.Dial(endpoint, cfg.KVOptions(), cfg.Shell.PageSize)
			},
		})
		defer sh.Close()

		if err := sh.Connect(""); err != nil {
			slog.Warn("[client].shell: starting disconnected", "err", err)
		}
		return sh.Run(cmd.Context())
	},
}

func init() {
	shellCmd.Flags().String("history", "", "keep statement history in this sqlite file")
	shellCmd.Flags().Bool("discard-stale", false, "never let an older response replace a newer one")
	shellCmd.Flags().Int("page-size", 0, "documents per page")
}

func openHistory(cfg *config.Config) (*history.Log, error) {
	if cfg.Shell.History == "" {
		return history.New(nil)
	}
	sink, err := history.OpenSQLite(cfg.Shell.History)
	if err != nil {
		return nil, err
	}
	h, err := history.New(sink)
	if err != nil {
		sink.Close()
		return nil, err
	}
	return h, nil
}
