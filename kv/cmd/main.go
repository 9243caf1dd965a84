package cmd

import (
	"fmt"
	"strings"

	"github.com/aep/docsql/config"
	"github.com/aep/docsql/kv"
	"github.com/spf13/cobra"
)

var CMD = &cobra.Command{
	Use:   "kv",
	Short: "direct low level access to the document store backend",
}

func init() {
	CMD.AddCommand(listCmd)
	CMD.AddCommand(getCmd)
	CMD.AddCommand(putCmd)
	CMD.AddCommand(delCmd)
}

func open(cmd *cobra.Command) (kv.KV, error) {
	cfg, err := config.Load(cmd)
	if err != nil {
		return nil, err
	}
	return kv.Open(cfg.KVOptions())
}

var listCmd = &cobra.Command{
	Use:   "ls [prefix]",
	Short: "List keys",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := open(cmd)
		if err != nil {
			return err
		}
		defer k.Close()

		var start, end []byte
		if len(args) == 1 {
			start = []byte(args[0])
			end = append([]byte(args[0]), 0xff)
		}

		r := k.Read()
		defer r.Close()
		for kv, err := range r.Iter(cmd.Context(), start, end) {
			if err != nil {
				return err
			}
			fmt.Println(escapeNonPrintable(kv.K))
		}
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Get value for a key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := open(cmd)
		if err != nil {
			return err
		}
		defer k.Close()

		r := k.Read()
		defer r.Close()
		v, err := r.Get(cmd.Context(), []byte(args[0]))
		if err != nil {
			return err
		}
		if v == nil {
			return fmt.Errorf("%s: not found", args[0])
		}
		fmt.Println(escapeNonPrintable(v))
		return nil
	},
}

var putCmd = &cobra.Command{
	Use:   "put [key] [value]",
	Short: "Put a key-value pair",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := open(cmd)
		if err != nil {
			return err
		}
		defer k.Close()

		w := k.Write()
		defer w.Close()
		if err := w.Put([]byte(args[0]), []byte(args[1])); err != nil {
			return err
		}
		return w.Commit(cmd.Context())
	},
}

var delCmd = &cobra.Command{
	Use:     "del [key]",
	Aliases: []string{"rm"},
	Short:   "Delete a key-value pair",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := open(cmd)
		if err != nil {
			return err
		}
		defer k.Close()

		w := k.Write()
		defer w.Close()
		if err := w.Del([]byte(args[0])); err != nil {
			return err
		}
		return w.Commit(cmd.Context())
	},
}

// keys use 0xff as a separator, which does not print well
func escapeNonPrintable(b []byte) string {
	var result strings.Builder
	for _, c := range b {
		if c >= 32 && c <= 126 {
			result.WriteByte(c)
		} else {
			result.WriteString(fmt.Sprintf("\\x%02x", c))
		}
	}
	return result.String()
}
