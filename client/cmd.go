package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/aep/docsql/api"
	"github.com/aep/docsql/config"
	"github.com/aep/docsql/dsql"
	"github.com/aep/docsql/shell"
	"github.com/aep/docsql/store"
	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"
)

var (
	file   string
	output string

	queryCmd = &cobra.Command{
		Use:   "query [statement]",
		Short: "Run one statement",
		Args:  cobra.ExactArgs(1),
		RunE:  query,
	}

	putCmd = &cobra.Command{
		Use:     "put",
		Aliases: []string{"apply"},
		Short:   "Put documents from a JSON/YAML file",
		RunE:    put,
	}

	getCmd = &cobra.Command{
		Use:   "get [collection/id]",
		Short: "Get a document",
		Args:  cobra.ExactArgs(1),
		RunE:  get,
	}

	editCmd = &cobra.Command{
		Use:   "edit [collection/id]",
		Short: "Edit a document in $EDITOR",
		Args:  cobra.ExactArgs(1),
		RunE:  edit,
	}

	rmCmd = &cobra.Command{
		Use:     "rm [collection/id]...",
		Aliases: []string{"delete"},
		Short:   "Delete documents",
		Args:    cobra.MinimumNArgs(1),
		RunE:    rm,
	}
)

var errQueryFailed = errors.New("query failed")

func RegisterCommands(root *cobra.Command) {
	putCmd.Flags().StringVarP(&file, "file", "f", "", "Path to JSON/YAML file, - for stdin")
	putCmd.MarkFlagRequired("file")

	queryCmd.Flags().StringVarP(&output, "output", "o", "table", "table, csv, json or yaml")
	queryCmd.Flags().Int("page-size", 0, "documents per page")

	root.AddCommand(queryCmd)
	root.AddCommand(putCmd)
	root.AddCommand(getCmd)
	root.AddCommand(editCmd)
	root.AddCommand(rmCmd)
	root.AddCommand(shellCmd)
}

func dial(cmd *cobra.Command) (store.Client, *config.Config, error) {
	cfg, err := config.Load(cmd)
	if err != nil {
		return nil, nil, err
	}
	c, err := store.Dial(cfg.Store.Endpoint, cfg.KVOptions(), cfg.Shell.PageSize)
	if err != nil {
		return nil, nil, err
	}
	return c, cfg, nil
}

// splitPath cuts collection/id at the last slash, collections may contain
// slashes themselves.
func splitPath(path string) (string, string, error) {
	i := strings.LastIndex(path, "/")
	if i <= 0 || i == len(path)-1 {
		return "", "", fmt.Errorf("invalid path %q, expected collection/id", path)
	}
	return path[:i], path[i+1:], nil
}

func parseFile(file string) ([]api.Document, error) {
	var data []byte
	var err error

	if file == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %v", err)
	}
	return parseDocuments(data)
}

func parseDocuments(data []byte) ([]api.Document, error) {
	var objects []api.Document
	for _, doc := range strings.Split(string(data), "---\n") {
		if strings.TrimSpace(doc) == "" {
			continue
		}

		var obj api.Document
		if err := yaml.Unmarshal([]byte(doc), &obj); err != nil {
			return nil, fmt.Errorf("failed to parse document: %v", err)
		}
		if obj.Collection == "" {
			return nil, fmt.Errorf("document without collection")
		}
		objects = append(objects, obj)
	}
	return objects, nil
}

func query(cmd *cobra.Command, args []string) error {
	c, _, err := dial(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	return runQuery(cmd.Context(), c, args[0], output, cmd.OutOrStdout())
}

func runQuery(ctx context.Context, c store.Client, statement string, format string, w io.Writer) error {
	res := dsql.NewExecutor(c).Run(ctx, statement, api.StartCursor)
	if res.Type == dsql.ResultError || format == "table" {
		shell.Render(w, res, 1)
		if res.Type == dsql.ResultError {
			return errQueryFailed
		}
		return nil
	}
	return shell.Export(w, res, shell.Format(format))
}

func put(cmd *cobra.Command, args []string) error {
	objects, err := parseFile(file)
	if err != nil {
		return err
	}

	c, _, err := dial(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	return putDocuments(cmd.Context(), c, objects, cmd.OutOrStdout())
}

// putDocuments replaces documents that carry an id and creates the others.
func putDocuments(ctx context.Context, c store.Client, objects []api.Document, w io.Writer) error {
	for _, obj := range objects {
		var id string
		var err error
		if obj.Id == "" {
			id, err = c.Create(ctx, obj.Collection, obj.Val)
		} else {
			id, err = c.Put(ctx, obj)
		}
		if err != nil {
			return fmt.Errorf("failed to put document: %w", err)
		}
		fmt.Fprintf(w, "%s/%s\n", obj.Collection, id)
	}
	return nil
}

func get(cmd *cobra.Command, args []string) error {
	collection, id, err := splitPath(args[0])
	if err != nil {
		return err
	}

	c, _, err := dial(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	return getDocument(cmd.Context(), c, collection, id, cmd.OutOrStdout())
}

func getDocument(ctx context.Context, c store.Client, collection string, id string, w io.Writer) error {
	doc, err := c.Read(ctx, collection, id)
	if err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}
	if doc == nil {
		return fmt.Errorf("%s/%s: not found", collection, id)
	}

	b, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

func edit(cmd *cobra.Command, args []string) error {
	collection, id, err := splitPath(args[0])
	if err != nil {
		return err
	}

	c, _, err := dial(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = "vim"
	}
	return editDocument(cmd.Context(), c, collection, id, editor, cmd.OutOrStdout())
}

func editDocument(ctx context.Context, c store.Client, collection string, id string, editor string, w io.Writer) error {
	doc, err := c.Read(ctx, collection, id)
	if err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}
	if doc == nil {
		return fmt.Errorf("%s/%s: not found", collection, id)
	}

	tmpfile, err := os.CreateTemp("", "docsql-edit-*.yaml")
	if err != nil {
		return err
	}
	defer os.Remove(tmpfile.Name())

	enc, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}
	tmpfile.Write(enc)
	tmpfile.Close()

	originalInfo, err := os.Stat(tmpfile.Name())
	if err != nil {
		return err
	}

	argv := strings.Fields(editor)
	ed := exec.Command(argv[0], append(argv[1:], tmpfile.Name())...)
	ed.Stdin = os.Stdin
	ed.Stdout = os.Stdout
	ed.Stderr = os.Stderr
	if err := ed.Run(); err != nil {
		return fmt.Errorf("editor: %w", err)
	}

	newInfo, err := os.Stat(tmpfile.Name())
	if err != nil {
		return err
	}
	if newInfo.ModTime() == originalInfo.ModTime() {
		fmt.Fprintln(w, "Edit cancelled, no changes made")
		return nil
	}

	objects, err := parseFile(tmpfile.Name())
	if err != nil {
		return err
	}
	for i := range objects {
		if objects[i].Id == "" {
			objects[i].Id = id
		}
	}
	return putDocuments(ctx, c, objects, w)
}

func rm(cmd *cobra.Command, args []string) error {
	c, _, err := dial(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	return removeDocuments(cmd.Context(), c, args, cmd.OutOrStdout())
}

func removeDocuments(ctx context.Context, c store.Client, paths []string, w io.Writer) error {
	for _, path := range paths {
		collection, id, err := splitPath(path)
		if err != nil {
			return err
		}
		if err := c.Delete(ctx, collection, id); err != nil {
			return fmt.Errorf("failed to delete %s: %w", path, err)
		}
		fmt.Fprintf(w, "%s deleted\n", path)
	}
	return nil
}
