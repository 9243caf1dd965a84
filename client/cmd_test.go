package client

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/aep/docsql/api"
	"github.com/aep/docsql/kv"
	"github.com/aep/docsql/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocalClient(t *testing.T) store.Client {
	c, err := store.Dial(store.LocalEndpoint, kv.Options{Backend: "mem"}, 10)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestSplitPath(t *testing.T) {
	tests := []struct {
		path       string
		collection string
		id         string
		wantErr    bool
	}{
		{"users/u1", "users", "u1", false},
		{"orgs/acme/members/m1", "orgs/acme/members", "m1", false},
		{"users", "", "", true},
		{"/u1", "", "", true},
		{"users/", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			c, id, err := splitPath(tt.path)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.collection, c)
			assert.Equal(t, tt.id, id)
		})
	}
}

func TestParseDocuments(t *testing.T) {
	docs, err := parseDocuments([]byte(`collection: users
id: u1
val:
  name: Ann
  age: 30
---
collection: users
val:
  name: Bob
---
`))
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "u1", docs[0].Id)
	assert.Equal(t, "Ann", docs[0].Val["name"])
	assert.Equal(t, "", docs[1].Id)

	docs, err = parseDocuments([]byte(`{"collection": "users", "id": "u2", "val": {"a": true}}`))
	require.NoError(t, err)
	assert.Equal(t, true, docs[0].Val["a"])

	_, err = parseDocuments([]byte("id: x\n"))
	require.Error(t, err)
}

func TestPutGetRemove(t *testing.T) {
	c := newLocalClient(t)
	ctx := context.Background()
	var out bytes.Buffer

	err := putDocuments(ctx, c, []api.Document{
		{Collection: "users", Id: "u1", Val: map[string]any{"name": "Ann"}},
		{Collection: "users", Val: map[string]any{"name": "Bob"}},
	}, &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "users/u1\n")

	out.Reset()
	require.NoError(t, getDocument(ctx, c, "users", "u1", &out))
	assert.Contains(t, out.String(), "name: Ann")
	assert.Contains(t, out.String(), "collection: users")

	require.Error(t, getDocument(ctx, c, "users", "nope", &out))

	out.Reset()
	require.NoError(t, removeDocuments(ctx, c, []string{"users/u1"}, &out))
	assert.Equal(t, "users/u1 deleted\n", out.String())

	doc, err := c.Read(ctx, "users", "u1")
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestRunQuery(t *testing.T) {
	c := newLocalClient(t)
	ctx := context.Background()
	var out bytes.Buffer

	require.NoError(t, runQuery(ctx, c, `INSERT INTO users JSON {"name": "Ann"}`, "table", &out))
	assert.Contains(t, out.String(), "Created")

	out.Reset()
	require.NoError(t, runQuery(ctx, c, `SELECT * FROM users WHERE name = 'Ann'`, "json", &out))
	var rows []map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "Ann", rows[0]["name"])

	out.Reset()
	err := runQuery(ctx, c, `SELECT name FROM users`, "json", &out)
	require.ErrorIs(t, err, errQueryFailed)
	assert.Contains(t, out.String(), "Syntax error")
}

func writeEditor(t *testing.T, script string) string {
	path := filepath.Join(t.TempDir(), "editor.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0755))
	return path
}

func TestEditDocument(t *testing.T) {
	c := newLocalClient(t)
	ctx := context.Background()
	var out bytes.Buffer

	_, err := c.Put(ctx, api.Document{Collection: "users", Id: "u1", Val: map[string]any{"name": "Ann"}})
	require.NoError(t, err)

	require.NoError(t, editDocument(ctx, c, "users", "u1", "true", &out))
	assert.Contains(t, out.String(), "Edit cancelled")

	editor := writeEditor(t, `sleep 0.05
cat > "$1" <<EOF
collection: users
val:
  name: Anna
EOF
`)
	out.Reset()
	require.NoError(t, editDocument(ctx, c, "users", "u1", editor, &out))
	assert.Equal(t, "users/u1\n", out.String(), "a document without id keeps the edited one")

	doc, err := c.Read(ctx, "users", "u1")
	require.NoError(t, err)
	assert.Equal(t, "Anna", doc.Val["name"])
	assert.Equal(t, uint64(2), doc.Version)

	require.Error(t, editDocument(ctx, c, "users", "nope", "true", &out))
}
