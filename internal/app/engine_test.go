package app

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livedoc/internal/config"
	"livedoc/internal/contracts"
	lderrors "livedoc/internal/errors"
)

// freePortPair finds a port p such that p and p+1 are both free.
func freePortPair(t *testing.T) int {
	t.Helper()
	for i := 0; i < 20; i++ {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		port := ln.Addr().(*net.TCPAddr).Port
		ln.Close()

		next, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port+1))
		if err == nil {
			next.Close()
			return port
		}
	}
	t.Skip("no adjacent free ports")
	return 0
}

func TestNewEngineMissingSource(t *testing.T) {
	_, err := NewEngine(config.Default(), filepath.Join(t.TempDir(), "missing.md"))

	require.Error(t, err)
	assert.True(t, lderrors.Is(err, lderrors.CodeSourceNotFound))
	assert.True(t, lderrors.IsFatal(err))
}

func TestNewEngineRejectsDirectory(t *testing.T) {
	_, err := NewEngine(config.Default(), t.TempDir())
	assert.True(t, lderrors.Is(err, lderrors.CodeSourceNotFound))
}

func TestRenderOnce(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "guide.md")
	output := filepath.Join(dir, "out.html")
	require.NoError(t, os.WriteFile(source, []byte("# Guide\n\nSome *text*."), 0o644))

	require.NoError(t, RenderOnce(source, output))

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	page := string(data)
	assert.Contains(t, page, "<title>guide</title>")
	assert.Contains(t, page, `<a href="#guide">Guide</a>`)
	assert.Contains(t, page, "<em>text</em>")
	assert.NotContains(t, page, "LIVEDOC_PUSH_PORT")
}

func TestRenderOnceMissingSource(t *testing.T) {
	err := RenderOnce(filepath.Join(t.TempDir(), "nope.md"), filepath.Join(t.TempDir(), "out.html"))
	assert.True(t, lderrors.Is(err, lderrors.CodeSourceNotFound))
}

func TestDocumentTitle(t *testing.T) {
	assert.Equal(t, "notes", documentTitle("/a/b/notes.md"))
	assert.Equal(t, "README", documentTitle("README"))
}

func TestEngineServesAndSyncs(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "doc.md")
	require.NoError(t, os.WriteFile(source, []byte("# One\n\nHello."), 0o644))

	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = freePortPair(t)
	cfg.Output = filepath.Join(dir, "index.html")

	engine, err := NewEngine(cfg, source)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("http://127.0.0.1:%d/index.html", cfg.Server.Port), engine.URL())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- engine.Run(ctx) }()

	var body string
	require.Eventually(t, func() bool {
		resp, err := http.Get(engine.URL())
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		data, _ := io.ReadAll(resp.Body)
		body = string(data)
		return resp.StatusCode == http.StatusOK && resp.Header.Get("Cache-Control") == "no-cache, no-store, must-revalidate"
	}, 5*time.Second, 50*time.Millisecond)
	assert.Contains(t, body, `<h1 id="one">One</h1>`)
	assert.Contains(t, body, fmt.Sprintf("LIVEDOC_PUSH_PORT = %d", cfg.Server.PushPort()))

	conn, _, err := websocket.DefaultDialer.Dial(fmt.Sprintf("ws://127.0.0.1:%d/", cfg.Server.PushPort()), nil)
	require.NoError(t, err)
	defer conn.Close()

	// Give the server a moment to register the session before the change.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(source, []byte("# Two\n\nChanged."), 0o644))
	msg := readUntil(t, conn, contracts.MessageTypeReload)
	assert.Equal(t, contracts.MessageTypeReload, msg["type"])

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, conn.WriteJSON(contracts.SaveContentMessage{
		Type:    contracts.MessageTypeSaveContent,
		Content: `<h1 id="two">Two</h1><p>Edited in <strong>browser</strong>.</p>`,
	}))
	msg = readUntil(t, conn, contracts.MessageTypeContentUpdated)
	assert.Equal(t, contracts.StatusSuccess, msg["status"])

	data, err := os.ReadFile(source)
	require.NoError(t, err)
	assert.Equal(t, "# Two\n\nEdited in **browser**.", strings.TrimSpace(string(data)))

	page, err := os.ReadFile(cfg.Output)
	require.NoError(t, err)
	assert.Contains(t, string(page), "<strong>browser</strong>")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not shut down")
	}
}

func TestEngineReportsPortInUse(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "doc.md")
	require.NoError(t, os.WriteFile(source, []byte("# x"), 0o644))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = ln.Addr().(*net.TCPAddr).Port
	cfg.Output = filepath.Join(dir, "index.html")

	engine, err := NewEngine(cfg, source)
	require.NoError(t, err)

	err = engine.Run(context.Background())
	require.Error(t, err)
	assert.True(t, lderrors.Is(err, lderrors.CodePortInUse))
}

func readUntil(t *testing.T, conn *websocket.Conn, msgType string) map[string]interface{} {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	require.NoError(t, conn.SetReadDeadline(deadline))
	for {
		var msg map[string]interface{}
		require.NoError(t, conn.ReadJSON(&msg), "waiting for %s", msgType)
		if msg["type"] == msgType {
			return msg
		}
	}
}
