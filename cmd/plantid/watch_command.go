package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/teslashibe/go-plantid/pkg/studio"
)

func newWatchCommand() *cobra.Command {
	var server string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream state changes from a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return watchState(ctx, server, cmd.OutOrStdout(), jsonOutput)
		},
	}

	cmd.Flags().StringVarP(&server, "server", "s", "localhost:8080", "Server address or URL")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print raw state JSON")
	return cmd
}

// stateURL turns "host:port" or an http(s) URL into the /ws/state URL.
func stateURL(server string) (string, error) {
	if !strings.Contains(server, "://") {
		server = "ws://" + server
	}
	u, err := url.Parse(server)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws/state"
	return u.String(), nil
}

func watchState(ctx context.Context, server string, out io.Writer, raw bool) error {
	target, err := stateURL(server)
	if err != nil {
		return err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return fmt.Errorf("connect %s: %w", target, err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		if raw {
			fmt.Fprintln(out, string(data))
			continue
		}
		var st studio.State
		if err := json.Unmarshal(data, &st); err != nil {
			return fmt.Errorf("decode state: %w", err)
		}
		fmt.Fprintln(out, summarizeState(st))
	}
}

// summarizeState renders one line per state change.
func summarizeState(st studio.State) string {
	var b strings.Builder
	if st.Camera.Active {
		fmt.Fprintf(&b, "camera=%s(%s)", st.Camera.Facing, st.Camera.Device)
	} else {
		fmt.Fprintf(&b, "camera=off")
	}
	fmt.Fprintf(&b, " permission=%s", st.Camera.Permission)
	if st.Image != nil {
		fmt.Fprintf(&b, " image=%s/%dx%d", st.Image.Source, st.Image.Width, st.Image.Height)
	}
	switch {
	case st.Loading:
		b.WriteString(" identifying...")
	case st.Error != "":
		fmt.Fprintf(&b, " error=%q", st.Error)
	case st.Record != nil:
		fmt.Fprintf(&b, " plant=%q (%s)", st.Record.Name, st.Record.ScientificName)
	}
	return b.String()
}
