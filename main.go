// relay-tui - a terminal client core for team messaging servers.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/muesli/termenv"

	"github.com/jeranaias/relay-tui/internal/client"
	"github.com/jeranaias/relay-tui/internal/config"
	"github.com/jeranaias/relay-tui/internal/render"
	"github.com/jeranaias/relay-tui/internal/util"
)

// Version information (set at build time)
var (
	Version   = "0.3.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "relay: %v\n", err)
		os.Exit(1)
	}
	if len(cfg.Servers) == 0 {
		fmt.Fprintln(os.Stderr, "relay: no servers configured; add one to ~/.relay/config.toml")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	core := client.New(client.Options{
		Render:    renderOptions(cfg),
		Heartbeat: cfg.HeartbeatInterval(),
		Reconnect: cfg.ReconnectInterval(),
	})

	// Server ids are session-local; config entries have no stable identity.
	serverIDs := make(map[string]string) // name -> id
	for _, s := range cfg.Servers {
		id := uuid.NewString()
		serverIDs[s.Name] = id
		core.AddServer(client.ServerConfig{
			ID:       id,
			Name:     s.Name,
			URL:      s.URL,
			LoginID:  s.LoginID,
			Password: s.Password,
			Token:    s.Token,
		})
	}

	go runConfigWatcher(ctx, core)
	go printNotices(core)
	go commandLoop(ctx, cancel, core, serverIDs)

	log.Printf("relay-tui %s (%s, %s)", Version, GitCommit, BuildDate)
	core.Run(ctx)
}

// renderOptions maps config onto renderer options.
func renderOptions(cfg *config.Config) render.Options {
	opts := render.Options{
		Width:      cfg.Render.Width,
		Tombstone:  cfg.Render.Tombstone,
		Truncation: cfg.Render.Truncation,
		Edited:     cfg.Render.Edited,
		Profile:    termenv.ColorProfile(),
	}
	if !cfg.Render.Color {
		opts.Profile = termenv.Ascii
	}
	return opts
}

// runConfigWatcher applies config file edits live. Only render settings are
// hot; connection settings take effect on restart.
func runConfigWatcher(ctx context.Context, core *client.Core) {
	w, err := config.NewWatcher(func(cfg *config.Config) {
		core.Do(func() {
			core.Renderer().SetOptions(renderOptions(cfg))
		})
	})
	if err != nil {
		log.Printf("config watcher unavailable: %v", err)
		return
	}
	if err := w.Run(ctx); err != nil {
		log.Printf("config watcher stopped: %v", err)
	}
}

// printNotices drains the core's status lines to stderr. Server error
// messages can run long; one terminal line is plenty for a status.
func printNotices(core *client.Core) {
	for n := range core.Notices() {
		fmt.Fprintf(os.Stderr, "[%s] %s\n", n.ServerID[:8], util.TruncateRunes(n.Text, 160))
	}
}

// commandLoop reads slash commands from stdin. This is the thinnest possible
// host; a richer front end would drive the same core methods.
//
//	/focus <server> <channel-id>   show and follow a channel
//	/post <message...>             post to the focused channel
//	/reply <post-id> <message...>  reply in a thread
//	/react <post-id> <emoji>       add a reaction
//	/unreact <post-id> <emoji>     remove a reaction
//	/delete <post-id>              delete a post
//	/close <channel-id>            hide a direct/group conversation
//	/show                          dump the focused channel's lines
//	/quit
func commandLoop(ctx context.Context, cancel context.CancelFunc, core *client.Core, serverIDs map[string]string) {
	var focusedServer, focusedChannel string

	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "/focus":
			if len(fields) != 3 {
				fmt.Fprintln(os.Stderr, "usage: /focus <server> <channel-id>")
				continue
			}
			id, ok := serverIDs[fields[1]]
			if !ok {
				fmt.Fprintf(os.Stderr, "unknown server %q\n", fields[1])
				continue
			}
			focusedServer, focusedChannel = id, fields[2]
			core.Focus(focusedServer, focusedChannel)
		case "/post":
			if focusedChannel == "" {
				fmt.Fprintln(os.Stderr, "no focused channel")
				continue
			}
			core.SendPost(focusedServer, focusedChannel, strings.Join(fields[1:], " "), "")
		case "/reply":
			if focusedChannel == "" || len(fields) < 3 {
				fmt.Fprintln(os.Stderr, "usage: /reply <post-id> <message...>")
				continue
			}
			core.SendPost(focusedServer, focusedChannel, strings.Join(fields[2:], " "), fields[1])
		case "/react":
			if len(fields) == 3 {
				core.React(focusedServer, fields[1], fields[2])
			}
		case "/unreact":
			if len(fields) == 3 {
				core.Unreact(focusedServer, fields[1], fields[2])
			}
		case "/delete":
			if len(fields) == 2 {
				core.DeletePost(focusedServer, fields[1])
			}
		case "/close":
			if len(fields) == 2 {
				core.CloseChannel(focusedServer, fields[1])
			}
		case "/show":
			dumpChannel(core, focusedChannel)
		case "/quit":
			cancel()
			return
		default:
			fmt.Fprintf(os.Stderr, "unknown command %q\n", fields[0])
		}
	}
}

// dumpChannel prints the focused channel's scrollback. The read crosses
// onto the owner loop and copies the lines out before printing.
func dumpChannel(core *client.Core, channelID string) {
	if channelID == "" {
		fmt.Fprintln(os.Stderr, "no focused channel")
		return
	}
	done := make(chan []string, 1)
	core.Do(func() {
		store := core.Store(channelID)
		if store == nil {
			done <- nil
			return
		}
		done <- store.Lines()
	})
	lines := <-done
	if lines == nil {
		fmt.Fprintln(os.Stderr, "channel not loaded")
		return
	}
	for _, l := range lines {
		fmt.Println(l)
	}
}
