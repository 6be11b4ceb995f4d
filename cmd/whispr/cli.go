package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"github.com/chris/whispr/internal/agent"
	"github.com/chris/whispr/internal/bridge"
)

func runCLI(a *app) {
	ctx := context.Background()
	scanner := bufio.NewScanner(os.Stdin)

	// Check if stdin is a pipe (non-interactive)
	stat, _ := os.Stdin.Stat()
	isPipe := (stat.Mode() & os.ModeCharDevice) == 0

	sessions := bridge.NewManager(a.store, a.logger)
	session, err := sessions.Open(ctx, "cli", a.runner(a.localBrowser()))
	if err != nil {
		fatal("opening session", err)
	}

	var progress agent.Notifier
	if !isPipe {
		progress = func(p agent.Progress) {
			switch {
			case p.Stage == agent.StageModel || p.Stage == agent.StageFinal:
			case p.Detail == "":
				fmt.Fprintf(os.Stderr, "  [%s]\n", p.Stage)
			default:
				fmt.Fprintf(os.Stderr, "  [%s] %s\n", p.Stage, p.Detail)
			}
		}
		fmt.Print("whispr> ")
	}

	for scanner.Scan() {
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			if !isPipe {
				fmt.Print("whispr> ")
			}
			continue
		}
		if input == "exit" || input == "quit" {
			break
		}

		var res bridge.Result
		if input == "reset" {
			res = session.Reset(ctx)
		} else {
			res = session.Submit(ctx, input, progress)
		}
		if res.Success {
			fmt.Println(res.Message)
		} else {
			fmt.Fprintln(os.Stderr, res.Message)
		}

		if isPipe {
			break // single exchange in pipe mode
		}
		fmt.Print("whispr> ")
	}
}

func listSessions(a *app, w io.Writer) error {
	if a.db == nil {
		return fmt.Errorf("sessions are not stored with the %s backend", a.cfg.StoreBackend)
	}
	list, err := a.db.ListSessions(context.Background())
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(w, "no stored sessions")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tMESSAGES\tUPDATED")
	for _, s := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", s.ID, humanize.Comma(int64(s.Messages)), s.UpdatedAt)
	}
	return tw.Flush()
}

func listBookmarks(a *app, w io.Writer, folder string) error {
	if a.db == nil {
		return fmt.Errorf("bookmarks are not stored with the %s backend", a.cfg.StoreBackend)
	}
	list, err := a.db.ListBookmarks(context.Background(), folder)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(w, "no bookmarks")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, b := range list {
		if b.IsFolder() {
			fmt.Fprintf(tw, "%s\t[%s]\t\n", b.ID, b.Title)
		} else {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", b.ID, b.Title, b.URL)
		}
	}
	return tw.Flush()
}
