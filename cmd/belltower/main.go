package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"belltower/internal/app"
	"belltower/internal/ics"
	"belltower/internal/schedule"
	logx "belltower/pkg/logx"
	"belltower/pkg/systemd"
)

func main() {
	var (
		cfgPath     string
		preview     bool
		previewDate string
		asICS       bool
		importPath  string
		importName  string
	)
	flag.StringVar(&cfgPath, "config", "./config.json", "path to config file (json or yaml)")
	flag.BoolVar(&preview, "preview", false, "print the day plan and exit")
	flag.StringVar(&previewDate, "date", "", "day to preview as YYYY-MM-DD (default today)")
	flag.BoolVar(&asICS, "ics", false, "emit the preview as an iCalendar document")
	flag.StringVar(&importPath, "import-voice", "", "import an audio file into the voice library and exit")
	flag.StringVar(&importName, "voice-name", "", "display name for -import-voice")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}

	switch {
	case importPath != "":
		v, err := a.Voices().Import(ctx, importName, importPath)
		closeApp(a)
		if err != nil {
			fmt.Fprintln(os.Stderr, "fatal:", err)
			os.Exit(1)
		}
		fmt.Printf("imported %s as %s (sha256 %s)\n", v.Name, v.ID, v.SHA256)
		return

	case preview:
		err := runPreview(ctx, a, previewDate, asICS)
		closeApp(a)
		if err != nil {
			fmt.Fprintln(os.Stderr, "fatal:", err)
			os.Exit(1)
		}
		return
	}

	if err := a.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal start:", err)
		os.Exit(1)
	}
	systemd.NotifyReady(logx.Nop())

	select {
	case <-ctx.Done():
	case <-a.Done():
		// Fatal error inside the app; exit non-zero after cleanup.
	}
	systemd.NotifyStopping(logx.Nop())

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	_ = a.Stop(stopCtx)
	stopCancel()

	if err := a.Err(); err != nil && ctx.Err() == nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func runPreview(ctx context.Context, a *app.App, dateStr string, asICS bool) error {
	day := schedule.DateOf(time.Now())
	if dateStr != "" {
		var err error
		day, err = schedule.ParseDate(dateStr)
		if err != nil {
			return err
		}
	}

	plan, err := a.Preview(ctx, day)
	if err != nil {
		return err
	}

	if asICS {
		fmt.Print(ics.Export("belltower day plan", day, plan, time.Local))
		return nil
	}

	if len(plan) == 0 {
		fmt.Printf("%s: nothing scheduled\n", day)
		return nil
	}
	fmt.Printf("%s:\n", day)
	for _, r := range plan {
		line := fmt.Sprintf("  %s  %s (%s)", r.At, r.Name, r.Type)
		if r.VoiceID != "" {
			line += "  voice=" + r.VoiceID
		}
		fmt.Println(line)
	}
	return nil
}

// closeApp releases resources for the one-shot CLI modes, which never
// call Start/Stop.
func closeApp(a *app.App) {
	_ = a.Store().Close()
}
