package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/conneroisu/sectionloader/internal/app"
	"github.com/conneroisu/sectionloader/internal/server"
	"github.com/conneroisu/sectionloader/internal/watcher"
)

const watchDebounce = 200 * time.Millisecond

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s"},
	Short:   "Serve the resolved page with live reload",
	Long: `Run every section once, then serve the page over HTTP. Connected
browsers reload whenever a run completes.

With --watch the fixtures file is watched; any change reloads the content
store and runs the sections again. Registry and config edits need a restart.

Examples:
  sectionloader serve                 # Serve on localhost:8080
  sectionloader serve -p 3000 --watch # Custom port, rerun on file changes`,
	RunE: runServe,
}

var serveWatch bool

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 8080, "Port to serve on")
	serveCmd.Flags().String("host", "localhost", "Host to bind to")
	serveCmd.Flags().BoolVarP(&serveWatch, "watch", "w", false, "Rerun when the fixtures file changes")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx, cmd, map[string]string{
		"port": "server.port",
		"host": "server.host",
	})
	if err != nil {
		return err
	}
	defer a.Close()

	srv := server.New(a, a.Logger)

	if _, err := a.Run(ctx); err != nil {
		return fmt.Errorf("initial run interrupted: %w", err)
	}

	if serveWatch {
		fw, err := startFileWatcher(ctx, a)
		if err != nil {
			return err
		}
		defer fw.Stop()
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Serving on http://%s\n", a.Config.Server.Addr())
	return srv.Start(ctx)
}

// startFileWatcher reloads the store and reruns every section when the
// fixtures file changes.
func startFileWatcher(ctx context.Context, a *app.App) (*watcher.FileWatcher, error) {
	if a.Config.Source.Fixtures == "" {
		return nil, fmt.Errorf("--watch needs source.fixtures to be set")
	}
	files := []string{a.Config.Source.Fixtures}
	fw, err := watcher.NewFileWatcher(watchDebounce, a.Logger)
	if err != nil {
		return nil, err
	}
	fw.AddFilter(watcher.PathsFilter(files...))
	for _, f := range files {
		if err := fw.AddPath(f); err != nil {
			fw.Stop()
			return nil, fmt.Errorf("failed to watch %s: %w", f, err)
		}
	}

	fw.AddHandler(func(ctx context.Context, events []watcher.ChangeEvent) error {
		a.Logger.Info(ctx, "Files changed, rerunning", "files", len(events), "first", events[0].Path)
		if err := a.Reload(ctx); err != nil {
			return err
		}
		_, err := a.Run(ctx)
		return err
	})

	if err := fw.Start(ctx); err != nil {
		fw.Stop()
		return nil, err
	}
	return fw, nil
}
