package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lipolab/postboard/config"
	"github.com/lipolab/postboard/export"
	"github.com/lipolab/postboard/routes"
	"github.com/lipolab/postboard/utils"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "postboard: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "postboard",
		Short:        "Posts and announcements service",
		SilenceUsage: true,
		RunE:         runServe,
	}
	cmd.AddCommand(newServeCmd(), newExportCmd(), newReindexCmd())
	return cmd
}

// bootstrap loads configuration, initializes logging and builds the app.
func bootstrap(ctx context.Context) (*app, error) {
	cfg := config.Load()
	logger, err := utils.InitLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return newApp(ctx, cfg, logger)
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (default)",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	r := routes.SetupRouter(a.cfg, a.deps())

	sweep := time.Duration(a.cfg.ExportSweepMinutes) * time.Minute
	utils.StartExportSweeper(ctx, os.TempDir(), export.StagingPrefix, sweep, 2*sweep, a.logger)

	a.logger.Info("starting server (graceful)", zap.String("port", a.cfg.AppPort), zap.Bool("search", a.search.Available()), zap.Bool("cache", a.cache.Enabled()))
	if err := utils.GraceServer(ctx, ":"+a.cfg.AppPort, r, a.logger); err != nil {
		return fmt.Errorf("server stopped with error: %w", err)
	}
	return nil
}

func newExportCmd() *cobra.Command {
	var (
		format   string
		include  string
		baseURL  string
		output   string
		uploadS3 bool
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a JSON or ZIP export of all posts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			inc, err := export.ParseInclusion(include)
			if err != nil {
				return err
			}
			if uploadS3 && f != export.FormatZIP {
				return fmt.Errorf("--upload-s3 requires --format zip")
			}
			a, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer a.close()
			return runExport(ctx, a, export.Options{Format: f, Include: inc, BaseURL: baseURL}, output, uploadS3, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&format, "format", "json", "Export format: json or zip")
	cmd.Flags().StringVar(&include, "include-files", "metadata", "File inclusion: none, metadata or files")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "Prefix for relative links")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output path (default: stdout for json, archive name in the current directory for zip)")
	cmd.Flags().BoolVar(&uploadS3, "upload-s3", false, "Also upload the ZIP archive to the configured S3 bucket")
	return cmd
}

func runExport(ctx context.Context, a *app, opts export.Options, output string, uploadS3 bool, stdout io.Writer) error {
	if opts.Format == export.FormatJSON {
		doc, err := a.exporter.Build(ctx, opts)
		if err != nil {
			return err
		}
		if output == "" {
			return export.WriteDocument(stdout, doc)
		}
		f, err := os.Create(output)
		if err != nil {
			return err
		}
		if err := export.WriteDocument(f, doc); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	}

	arch, err := a.exporter.BuildArchive(ctx, opts)
	if err != nil {
		return err
	}
	defer arch.Cleanup()

	if output == "" {
		output = arch.Name
	}
	if err := copyArchive(arch.Path, output); err != nil {
		return err
	}
	a.logger.Info("export written", zap.String("path", output))
	fmt.Fprintln(stdout, output)

	if !uploadS3 {
		return nil
	}
	up, err := a.s3Uploader()
	if err == nil {
		err = up.EnsureBucket(ctx)
	}
	var key string
	if err == nil {
		key, err = up.UploadArchive(ctx, arch, time.Now())
	}
	if err != nil {
		// The local archive is already written.
		utils.ReportFailure(a.logger, utils.FailureDegraded, "export upload failed", zap.Error(err))
		return nil
	}
	a.logger.Info("export uploaded", zap.String("bucket", a.cfg.ExportS3Bucket), zap.String("key", key))
	return nil
}

func copyArchive(src, dst string) error {
	if dir := filepath.Dir(dst); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func newReindexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Push every stored post to the search index",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer a.close()
			if !a.cfg.SearchEnabled {
				return fmt.Errorf("search is disabled (set SEARCH_ENABLED=true)")
			}
			n, err := a.search.Reindex(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %d posts\n", n)
			return nil
		},
	}
}
