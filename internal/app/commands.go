package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"docverify/internal/domain"
	"docverify/internal/export"
	"docverify/internal/httpapi"
	"docverify/internal/storage/sqlite"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var version = "dev"

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "docverify",
		Short: "Identity document extraction and cross-verification service",
		Long: `docverify extracts identity fields from OCR text of a worker's personal
and educational documents, cross-checks name and date of birth, and lets a
worker re-upload documents after a mismatch.

Configuration is read from CONFIG_PATH (default config.yaml) and environment
variables such as OPENAI_API_KEY, LLM_PROVIDER and DB_PATH.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newExtractCmd(),
		newReuploadCmd(),
		newReverifyCmd(),
		newExportCmd(),
	)
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the re-verification sweep",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := loadFull()
			if err != nil {
				return err
			}
			defer d.close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			server, err := httpapi.NewServer(d.processor, d.reupload, d.store, d.logger.Named("http"), httpapi.Config{
				Addr:       d.cfg.HTTPAddr,
				LLMEnabled: d.cfg.LLMEnabled(),
				Gatherer:   d.registry,
			})
			if err != nil {
				return err
			}
			d.sweeper.Start(ctx)

			errCh := make(chan error, 1)
			go func() { errCh <- server.Start() }()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and list them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := loadFull()
			if err != nil {
				return err
			}
			defer d.close()

			applied, err := sqlite.AppliedMigrations(cmd.Context(), d.db)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Database: %s\n", d.cfg.DBPath)
			for _, m := range applied {
				fmt.Fprintf(out, "  %s  applied %s\n", m.Name, m.AppliedAt.Format(time.RFC3339))
			}
			return nil
		},
	}
}

func newExtractCmd() *cobra.Command {
	var category, file string
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract fields from an OCR text file and print them as JSON",
		Long: `Run one extraction without touching the database.

Examples:
  docverify extract --category personal --file aadhaar.txt
  cat marksheet.txt | docverify extract --category educational --file -`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := domain.ParseDocumentCategory(category)
			if err != nil {
				return err
			}
			raw, err := readInput(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}
			d, err := loadBase()
			if err != nil {
				return err
			}
			defer d.close()

			extraction, err := d.extractor.Extract(cmd.Context(), domain.ExtractionRequest{RawText: raw, Category: cat})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"category": extraction.Category,
				"fields":   extraction.Fields.Plain(),
				"warnings": extraction.Warnings,
				"attempts": extraction.Attempts,
				"provider": extraction.Provider,
				"model":    extraction.Model,
			})
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "document category: personal or educational")
	cmd.Flags().StringVar(&file, "file", "-", "OCR text file, or - for stdin")
	_ = cmd.MarkFlagRequired("category")
	return cmd
}

func newReuploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reupload <worker_id> <action>",
		Short: "Clear document data so a worker can upload again",
		Long: `Clear stored document data for a worker.

Actions:
  educational_only          clear the educational document, keep personal data
  personal_and_educational  clear both documents and all derived records`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := loadFull()
			if err != nil {
				return err
			}
			defer d.close()

			out, err := d.reupload.Apply(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"status":       "success",
				"action":       out.Action,
				"message":      out.Message,
				"worker_id":    out.WorkerID,
				"cleared_data": out.Cleared,
			})
		},
	}
}

func newReverifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reverify",
		Short: "Run one re-verification pass over pending workers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := loadFull()
			if err != nil {
				return err
			}
			defer d.close()

			result, err := d.sweeper.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			d.logger.Info("re-verification pass complete", zap.Stringer("result", result))
			fmt.Fprintln(cmd.OutOrStdout(), result.String())
			return nil
		},
	}
}

func newExportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every worker's verification state to an xlsx file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := loadFull()
			if err != nil {
				return err
			}
			defer d.close()

			workers, err := d.store.ListWorkers(cmd.Context())
			if err != nil {
				return fmt.Errorf("list workers: %w", err)
			}
			data, err := export.VerificationWorkbook(workers)
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d worker(s) to %s\n", len(workers), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "verification.xlsx", "output xlsx path")
	return cmd
}

func readInput(stdin io.Reader, path string) (string, error) {
	if path == "" || path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
