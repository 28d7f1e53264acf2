package appconfig

import (
	"fmt"
	"io"
	"strings"
)

// ShowConfig prints the current configuration summary with secrets masked.
func ShowConfig(out io.Writer, file string, cfg *Config) {
	if file == "" {
		fmt.Fprintln(out, "No config file loaded (using defaults).")
	} else {
		fmt.Fprintf(out, "Config file: %s\n\n", file)
	}
	if cfg == nil {
		fallback := Default()
		cfg = &fallback
	}

	fmt.Fprintln(out, "Current configuration:")
	fmt.Fprintf(out, "  Debug:           %v\n", cfg.Debug)
	fmt.Fprintf(out, "  Log File:        %s\n", cfg.LogFilePath())
	fmt.Fprintf(out, "  Request Timeout: %s\n", cfg.RequestTimeout())

	fmt.Fprintln(out, "  Embedding:")
	fmt.Fprintf(out, "    Provider:      %s\n", cfg.Embedding.Provider)
	fmt.Fprintf(out, "    Model:         %s\n", cfg.Embedding.Model)
	fmt.Fprintf(out, "    API Key:       %s\n", MaskSecret(cfg.Embedding.APIKey))
	if cfg.Embedding.BaseURL != "" {
		fmt.Fprintf(out, "    Base URL:      %s\n", cfg.Embedding.BaseURL)
	}
	fmt.Fprintf(out, "    Dimensions:    %s\n", dimensionLabel(cfg.Embedding.Dimensions))
	fmt.Fprintf(out, "    Task Types:    %s / %s\n", cfg.Embedding.DocumentTaskType, cfg.Embedding.QueryTaskType)
	fmt.Fprintf(out, "    Batch Size:    %d\n", cfg.Embedding.BatchSize)

	fmt.Fprintln(out, "  Vector Store:")
	fmt.Fprintf(out, "    Backend:       %s\n", cfg.VectorStore.Backend)
	fmt.Fprintf(out, "    Index Name:    %s\n", cfg.VectorStore.IndexName)
	fmt.Fprintf(out, "    Metric:        %s\n", cfg.VectorStore.Metric)
	if cfg.VectorStore.Backend == BackendSQLite {
		fmt.Fprintf(out, "    SQLite Path:   %s\n", cfg.VectorStore.SQLitePath)
	} else {
		fmt.Fprintf(out, "    API Key:       %s\n", MaskSecret(cfg.VectorStore.APIKey))
		fmt.Fprintf(out, "    Cloud:         %s\n", strings.ToUpper(cfg.VectorStore.Cloud))
		fmt.Fprintf(out, "    Region:        %s\n", cfg.VectorStore.Region)
	}

	fmt.Fprintln(out, "  Chunking:")
	fmt.Fprintf(out, "    Strategy:      %s\n", cfg.Chunking.Strategy)
	fmt.Fprintf(out, "    Size:          %d\n", cfg.Chunking.Size)
	fmt.Fprintf(out, "    Overlap:       %d\n", cfg.Chunking.Overlap)

	fmt.Fprintln(out, "  Documents:")
	fmt.Fprintf(out, "    Extensions:    %v\n", cfg.Documents.AllowedExtensions)
	fmt.Fprintf(out, "    Directory Glob: %s\n", cfg.Documents.DirectoryGlob)
	fmt.Fprintf(out, "    Exclude Globs: %v\n", cfg.Documents.ExcludeGlobs)

	fmt.Fprintln(out, "  Server:")
	fmt.Fprintf(out, "    Address:       %s\n", cfg.Server.Addr)
	fmt.Fprintf(out, "    Upload Dir:    %s\n", cfg.Server.UploadDir)

	fmt.Fprintln(out, "  Search:")
	fmt.Fprintf(out, "    Top K:         %d (max %d)\n", cfg.Search.TopK, cfg.Search.MaxTopK)
	fmt.Fprintf(out, "    Context Token Limit: %d\n", cfg.Search.ContextTokenLimit)
}

// MaskSecret keeps the last four characters of a secret.
func MaskSecret(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(not set)"
	}
	if len(s) <= 4 {
		return "****"
	}
	return strings.Repeat("*", 8) + s[len(s)-4:]
}

func dimensionLabel(d int) string {
	if d <= 0 {
		return "model default"
	}
	return fmt.Sprintf("%d", d)
}
