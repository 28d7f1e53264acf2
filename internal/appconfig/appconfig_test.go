package appconfig

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, payload string) string {
	t.Helper()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// TestLoad verifies that a valid file overrides the defaults and that invalid
// JSON, invalid values, and missing explicit paths are rejected.
func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `{
        "embedding": { "provider": "openai", "model": "text-embedding-3-small", "dimensions": 768 },
        "vectorStore": { "backend": "sqlite", "indexName": "docs", "sqlitePath": "`+filepath.ToSlash(filepath.Join(dir, "v.db"))+`" },
        "chunking": { "size": 500, "overlap": 50 }
    }`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() with valid config failed: %v", err)
	}
	if cfg.Embedding.Provider != ProviderOpenAI {
		t.Fatalf("expected provider openai, got %q", cfg.Embedding.Provider)
	}
	if cfg.Embedding.Dimensions != 768 {
		t.Fatalf("expected 768 dimensions, got %d", cfg.Embedding.Dimensions)
	}
	if cfg.VectorStore.IndexName != "docs" {
		t.Fatalf("expected index docs, got %q", cfg.VectorStore.IndexName)
	}
	if cfg.Chunking.Size != 500 || cfg.Chunking.Overlap != 50 {
		t.Fatalf("expected chunking 500/50, got %d/%d", cfg.Chunking.Size, cfg.Chunking.Overlap)
	}
	if cfg.VectorStore.Metric != "cosine" {
		t.Fatalf("expected default metric cosine, got %q", cfg.VectorStore.Metric)
	}
	if cfg.RequestTimeout() != 60*time.Second {
		t.Fatalf("expected default request timeout of 60s, got %v", cfg.RequestTimeout())
	}
	if cfg.ConfigPath != path {
		t.Fatalf("expected config path %q, got %q", path, cfg.ConfigPath)
	}

	invalidJSON := writeConfig(t, t.TempDir(), `{ "embedding": [`)
	if _, err := Load(invalidJSON); err == nil {
		t.Fatal("Load() with invalid JSON should have failed")
	}

	badOverlap := writeConfig(t, t.TempDir(), `{ "chunking": { "size": 100, "overlap": 100 } }`)
	if _, err := Load(badOverlap); err == nil || !strings.Contains(err.Error(), "overlap") {
		t.Fatalf("Load() with overlap >= size should have failed, got %v", err)
	}

	badBackend := writeConfig(t, t.TempDir(), `{ "vectorStore": { "backend": "faiss" } }`)
	if _, err := Load(badBackend); err == nil || !strings.Contains(err.Error(), "invalid configuration") {
		t.Fatalf("Load() with unknown backend should have failed, got %v", err)
	}

	badRetries := writeConfig(t, t.TempDir(), `{ "vectorStore": { "maxRetries": -1 } }`)
	if _, err := Load(badRetries); err == nil || !strings.Contains(err.Error(), "invalid configuration") {
		t.Fatalf("Load() with negative vectorStore.maxRetries should have failed, got %v", err)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "nonexistent.json")); err == nil {
		t.Fatal("Load() with nonexistent explicit file should have failed")
	}
}

func TestLoadDefaultPathMissingUsesDefaults(t *testing.T) {
	tempDir := t.TempDir()
	oldCwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(tempDir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(oldCwd) })

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Embedding.Model != "gemini-embedding-001" {
		t.Fatalf("expected default model, got %q", cfg.Embedding.Model)
	}
	if cfg.Chunking.Size != 1000 || cfg.Chunking.Overlap != 200 {
		t.Fatalf("expected default chunking 1000/200, got %d/%d", cfg.Chunking.Size, cfg.Chunking.Overlap)
	}
	if cfg.VectorStore.Cloud != "aws" || cfg.VectorStore.Region != "us-east-1" {
		t.Fatalf("unexpected cloud defaults: %s/%s", cfg.VectorStore.Cloud, cfg.VectorStore.Region)
	}
	if cfg.VectorStore.MaxRetries != 3 {
		t.Fatalf("expected vector store maxRetries 3, got %d", cfg.VectorStore.MaxRetries)
	}
	if len(cfg.Chunking.Separators) != 4 {
		t.Fatalf("expected 4 default separators, got %v", cfg.Chunking.Separators)
	}
}

func TestEnvironmentOverridesAndSecrets(t *testing.T) {
	t.Setenv("SEMSEARCH_VECTORSTORE_INDEXNAME", "from-env")
	t.Setenv("GOOGLE_API_KEY", "google-secret")
	t.Setenv("PINECONE_API_KEY", "pinecone-secret")

	cfg, err := Load(writeConfig(t, t.TempDir(), `{}`))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.VectorStore.IndexName != "from-env" {
		t.Fatalf("expected env override, got %q", cfg.VectorStore.IndexName)
	}
	if cfg.Embedding.APIKey != "google-secret" {
		t.Fatalf("expected GOOGLE_API_KEY fallback, got %q", cfg.Embedding.APIKey)
	}
	if cfg.VectorStore.APIKey != "pinecone-secret" {
		t.Fatalf("expected PINECONE_API_KEY fallback, got %q", cfg.VectorStore.APIKey)
	}
}

func TestExplicitKeyWinsOverEnvironment(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "env-key")
	cfg := Default()
	cfg.Embedding.Provider = ProviderOpenAI
	cfg.Embedding.APIKey = "explicit"
	cfg.ResolveSecrets()
	if cfg.Embedding.APIKey != "explicit" {
		t.Fatalf("explicit key overwritten: %q", cfg.Embedding.APIKey)
	}
	if cfg.EmbeddingKeyEnv() != "OPENAI_API_KEY" {
		t.Fatalf("unexpected key env %q", cfg.EmbeddingKeyEnv())
	}
}

func TestClampTopK(t *testing.T) {
	cfg := Default()
	if got := cfg.ClampTopK(0); got != 5 {
		t.Fatalf("expected default 5, got %d", got)
	}
	if got := cfg.ClampTopK(50); got != 20 {
		t.Fatalf("expected max 20, got %d", got)
	}
	if got := cfg.ClampTopK(3); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
}

func TestLoadDotEnvDoesNotOverrideEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	payload := "SEMSEARCH_TEST_DOTENV_A=from-file\nSEMSEARCH_TEST_DOTENV_B=file-b\n"
	if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Setenv("SEMSEARCH_TEST_DOTENV_B", "from-env")
	t.Cleanup(func() { _ = os.Unsetenv("SEMSEARCH_TEST_DOTENV_A") })

	exported, err := LoadDotEnv(path)
	if err != nil {
		t.Fatalf("LoadDotEnv error: %v", err)
	}
	if got := os.Getenv("SEMSEARCH_TEST_DOTENV_A"); got != "from-file" {
		t.Fatalf("expected value from file, got %q", got)
	}
	if got := os.Getenv("SEMSEARCH_TEST_DOTENV_B"); got != "from-env" {
		t.Fatalf("environment should win, got %q", got)
	}
	if len(exported) != 1 || exported[0] != "SEMSEARCH_TEST_DOTENV_A" {
		t.Fatalf("unexpected exported set %v", exported)
	}

	if exported, err := LoadDotEnv(filepath.Join(dir, "missing.env")); err != nil || exported != nil {
		t.Fatalf("missing env file should be ignored, got %v %v", exported, err)
	}
}

func TestLoadDotEnvParsesQuotesAndExport(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	payload := "# keys\nexport SEMSEARCH_TEST_DOTENV_Q=\"quoted value\"\nSEMSEARCH_TEST_DOTENV_mixed=Case # trailing\n"
	if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Unsetenv("SEMSEARCH_TEST_DOTENV_Q")
		_ = os.Unsetenv("SEMSEARCH_TEST_DOTENV_mixed")
	})

	exported, err := LoadDotEnv(path)
	if err != nil {
		t.Fatalf("LoadDotEnv error: %v", err)
	}
	if got := os.Getenv("SEMSEARCH_TEST_DOTENV_Q"); got != "quoted value" {
		t.Fatalf("expected unquoted value, got %q", got)
	}
	if got := os.Getenv("SEMSEARCH_TEST_DOTENV_mixed"); got != "Case" {
		t.Fatalf("expected key case to be kept, got %q", got)
	}
	if len(exported) != 2 {
		t.Fatalf("unexpected exported set %v", exported)
	}
}

func TestShowConfigMasksSecrets(t *testing.T) {
	cfg := Default()
	cfg.Embedding.APIKey = "abcdefghij1234"
	var buf bytes.Buffer
	ShowConfig(&buf, "config/config.json", &cfg)
	out := buf.String()
	if strings.Contains(out, "abcdefghij1234") {
		t.Fatalf("secret leaked: %s", out)
	}
	if !strings.Contains(out, "********1234") {
		t.Fatalf("expected masked secret, got: %s", out)
	}
	if !strings.Contains(out, "Index Name:    semantic-search") {
		t.Fatalf("expected index name, got: %s", out)
	}
}
