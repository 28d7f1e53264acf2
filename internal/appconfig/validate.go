package appconfig

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const configSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "timeout": { "type": "integer", "minimum": 0 },
    "embedding": {
      "type": "object",
      "properties": {
        "provider": { "enum": ["gemini", "openai"] },
        "model": { "type": "string", "minLength": 1 },
        "dimensions": { "type": "integer", "minimum": 0 },
        "batchSize": { "type": "integer", "minimum": 1, "maximum": 2048 },
        "cacheSize": { "type": "integer", "minimum": 0 },
        "maxRetries": { "type": "integer", "minimum": 0 }
      },
      "required": ["provider", "model"]
    },
    "vectorStore": {
      "type": "object",
      "properties": {
        "backend": { "enum": ["pinecone", "sqlite"] },
        "indexName": { "type": "string", "pattern": "^[a-z0-9][a-z0-9-]{0,44}$" },
        "metric": { "enum": ["cosine", "euclidean", "dotproduct"] },
        "cloud": { "enum": ["aws", "gcp", "azure"] },
        "region": { "type": "string", "minLength": 1 },
        "upsertBatchSize": { "type": "integer", "minimum": 1, "maximum": 1000 },
        "readyTimeout": { "type": "integer", "minimum": 0 },
        "maxRetries": { "type": "integer", "minimum": 0 }
      },
      "required": ["backend", "indexName", "metric"]
    },
    "chunking": {
      "type": "object",
      "properties": {
        "strategy": { "enum": ["recursive", "words"] },
        "size": { "type": "integer", "minimum": 1 },
        "overlap": { "type": "integer", "minimum": 0 },
        "separators": { "type": "array", "items": { "type": "string" } }
      },
      "required": ["strategy", "size", "overlap"]
    },
    "documents": {
      "type": "object",
      "properties": {
        "allowedExtensions": { "type": "array", "items": { "type": "string", "pattern": "^\\." } },
        "directoryGlob": { "type": "string", "minLength": 1 }
      }
    },
    "server": {
      "type": "object",
      "properties": {
        "addr": { "type": "string", "minLength": 1 },
        "maxUploadMB": { "type": "integer", "minimum": 1 }
      }
    },
    "search": {
      "type": "object",
      "properties": {
        "topK": { "type": "integer", "minimum": 1 },
        "maxTopK": { "type": "integer", "minimum": 1 },
        "contextTokenLimit": { "type": "integer", "minimum": 0 }
      }
    }
  }
}`

var schemaLoader = gojsonschema.NewStringLoader(configSchema)

// Validate checks the configuration against the settings schema and the
// cross-field rules the schema cannot express.
func (c Config) Validate() error {
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config for validation: %w", err)
	}
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if !result.Valid() {
		var details []string
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}
		return fmt.Errorf("invalid configuration: %s", strings.Join(details, "; "))
	}

	if c.Chunking.Overlap >= c.Chunking.Size {
		return fmt.Errorf("invalid configuration: chunking.overlap (%d) must be smaller than chunking.size (%d)", c.Chunking.Overlap, c.Chunking.Size)
	}
	if c.Search.TopK > c.Search.MaxTopK {
		return fmt.Errorf("invalid configuration: search.topK (%d) exceeds search.maxTopK (%d)", c.Search.TopK, c.Search.MaxTopK)
	}
	return nil
}
