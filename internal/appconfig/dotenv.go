package appconfig

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"
)

// LoadDotEnv exports the KEY=VALUE pairs of a dotenv file into the process
// environment. Variables already present in the environment win. A missing
// file is not an error; the returned slice lists the exported names.
func LoadDotEnv(path string) ([]string, error) {
	if strings.TrimSpace(path) == "" {
		path = DefaultEnvFile
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("stat env file %q: %w", path, err)
	}

	values, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("read env file %q: %w", path, err)
	}
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	var exported []string
	for _, name := range names {
		if _, ok := os.LookupEnv(name); ok {
			continue
		}
		if err := os.Setenv(name, values[name]); err != nil {
			return exported, fmt.Errorf("export %s: %w", name, err)
		}
		exported = append(exported, name)
	}
	return exported, nil
}
