package utils

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dyike/cortextrader/internal/logger"
)

// WriteMarkdown writes content to dir/fileName, creating dir when needed.
func WriteMarkdown(dir, fileName, content string) error {
	return writeFile(dir, fileName, []byte(content))
}

// WriteJSON writes v as indented JSON to dir/fileName.
func WriteJSON(dir, fileName string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", fileName, err)
	}
	return writeFile(dir, fileName, append(data, '\n'))
}

func writeFile(dir, fileName string, data []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	path := filepath.Join(dir, fileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write file %s: %w", path, err)
	}
	logger.Get().Debugw("written", "path", path)
	return nil
}
