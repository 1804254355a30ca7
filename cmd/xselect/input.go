package main

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// readInput assembles the payload for --in. With no files it reads stdin,
// echoing it to echo in filter mode. Files are concatenated in order and
// never echoed.
func readInput(stdin io.Reader, echo io.Writer, files []string, filter bool) ([]byte, error) {
	var buf bytes.Buffer
	if len(files) == 0 {
		if _, err := buf.ReadFrom(stdin); err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		if filter {
			if _, err := echo.Write(buf.Bytes()); err != nil {
				return nil, fmt.Errorf("filter: %w", err)
			}
		}
		return buf.Bytes(), nil
	}

	for _, name := range files {
		slog.Debug("reading file", "file", name)
		if err := appendFile(&buf, name); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func appendFile(buf *bytes.Buffer, name string) error {
	f, err := os.Open(name)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := buf.ReadFrom(f); err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	return nil
}
