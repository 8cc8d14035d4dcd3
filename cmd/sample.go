package cmd

import (
	"fmt"
	"io"
	"os"

	"grimm.is/ptables/internal/config"
)

// RunSample writes the sample configuration to path, or to out when path is
// empty. An existing file is never overwritten.
func RunSample(out io.Writer, path string) error {
	data := config.SampleHCL()
	if path == "" {
		_, err := out.Write(data)
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write sample config: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	Printer.Fprintf(out, "Sample configuration written to %s\n", path)
	return nil
}
