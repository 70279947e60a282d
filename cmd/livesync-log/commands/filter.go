package commands

import (
	"fmt"
	"io"

	"github.com/fundingarb/livesync/pkg/log"
)

// RunFilter copies matching events to a new trace file and returns the
// number of events written.
func RunFilter(path string, filter log.Filter, output string) (int, error) {
	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	logger, err := log.NewFileLogger(output)
	if err != nil {
		return 0, fmt.Errorf("failed to create output logger: %w", err)
	}
	defer logger.Close()

	count := 0
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return count, fmt.Errorf("failed to read event: %w", err)
		}
		logger.Log(event)
		count++
	}

	if _, failed := logger.Stats(); failed > 0 {
		return count, fmt.Errorf("failed to write %d events", failed)
	}
	return count, nil
}
