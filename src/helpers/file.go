package helpers

import (
	"fmt"
	"os"
	"path/filepath"
	"malh/src/settings"

	"go.uber.org/zap"
)

// OpenDataFile opens a tuple-input file relative to a relation's data
// directory, for the malhtool insert command's -file flag.
func OpenDataFile(dataDirectory, fileName string) (*os.File, error) {
	filePath := filepath.Join(dataDirectory, fileName)
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("error opening data file %s: %w", fileName, err)
	}
	return file, nil
}

// DeleteDataFile deletes one of a relation's three on-disk files
// (.info, .data, .ovflow) as part of dropping a relation.
func DeleteDataFile(filePath string) error {
	return os.Remove(filePath)
}

// FileExists checks if a file exists and is not a directory.
func FileExists(filename string, logger *zap.SugaredLogger) bool {
	args := settings.GetSettings()

	info, err := os.Stat(filename)
	if err != nil {
		if os.IsNotExist(err) {
			if args.Debug && args.Verbose {
				logger.Infof("File does not exist: %s\n", filename)
			}
			return false
		}

		logger.Infof("Error checking file %s for existence: %s\n", filename, err)
		return false
	}

	return !info.IsDir()
}
