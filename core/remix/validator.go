package remix

import (
	"os"

	"remixai/logger"
)

// ValidateStems filters out stem files that do not exist or whose size is
// below minBytes, the pragmatic floor for "not silence, not truncated".
// Rejections are logged with the observed size; an empty result is a valid
// return value, never an error.
func ValidateStems(stems map[string]string, minBytes int64) map[string]string {
	valid := make(map[string]string, len(stems))
	for name, path := range stems {
		info, err := os.Stat(path)
		if err != nil {
			logger.Warn("stem rejected, file missing",
				logger.String("stem", name),
				logger.String("path", path),
				logger.ErrorField(err))
			continue
		}
		if info.Size() < minBytes {
			logger.Warn("stem rejected, below size floor",
				logger.String("stem", name),
				logger.String("path", path),
				logger.Int64("size", info.Size()),
				logger.Int64("minBytes", minBytes))
			continue
		}
		valid[name] = path
	}
	return valid
}
