package storage

import "fileshare/logger"

var l = logger.DefaultLogger.NewFacility("storage", "User storage and credentials")
