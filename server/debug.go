package main

import "fileshare/logger"

var (
	l     = logger.DefaultLogger.NewFacility("server", "Listener and service lifecycle")
	lConn = logger.DefaultLogger.NewFacility("conn", "Per-connection protocol handling")
	lUp   = logger.DefaultLogger.NewFacility("upload", "Upload sessions and buffer accounting")
	lDown = logger.DefaultLogger.NewFacility("download", "File downloads")
	lAPI  = logger.DefaultLogger.NewFacility("api", "Status API")
)
