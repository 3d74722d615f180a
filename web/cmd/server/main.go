// Package main runs the odometry node.
package main

import (
	"go.viam.com/utils"

	"go.viam.com/ackermann/logging"
	"go.viam.com/ackermann/web/server"
)

var logger = logging.NewDebugLogger("odometry")

func main() {
	utils.ContextualMain(server.RunServer, logger)
}
