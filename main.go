package main

import (
	"context"
	"time"

	"github.com/shandysiswandi/mailmerge/internal/app"
)

// @title           Mailmerge API
// @version         1.0
// @description     Mailmerge sends personalized bulk email from a recipient table, with optional banner and attachment.
// @license.name    MIT
// @license.url     https://mit-license.org/
// @server          http://localhost:8080
func main() {
	application := app.New()    // Initialize the application
	wait := application.Start() // Start the application and wait for the termination signal
	<-wait                      // Wait for the application to receive a termination signal
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	application.Stop(ctx) // Stop the application gracefully
}
