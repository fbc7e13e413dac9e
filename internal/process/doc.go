// Package process supervises a locally managed upstream server, such as a
// vendor driver binary that speaks the JSON Wire Protocol on localhost.
//
// Features:
//   - Start/stop with graceful shutdown of the whole process group
//   - Restart on failure with exponential backoff
//   - Health watchdog that kills a hung server
//   - Readiness wait before the gateway starts accepting sessions
//   - Line-by-line capture of the server's stdout/stderr into the log
//
// Example usage:
//
//	mgr := process.NewManager(process.Config{
//	    Name:            "upstream",
//	    Binary:          "/usr/local/bin/chromedriver",
//	    Args:            []string{"--port=9515"},
//	    HealthCheckFunc: drv.Ping,
//	})
//	if err := mgr.Start(ctx); err != nil {
//	    return err
//	}
//	defer mgr.Stop()
//	if err := mgr.WaitReady(ctx, 30*time.Second); err != nil {
//	    return err
//	}
package process
