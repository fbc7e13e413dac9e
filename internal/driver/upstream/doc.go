// Package upstream implements a jsonwp.Driver that multiplexes client
// sessions onto a remote JSON Wire Protocol server.
//
// Session lifecycle commands (createSession, deleteSession, getStatus and
// getSessions) are handled locally by calling the upstream server and
// keeping a session registry. Every other session command is proxied
// verbatim, except requests matching a configured avoid rule, which are
// served locally and answer NotYetImplemented.
//
// Usage:
//
//	drv, err := upstream.New(upstream.Config{
//	    URL:      "http://127.0.0.1:4444/wd/hub",
//	    BasePath: "/wd/hub",
//	}, logger)
//	if err != nil {
//	    return err
//	}
//	dispatcher, err := jsonwp.NewDispatcher(jsonwp.Options{Driver: drv, Routes: routes.Default()})
package upstream
