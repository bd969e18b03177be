// Package shutdown provides graceful shutdown for KeyDesk processes.
//
// A Handler waits for SIGINT, SIGTERM or an explicit Trigger and then runs
// the registered hooks in reverse registration order, so resources are
// released in the opposite order they were acquired.
//
// Usage:
//
//	h := shutdown.NewHandler(30*time.Second, logger)
//	h.OnShutdown("store", store.Close)
//	return h.Wait()
package shutdown
