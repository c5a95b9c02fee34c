// Package process provides a runtime implementation that launches local
// processes: long-lived background servers and foreground commands that share
// the orchestrator's standard streams.
//
// Background processes are placed in their own process group on Unix so that
// Stop reaches every member of the group, which matters for build tools such
// as make that fork the actual server. On Windows Stop only reaches the direct
// child; any grandchildren may remain running and must be cleaned up by the
// caller.
//
// Foreground processes stay in the orchestrator's process group so terminal
// job control (Ctrl-C) reaches them directly.
package process
