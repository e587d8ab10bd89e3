// =============================================================================
// Invoice Reconciler - Main Entry Point
// =============================================================================
//
// USAGE:
//   reconciler run --month 2024-03   - Reconcile a month
//   reconciler resume <id> --auto    - Finish a saved session
//   reconciler history               - List sessions
//   reconciler version               - Display the application version
//
// ARCHITECTURE:
//   - cmd/       : CLI command definitions (Cobra)
//   - internal/  : Core logic (matcher, sessions, store, ingestion, reports)
//   - pkg/       : Shared file utilities
//
// =============================================================================

package main

import (
	"github.com/ginjaninja78/invoice-reconciler/cmd"
)

func main() {
	cmd.Execute()
}
