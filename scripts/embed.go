// Package scripts embeds the Risor scripts: one classification script per
// language tag under classify/, per-file mark scripts under mark/ and the
// scope module they import.
package scripts

import "embed"

// FS holds classify/<language>.risor for every supported language and
// mark/<language>.risor for languages whose locals need per-file analysis.
//
//go:embed classify/*.risor mark/*.risor scope.risor
var FS embed.FS
