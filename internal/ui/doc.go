// Package ui implements the terminal progress view for warm runs using bubbletea's Elm architecture.
//
// The TUI has two views:
//  1. [WarmView] : a progress bar and the latest batch message while the warm runs
//  2. [ResultView] : counts and a browsable list of unresolved ids
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the Msg union type.
// Progress updates flow through a channel from the [tasks.WarmEngine], providing non-blocking status reporting.
//
// [Palette] styles are shared with the CLI's plain output.
package ui
