// Package source provides rule set sources for the rules engine.
//
//   - FileSource reads a YAML or JSON file, or every such file in a directory,
//     and watches it with fsnotify. Bursts of file events are debounced into a
//     single reload.
//   - GitSource clones a repository with go-git, polls it for new commits and
//     reads the rule files from the working tree.
//   - MemorySource holds a rule set in memory, mainly for tests.
//
// All sources satisfy rules.Source and are driven by rules.Engine.Watch.
package source
