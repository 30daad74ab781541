package command

import "github.com/andrej220/NTC/internal/catalog"

// defaultSource labels cataloged output whose task did not name one.
const defaultSource = "unknown"

// SelectCatalogEntries filters task results down to the ones flagged for
// cataloging, skipping any that carry an error, and shapes each into a
// catalog entry for the given node. Order-preserving, no side effects.
func SelectCatalogEntries(nodeID string, tasks []TaskResult) []catalog.Entry {
	var entries []catalog.Entry
	for _, t := range tasks {
		if !t.Catalog || t.Error != nil {
			continue
		}
		source := t.Source
		if source == "" {
			source = defaultSource
		}
		entries = append(entries, catalog.Entry{
			NodeID: nodeID,
			Source: source,
			Data:   NormalizeData(t.Format, t.Data),
		})
	}
	return entries
}
