package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/lyallcooper/mediadupes/internal/dupes"
)

// SnapshotSource is anything that can report the engine state.
type SnapshotSource interface {
	Snapshot() dupes.Snapshot
}

// EngineCollector exports the engine's current groups and flags on scrape.
type EngineCollector struct {
	source SnapshotSource

	groupsDesc    *prometheus.Desc
	filesDesc     *prometheus.Desc
	wastedDesc    *prometheus.Desc
	selectedDesc  *prometheus.Desc
	searchingDesc *prometheus.Desc
	deletingDesc  *prometheus.Desc
}

func NewEngineCollector(source SnapshotSource) *EngineCollector {
	return &EngineCollector{
		source: source,

		groupsDesc: prometheus.NewDesc(
			"mediadupes_duplicate_groups",
			"Number of duplicate groups from the last completed scan",
			nil, nil,
		),
		filesDesc: prometheus.NewDesc(
			"mediadupes_redundant_files",
			"Number of redundant copies across all duplicate groups",
			nil, nil,
		),
		wastedDesc: prometheus.NewDesc(
			"mediadupes_wasted_bytes",
			"Bytes recoverable by keeping one copy per group",
			nil, nil,
		),
		selectedDesc: prometheus.NewDesc(
			"mediadupes_selected_files",
			"Number of files currently selected for deletion",
			nil, nil,
		),
		searchingDesc: prometheus.NewDesc(
			"mediadupes_search_in_progress",
			"1 while a duplicate search is running",
			nil, nil,
		),
		deletingDesc: prometheus.NewDesc(
			"mediadupes_delete_in_progress",
			"1 while a deletion batch is running",
			nil, nil,
		),
	}
}

func (c *EngineCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.groupsDesc
	ch <- c.filesDesc
	ch <- c.wastedDesc
	ch <- c.selectedDesc
	ch <- c.searchingDesc
	ch <- c.deletingDesc
}

func (c *EngineCollector) Collect(ch chan<- prometheus.Metric) {
	if c.source == nil {
		return
	}
	snap := c.source.Snapshot()

	ch <- prometheus.MustNewConstMetric(c.groupsDesc, prometheus.GaugeValue, float64(snap.Stats.TotalGroups))
	ch <- prometheus.MustNewConstMetric(c.filesDesc, prometheus.GaugeValue, float64(snap.Stats.TotalFiles))
	ch <- prometheus.MustNewConstMetric(c.wastedDesc, prometheus.GaugeValue, float64(snap.Stats.WastedSpace))
	ch <- prometheus.MustNewConstMetric(c.selectedDesc, prometheus.GaugeValue, float64(len(snap.Selected)))
	ch <- prometheus.MustNewConstMetric(c.searchingDesc, prometheus.GaugeValue, boolValue(snap.Searching))
	ch <- prometheus.MustNewConstMetric(c.deletingDesc, prometheus.GaugeValue, boolValue(snap.Deleting))
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
