package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var FilesPacked = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "mix_files_packed_total",
		Help: "Files added to a mix archive by makemix",
	},
	[]string{"archive"},
)

var FilesExtracted = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "mix_files_extracted_total",
		Help: "Files extracted from a mix archive by unmakemix",
	},
	[]string{"archive"},
)

var BytesWritten = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "mix_bytes_written_total",
		Help: "Body bytes written while building a mix archive",
	},
	[]string{"archive"},
)

var BytesRead = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "mix_bytes_read_total",
		Help: "Body bytes read while extracting a mix archive",
	},
	[]string{"archive"},
)

var ExtractErrors = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "mix_extract_errors_total",
		Help: "Extraction failures by reason",
	},
	[]string{"archive", "reason"},
)

var HashCollisions = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "mix_hash_collisions_total",
		Help: "Filename hash collisions observed while building the name database",
	},
	[]string{"hash_method"},
)

// - Version information of this binary
var Version = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "version",
		Help: "Version information of this binary",
	},
	[]string{"started_at", "tag", "commit", "compiler", "goarch", "goos", "goamd64", "vcs", "vcs_revision", "vcs_time", "vcs_modified"},
)

var HashLookupHistogram = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "mix_hash_lookup_latency_histogram",
		Help:    "Mix archive index hash lookup latency during extraction",
		Buckets: prometheus.ExponentialBuckets(0.000001, 10, 10),
	},
	[]string{"hash_method"},
)

var IndexLookupHistogram = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "mix_index_lookup_latency_histogram",
		Help:    "Mix archive index lookup latency",
		Buckets: prometheus.ExponentialBuckets(0.000001, 10, 10),
	},
	[]string{"archive", "found"},
)
