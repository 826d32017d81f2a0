package video

import "github.com/prometheus/client_golang/prometheus"

var (
	framesDecoded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vrw_frames_decoded_total",
		Help: "Frames decoded and returned to readers.",
	}, []string{"backend"})

	framesSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vrw_frames_skipped_total",
		Help: "Frames decoded and discarded while seeking forward.",
	}, []string{"backend"})

	rewinds = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vrw_rewinds_total",
		Help: "Decoder rewinds to frame 0 caused by backward access.",
	}, []string{"backend"})

	cacheHits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vrw_cache_hits_total",
		Help: "Frame requests served from the single-frame cache.",
	}, []string{"backend"})

	framesWritten = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vrw_frames_written_total",
		Help: "Frames appended to encoders.",
	}, []string{"backend"})
)

func init() {
	prometheus.MustRegister(framesDecoded, framesSkipped, rewinds, cacheHits, framesWritten)
}
