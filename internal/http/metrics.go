package http

import (
	"github.com/prometheus/client_golang/prometheus"

	"bloomd/pkg/filter"
)

var (
	filtersDesc = prometheus.NewDesc("bloomd_filters", "Number of live filters", nil, nil)

	capacityDesc    = filterDesc("bloomd_capacity", "Keys the loaded generations were sized for")
	sizeDesc        = filterDesc("bloomd_size", "Keys stored in the filter")
	storageDesc     = filterDesc("bloomd_storage_bytes", "Bitmap bytes held by the filter")
	fillDesc        = filterDesc("bloomd_fill_ratio", "Share of set bits in the newest generation")
	fpRateDesc      = filterDesc("bloomd_false_positive_rate", "Estimated false positive probability")
	checkHitsDesc   = filterDesc("bloomd_check_hits_total", "Checks that found the key")
	checkMissesDesc = filterDesc("bloomd_check_misses_total", "Checks that missed the key")
	setHitsDesc     = filterDesc("bloomd_set_hits_total", "Sets that added a new key")
	setMissesDesc   = filterDesc("bloomd_set_misses_total", "Sets of a key already present")
	pageInsDesc     = filterDesc("bloomd_page_ins_total", "Reloads of a closed filter")
	pageOutsDesc    = filterDesc("bloomd_page_outs_total", "Closes of a loaded filter")
)

func filterDesc(name, help string) *prometheus.Desc {
	return prometheus.NewDesc(name, help, []string{"filter"}, nil)
}

// filterCollector reads filter stats at scrape time.
type filterCollector struct {
	reg iRegistry
}

func (c filterCollector) Describe(ch chan<- *prometheus.Desc) {
	prometheus.DescribeByCollect(c, ch)
}

func (c filterCollector) Collect(ch chan<- prometheus.Metric) {
	var stats []filter.Stats
	for _, name := range c.reg.List("") {
		st, err := c.reg.Info(name)
		if err != nil {
			// dropped between List and Info
			continue
		}
		stats = append(stats, st)
	}

	ch <- prometheus.MustNewConstMetric(filtersDesc, prometheus.GaugeValue, float64(len(stats)))
	for _, st := range stats {
		gauge := func(d *prometheus.Desc, v float64) {
			ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, st.Name)
		}
		counter := func(d *prometheus.Desc, v uint64) {
			ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), st.Name)
		}

		gauge(capacityDesc, float64(st.Capacity))
		gauge(sizeDesc, float64(st.Size))
		gauge(storageDesc, float64(st.Bytes))
		gauge(fillDesc, st.FillRatio)
		gauge(fpRateDesc, st.FalsePositiveRate)
		counter(checkHitsDesc, st.CheckHits)
		counter(checkMissesDesc, st.CheckMisses)
		counter(setHitsDesc, st.SetHits)
		counter(setMissesDesc, st.SetMisses)
		counter(pageInsDesc, st.PageIns)
		counter(pageOutsDesc, st.PageOuts)
	}
}
