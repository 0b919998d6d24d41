package metrics

import "time"

// StorageHook adapts Metrics to the Pebble wrapper's MetricsHook.
type StorageHook struct {
	m *Metrics
}

func (m *Metrics) StorageHook() StorageHook { return StorageHook{m: m} }

func (h StorageHook) ObserveWrite(elapsed time.Duration, _ int) {
	if h.m == nil {
		return
	}
	h.m.storageOps.WithLabelValues("write").Observe(elapsed.Seconds())
}

func (h StorageHook) ObserveRead(elapsed time.Duration, _ int) {
	if h.m == nil {
		return
	}
	h.m.storageOps.WithLabelValues("read").Observe(elapsed.Seconds())
}

func (h StorageHook) ObserveBatchCommit(elapsed time.Duration, numOps int, _ int) {
	if h.m == nil {
		return
	}
	h.m.storageOps.WithLabelValues("commit").Observe(elapsed.Seconds())
	h.m.storageBatchOps.Observe(float64(numOps))
}
