package observability

import "github.com/prometheus/client_golang/prometheus"

// LedgerMetrics mencatat hasil transisi pesanan dan pergerakan ledger.
type LedgerMetrics struct {
	transitions   *prometheus.CounterVec
	entries       *prometheus.CounterVec
	negativeStock prometheus.Counter
	lockTimeouts  prometheus.Counter
	stockAlerts   *prometheus.CounterVec
}

// NewLedgerMetrics mendaftarkan metrik ledger pada registerer.
func NewLedgerMetrics(registerer prometheus.Registerer) *LedgerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "order_transitions_total",
		Help:      "Jumlah transisi pesanan berdasarkan arah, aksi, dan hasil.",
	}, []string{"direction", "action", "result"})
	entries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ledger_entries_total",
		Help:      "Jumlah entri ledger yang ditulis per jenis.",
	}, []string{"kind"})
	negative := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "negative_stock_total",
		Help:      "Penulisan yang ditolak karena stok akan menjadi negatif.",
	})
	lockTimeouts := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "lock_timeouts_total",
		Help:      "Transaksi yang gagal memperoleh kunci baris dalam batas waktu.",
	})
	alerts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stock_alerts_total",
		Help:      "Peringatan stok yang diterbitkan per status.",
	}, []string{"status"})
	registerer.MustRegister(transitions, entries, negative, lockTimeouts, alerts)
	return &LedgerMetrics{
		transitions:   transitions,
		entries:       entries,
		negativeStock: negative,
		lockTimeouts:  lockTimeouts,
		stockAlerts:   alerts,
	}
}

// ObserveTransition mencatat satu percobaan transisi.
func (m *LedgerMetrics) ObserveTransition(direction, action, result string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(direction, action, result).Inc()
}

// ObserveEntry mencatat entri ledger yang sudah di-commit.
func (m *LedgerMetrics) ObserveEntry(kind string) {
	if m == nil {
		return
	}
	m.entries.WithLabelValues(kind).Inc()
}

// NegativeStock menaikkan penghitung pelanggaran invarian stok.
func (m *LedgerMetrics) NegativeStock() {
	if m == nil {
		return
	}
	m.negativeStock.Inc()
}

// LockTimeout menaikkan penghitung batas waktu kunci.
func (m *LedgerMetrics) LockTimeout() {
	if m == nil {
		return
	}
	m.lockTimeouts.Inc()
}

// StockAlert mencatat peringatan stok yang diterbitkan.
func (m *LedgerMetrics) StockAlert(status string) {
	if m == nil {
		return
	}
	m.stockAlerts.WithLabelValues(status).Inc()
}
