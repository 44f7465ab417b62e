package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/AuroraGateway/internal/domain/tabs"
	"github.com/GriffinCanCode/AuroraGateway/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AuroraGateway/internal/infrastructure/resilience"
)

// BreakerReporter exposes the circuit state of each upstream
type BreakerReporter interface {
	BreakerStates() map[string]resilience.State
}

// MetricsAggregator collects gateway metrics into one JSON view
type MetricsAggregator struct {
	metrics  *monitoring.Metrics
	tabs     *tabs.Manager
	breakers BreakerReporter
}

// NewMetricsAggregator creates a metrics aggregator. breakers may be nil.
func NewMetricsAggregator(metrics *monitoring.Metrics, tabMgr *tabs.Manager, breakers BreakerReporter) *MetricsAggregator {
	return &MetricsAggregator{
		metrics:  metrics,
		tabs:     tabMgr,
		breakers: breakers,
	}
}

// MetricsSnapshot represents a snapshot of all gateway metrics
type MetricsSnapshot struct {
	Timestamp time.Time              `json:"timestamp"`
	Backend   map[string]interface{} `json:"backend"`
	Tabs      tabs.Stats             `json:"tabs"`
	Relays    map[string]string      `json:"relays,omitempty"`
	Summary   MetricsSummary         `json:"summary"`
}

// MetricsSummary provides high-level metrics
type MetricsSummary struct {
	TotalRequests     int64   `json:"total_requests"`
	AverageLatencyMs  float64 `json:"average_latency_ms"`
	ErrorRate         float64 `json:"error_rate"`
	LoadFailureRate   float64 `json:"load_failure_rate"`
	ActiveConnections int     `json:"active_connections"`
	UptimeSeconds     float64 `json:"uptime_seconds"`
}

// GetAggregatedMetrics returns the gateway metrics as JSON
func (ma *MetricsAggregator) GetAggregatedMetrics(c *gin.Context) {
	snapshot := MetricsSnapshot{
		Timestamp: time.Now(),
		Backend:   ma.getBackendMetrics(),
		Tabs:      ma.tabs.Stats(),
		Relays:    ma.getRelayStates(),
		Summary:   ma.calculateSummary(),
	}
	c.JSON(http.StatusOK, snapshot)
}

// GetMetricsDashboard returns an HTML dashboard
func (ma *MetricsAggregator) GetMetricsDashboard(c *gin.Context) {
	html := `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Aurora Gateway Metrics</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', sans-serif;
            background: #0a0a0a;
            color: #e0e0e0;
            padding: 20px;
        }
        .container { max-width: 1400px; margin: 0 auto; }
        h1 {
            font-size: 2rem;
            margin-bottom: 10px;
            background: linear-gradient(135deg, #667eea 0%, #764ba2 100%);
            -webkit-background-clip: text;
            -webkit-text-fill-color: transparent;
        }
        .subtitle { color: #888; margin-bottom: 30px; }
        .grid {
            display: grid;
            grid-template-columns: repeat(auto-fit, minmax(300px, 1fr));
            gap: 20px;
            margin-bottom: 20px;
        }
        .card {
            background: #1a1a1a;
            border-radius: 12px;
            padding: 20px;
            border: 1px solid #333;
            transition: transform 0.2s, border-color 0.2s;
        }
        .card:hover {
            transform: translateY(-2px);
            border-color: #667eea;
        }
        .card h2 {
            font-size: 1.2rem;
            margin-bottom: 15px;
            color: #667eea;
        }
        .metric {
            display: flex;
            justify-content: space-between;
            padding: 10px 0;
            border-bottom: 1px solid #2a2a2a;
        }
        .metric:last-child { border-bottom: none; }
        .metric-label { color: #999; }
        .metric-value {
            font-weight: 600;
            color: #fff;
            font-family: 'Courier New', monospace;
        }
        .metric-value.good { color: #4ade80; }
        .metric-value.warning { color: #fbbf24; }
        .metric-value.error { color: #f87171; }
        .refresh-btn {
            background: linear-gradient(135deg, #667eea 0%, #764ba2 100%);
            color: white;
            border: none;
            padding: 12px 24px;
            border-radius: 8px;
            cursor: pointer;
            font-size: 1rem;
            margin-bottom: 20px;
            transition: opacity 0.2s;
        }
        .refresh-btn:hover { opacity: 0.9; }
        .timestamp {
            color: #666;
            text-align: center;
            margin-top: 20px;
            font-size: 0.9rem;
        }
        .endpoint-link {
            display: inline-block;
            margin: 10px 10px 20px 0;
            padding: 8px 16px;
            background: #2a2a2a;
            color: #667eea;
            text-decoration: none;
            border-radius: 6px;
            font-size: 0.9rem;
            border: 1px solid #333;
            transition: all 0.2s;
        }
        .endpoint-link:hover {
            background: #333;
            border-color: #667eea;
        }
    </style>
</head>
<body>
    <div class="container">
        <h1>Aurora Gateway Metrics</h1>
        <p class="subtitle">Relay loads, tabs and HTTP traffic</p>

        <div>
            <a href="/metrics" class="endpoint-link">Prometheus Metrics</a>
            <a href="/metrics/json" class="endpoint-link">JSON Format</a>
            <a href="/health" class="endpoint-link">Health Check</a>
        </div>

        <button class="refresh-btn" onclick="loadMetrics()">Refresh Metrics</button>

        <div id="metrics-container">
            <p style="text-align: center; color: #666;">Loading metrics...</p>
        </div>

        <p class="timestamp" id="timestamp"></p>
    </div>

    <script>
        function formatValue(value) {
            if (typeof value === 'number') {
                if (value > 1000000) return (value / 1000000).toFixed(2) + 'M';
                if (value > 1000) return (value / 1000).toFixed(2) + 'K';
                if (value < 1 && value > 0) return value.toFixed(3);
                return value.toFixed(2);
            }
            return value;
        }

        function getValueClass(label, value) {
            if (typeof value !== 'number') return '';
            if (label.includes('error') || label.includes('denied')) {
                return value > 0 ? 'error' : 'good';
            }
            if (label.includes('latency') || label.includes('duration')) {
                if (value < 100) return 'good';
                if (value < 1000) return 'warning';
                return 'error';
            }
            return '';
        }

        function renderMetrics(data) {
            const container = document.getElementById('metrics-container');
            const summary = data.summary || {};
            const backend = data.backend || {};
            const relays = data.relays || {};

            let html = '<div class="grid">';

            // Summary Card
            html += '<div class="card"><h2>Summary</h2>';
            html += '<div class="metric"><span class="metric-label">Total Requests</span><span class="metric-value">' + formatValue(summary.total_requests || 0) + '</span></div>';
            html += '<div class="metric"><span class="metric-label">Avg Latency</span><span class="metric-value ' + getValueClass('latency', summary.average_latency_ms) + '">' + formatValue(summary.average_latency_ms || 0) + ' ms</span></div>';
            html += '<div class="metric"><span class="metric-label">Error Rate</span><span class="metric-value ' + (summary.error_rate > 0.01 ? 'error' : 'good') + '">' + (summary.error_rate * 100).toFixed(2) + '%</span></div>';
            html += '<div class="metric"><span class="metric-label">Active Connections</span><span class="metric-value">' + formatValue(summary.active_connections || 0) + '</span></div>';
            html += '<div class="metric"><span class="metric-label">Uptime</span><span class="metric-value good">' + formatValue(summary.uptime_seconds || 0) + ' s</span></div>';
            html += '</div>';

            // Backend Card
            if (Object.keys(backend).length > 0) {
                html += '<div class="card"><h2>Gateway</h2>';
                for (const [key, value] of Object.entries(backend)) {
                    const label = key.replace(/_/g, ' ').replace(/\b\w/g, l => l.toUpperCase());
                    html += '<div class="metric"><span class="metric-label">' + label + '</span><span class="metric-value ' + getValueClass(key, value) + '">' + formatValue(value) + '</span></div>';
                }
                html += '</div>';
            }

            // Relay circuit breakers
            if (Object.keys(relays).length > 0) {
                html += '<div class="card"><h2>Relays</h2>';
                for (const [key, value] of Object.entries(relays)) {
                    const cls = value === 'closed' ? 'good' : (value === 'open' ? 'error' : 'warning');
                    html += '<div class="metric"><span class="metric-label">' + key + '</span><span class="metric-value ' + cls + '">' + value + '</span></div>';
                }
                html += '</div>';
            }

            html += '</div>';
            container.innerHTML = html;

            document.getElementById('timestamp').textContent =
                'Last updated: ' + new Date(data.timestamp).toLocaleString();
        }

        function loadMetrics() {
            fetch('/metrics/json')
                .then(response => response.json())
                .then(data => renderMetrics(data))
                .catch(error => {
                    console.error('Error loading metrics:', error);
                    document.getElementById('metrics-container').innerHTML =
                        '<p style="text-align: center; color: #f87171;">Error loading metrics</p>';
                });
        }

        // Auto-refresh every 5 seconds
        loadMetrics();
        setInterval(loadMetrics, 5000);
    </script>
</body>
</html>`

	c.Header("Content-Type", "text/html; charset=utf-8")
	c.String(http.StatusOK, html)
}

// getBackendMetrics collects gateway counters
func (ma *MetricsAggregator) getBackendMetrics() map[string]interface{} {
	snapshot := ma.metrics.Snapshot()

	return map[string]interface{}{
		"status":             "operational",
		"total_requests":     snapshot.TotalRequests,
		"total_errors":       snapshot.TotalErrors,
		"total_loads":        snapshot.TotalLoads,
		"failed_loads":       snapshot.FailedLoads,
		"active_tabs":        snapshot.ActiveTabs,
		"active_connections": snapshot.ActiveConnections,
		"uptime_seconds":     ma.uptime(),
	}
}

// getRelayStates reports each relay's circuit breaker
func (ma *MetricsAggregator) getRelayStates() map[string]string {
	if ma.breakers == nil {
		return nil
	}
	states := ma.breakers.BreakerStates()
	out := make(map[string]string, len(states))
	for name, state := range states {
		out[name] = state.String()
	}
	return out
}

// calculateSummary computes high-level summary metrics
func (ma *MetricsAggregator) calculateSummary() MetricsSummary {
	snapshot := ma.metrics.Snapshot()

	var avgLatency float64
	if snapshot.RequestCount > 0 {
		avgLatency = (snapshot.TotalDuration / float64(snapshot.RequestCount)) * 1000 // Convert to ms
	}

	var errorRate float64
	if snapshot.TotalRequests > 0 {
		errorRate = float64(snapshot.TotalErrors) / float64(snapshot.TotalRequests)
	}

	var loadFailureRate float64
	if snapshot.TotalLoads > 0 {
		loadFailureRate = float64(snapshot.FailedLoads) / float64(snapshot.TotalLoads)
	}

	return MetricsSummary{
		TotalRequests:     snapshot.TotalRequests,
		AverageLatencyMs:  avgLatency,
		ErrorRate:         errorRate,
		LoadFailureRate:   loadFailureRate,
		ActiveConnections: int(snapshot.ActiveConnections),
		UptimeSeconds:     ma.uptime(),
	}
}

func (ma *MetricsAggregator) uptime() float64 {
	start := ma.metrics.StartTime()
	if start.IsZero() {
		return 0
	}
	return time.Since(start).Seconds()
}
