/*
Package observability turns engine lifecycle hooks into Prometheus metrics
and structured log records.

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
	hooks := observability.Combine(metrics.Hooks(), observability.LogHooks(logger))
	eng, err := astrobot.New(ctx, "flows", astrobot.WithLifecycleHooks(hooks))
*/
package observability
