/*
Package tracing wires OpenTelemetry into the engine.

Inbound supervisor events and score arbitration run inside spans named after
the event ("engine.visibility", "engine.score", ...). Spans are exported with
the stdout exporter when tracing is enabled; otherwise components receive a
no-op tracer.

	provider, err := tracing.Init(tracing.Config{ServiceName: "keepalive"})
	if err != nil {
		return err
	}
	defer provider.Shutdown(ctx)

	ctx, span := provider.Tracer().Start(ctx, "engine.score")
	defer tracing.End(span, err)

The admin server continues W3C trace context through HTTPMiddleware.
*/
package tracing
