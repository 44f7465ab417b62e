/*
Package tracing gives every gateway request a trace id and logs one span
per request.

The trace id arrives in X-Trace-ID or is minted as a request ULID, and is
echoed back so page logs posted from the browser can be matched to the
request that served the frame. Spans are logged from a buffered channel;
when the buffer is full spans are dropped rather than blocking requests.

	tracer := tracing.New("aurora-gateway", logger)
	defer tracer.Close()
	router.Use(tracing.HTTPMiddleware(tracer))

	span, ctx := tracer.StartSpan(ctx, "probe")
	defer tracer.Submit(span.Finish())
*/
package tracing
