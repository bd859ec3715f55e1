// Package telemetry bootstraps OpenTelemetry tracing for the resolver and
// records resolution metrics through both the OpenTelemetry metric API and a
// Prometheus registry that embedders can scrape.
package telemetry
