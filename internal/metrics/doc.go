// Copyright 2024 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by an MIT license that can be
// found in the LICENSE file.

/*
Package metrics provides Prometheus-based instrumentation covering
HTTP ingress, disk pressure, search, the write pipeline and archive,
cache, database, observability core, and the export pipeline.

# Overview

Collector registers and records every Prometheus metric the process
exports, using promauto so registration never needs manual Registry
bookkeeping. Metrics are isolated by namespace and grouped by label so
they read naturally in Grafana or any other Prometheus consumer.

# Core types

  - Collector: holds every Counter, Histogram, and Gauge vector,
    grouped by the subsystem that records it.

# Metric groups

  - HTTP: request count, request duration, request/response body
    size, grouped by method/path/status with status codes bucketed
    into 2xx/3xx/4xx/5xx.
  - Disk pressure: free-byte gauges for the storage root and database
    file, the classified pressure level, last sample timestamp, I/O
    byte counters, and a sample-error counter — named to mirror
    internal/diskpressure.Sample field for field.
  - Search: request count and latency by two-tier pipeline phase, plus
    a refinement-failure counter.
  - Write pipeline / archive: delivered-message count by importance,
    delivery latency, and archive commit outcomes.
  - Cache: hit/miss counts by cache type.
  - Database: open/idle connection gauges and query-duration
    histogram, by database/operation.
  - Observability core: BOCPD change-point counter, conformal interval
    width gauge, and evidence ledger size gauge, by tool.
  - Export pipeline: per-stage duration histogram and a total-runs
    counter by outcome.
*/
package metrics
